package health

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Rollbacker is the subset of firmware.Applier the diagnostics runner
// needs — kept minimal here so pkg/health has no import-time dependency
// on pkg/firmware.
type Rollbacker interface {
	Rollback() error
}

// NamedChecker pairs a Checker with the label it reports under.
type NamedChecker struct {
	Name    string
	Checker Checker
}

// Runner drives the fixed set of post-boot diagnostics within an overall
// deadline. If any checker fails, it requests a rollback to the previous
// firmware slot.
type Runner struct {
	Checkers []NamedChecker
	Applier  Rollbacker
	Logger   zerolog.Logger

	// OnRollback, if set, is called after Applier.Rollback succeeds. The
	// firmware package's own phase/state bookkeeping lives outside this
	// package (kept dependency-free of pkg/firmware), so the caller
	// supplies this to record the rollback in persisted state.
	OnRollback func()
}

// RunResult is the per-checker outcome of one diagnostics pass.
type RunResult struct {
	Name   string
	Result Result
}

// Run executes every checker against ctx's deadline. If all pass, it
// returns (results, nil). If any fails, it triggers a rollback and
// returns an error describing the first failure.
func (r *Runner) Run(ctx context.Context) ([]RunResult, error) {
	results := make([]RunResult, 0, len(r.Checkers))
	var firstFailure *RunResult

	for _, nc := range r.Checkers {
		res := nc.Checker.Check(ctx)
		results = append(results, RunResult{Name: nc.Name, Result: res})
		if !res.Healthy && firstFailure == nil {
			firstFailure = &RunResult{Name: nc.Name, Result: res}
		}
		r.Logger.Info().Str("check", nc.Name).Bool("healthy", res.Healthy).Str("message", res.Message).Msg("post-boot diagnostic")
	}

	if firstFailure == nil {
		return results, nil
	}

	r.Logger.Error().Str("check", firstFailure.Name).Str("message", firstFailure.Result.Message).Msg("post-boot diagnostic failed, requesting rollback")
	if err := r.Applier.Rollback(); err != nil {
		return results, fmt.Errorf("health: diagnostic %q failed and rollback also failed: %w", firstFailure.Name, err)
	}
	if r.OnRollback != nil {
		r.OnRollback()
	}
	return results, fmt.Errorf("health: diagnostic %q failed, rolled back to previous slot", firstFailure.Name)
}
