package faultrecovery

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/types"
)

// ErrDeadlineExceeded is returned when the remaining deadline slack would
// be exceeded by the next backoff delay, aborting further retries.
var ErrDeadlineExceeded = errors.New("faultrecovery: remaining deadline slack exceeded")

// Operation is one attempt at a register exchange: it performs the
// exchange+validate cycle and returns the transport error (nil on success)
// and the parsed result.
type Operation func(ctx context.Context) (protocol.ParseResult, error)

// Reporter posts a FaultEvent to the cloud fault-recovery endpoint.
// Reporting is always best-effort: a Reporter error is logged, never
// surfaced to Recoverer.Run's caller.
type Reporter interface {
	ReportFault(ctx context.Context, event types.FaultEvent) error
}

// Recoverer drives the bounded exponential-backoff retry algorithm used to
// recover from transient faults.
type Recoverer struct {
	BaseDelay  time.Duration // default 500ms
	MaxBackoff time.Duration
	Reporter   Reporter
	DeviceID   string
	Logger     zerolog.Logger
	// Now lets tests substitute a deterministic clock.
	Now func() time.Time
}

func (r *Recoverer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// backoffDelay computes base * 2^attempt clamped to MaxBackoff.
func (r *Recoverer) backoffDelay(attempt int) time.Duration {
	base := r.BaseDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	max := r.MaxBackoff
	if max <= 0 {
		max = 8 * time.Second
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// Run executes op, retrying on recoverable faults with exponential backoff
// until success, exhaustion of the fault kind's retry budget, or until the
// next backoff delay would exceed deadline. It respects ctx cancellation on
// the sleep. Every terminal outcome is reported to Reporter on a
// best-effort basis.
func (r *Recoverer) Run(ctx context.Context, deadline time.Time, op Operation) (protocol.ParseResult, error) {
	var lastResult protocol.ParseResult
	var lastErr error
	var lastKind types.FaultKind

	for attempt := 0; ; attempt++ {
		result, transportErr := op(ctx)
		lastResult, lastErr = result, transportErr

		kind, recoverable, maxRetries := Classify(transportErr, result)
		lastKind = kind

		if transportErr == nil && result.Status == protocol.StatusOK {
			if attempt > 0 {
				r.report(ctx, types.FaultEvent{
					FaultKind:      kind,
					RecoveryAction: "retry",
					Success:        true,
					RetryCount:     attempt,
					Detail:         "recovered",
					DeviceID:       r.DeviceID,
					Timestamp:      r.now(),
				})
			}
			return result, nil
		}

		if !recoverable || attempt >= maxRetries {
			r.reportFailure(ctx, kind, attempt, transportErr)
			return lastResult, terminalError(kind, transportErr)
		}

		delay := r.backoffDelay(attempt)
		if r.now().Add(delay).After(deadline) {
			r.reportFailure(ctx, kind, attempt, ErrDeadlineExceeded)
			return lastResult, ErrDeadlineExceeded
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.reportFailure(ctx, lastKind, attempt, ctx.Err())
			return lastResult, ctx.Err()
		case <-timer.C:
		}
	}
}

func terminalError(kind types.FaultKind, transportErr error) error {
	if transportErr != nil {
		return transportErr
	}
	return &FaultError{Kind: kind}
}

func (r *Recoverer) reportFailure(ctx context.Context, kind types.FaultKind, retryCount int, cause error) {
	detail := "exhausted"
	if cause != nil {
		detail = cause.Error()
	}
	r.report(ctx, types.FaultEvent{
		FaultKind:      kind,
		RecoveryAction: "retry",
		Success:        false,
		RetryCount:     retryCount,
		Detail:         detail,
		DeviceID:       r.DeviceID,
		Timestamp:      r.now(),
	})
}

func (r *Recoverer) report(ctx context.Context, event types.FaultEvent) {
	if r.Reporter == nil {
		return
	}
	if err := r.Reporter.ReportFault(ctx, event); err != nil {
		r.Logger.Warn().Err(err).Str("fault_kind", string(event.FaultKind)).Msg("fault event report failed, dropping")
	}
}

// FaultError wraps a non-recoverable or exhausted fault kind with no
// underlying transport error (e.g. a protocol exception classified
// non-recoverable).
type FaultError struct {
	Kind types.FaultKind
}

func (e *FaultError) Error() string {
	return "faultrecovery: " + string(e.Kind)
}
