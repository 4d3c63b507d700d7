package health

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/ecowatt/pkg/storage"
)

// StoreChecker confirms the Persistent Store accepts a round-trip
// write/read against a scratch key.
type StoreChecker struct {
	Store     storage.Store
	Namespace string
	Key       string
}

// NewStoreChecker creates a store-reachability checker using a dedicated
// scratch key so it never collides with real configuration state.
func NewStoreChecker(store storage.Store) *StoreChecker {
	return &StoreChecker{Store: store, Namespace: storage.NamespaceDiagnostics, Key: "post-boot-probe"}
}

// Check writes and reads back a marker value.
func (s *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()
	probe := uint32(start.UnixNano())

	if err := s.Store.PutUint32(s.Namespace, s.Key, probe); err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("store write failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	readBack, err := s.Store.GetUint32(s.Namespace, s.Key, 0)
	if err != nil {
		return Result{Healthy: false, Message: fmt.Sprintf("store read failed: %v", err), CheckedAt: start, Duration: time.Since(start)}
	}
	if readBack != probe {
		return Result{Healthy: false, Message: "store round-trip mismatch", CheckedAt: start, Duration: time.Since(start)}
	}
	return Result{Healthy: true, Message: "store reachable", CheckedAt: start, Duration: time.Since(start)}
}

// Type returns the health check type.
func (s *StoreChecker) Type() CheckType {
	return CheckTypeStore
}
