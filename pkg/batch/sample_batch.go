package batch

import (
	"errors"

	"github.com/cuemby/ecowatt/pkg/types"
)

const (
	// DefaultCapacity is the default SampleBatch size.
	DefaultCapacity = 5
	// MaxCapacity is the hard upper bound on SampleBatch size.
	MaxCapacity = 20
)

var (
	ErrCapacityOutOfRange  = errors.New("batch: capacity must be in [1, 20]")
	ErrSelectionMismatch   = errors.New("batch: sample selection differs from batch selection")
	ErrBatchFull           = errors.New("batch: batch is already full")
)

// SampleBatch accepts Samples sharing one register selection until it
// reaches capacity.
type SampleBatch struct {
	capacity  int
	samples   []types.Sample
	selection []string
}

// NewSampleBatch creates a SampleBatch with the given capacity, defaulting
// to DefaultCapacity when capacity <= 0.
func NewSampleBatch(capacity int) (*SampleBatch, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity > MaxCapacity {
		return nil, ErrCapacityOutOfRange
	}
	return &SampleBatch{capacity: capacity, samples: make([]types.Sample, 0, capacity)}, nil
}

// Accept appends s to the batch. The first accepted Sample fixes the
// batch's register selection; every subsequent Sample must match it exactly.
func (b *SampleBatch) Accept(s types.Sample) error {
	if b.IsFull() {
		return ErrBatchFull
	}
	if len(b.samples) == 0 {
		b.selection = append([]string(nil), s.Selection...)
	} else if !sameSelection(b.selection, s.Selection) {
		return ErrSelectionMismatch
	}
	b.samples = append(b.samples, s)
	return nil
}

func sameSelection(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, r := range a {
		seen[r] = struct{}{}
	}
	for _, r := range b {
		if _, ok := seen[r]; !ok {
			return false
		}
	}
	return true
}

// IsFull reports whether the batch has reached capacity.
func (b *SampleBatch) IsFull() bool {
	return len(b.samples) >= b.capacity
}

// Len returns the number of Samples currently held.
func (b *SampleBatch) Len() int {
	return len(b.samples)
}

// Selection returns the register selection the batch was opened with.
func (b *SampleBatch) Selection() []string {
	return b.selection
}

// ToLinearArray flattens the batch row-major: sample-then-register, in
// the order given by Selection().
func (b *SampleBatch) ToLinearArray() []uint16 {
	out := make([]uint16, 0, len(b.samples)*len(b.selection))
	for _, s := range b.samples {
		for _, reg := range b.selection {
			out = append(out, s.Values[reg])
		}
	}
	return out
}

// Reset empties the batch so it can be reused for a new selection.
func (b *SampleBatch) Reset() {
	b.samples = b.samples[:0]
	b.selection = nil
}
