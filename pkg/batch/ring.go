package batch

import (
	"sync"

	"github.com/cuemby/ecowatt/pkg/types"
)

// CompressedRing is a bounded, overwrite-oldest circular buffer of
// CompressedPackets. Push never blocks and never allocates; DrainAll
// empties the ring atomically relative to any concurrent Push.
type CompressedRing struct {
	mu       sync.Mutex
	data     []types.CompressedPacket
	writeIdx int
	count    int
}

// NewCompressedRing creates a ring of the given fixed capacity.
func NewCompressedRing(capacity int) *CompressedRing {
	if capacity <= 0 {
		capacity = 1
	}
	return &CompressedRing{data: make([]types.CompressedPacket, capacity)}
}

// Push inserts packet, discarding the oldest entry if the ring is full.
// Returns true if an existing entry was discarded.
func (r *CompressedRing) Push(packet types.CompressedPacket) (discardedOldest bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.data)
	r.data[r.writeIdx] = packet
	r.writeIdx = (r.writeIdx + 1) % capacity

	if r.count < capacity {
		r.count++
		return false
	}
	return true
}

// DrainAll removes and returns every packet in insertion order, leaving the
// ring empty.
func (r *CompressedRing) DrainAll() []types.CompressedPacket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil
	}

	capacity := len(r.data)
	oldest := (r.writeIdx - r.count + capacity) % capacity
	out := make([]types.CompressedPacket, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(oldest+i)%capacity]
	}

	r.writeIdx = 0
	r.count = 0
	return out
}

// Size returns the number of packets currently held.
func (r *CompressedRing) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Empty reports whether the ring currently holds no packets.
func (r *CompressedRing) Empty() bool {
	return r.Size() == 0
}
