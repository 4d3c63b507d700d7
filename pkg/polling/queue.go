package polling

import (
	"sync"

	"github.com/cuemby/ecowatt/pkg/metrics"
	"github.com/cuemby/ecowatt/pkg/types"
)

// DefaultQueueCapacity bounds the sample queue between the Polling
// Pipeline and the Compression Engine.
const DefaultQueueCapacity = 32

// SampleQueue is a bounded FIFO of Samples with non-blocking push
// semantics: pushing onto a full queue drops the oldest entry rather
// than blocking the poller, preserving freshness over completeness.
type SampleQueue struct {
	mu       sync.Mutex
	items    []types.Sample
	capacity int
}

// NewSampleQueue builds a SampleQueue, defaulting to DefaultQueueCapacity
// when capacity <= 0.
func NewSampleQueue(capacity int) *SampleQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &SampleQueue{items: make([]types.Sample, 0, capacity), capacity: capacity}
}

// Push appends s to the queue. If the queue is already at capacity the
// oldest sample is discarded and dropped reports true.
func (q *SampleQueue) Push(s types.Sample) (dropped bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
		dropped = true
	}
	q.items = append(q.items, s)
	metrics.SampleQueueDepth.Set(float64(len(q.items)))
	if dropped {
		metrics.SampleQueueDropsTotal.Inc()
	}
	return dropped
}

// Pop removes and returns the oldest Sample. ok is false on an empty
// queue.
func (q *SampleQueue) Pop() (types.Sample, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return types.Sample{}, false
	}
	s := q.items[0]
	q.items = q.items[1:]
	metrics.SampleQueueDepth.Set(float64(len(q.items)))
	return s, true
}

// Len reports the current queue depth.
func (q *SampleQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
