package polling

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/types"
)

func sample(id string, v uint16) types.Sample {
	return types.Sample{Values: map[string]uint16{id: v}, Selection: []string{id}, AcquiredAtMS: int64(v)}
}

func TestSampleQueue_PushPopFIFO(t *testing.T) {
	q := NewSampleQueue(3)

	require.False(t, q.Push(sample("v1", 1)))
	require.False(t, q.Push(sample("v1", 2)))

	s, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, int64(1), s.AcquiredAtMS)

	require.Equal(t, 1, q.Len())
}

func TestSampleQueue_DropsOldestWhenFull(t *testing.T) {
	q := NewSampleQueue(2)

	require.False(t, q.Push(sample("v1", 1)))
	require.False(t, q.Push(sample("v1", 2)))
	require.True(t, q.Push(sample("v1", 3)), "third push must drop the oldest")

	require.Equal(t, 2, q.Len())

	first, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, int64(2), first.AcquiredAtMS, "oldest entry should have been evicted")
}

func TestSampleQueue_PopEmptyReturnsFalse(t *testing.T) {
	q := NewSampleQueue(1)
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestSampleQueue_DefaultsCapacityWhenZero(t *testing.T) {
	q := NewSampleQueue(0)
	require.Equal(t, DefaultQueueCapacity, q.capacity)
}
