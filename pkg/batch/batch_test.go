package batch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/types"
)

func TestSampleBatch_AcceptAndFull(t *testing.T) {
	b, err := NewSampleBatch(2)
	require.NoError(t, err)

	s1 := types.Sample{Values: map[string]uint16{"vac": 220}, Selection: []string{"vac"}}
	require.NoError(t, b.Accept(s1))
	require.False(t, b.IsFull())

	s2 := types.Sample{Values: map[string]uint16{"vac": 221}, Selection: []string{"vac"}}
	require.NoError(t, b.Accept(s2))
	require.True(t, b.IsFull())

	err = b.Accept(s2)
	require.ErrorIs(t, err, ErrBatchFull)
}

func TestSampleBatch_RejectsSelectionMismatch(t *testing.T) {
	b, err := NewSampleBatch(5)
	require.NoError(t, err)

	require.NoError(t, b.Accept(types.Sample{Selection: []string{"vac", "iac"}}))
	err = b.Accept(types.Sample{Selection: []string{"vac"}})
	require.ErrorIs(t, err, ErrSelectionMismatch)
}

func TestSampleBatch_ToLinearArray(t *testing.T) {
	b, err := NewSampleBatch(5)
	require.NoError(t, err)

	require.NoError(t, b.Accept(types.Sample{Selection: []string{"vac", "iac"}, Values: map[string]uint16{"vac": 220, "iac": 5}}))
	require.NoError(t, b.Accept(types.Sample{Selection: []string{"vac", "iac"}, Values: map[string]uint16{"vac": 221, "iac": 6}}))

	require.Equal(t, []uint16{220, 5, 221, 6}, b.ToLinearArray())
}

func TestSampleBatch_CapacityBounds(t *testing.T) {
	_, err := NewSampleBatch(21)
	require.ErrorIs(t, err, ErrCapacityOutOfRange)
}

func TestCompressedRing_PushAndDrainOrder(t *testing.T) {
	r := NewCompressedRing(3)
	require.True(t, r.Empty())

	r.Push(types.CompressedPacket{Codec: 1})
	r.Push(types.CompressedPacket{Codec: 2})
	require.Equal(t, 2, r.Size())

	drained := r.DrainAll()
	require.Equal(t, []byte{1, 2}, []byte{drained[0].Codec, drained[1].Codec})
	require.True(t, r.Empty())
}

func TestCompressedRing_OverwritesOldestWhenFull(t *testing.T) {
	r := NewCompressedRing(2)
	r.Push(types.CompressedPacket{Codec: 1})
	r.Push(types.CompressedPacket{Codec: 2})

	discarded := r.Push(types.CompressedPacket{Codec: 3})
	require.True(t, discarded)
	require.Equal(t, 2, r.Size(), "size unchanged after overwrite")

	drained := r.DrainAll()
	require.Equal(t, []byte{2, 3}, []byte{drained[0].Codec, drained[1].Codec})
}
