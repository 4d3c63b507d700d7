package compression

import (
	"math"

	"github.com/cuemby/ecowatt/pkg/types"
)

// Codec identifiers — the single byte 0 of every CompressedPacket.
const (
	IDRawBinary     byte = 0x00
	IDBitPacked     byte = 0x01
	IDBinaryDelta   byte = 0x02
	IDBinaryRLE     byte = 0x03
	IDSemanticRLE   byte = 0x50
	IDTemporalDelta byte = 0x71
	IDDictionary    byte = 0xD0
)

// MaxPacketBytes is the hard cap on a CompressedPacket's byte length.
const MaxPacketBytes = 512

// Tolerance by register type, used by Semantic RLE.
var registerTolerance = map[types.RegisterType]uint16{
	types.RegisterVoltage:     2,
	types.RegisterCurrent:     1, // raw register units; 0.1A step assumed
	types.RegisterTemperature: 1, // 0.5°C step assumed
	types.RegisterPower:       1,
}

func toleranceFor(t types.RegisterType) uint16 {
	if tol, ok := registerTolerance[t]; ok {
		return tol
	}
	return 0
}

// Codec compresses/decompresses the flattened row-major (sample-then-
// register) value array of one SampleBatch. The leading codec-id byte is
// owned by the Engine, not by individual codecs.
type Codec interface {
	ID() byte
	Name() string
	// Compress returns the codec-private payload (no leading id byte).
	Compress(values []uint16, sampleCount int, selection []string, regTypes []types.RegisterType) ([]byte, error)
	Decompress(payload []byte, sampleCount int, selection []string) ([]uint16, error)
	// Reset clears any codec-private learned/historical state. Called when
	// the register selection changes mid-stream.
	Reset()
}

// Characteristics summarizes a value array for tournament short-circuiting.
type Characteristics struct {
	RepeatRatio     float64
	AvgAbsDelta     float64
	LargeDeltaRatio float64
	ValueRange      uint16
	UniqueCount     int
	OptimalBitWidth int
	Entropy         float64
}

// Characterize computes the data-characterization statistics used by the
// (optional, disabled-by-default) recommender short-circuit.
func Characterize(values []uint16) Characteristics {
	if len(values) == 0 {
		return Characteristics{}
	}

	min, max := values[0], values[0]
	repeats := 0
	seen := make(map[uint16]int, len(values))
	var sumAbsDelta float64
	largeDeltas := 0
	const largeDeltaThreshold = 100

	for i, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		seen[v]++
		if i > 0 {
			prev := values[i-1]
			if prev == v {
				repeats++
			}
			delta := math.Abs(float64(int(v) - int(prev)))
			sumAbsDelta += delta
			if delta > largeDeltaThreshold {
				largeDeltas++
			}
		}
	}

	n := len(values)
	valueRange := max - min
	bitWidth := bitsNeeded(valueRange)

	entropy := 0.0
	for _, count := range seen {
		p := float64(count) / float64(n)
		entropy -= p * math.Log2(p)
	}

	c := Characteristics{
		ValueRange:      valueRange,
		UniqueCount:     len(seen),
		OptimalBitWidth: bitWidth,
		Entropy:         entropy,
	}
	if n > 1 {
		c.RepeatRatio = float64(repeats) / float64(n-1)
		c.AvgAbsDelta = sumAbsDelta / float64(n-1)
		c.LargeDeltaRatio = float64(largeDeltas) / float64(n-1)
	}
	return c
}

func bitsNeeded(valueRange uint16) int {
	if valueRange == 0 {
		return 0
	}
	bits := 0
	for (uint32(1) << uint(bits)) <= uint32(valueRange) {
		bits++
	}
	return bits
}
