package compression

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/cuemby/ecowatt/pkg/types"
)

const (
	dictionaryCapacity    = 16
	dictionaryEvictionFloor = 2
)

type dictPattern struct {
	vector    []uint16
	frequency int
}

// DictionaryCodec maintains a learned table of up to 16 full
// register-vector "sensor states" across batches. A sample row that lands
// within per-register tolerance of a known pattern is encoded as a
// reference to it; everything else is emitted raw and considered for
// admission into the table. The patterns actually referenced by one batch
// are embedded in that batch's own payload, so Decompress never depends on
// the codec's cross-batch learning state.
type DictionaryCodec struct {
	patterns []dictPattern
}

// NewDictionaryCodec returns a codec with an empty pattern table.
func NewDictionaryCodec() *DictionaryCodec {
	return &DictionaryCodec{}
}

func (c *DictionaryCodec) ID() byte     { return IDDictionary }
func (c *DictionaryCodec) Name() string { return "dictionary" }
func (c *DictionaryCodec) Reset()       { c.patterns = nil }

func weightFor(t types.RegisterType) float64 {
	tol := toleranceFor(t)
	if tol == 0 {
		return 1
	}
	return 1 / float64(tol)
}

func weightedDistance(vec, pattern []uint16, regTypes []types.RegisterType) float64 {
	var dist float64
	for i := range vec {
		diff := math.Abs(float64(int(vec[i]) - int(pattern[i])))
		dist += weightFor(regTypes[i]) * diff
	}
	return dist
}

func withinTolerance(vec, pattern []uint16, regTypes []types.RegisterType) bool {
	for i := range vec {
		diff := int(vec[i]) - int(pattern[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > int(toleranceFor(regTypes[i])) {
			return false
		}
	}
	return true
}

func (c *DictionaryCodec) closest(vec []uint16, regTypes []types.RegisterType) int {
	best, bestDist := -1, math.Inf(1)
	for i, p := range c.patterns {
		if d := weightedDistance(vec, p.vector, regTypes); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (c *DictionaryCodec) learn(vec []uint16, regTypes []types.RegisterType) {
	if len(c.patterns) < dictionaryCapacity {
		c.patterns = append(c.patterns, dictPattern{vector: append([]uint16(nil), vec...), frequency: 1})
		return
	}

	evictIdx, evictFreq := -1, math.MaxInt32
	for i, p := range c.patterns {
		if p.frequency > dictionaryEvictionFloor && p.frequency < evictFreq {
			evictIdx, evictFreq = i, p.frequency
		}
	}
	if evictIdx >= 0 {
		c.patterns[evictIdx] = dictPattern{vector: append([]uint16(nil), vec...), frequency: 1}
	}
	// otherwise every entry is still at or below the eviction floor; leave
	// the table untouched rather than churn it.
}

func (c *DictionaryCodec) Compress(values []uint16, sampleCount int, selection []string, regTypes []types.RegisterType) ([]byte, error) {
	numCols := len(selection)
	if numCols == 0 || sampleCount == 0 {
		return nil, nil
	}

	var localVectors [][]uint16
	localIndex := make(map[int]int) // persistent pattern index -> local index
	tags := make([]byte, 0, sampleCount)
	refs := make([]byte, 0, sampleCount)
	var rawRows [][]uint16

	for row := 0; row < sampleCount; row++ {
		vec := values[row*numCols : (row+1)*numCols]

		match := c.closest(vec, regTypes)
		if match >= 0 && withinTolerance(vec, c.patterns[match].vector, regTypes) {
			c.patterns[match].frequency++
			li, ok := localIndex[match]
			if !ok {
				li = len(localVectors)
				localVectors = append(localVectors, c.patterns[match].vector)
				localIndex[match] = li
			}
			tags = append(tags, 1)
			refs = append(refs, byte(li))
			rawRows = append(rawRows, nil)
		} else {
			tags = append(tags, 0)
			refs = append(refs, 0)
			rawRows = append(rawRows, append([]uint16(nil), vec...))
			c.learn(vec, regTypes)
		}
	}

	if len(localVectors) > 255 {
		return nil, errors.New("compression: dictionary: too many referenced patterns for one batch")
	}

	out := []byte{byte(len(localVectors))}
	for _, v := range localVectors {
		for _, x := range v {
			out = appendU16(out, x)
		}
	}
	for row := 0; row < sampleCount; row++ {
		out = append(out, tags[row])
		if tags[row] == 1 {
			out = append(out, refs[row])
		} else {
			for _, x := range rawRows[row] {
				out = appendU16(out, x)
			}
		}
	}
	return out, nil
}

func (c *DictionaryCodec) Decompress(payload []byte, sampleCount int, selection []string) ([]uint16, error) {
	numCols := len(selection)
	if numCols == 0 || sampleCount == 0 {
		return nil, nil
	}
	if len(payload) < 1 {
		return nil, errors.New("compression: dictionary payload truncated")
	}

	numLocal := int(payload[0])
	pos := 1
	localVectors := make([][]uint16, numLocal)
	for i := 0; i < numLocal; i++ {
		vec := make([]uint16, numCols)
		for j := 0; j < numCols; j++ {
			if pos+2 > len(payload) {
				return nil, errors.New("compression: dictionary payload truncated")
			}
			vec[j] = binary.BigEndian.Uint16(payload[pos : pos+2])
			pos += 2
		}
		localVectors[i] = vec
	}

	out := make([]uint16, 0, sampleCount*numCols)
	for row := 0; row < sampleCount; row++ {
		if pos >= len(payload) {
			return nil, errors.New("compression: dictionary payload truncated")
		}
		tag := payload[pos]
		pos++
		if tag == 1 {
			if pos >= len(payload) {
				return nil, errors.New("compression: dictionary payload truncated")
			}
			idx := int(payload[pos])
			pos++
			if idx >= len(localVectors) {
				return nil, errors.New("compression: dictionary local pattern index out of range")
			}
			out = append(out, localVectors[idx]...)
		} else {
			for j := 0; j < numCols; j++ {
				if pos+2 > len(payload) {
					return nil, errors.New("compression: dictionary payload truncated")
				}
				out = append(out, binary.BigEndian.Uint16(payload[pos:pos+2]))
				pos += 2
			}
		}
	}
	return out, nil
}
