package compression

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/ecowatt/pkg/types"
)

// SemanticRLECodec groups consecutive per-register values that fall within
// the register-type's tolerance into one run, storing the reference value
// plus a small signed delta per member so the encoding stays exactly
// lossless despite the tolerance-driven grouping.
type SemanticRLECodec struct{}

func (SemanticRLECodec) ID() byte     { return IDSemanticRLE }
func (SemanticRLECodec) Name() string { return "semantic-rle" }
func (SemanticRLECodec) Reset()       {}

func (SemanticRLECodec) Compress(values []uint16, sampleCount int, selection []string, regTypes []types.RegisterType) ([]byte, error) {
	numCols := len(selection)
	if numCols == 0 || sampleCount == 0 {
		return nil, nil
	}

	var out []byte
	for col := 0; col < numCols; col++ {
		tol := int(toleranceFor(regTypes[col]))
		row := 0
		for row < sampleCount {
			ref := values[row*numCols+col]
			run := 1
			for row+run < sampleCount {
				v := values[(row+run)*numCols+col]
				delta := int(v) - int(ref)
				if delta > tol || delta < -tol || delta > 127 || delta < -128 {
					break
				}
				run++
			}

			header := make([]byte, 3)
			binary.BigEndian.PutUint16(header[0:2], ref)
			header[2] = byte(run)
			out = append(out, header...)
			for j := 1; j < run; j++ {
				v := values[(row+j)*numCols+col]
				out = append(out, byte(int8(int(v)-int(ref))))
			}
			row += run
		}
	}
	return out, nil
}

func (SemanticRLECodec) Decompress(payload []byte, sampleCount int, selection []string) ([]uint16, error) {
	numCols := len(selection)
	if numCols == 0 || sampleCount == 0 {
		return nil, nil
	}

	out := make([]uint16, sampleCount*numCols)
	pos := 0
	for col := 0; col < numCols; col++ {
		row := 0
		for row < sampleCount {
			if pos+3 > len(payload) {
				return nil, errors.New("compression: semantic-rle payload truncated")
			}
			ref := binary.BigEndian.Uint16(payload[pos : pos+2])
			run := int(payload[pos+2])
			pos += 3
			if run == 0 || row+run > sampleCount {
				return nil, errors.New("compression: semantic-rle run overruns batch")
			}

			out[row*numCols+col] = ref
			for j := 1; j < run; j++ {
				if pos >= len(payload) {
					return nil, errors.New("compression: semantic-rle payload truncated")
				}
				delta := int8(payload[pos])
				pos++
				out[(row+j)*numCols+col] = uint16(int(ref) + int(delta))
			}
			row += run
		}
	}
	return out, nil
}
