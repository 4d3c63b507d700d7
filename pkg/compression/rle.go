package compression

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/ecowatt/pkg/types"
)

// BinaryRLECodec run-length-encodes exact-equal consecutive values. Each
// run is (value uint16, runLength uint8); a longer run is split across
// multiple (value, 255) entries.
type BinaryRLECodec struct{}

func (BinaryRLECodec) ID() byte     { return IDBinaryRLE }
func (BinaryRLECodec) Name() string { return "binary-rle" }
func (BinaryRLECodec) Reset()       {}

func (BinaryRLECodec) Compress(values []uint16, sampleCount int, selection []string, regTypes []types.RegisterType) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(values) {
		run := 1
		for i+run < len(values) && values[i+run] == values[i] && run < 255 {
			run++
		}
		entry := make([]byte, 3)
		binary.BigEndian.PutUint16(entry[0:2], values[i])
		entry[2] = byte(run)
		out = append(out, entry...)
		i += run
	}
	return out, nil
}

func (BinaryRLECodec) Decompress(payload []byte, sampleCount int, selection []string) ([]uint16, error) {
	var out []uint16
	for i := 0; i+3 <= len(payload); i += 3 {
		v := binary.BigEndian.Uint16(payload[i : i+2])
		run := int(payload[i+2])
		for j := 0; j < run; j++ {
			out = append(out, v)
		}
	}
	if len(payload)%3 != 0 {
		return nil, errors.New("compression: binary-rle payload truncated")
	}
	return out, nil
}
