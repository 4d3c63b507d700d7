package compression

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/ecowatt/pkg/types"
)

// BinaryDeltaCodec stores the first value raw, then a zigzag varint delta
// for every subsequent value. Lossless and stateless — a tournament
// fallback, not one of the four advanced codecs.
type BinaryDeltaCodec struct{}

func (BinaryDeltaCodec) ID() byte     { return IDBinaryDelta }
func (BinaryDeltaCodec) Name() string { return "binary-delta" }
func (BinaryDeltaCodec) Reset()       {}

func (BinaryDeltaCodec) Compress(values []uint16, sampleCount int, selection []string, regTypes []types.RegisterType) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	buf := make([]byte, 2, 2+len(values)*3)
	binary.BigEndian.PutUint16(buf[0:2], values[0])

	varintBuf := make([]byte, binary.MaxVarintLen64)
	for i := 1; i < len(values); i++ {
		delta := int64(int(values[i]) - int(values[i-1]))
		n := binary.PutVarint(varintBuf, delta)
		buf = append(buf, varintBuf[:n]...)
	}
	return buf, nil
}

func (BinaryDeltaCodec) Decompress(payload []byte, sampleCount int, selection []string) ([]uint16, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if len(payload) < 2 {
		return nil, errors.New("compression: binary-delta payload truncated")
	}

	out := []uint16{binary.BigEndian.Uint16(payload[0:2])}
	rest := payload[2:]
	prev := int(out[0])
	for len(rest) > 0 {
		delta, n := binary.Varint(rest)
		if n <= 0 {
			return nil, errors.New("compression: binary-delta varint decode failed")
		}
		prev += int(delta)
		out = append(out, uint16(prev))
		rest = rest[n:]
	}
	return out, nil
}
