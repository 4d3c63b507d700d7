package compression

import "github.com/cuemby/ecowatt/pkg/types"

// RawCodec stores every value as a plain big-endian uint16. It always
// succeeds and is the Engine's unconditional fallback.
type RawCodec struct{}

func (RawCodec) ID() byte   { return IDRawBinary }
func (RawCodec) Name() string { return "raw-binary" }
func (RawCodec) Reset()     {}

func (RawCodec) Compress(values []uint16, sampleCount int, selection []string, regTypes []types.RegisterType) ([]byte, error) {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		out[i*2] = byte(v >> 8)
		out[i*2+1] = byte(v)
	}
	return out, nil
}

func (RawCodec) Decompress(payload []byte, sampleCount int, selection []string) ([]uint16, error) {
	count := len(payload) / 2
	out := make([]uint16, count)
	for i := 0; i < count; i++ {
		out[i] = uint16(payload[i*2])<<8 | uint16(payload[i*2+1])
	}
	return out, nil
}
