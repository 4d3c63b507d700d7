package compression

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/batch"
	"github.com/cuemby/ecowatt/pkg/types"
)

const (
	perCodecBudget = 50 * time.Millisecond
	totalBudget    = 200 * time.Millisecond
)

// ErrPacketTooLarge is returned when even the unconditional raw-binary
// fallback cannot fit within MaxPacketBytes; the caller owns the batch at
// that point and decides whether to drop or split it.
var ErrPacketTooLarge = errors.New("compression: packet exceeds 512-byte cap even uncompressed")

type codecStats struct {
	attempts   int
	successes  int
	ratioSum   float64
	elapsedSum time.Duration
}

// CodecReport is a read-only snapshot of one codec's rolling statistics,
// exposed for metrics collection.
type CodecReport struct {
	Name        string
	Attempts    int
	Successes   int
	AvgRatio    float64
	AvgElapsed  time.Duration
}

// Engine runs the tournament across the four advanced codecs (dictionary,
// temporal-delta, semantic-rle, bit-packed), self-checks every candidate by
// round-tripping it, and unconditionally falls back to raw-binary when
// nothing else verifies within budget.
type Engine struct {
	mu sync.Mutex

	registerTypes map[string]types.RegisterType
	byID          map[byte]Codec
	advanced      []Codec
	lastSelection []string
	stats         map[byte]*codecStats

	// RecommenderEnabled gates a characterization-based short-circuit that
	// skips straight to the single most promising advanced codec instead of
	// running the full tournament. Off by default.
	RecommenderEnabled bool

	Logger zerolog.Logger
}

// NewEngine builds an Engine whose register-type lookups are drawn from the
// given catalog (normally the device's full register map).
func NewEngine(registers []types.Register, logger zerolog.Logger) *Engine {
	regTypes := make(map[string]types.RegisterType, len(registers))
	for _, r := range registers {
		regTypes[r.ID] = r.Type
	}

	dict := NewDictionaryCodec()
	temporal := NewTemporalDeltaCodec()
	semantic := SemanticRLECodec{}
	bitpacked := BitPackedCodec{}
	delta := BinaryDeltaCodec{}
	rle := BinaryRLECodec{}
	raw := RawCodec{}

	e := &Engine{
		registerTypes: regTypes,
		advanced:      []Codec{dict, temporal, semantic, bitpacked},
		stats:         make(map[byte]*codecStats),
		Logger:        logger,
	}
	e.byID = map[byte]Codec{
		raw.ID():       raw,
		delta.ID():     delta,
		rle.ID():       rle,
		semantic.ID():  semantic,
		bitpacked.ID(): bitpacked,
		temporal.ID():  temporal,
		dict.ID():      dict,
	}
	return e
}

func (e *Engine) regTypesFor(selection []string) []types.RegisterType {
	out := make([]types.RegisterType, len(selection))
	for i, id := range selection {
		out[i] = e.registerTypes[id]
	}
	return out
}

func sameSelectionOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sliceEqualU16(a, b []uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type trialResult struct {
	codecID byte
	bytes   []byte
	elapsed time.Duration
}

// Compress runs the tournament over b and returns the winning packet. It
// never returns an error unless even the raw-binary fallback cannot fit in
// MaxPacketBytes.
func (e *Engine) Compress(b *batch.SampleBatch) (types.CompressedPacket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	selection := b.Selection()
	if !sameSelectionOrder(selection, e.lastSelection) {
		for _, c := range e.advanced {
			c.Reset()
		}
		e.lastSelection = append([]string(nil), selection...)
	}

	sampleCount := b.Len()
	if sampleCount == 0 {
		return types.CompressedPacket{
			Codec:       IDRawBinary,
			SampleCount: 0,
			Selection:   selection,
			Bytes:       []byte{IDRawBinary},
			RawSize:     0,
			PackedSize:  1,
			Verified:    true,
		}, nil
	}

	values := b.ToLinearArray()
	rawSize := len(values) * 2
	regTypes := e.regTypesFor(selection)

	candidates := e.advanced
	if e.RecommenderEnabled {
		candidates = e.recommend(Characterize(values))
	}

	var best *trialResult
	tournamentStart := time.Now()
	for _, codec := range candidates {
		if time.Since(tournamentStart) > totalBudget {
			e.Logger.Warn().Str("reason", "total-budget-exceeded").Msg("compression tournament truncated")
			best = nil
			break
		}

		codecStart := time.Now()
		payload, err := codec.Compress(values, sampleCount, selection, regTypes)
		elapsed := time.Since(codecStart)
		if err != nil {
			e.recordFailure(codec.ID())
			continue
		}
		if elapsed > perCodecBudget {
			e.recordFailure(codec.ID())
			continue
		}

		full := append([]byte{codec.ID()}, payload...)
		if len(full) > MaxPacketBytes {
			e.recordFailure(codec.ID())
			continue
		}

		decoded, derr := codec.Decompress(payload, sampleCount, selection)
		if derr != nil || !sliceEqualU16(decoded, values) {
			e.recordFailure(codec.ID())
			e.Logger.Warn().Str("codec", codec.Name()).Msg("compression self-check failed, discarding candidate")
			continue
		}

		ratio := float64(len(full)) / float64(rawSize)
		e.recordSuccess(codec.ID(), ratio, elapsed)

		if best == nil || len(full) < len(best.bytes) ||
			(len(full) == len(best.bytes) && elapsed < best.elapsed) {
			best = &trialResult{codecID: codec.ID(), bytes: full, elapsed: elapsed}
		}
	}

	if best == nil {
		rawPayload, _ := e.byID[IDRawBinary].Compress(values, sampleCount, selection, regTypes)
		full := append([]byte{IDRawBinary}, rawPayload...)
		if len(full) > MaxPacketBytes {
			return types.CompressedPacket{}, ErrPacketTooLarge
		}
		e.Logger.Debug().Msg("compression tournament produced no winner, using raw-binary fallback")
		return types.CompressedPacket{
			Codec:       IDRawBinary,
			SampleCount: sampleCount,
			Selection:   selection,
			Bytes:       full,
			RawSize:     rawSize,
			PackedSize:  len(full),
			Verified:    true,
		}, nil
	}

	return types.CompressedPacket{
		Codec:       best.codecID,
		SampleCount: sampleCount,
		Selection:   selection,
		Bytes:       best.bytes,
		RawSize:     rawSize,
		PackedSize:  len(best.bytes),
		Verified:    true,
	}, nil
}

// Decompress reverses Compress, dispatching on the packet's leading codec
// byte.
func (e *Engine) Decompress(packet types.CompressedPacket) ([]uint16, error) {
	if len(packet.Bytes) == 0 {
		return nil, errors.New("compression: empty packet")
	}
	if packet.SampleCount == 0 {
		return nil, nil
	}
	codec, ok := e.byID[packet.Codec]
	if !ok {
		return nil, errors.New("compression: unknown codec id")
	}
	return codec.Decompress(packet.Bytes[1:], packet.SampleCount, packet.Selection)
}

// recommend picks a reduced candidate set when the data's characteristics
// strongly favor one codec, short-circuiting the rest of the tournament.
func (e *Engine) recommend(c Characteristics) []Codec {
	for _, codec := range e.advanced {
		switch codec.(type) {
		case *DictionaryCodec:
			if c.RepeatRatio > 0.8 {
				return []Codec{codec}
			}
		case *TemporalDeltaCodec:
			if c.AvgAbsDelta < 2 && c.LargeDeltaRatio < 0.05 {
				return []Codec{codec}
			}
		}
	}
	return e.advanced
}

func (e *Engine) recordSuccess(id byte, ratio float64, elapsed time.Duration) {
	s := e.statsFor(id)
	s.attempts++
	s.successes++
	s.ratioSum += ratio
	s.elapsedSum += elapsed
}

func (e *Engine) recordFailure(id byte) {
	s := e.statsFor(id)
	s.attempts++
}

func (e *Engine) statsFor(id byte) *codecStats {
	s, ok := e.stats[id]
	if !ok {
		s = &codecStats{}
		e.stats[id] = s
	}
	return s
}

// Reports returns a point-in-time snapshot of every codec's rolling
// statistics, keyed by codec name.
func (e *Engine) Reports() map[string]CodecReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]CodecReport, len(e.byID))
	for id, codec := range e.byID {
		s := e.stats[id]
		if s == nil {
			out[codec.Name()] = CodecReport{Name: codec.Name()}
			continue
		}
		r := CodecReport{Name: codec.Name(), Attempts: s.attempts, Successes: s.successes}
		if s.successes > 0 {
			r.AvgRatio = s.ratioSum / float64(s.successes)
			r.AvgElapsed = s.elapsedSum / time.Duration(s.successes)
		}
		out[codec.Name()] = r
	}
	return out
}
