package polling

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/faultrecovery"
	"github.com/cuemby/ecowatt/pkg/metrics"
	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/types"
)

// SelectionSource supplies the register selection the poller should read
// on its next tick. The configuration reconciler swaps this out when an
// accepted config change updates the active register set.
type SelectionSource func() []types.Register

// RegisterSelector holds the full register catalog and the
// currently-active subset, switched atomically when the configuration
// reconciler accepts a new active-register-set. It implements
// reconciler.Notifier structurally (ConfigChanged), so the polling
// pipeline can subscribe without importing the reconciler package.
type RegisterSelector struct {
	mu      sync.RWMutex
	catalog map[string]types.Register
	active  []types.Register
}

// NewRegisterSelector seeds the selector with the full catalog and an
// initial active subset.
func NewRegisterSelector(catalog map[string]types.Register, initial []string) *RegisterSelector {
	s := &RegisterSelector{catalog: catalog}
	s.setActive(initial)
	return s
}

// ConfigChanged switches the active selection to match
// cfg.ActiveRegisterSet. Unknown IDs are skipped; the reconciler has
// already validated the set against the catalog before accepting it.
func (s *RegisterSelector) ConfigChanged(cfg types.DeviceConfig) {
	s.setActive(cfg.ActiveRegisterSet)
}

func (s *RegisterSelector) setActive(ids []string) {
	registers := make([]types.Register, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.catalog[id]; ok {
			registers = append(registers, r)
		}
	}
	s.mu.Lock()
	s.active = registers
	s.mu.Unlock()
}

// Selection is a SelectionSource reading the current active set.
func (s *RegisterSelector) Selection() []types.Register {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Poller runs one register exchange per tick, decodes the response, and
// publishes the resulting Sample onto a SampleQueue.
type Poller struct {
	Slave      byte
	Carrier    protocol.Carrier
	Recoverer  *faultrecovery.Recoverer
	Queue      *SampleQueue
	Selection  SelectionSource
	Timeout    time.Duration // single-exchange timeout passed to protocol.Exchange
	Logger     zerolog.Logger
	BootClock  func() int64 // milliseconds since boot; defaults to time.Now-based
}

func (p *Poller) bootMillis() int64 {
	if p.BootClock != nil {
		return p.BootClock()
	}
	return time.Now().UnixMilli()
}

// Tick performs one poll cycle: build the read request for the current
// selection, exchange and recover it, decode the response into a
// Sample, and publish it non-blocking onto Queue.
func (p *Poller) Tick(ctx context.Context, deadline time.Time) error {
	registers := p.Selection()
	if len(registers) == 0 {
		return fmt.Errorf("polling: empty register selection")
	}

	refs := make([]protocol.RegisterRef, len(registers))
	for i, r := range registers {
		refs[i] = protocol.RegisterRef{Address: r.Address}
	}

	startAddress, count, frame, err := protocol.BuildReadFrame(p.Slave, refs)
	if err != nil {
		return fmt.Errorf("polling: build read frame: %w", err)
	}

	op := func(ctx context.Context) (protocol.ParseResult, error) {
		resp, err := protocol.Exchange(ctx, p.Carrier, frame, p.Timeout)
		if err != nil {
			return protocol.ParseResult{}, err
		}
		return protocol.ValidateResponse(resp, p.Slave, protocol.FuncReadRegisters), nil
	}

	result, err := p.Recoverer.Run(ctx, deadline, op)
	if err != nil {
		return fmt.Errorf("polling: exchange failed: %w", err)
	}

	sample := decodeSample(registers, startAddress, count, result.Data, p.bootMillis())
	if dropped := p.Queue.Push(sample); dropped {
		p.Logger.Debug().Msg("sample queue full, dropped oldest sample")
	}
	return nil
}

// decodeSample produces values in the order of registers (not wire
// order). A register whose address falls outside [startAddress,
// startAddress+count) — or whose slot the carrier didn't actually
// return — is reported as 0 and counted as a decode fallback.
func decodeSample(registers []types.Register, startAddress, count uint16, data []byte, acquiredAtMS int64) types.Sample {
	values := make(map[string]uint16, len(registers))
	selection := make([]string, len(registers))

	for i, r := range registers {
		selection[i] = r.ID
		offset := int(r.Address) - int(startAddress)
		if offset < 0 || offset >= int(count) || (offset+1)*2 > len(data) {
			values[r.ID] = 0
			metrics.RegisterDecodeFallbacksTotal.Inc()
			continue
		}
		values[r.ID] = binary.BigEndian.Uint16(data[offset*2 : offset*2+2])
	}

	return types.Sample{Values: values, Selection: selection, AcquiredAtMS: acquiredAtMS}
}
