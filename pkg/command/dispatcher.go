package command

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/faultrecovery"
	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/types"
)

type wireCommand struct {
	CommandID  string            `json:"command_id"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters"`
}

// Counters is a point-in-time snapshot of the dispatcher's execution tally.
type Counters struct {
	Executed  int
	Succeeded int
	Failed    int
}

// Dispatcher polls for remote commands and executes the closed set of
// supported actions against the inverter's register map.
type Dispatcher struct {
	Client    *netclient.Client
	Carrier   protocol.Carrier
	Recoverer *faultrecovery.Recoverer
	Slave     byte
	DeviceID  string
	Registers map[string]types.Register

	PowerSetpointRegisterID   string
	PowerStatsRegisterID      string
	PeripheralStatsRegisterID string

	Logger zerolog.Logger

	mu    sync.Mutex
	tally Counters
}

// Poll fetches the pending command queue for this device.
func (d *Dispatcher) Poll(ctx context.Context) ([]types.Command, error) {
	ctx, cancel := context.WithTimeout(ctx, netclient.CommandTimeout)
	defer cancel()

	resp, err := d.Client.Do(ctx, http.MethodGet, "/commands/"+d.DeviceID+"/poll", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("command: poll: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("command: poll returned status %d", resp.StatusCode)
	}

	var wire []wireCommand
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("command: decode poll response: %w", err)
	}

	now := time.Now()
	commands := make([]types.Command, len(wire))
	for i, w := range wire {
		commands[i] = types.Command{
			CommandID:   w.CommandID,
			Action:      types.CommandAction(w.Action),
			Parameters:  w.Parameters,
			ReceiptTime: now,
		}
	}
	return commands, nil
}

// Dispatch executes one command, updating the executed/succeeded/failed
// tally regardless of outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd types.Command) error {
	d.mu.Lock()
	d.tally.Executed++
	d.mu.Unlock()

	err := d.execute(ctx, cmd)

	d.mu.Lock()
	if err != nil {
		d.tally.Failed++
	} else {
		d.tally.Succeeded++
	}
	d.mu.Unlock()

	if err != nil {
		d.Logger.Warn().Str("command_id", cmd.CommandID).Str("action", string(cmd.Action)).Err(err).Msg("command execution failed")
	}

	if rerr := d.reportResult(ctx, cmd, err); rerr != nil {
		d.Logger.Warn().Str("command_id", cmd.CommandID).Err(rerr).Msg("failed to report command result")
	}
	return err
}

type wireResult struct {
	CommandID       string `json:"command_id"`
	Success         bool   `json:"success"`
	Error           string `json:"error,omitempty"`
	ExecutionTimeUTC string `json:"execution_time_utc"`
}

// reportResult posts the success/failure record for one command back to
// the cloud, on a best-effort basis.
func (d *Dispatcher) reportResult(ctx context.Context, cmd types.Command, execErr error) error {
	if d.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, netclient.CommandTimeout)
	defer cancel()

	result := wireResult{
		CommandID:        cmd.CommandID,
		Success:          execErr == nil,
		ExecutionTimeUTC: time.Now().UTC().Format(time.RFC3339),
	}
	if execErr != nil {
		result.Error = execErr.Error()
	}
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("command: encode result: %w", err)
	}

	resp, err := d.Client.Do(ctx, http.MethodPost, "/commands/"+d.DeviceID+"/result", bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return fmt.Errorf("command: post result: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

// Tally returns a snapshot of the dispatcher's execution counters.
func (d *Dispatcher) Tally() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tally
}

func (d *Dispatcher) execute(ctx context.Context, cmd types.Command) error {
	switch cmd.Action {
	case types.ActionWriteRegister:
		regID := cmd.Parameters["register_id"]
		reg, ok := d.Registers[regID]
		if !ok {
			return fmt.Errorf("command: unknown register %q", regID)
		}
		value, err := strconv.ParseUint(cmd.Parameters["value"], 10, 16)
		if err != nil {
			return fmt.Errorf("command: invalid register value: %w", err)
		}
		return d.writeRegister(ctx, reg.Address, uint16(value))

	case types.ActionSetPower:
		value, err := strconv.ParseUint(cmd.Parameters["watts"], 10, 16)
		if err != nil {
			return fmt.Errorf("command: invalid power setpoint: %w", err)
		}
		return d.writeNamedRegister(ctx, d.PowerSetpointRegisterID, uint16(value))

	case types.ActionSetPowerPercentage:
		raw, err := strconv.Atoi(cmd.Parameters["percentage"])
		if err != nil {
			return fmt.Errorf("command: invalid power percentage: %w", err)
		}
		return d.writeNamedRegister(ctx, d.PowerSetpointRegisterID, uint16(clampPercentage(raw)))

	case types.ActionGetPowerStats:
		value, err := d.readNamedRegister(ctx, d.PowerStatsRegisterID)
		if err != nil {
			return err
		}
		d.Logger.Info().Str("command_id", cmd.CommandID).Uint16("power_stats", value).Msg("power stats read")
		return nil

	case types.ActionResetPowerStats:
		return d.writeNamedRegister(ctx, d.PowerStatsRegisterID, 0)

	case types.ActionGetPeripheralStats:
		value, err := d.readNamedRegister(ctx, d.PeripheralStatsRegisterID)
		if err != nil {
			return err
		}
		d.Logger.Info().Str("command_id", cmd.CommandID).Uint16("peripheral_stats", value).Msg("peripheral stats read")
		return nil

	case types.ActionResetPeripheralStats:
		return d.writeNamedRegister(ctx, d.PeripheralStatsRegisterID, 0)

	default:
		return fmt.Errorf("command: unrecognized action %q", cmd.Action)
	}
}

func clampPercentage(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (d *Dispatcher) writeNamedRegister(ctx context.Context, registerID string, value uint16) error {
	reg, ok := d.Registers[registerID]
	if !ok {
		return fmt.Errorf("command: register %q not configured", registerID)
	}
	return d.writeRegister(ctx, reg.Address, value)
}

func (d *Dispatcher) readNamedRegister(ctx context.Context, registerID string) (uint16, error) {
	reg, ok := d.Registers[registerID]
	if !ok {
		return 0, fmt.Errorf("command: register %q not configured", registerID)
	}
	return d.readRegister(ctx, reg.Address)
}

func (d *Dispatcher) writeRegister(ctx context.Context, address, value uint16) error {
	deadline := time.Now().Add(netclient.CommandTimeout)
	op := func(ctx context.Context) (protocol.ParseResult, error) {
		frame := protocol.BuildWriteFrame(d.Slave, address, value)
		resp, err := protocol.Exchange(ctx, d.Carrier, frame, netclient.CommandTimeout)
		if err != nil {
			return protocol.ParseResult{}, err
		}
		return protocol.ValidateResponse(resp, d.Slave, protocol.FuncWriteRegister), nil
	}
	_, err := d.Recoverer.Run(ctx, deadline, op)
	return err
}

func (d *Dispatcher) readRegister(ctx context.Context, address uint16) (uint16, error) {
	deadline := time.Now().Add(netclient.CommandTimeout)
	var value uint16
	op := func(ctx context.Context) (protocol.ParseResult, error) {
		_, _, frame, err := protocol.BuildReadFrame(d.Slave, []protocol.RegisterRef{{Address: address}})
		if err != nil {
			return protocol.ParseResult{}, err
		}
		resp, err := protocol.Exchange(ctx, d.Carrier, frame, netclient.CommandTimeout)
		if err != nil {
			return protocol.ParseResult{}, err
		}
		result := protocol.ValidateResponse(resp, d.Slave, protocol.FuncReadRegisters)
		if result.Status == protocol.StatusOK && len(result.Data) >= 2 {
			value = binary.BigEndian.Uint16(result.Data[:2])
		}
		return result, nil
	}
	_, err := d.Recoverer.Run(ctx, deadline, op)
	return value, err
}
