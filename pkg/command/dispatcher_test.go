package command

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/faultrecovery"
	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/types"
)

// fakeCarrier is a minimal in-memory register map responding to read/write
// frames, mirroring pkg/protocol's own test double.
type fakeCarrier struct {
	registers map[uint16]uint16
}

func (f *fakeCarrier) Transact(ctx context.Context, frame []byte) ([]byte, error) {
	function := frame[1]
	switch function {
	case protocol.FuncWriteRegister:
		address := uint16(frame[2])<<8 | uint16(frame[3])
		value := uint16(frame[4])<<8 | uint16(frame[5])
		f.registers[address] = value
		return frame, nil // echo request, matching the carrier's own framing
	case protocol.FuncReadRegisters:
		address := uint16(frame[2])<<8 | uint16(frame[3])
		v := f.registers[address]
		body := []byte{frame[0], function, 2, byte(v >> 8), byte(v)}
		return appendTestCRC(body), nil
	default:
		return nil, nil
	}
}

// appendTestCRC mirrors the carrier's CRC16 trailer (polynomial 0xA001,
// seed 0xFFFF, little-endian) so fakeCarrier's responses pass
// protocol.ValidateResponse.
func appendTestCRC(body []byte) []byte {
	crc := uint16(0xFFFF)
	for _, b := range body {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return append(body, byte(crc), byte(crc>>8))
}

func testDispatcher(t *testing.T, carrier *fakeCarrier) *Dispatcher {
	t.Helper()
	return &Dispatcher{
		Carrier:  carrier,
		Slave:    1,
		DeviceID: "device-1",
		Registers: map[string]types.Register{
			"power_setpoint": {ID: "power_setpoint", Address: 10, Type: types.RegisterPowerSet},
			"power_stats":    {ID: "power_stats", Address: 11, Type: types.RegisterPower},
		},
		PowerSetpointRegisterID: "power_setpoint",
		PowerStatsRegisterID:    "power_stats",
		Recoverer: &faultrecovery.Recoverer{
			BaseDelay:  0,
			MaxBackoff: 0,
		},
		Logger: zerolog.Nop(),
	}
}

func TestDispatcher_SetPowerPercentageClampsAboveRange(t *testing.T) {
	carrier := &fakeCarrier{registers: map[uint16]uint16{}}
	d := testDispatcher(t, carrier)

	err := d.Dispatch(context.Background(), types.Command{
		CommandID:  "c1",
		Action:     types.ActionSetPowerPercentage,
		Parameters: map[string]string{"percentage": "150"},
	})
	require.NoError(t, err)
	require.Equal(t, uint16(100), carrier.registers[10])
}

func TestDispatcher_SetPowerPercentageClampsBelowRange(t *testing.T) {
	carrier := &fakeCarrier{registers: map[uint16]uint16{}}
	d := testDispatcher(t, carrier)

	err := d.Dispatch(context.Background(), types.Command{
		CommandID:  "c2",
		Action:     types.ActionSetPowerPercentage,
		Parameters: map[string]string{"percentage": "-20"},
	})
	require.NoError(t, err)
	require.Equal(t, uint16(0), carrier.registers[10])
}

func TestDispatcher_UnknownActionFails(t *testing.T) {
	carrier := &fakeCarrier{registers: map[uint16]uint16{}}
	d := testDispatcher(t, carrier)

	err := d.Dispatch(context.Background(), types.Command{
		CommandID: "c3",
		Action:    types.CommandAction("detonate"),
	})
	require.Error(t, err)
	require.Equal(t, Counters{Executed: 1, Succeeded: 0, Failed: 1}, d.Tally())
}

func TestDispatcher_ResetPowerStatsWritesZero(t *testing.T) {
	carrier := &fakeCarrier{registers: map[uint16]uint16{11: 42}}
	d := testDispatcher(t, carrier)

	err := d.Dispatch(context.Background(), types.Command{
		CommandID: "c4",
		Action:    types.ActionResetPowerStats,
	})
	require.NoError(t, err)
	require.Equal(t, uint16(0), carrier.registers[11])
}

func TestDispatcher_TallyAccumulates(t *testing.T) {
	carrier := &fakeCarrier{registers: map[uint16]uint16{}}
	d := testDispatcher(t, carrier)

	require.NoError(t, d.Dispatch(context.Background(), types.Command{
		Action:     types.ActionSetPower,
		Parameters: map[string]string{"watts": "500"},
	}))
	require.Error(t, d.Dispatch(context.Background(), types.Command{Action: "bogus"}))

	require.Equal(t, Counters{Executed: 2, Succeeded: 1, Failed: 1}, d.Tally())
}

func TestDispatcher_PollDecodesCommands(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/commands/device-1/poll", r.URL.Path)
		json.NewEncoder(w).Encode([]wireCommand{
			{CommandID: "c1", Action: "set_power", Parameters: map[string]string{"watts": "100"}},
		})
	}))
	defer server.Close()

	d := testDispatcher(t, &fakeCarrier{registers: map[uint16]uint16{}})
	d.Client = netclient.New(server.URL)

	commands, err := d.Poll(context.Background())
	require.NoError(t, err)
	require.Len(t, commands, 1)
	require.Equal(t, types.ActionSetPower, commands[0].Action)
}
