package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildReadFrame(t *testing.T) {
	_, _, _, err := BuildReadFrame(1, nil)
	require.ErrorIs(t, err, ErrInvalidSelection)

	start, count, frame, err := BuildReadFrame(1, []RegisterRef{{Address: 5}, {Address: 7}, {Address: 6}})
	require.NoError(t, err)
	require.Equal(t, uint16(5), start)
	require.Equal(t, uint16(3), count)
	require.Equal(t, byte(1), frame[0])
	require.Equal(t, FuncReadRegisters, frame[1])
}

func TestValidateResponse_OK(t *testing.T) {
	body := []byte{1, FuncReadRegisters, 4, 0x00, 0xDC, 0x00, 0x05}
	frame := appendCRC(body)

	result := ValidateResponse(frame, 1, FuncReadRegisters)
	require.Equal(t, StatusOK, result.Status)
	require.Equal(t, []byte{0x00, 0xDC, 0x00, 0x05}, result.Data)
}

func TestValidateResponse_CRCError(t *testing.T) {
	body := []byte{1, FuncReadRegisters, 2, 0x00, 0x01}
	frame := appendCRC(body)
	frame[len(frame)-1] ^= 0xFF // flip trailer bit

	result := ValidateResponse(frame, 1, FuncReadRegisters)
	require.Equal(t, StatusCRCError, result.Status)
}

func TestValidateResponse_Truncated(t *testing.T) {
	result := ValidateResponse([]byte{1, 2}, 1, FuncReadRegisters)
	require.Equal(t, StatusTruncated, result.Status)
}

func TestValidateResponse_Exception(t *testing.T) {
	body := []byte{1, FuncReadRegisters | 0x80, ExcIllegalAddress}
	frame := appendCRC(body)

	result := ValidateResponse(frame, 1, FuncReadRegisters)
	require.Equal(t, StatusException, result.Status)
	require.Equal(t, ExcIllegalAddress, result.ExceptionCode)
}

func TestValidateResponse_WrongSlave(t *testing.T) {
	body := []byte{2, FuncReadRegisters, 2, 0, 1}
	frame := appendCRC(body)

	result := ValidateResponse(frame, 1, FuncReadRegisters)
	require.Equal(t, StatusMalformed, result.Status)
}

type fakeCarrier struct {
	calls    int
	failUpTo int
	response []byte
	err      error
}

func (f *fakeCarrier) Transact(ctx context.Context, frame []byte) ([]byte, error) {
	f.calls++
	if f.calls <= f.failUpTo {
		return nil, f.err
	}
	return f.response, nil
}

func TestExchange_RetriesOnceOnTransportFailure(t *testing.T) {
	carrier := &fakeCarrier{failUpTo: 1, err: context.DeadlineExceeded, response: []byte{0x01}}
	resp, err := Exchange(context.Background(), carrier, []byte{0x00}, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, resp)
	require.Equal(t, 2, carrier.calls)
}

func TestExchange_FailsAfterSecondAttempt(t *testing.T) {
	carrier := &fakeCarrier{failUpTo: 2, err: context.DeadlineExceeded}
	_, err := Exchange(context.Background(), carrier, []byte{0x00}, 10*time.Millisecond)
	require.Error(t, err)
	require.Equal(t, 2, carrier.calls)
}

func TestExchange_BufferOverflowNotRetried(t *testing.T) {
	carrier := &fakeCarrier{response: make([]byte, MaxResponseBytes+1)}
	_, err := Exchange(context.Background(), carrier, []byte{0x00}, 10*time.Millisecond)
	require.ErrorIs(t, err, ErrBufferOverflow)
	require.Equal(t, 1, carrier.calls)
}
