package faultrecovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/types"
)

type fakeReporter struct {
	events []types.FaultEvent
}

func (f *fakeReporter) ReportFault(ctx context.Context, event types.FaultEvent) error {
	f.events = append(f.events, event)
	return nil
}

func TestClassify_Exhaustive(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		result     protocol.ParseResult
		wantKind   types.FaultKind
		wantRetry  int
		wantRecov  bool
	}{
		{"buffer overflow", protocol.ErrBufferOverflow, protocol.ParseResult{}, types.FaultBufferOverflow, 0, false},
		{"crc error", nil, protocol.ParseResult{Status: protocol.StatusCRCError}, types.FaultCRCError, 3, true},
		{"truncated", nil, protocol.ParseResult{Status: protocol.StatusTruncated}, types.FaultTruncated, 3, true},
		{"malformed", nil, protocol.ParseResult{Status: protocol.StatusMalformed}, types.FaultMalformed, 3, true},
		{"transient exception", nil, protocol.ParseResult{Status: protocol.StatusException, ExceptionCode: protocol.ExcBusy}, types.FaultExceptionTransient, 2, true},
		{"remote exception", nil, protocol.ParseResult{Status: protocol.StatusException, ExceptionCode: protocol.ExcDeviceFailure}, types.FaultExceptionRemote, 2, true},
		{"config exception", nil, protocol.ParseResult{Status: protocol.StatusException, ExceptionCode: protocol.ExcIllegalAddress}, types.FaultExceptionNonRecoverable, 0, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, recoverable, retries := Classify(tc.err, tc.result)
			require.Equal(t, tc.wantKind, kind)
			require.Equal(t, tc.wantRecov, recoverable)
			require.Equal(t, tc.wantRetry, retries)
		})
	}
}

func TestRecoverer_RecoversAfterTransientFault(t *testing.T) {
	reporter := &fakeReporter{}
	r := &Recoverer{BaseDelay: time.Millisecond, MaxBackoff: 10 * time.Millisecond, Reporter: reporter, DeviceID: "dev-1"}

	calls := 0
	op := func(ctx context.Context) (protocol.ParseResult, error) {
		calls++
		if calls < 2 {
			return protocol.ParseResult{Status: protocol.StatusCRCError}, nil
		}
		return protocol.ParseResult{Status: protocol.StatusOK, Data: []byte{1}}, nil
	}

	result, err := r.Run(context.Background(), time.Now().Add(time.Second), op)
	require.NoError(t, err)
	require.Equal(t, protocol.StatusOK, result.Status)
	require.Equal(t, 2, calls)
	require.Len(t, reporter.events, 1)
	require.True(t, reporter.events[0].Success)
	require.Equal(t, 1, reporter.events[0].RetryCount)
}

func TestRecoverer_NonRecoverableFailsImmediately(t *testing.T) {
	reporter := &fakeReporter{}
	r := &Recoverer{Reporter: reporter}

	calls := 0
	op := func(ctx context.Context) (protocol.ParseResult, error) {
		calls++
		return protocol.ParseResult{Status: protocol.StatusException, ExceptionCode: protocol.ExcIllegalAddress}, nil
	}

	_, err := r.Run(context.Background(), time.Now().Add(time.Second), op)
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Len(t, reporter.events, 1)
	require.False(t, reporter.events[0].Success)
	require.Equal(t, 0, reporter.events[0].RetryCount)
}

func TestRecoverer_ExhaustsRetryBudget(t *testing.T) {
	r := &Recoverer{BaseDelay: time.Millisecond, MaxBackoff: 5 * time.Millisecond}

	calls := 0
	op := func(ctx context.Context) (protocol.ParseResult, error) {
		calls++
		return protocol.ParseResult{Status: protocol.StatusTruncated}, nil
	}

	_, err := r.Run(context.Background(), time.Now().Add(time.Second), op)
	require.Error(t, err)
	require.Equal(t, 4, calls) // initial + 3 retries
}

func TestRecoverer_AbortsBeforeExceedingDeadline(t *testing.T) {
	r := &Recoverer{BaseDelay: time.Hour}

	calls := 0
	op := func(ctx context.Context) (protocol.ParseResult, error) {
		calls++
		return protocol.ParseResult{Status: protocol.StatusTruncated}, nil
	}

	_, err := r.Run(context.Background(), time.Now().Add(time.Millisecond), op)
	require.ErrorIs(t, err, ErrDeadlineExceeded)
	require.Equal(t, 1, calls)
}
