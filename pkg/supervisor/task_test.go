package supervisor

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testNetError struct{}

func (testNetError) Error() string   { return "simulated network failure" }
func (testNetError) Timeout() bool   { return true }
func (testNetError) Temporary() bool { return true }

var _ net.Error = testNetError{}

func TestNewSupervisor_OrdersTasksByPriority(t *testing.T) {
	tasks := []Task{
		{Name: TaskWatchdog, Period: time.Hour, Deadline: time.Second, Run: func(context.Context) error { return nil }},
		{Name: TaskSensorPoll, Period: time.Hour, Deadline: time.Second, Run: func(context.Context) error { return nil }},
		{Name: TaskUpload, Period: time.Hour, Deadline: time.Second, Run: func(context.Context) error { return nil }},
	}

	s := NewSupervisor(tasks, NewDeadlineMonitor(nil), zerolog.Nop())

	require.Equal(t, TaskSensorPoll, s.Tasks[0].Name)
	require.Equal(t, TaskUpload, s.Tasks[1].Name)
	require.Equal(t, TaskWatchdog, s.Tasks[2].Name)
}

func TestSupervisor_RunsTaskRepeatedlyAndStops(t *testing.T) {
	var runs int32
	task := Task{
		Name:     TaskStatistics,
		Period:   5 * time.Millisecond,
		Deadline: time.Second,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}

	s := NewSupervisor([]Task{task}, NewDeadlineMonitor(nil), zerolog.Nop())
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	require.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(3))
}

func TestSupervisor_RecordsMissOnDeadlineExceeded(t *testing.T) {
	monitor := NewDeadlineMonitor(nil)
	task := Task{
		Name:     TaskCompression,
		Period:   10 * time.Millisecond,
		Deadline: time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}

	s := NewSupervisor([]Task{task}, monitor, zerolog.Nop())
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	require.Positive(t, monitor.LifetimeMisses())
}

func TestSupervisor_ClassifiesNetworkErrorAsNetworkRelatedMiss(t *testing.T) {
	monitor := NewDeadlineMonitor(nil)
	task := Task{
		Name:     TaskUpload,
		Period:   10 * time.Millisecond,
		Deadline: time.Millisecond,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return testNetError{}
		},
	}

	s := NewSupervisor([]Task{task}, monitor, zerolog.Nop())
	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()

	require.Positive(t, monitor.NetworkMisses())
}

func TestSupervisor_SuspendAllBlocksNewTicks(t *testing.T) {
	var runs int32
	task := Task{
		Name:     TaskFirmware,
		Period:   5 * time.Millisecond,
		Deadline: time.Second,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}

	s := NewSupervisor([]Task{task}, NewDeadlineMonitor(nil), zerolog.Nop())
	s.Start()
	time.Sleep(20 * time.Millisecond)

	s.SuspendAll()
	before := atomic.LoadInt32(&runs)
	time.Sleep(30 * time.Millisecond)
	after := atomic.LoadInt32(&runs)
	s.ResumeAll()

	require.Equal(t, before, after, "no tick should run while suspended")

	s.Stop()
}

func TestIsNetworkRelated(t *testing.T) {
	require.True(t, isNetworkRelated(testNetError{}))
	require.False(t, isNetworkRelated(errors.New("generic failure")))
	require.False(t, isNetworkRelated(nil))
}
