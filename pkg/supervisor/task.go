package supervisor

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ecowatt/pkg/metrics"
)

// TaskName identifies one of the fixed set of cooperative tasks the
// supervisor schedules. Names are stable across releases: they are used
// as Prometheus label values.
type TaskName string

const (
	TaskSensorPoll  TaskName = "sensor-poll"
	TaskUpload      TaskName = "upload"
	TaskCompression TaskName = "compression"
	TaskCommand     TaskName = "command"
	TaskConfig      TaskName = "config"
	TaskStatistics  TaskName = "statistics"
	TaskPowerReport TaskName = "power-report"
	TaskFirmware    TaskName = "firmware"
	TaskWatchdog    TaskName = "watchdog"
)

// Core pins a task to one of the two cores: network-facing tasks run on
// core 0, sensor-facing tasks run on core 1.
type Core int

const (
	CoreNetwork Core = 0
	CoreSensor  Core = 1
)

// Priority is the fixed highest-to-lowest order (lower value first) in
// which NewSupervisor sorts Supervisor.Tasks. Each task runs on its own
// goroutine and ticker, so priority does not decide which of two due
// tasks runs first, and a task never preempts another; it has no effect
// on period or deadline either.
var priority = map[TaskName]int{
	TaskSensorPoll:  0,
	TaskUpload:      1,
	TaskCompression: 2,
	TaskCommand:     3,
	TaskConfig:      4,
	TaskStatistics:  5,
	TaskPowerReport: 6,
	TaskFirmware:    7,
	TaskWatchdog:    8,
}

// Task is one cooperatively-scheduled unit of work. Run is invoked once
// per Period on a context that is canceled after Deadline elapses; a
// Run that returns after its context is done is reported as a deadline
// miss rather than being forcibly interrupted, since the supervisor
// never preempts a task mid-tick.
type Task struct {
	Name     TaskName
	Core     Core
	Period   time.Duration
	Deadline time.Duration
	Run      func(ctx context.Context) error
}

func (t Task) priority() int { return priority[t.Name] }

// Supervisor runs a fixed set of Tasks, each on its own ticker, and
// feeds timing and error outcomes into a DeadlineMonitor. It also
// exposes the single quiescence point firmware apply needs: SuspendAll
// blocks until every task currently mid-tick has returned, and holds
// off starting new ticks until ResumeAll is called.
type Supervisor struct {
	Tasks   []Task
	Monitor *DeadlineMonitor
	Logger  zerolog.Logger

	quiesce sync.RWMutex
	stopCh  chan struct{}
	wg      sync.WaitGroup

	netMu       sync.Mutex
	networkDown bool
}

// NewSupervisor builds a Supervisor over tasks, sorted into the fixed
// priority order for logging purposes (priority does not affect
// scheduling since each task runs on its own ticker).
func NewSupervisor(tasks []Task, monitor *DeadlineMonitor, logger zerolog.Logger) *Supervisor {
	sorted := make([]Task, len(tasks))
	copy(sorted, tasks)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].priority() < sorted[j-1].priority(); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return &Supervisor{Tasks: sorted, Monitor: monitor, Logger: logger, stopCh: make(chan struct{})}
}

// Start launches one goroutine per task. It returns immediately; call
// Stop to shut every task down.
func (s *Supervisor) Start() {
	for _, task := range s.Tasks {
		s.wg.Add(1)
		go s.runLoop(task)
	}
}

// Stop signals every task loop to exit and waits for them to drain.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// SuspendAll blocks until no task is mid-tick, and prevents any task
// from starting a new tick until ResumeAll is called. The firmware
// update engine calls this immediately before applying a staged image.
func (s *Supervisor) SuspendAll() {
	s.quiesce.Lock()
}

// ResumeAll releases a prior SuspendAll.
func (s *Supervisor) ResumeAll() {
	s.quiesce.Unlock()
}

func (s *Supervisor) runLoop(task Task) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce(task)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Supervisor) runOnce(task Task) {
	s.quiesce.RLock()
	defer s.quiesce.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), task.Deadline)
	defer cancel()

	start := time.Now()
	err := task.Run(ctx)
	elapsed := time.Since(start)

	missed := elapsed > task.Deadline || errors.Is(err, context.DeadlineExceeded)
	if err != nil && !missed {
		s.Logger.Warn().Str("task", string(task.Name)).Err(err).Msg("task tick failed")
	}

	if !missed {
		if err == nil && task.Core == CoreNetwork {
			s.noteNetworkTickResult(true)
		}
		return
	}

	networkRelated := isNetworkRelated(err)
	s.Monitor.RecordMiss(networkRelated)
	metrics.DeadlineMissesTotal.WithLabelValues(string(task.Name)).Inc()
	if networkRelated {
		metrics.DeadlineMissesNetworkTotal.Inc()
		if task.Core == CoreNetwork {
			s.noteNetworkTickResult(false)
		}
	}
	s.Logger.Warn().
		Str("task", string(task.Name)).
		Dur("elapsed", elapsed).
		Dur("deadline", task.Deadline).
		Bool("network_related", networkRelated).
		Msg("task missed its deadline")
}

// noteNetworkTickResult tracks whether the network currently looks down,
// based on outcomes of core-0 (network-facing) tasks. The transition from
// down to a clean success is what the spec calls "connectivity returns
// after an outage" — that edge, not every successful tick, is what calls
// DeadlineMonitor.OnNetworkRestored, so a single intermittent success amid
// an ongoing outage can't perpetually reset the restart grace period.
func (s *Supervisor) noteNetworkTickResult(succeeded bool) {
	s.netMu.Lock()
	defer s.netMu.Unlock()

	if succeeded {
		if s.networkDown {
			s.networkDown = false
			s.Monitor.OnNetworkRestored()
		}
		return
	}
	s.networkDown = true
}

// isNetworkRelated reports whether err indicates the miss was caused by
// a network I/O problem (timeout, connection refused/reset) rather than
// a systemic scheduling failure, by walking the error chain for a
// net.Error.
func isNetworkRelated(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
