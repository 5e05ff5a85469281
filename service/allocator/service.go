package allocator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/procsim/progress"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
	"github.com/viant/procsim/service/transition"
	"github.com/viant/procsim/tracing"
)

// Config represents allocator service configuration
type Config struct {
	// PollingInterval is how often the loop evaluates the registry
	PollingInterval time.Duration
	// TimeUnit is the duration of one abstract time unit
	TimeUnit time.Duration
	// ReadyDwell is the number of units a process waits in Ready before it may run
	ReadyDwell int
	// SuspendDelay is the number of units of each suspended hop
	SuspendDelay int
	// ReleaseDelay is the number of units before a manual Ready override is released
	ReleaseDelay int
}

// DefaultConfig returns the default allocator configuration
func DefaultConfig() Config {
	return Config{
		PollingInterval: 100 * time.Millisecond,
		TimeUnit:        time.Second,
		ReadyDwell:      3,
		SuspendDelay:    3,
		ReleaseDelay:    3,
	}
}

func (c Config) units(n int) time.Duration {
	return time.Duration(n) * c.TimeUnit
}

// Service evaluates processes and applies automatic, delayed and manual transitions
type Service struct {
	config      Config
	processDAO  dao.Service[int, process.Process]
	progress    *progress.Progress
	transitions *transition.Service
	logger      logrus.FieldLogger

	evalMux  sync.Mutex
	killed   atomic.Bool
	capacity atomic.Int32
	runID    string
}

// Option customises the allocator
type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithProgress sets the tracker receiving tick counts
func WithProgress(tracker *progress.Progress) Option {
	return func(s *Service) {
		s.progress = tracker
	}
}

// New creates a new allocator service with capacity of one core
func New(processDAO dao.Service[int, process.Process], config Config, opts ...Option) *Service {
	ret := &Service{
		config:     config,
		processDAO: processDAO,
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.logger == nil {
		ret.logger = logrus.StandardLogger()
	}
	ret.capacity.Store(1)
	ret.transitions = transition.New(ret.onTransition, transition.WithLogger(ret.logger))
	return ret
}

// Start runs the scheduling loop until ctx is done
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.PollingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.WithError(err).Warn("scheduling tick failed")
			}
		}
	}
}

// Tick evaluates every registered process once.
func (s *Service) Tick(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "allocator.tick")
	defer func() { tracing.EndSpan(span, err) }()

	s.evalMux.Lock()
	defer s.evalMux.Unlock()

	processes, err := s.processDAO.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}
	span.WithInt("processes", len(processes))
	defer s.progress.Update(progress.Delta{Ticks: 1})

	if s.killed.Load() {
		for _, p := range processes {
			from := p.GetState()
			if p.Kill() {
				s.log(p.PID).WithField("from", from).Debug("process suspended as zombie")
			}
		}
		return nil
	}

	restored := map[int]bool{}
	for _, p := range processes {
		if !p.Restore() {
			continue
		}
		restored[p.PID] = true
		if p.Manual() == process.StateReady {
			s.transitions.Schedule(p.PID, transition.KindRelease, process.StateReady, s.config.units(s.config.ReleaseDelay))
		}
		s.log(p.PID).WithField("to", p.GetState()).Debug("process restored from zombie")
	}

	state := &tickState{processes: processes, capacity: s.Capacity()}
	state.running = countState(processes, process.StateRunning)
	for _, p := range processes {
		if restored[p.PID] {
			continue
		}
		switch p.Manual() {
		case process.StateTerminated:
			continue
		case process.StateBlocked:
			p.Hold()
		default:
			s.evaluate(p, state)
		}
	}
	s.enforceCapacity(state)
	span.WithInt("running", state.running)
	return nil
}

// SetKilled sets or clears the OS-wide killed flag; the next tick applies it.
func (s *Service) SetKilled(killed bool) {
	s.killed.Store(killed)
}

// Killed returns the killed flag
func (s *Service) Killed() bool {
	return s.killed.Load()
}

// SetCapacity sets the number of cores used by the next evaluation.
func (s *Service) SetCapacity(cores int) {
	s.capacity.Store(int32(cores))
}

// Capacity returns the current number of cores
func (s *Service) Capacity() int {
	return int(s.capacity.Load())
}

// SetRunID sets run identifier used in log fields
func (s *Service) SetRunID(runID string) {
	s.evalMux.Lock()
	s.runID = runID
	s.evalMux.Unlock()
}

// Override applies a manual state change to pid. Unknown pids and states that
// are not valid overrides are ignored; it reports whether the state changed.
func (s *Service) Override(ctx context.Context, pid int, target process.State) bool {
	if !target.IsOverride() {
		return false
	}
	s.evalMux.Lock()
	defer s.evalMux.Unlock()
	p, err := s.processDAO.Load(ctx, pid)
	if err != nil {
		return false
	}
	from := p.GetState()
	if !p.Override(target) {
		s.log(pid).WithFields(logrus.Fields{"from": from, "to": target}).Debug("manual change ignored")
		return false
	}
	s.transitions.Cancel(pid, transition.KindState)
	p.ClearScheduled()
	if target == process.StateReady {
		s.transitions.Reschedule(pid, transition.KindRelease, process.StateReady, s.config.units(s.config.ReleaseDelay))
	} else {
		s.transitions.Cancel(pid, transition.KindRelease)
	}
	s.log(pid).WithFields(logrus.Fields{"from": from, "to": target}).Debug("manual change applied")
	return true
}

// Halt cancels every pending automatic transition; manual release timers keep running.
func (s *Service) Halt(ctx context.Context) {
	s.evalMux.Lock()
	defer s.evalMux.Unlock()
	for _, pid := range s.transitions.CancelAll(transition.KindState) {
		if p, err := s.processDAO.Load(ctx, pid); err == nil {
			p.ClearScheduled()
		}
	}
}

// Forget cancels every pending transition of pid
func (s *Service) Forget(pid int) {
	s.transitions.Cancel(pid, transition.KindState)
	s.transitions.Cancel(pid, transition.KindRelease)
}

// Pending returns number of pending delayed transitions
func (s *Service) Pending() int {
	return s.transitions.Len()
}

// onTransition applies a fired delayed transition. Processes that were removed,
// terminated or pinned by a manual Blocked/Terminated override are left alone.
func (s *Service) onTransition(ctx context.Context, t *transition.Transition) {
	s.evalMux.Lock()
	defer s.evalMux.Unlock()
	p, err := s.processDAO.Load(ctx, t.PID)
	if err != nil {
		return
	}
	logger := s.log(t.PID).WithFields(logrus.Fields{"kind": t.Kind, "to": t.Target})
	if t.Kind == transition.KindRelease {
		if p.Release() {
			logger.Debug("manual override released")
		}
		return
	}
	if t.Epoch != s.transitions.Epoch() {
		if !s.transitions.Pending(t.PID, transition.KindState) {
			p.ClearScheduled()
		}
		logger.Debug("stale transition discarded")
		return
	}
	p.ClearScheduled()
	switch p.Manual() {
	case process.StateBlocked, process.StateTerminated:
		logger.Debug("transition skipped: manual override")
		return
	}
	trigger, ok := process.TriggerFor(t.Target)
	if !ok {
		return
	}
	from := p.GetState()
	if !p.Fire(trigger) {
		logger.WithField("from", from).Debug("transition not permitted")
	}
}

func (s *Service) log(pid int) logrus.FieldLogger {
	return s.logger.WithFields(logrus.Fields{"pid": pid, "run": s.runID})
}
