package procsim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viant/procsim/policy"
	"github.com/viant/procsim/progress"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/allocator"
	"github.com/viant/procsim/service/dao"
	"github.com/viant/procsim/service/dao/process/fs"
	pmemory "github.com/viant/procsim/service/dao/process/memory"
	"github.com/viant/procsim/service/event"
	"github.com/viant/procsim/service/messaging"
	mmemory "github.com/viant/procsim/service/messaging/memory"
	"github.com/viant/procsim/tracing"
)

var (
	// ErrInvalidCores is returned when the requested core count is below one.
	ErrInvalidCores = errors.New("procsim: number of cores must be >= 1")

	// ErrNoSnapshotStore is returned by Checkpoint when no snapshot store is configured.
	ErrNoSnapshotStore = errors.New("procsim: snapshot store not configured")
)

// EventTypeTransition tags events published for process transitions
const EventTypeTransition = "transition"

// Service is the OS controller: it owns the process registry and the
// scheduling loop and exposes the command and query API.
type Service struct {
	config      *Config
	logger      logrus.FieldLogger
	processDAO  dao.Service[int, process.Process]
	snapshotDAO dao.Service[int, process.Snapshot]
	allocator   *allocator.Service
	runtime     *Runtime
	progress    *progress.Progress
	listeners   []process.Listener

	queue     *mmemory.Queue[event.Event[process.Transition]]
	publisher *event.Publisher[process.Transition]
	listener  *event.Listener[process.Transition]

	mux     sync.Mutex
	lastPID int
}

func (s *Service) init(options []Option) error {
	for _, option := range options {
		option(s)
	}
	err := s.ensureBaseSetup()
	cfg := s.config.Scheduler
	s.allocator = allocator.New(s.processDAO, allocator.Config{
		PollingInterval: cfg.TickInterval,
		TimeUnit:        cfg.TimeUnit,
		ReadyDwell:      cfg.ReadyDwell,
		SuspendDelay:    cfg.SuspendDelay,
		ReleaseDelay:    cfg.ReleaseDelay,
	}, allocator.WithLogger(s.logger), allocator.WithProgress(s.progress))
	s.allocator.SetCapacity(max(cfg.Cores, 1))
	s.runtime = &Runtime{
		allocator:   s.allocator,
		progress:    s.progress,
		logger:      s.logger,
		stopTimeout: cfg.StopTimeout,
	}
	return err
}

func (s *Service) ensureBaseSetup() error {
	if s.config == nil {
		s.config = DefaultConfig()
	}
	if s.logger == nil {
		logger := logrus.New()
		if level, err := logrus.ParseLevel(s.config.Log.Level); err == nil {
			logger.SetLevel(level)
		}
		s.logger = logger
	}
	if s.processDAO == nil {
		s.processDAO = pmemory.New()
	}
	s.progress = progress.New()
	s.queue = mmemory.NewQueue[event.Event[process.Transition]](mmemory.Config{QueueBuffer: s.config.Events.Buffer})
	s.publisher = event.NewPublisher[process.Transition](s.queue)
	if s.snapshotDAO == nil && s.config.Snapshot.URL != "" {
		store, err := fs.New(s.config.Snapshot.URL, fs.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.snapshotDAO = store
	}
	if t := s.config.Tracing; t.Enabled {
		if err := tracing.Init(t.ServiceName, t.ServiceVersion, t.OutputFile); err != nil {
			return fmt.Errorf("failed to init tracing: %w", err)
		}
	}
	return nil
}

// Runtime returns the loop runtime
func (s *Service) Runtime() *Runtime {
	return s.runtime
}

// AddProcess creates a process in state New with the quota of priority and
// registers it for the next tick.
func (s *Service) AddProcess(ctx context.Context, priority string) (*process.Snapshot, error) {
	aPriority, err := policy.Parse(priority)
	if err != nil {
		return nil, err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	pid := s.lastPID + 1
	aProcess := process.New(pid, aPriority, s.config.Priorities.ExecutionTime(aPriority), s.onTransition)
	if err = s.processDAO.Save(ctx, aProcess); err != nil {
		return nil, fmt.Errorf("failed to register process %d: %w", pid, err)
	}
	s.lastPID = pid
	s.progress.Move(process.StateNone, process.StateNew)
	s.logger.WithFields(logrus.Fields{"pid": pid, "priority": aPriority}).Debug("process added")
	return aProcess.Snapshot(), nil
}

// SetNumCores sets the capacity used from the next evaluation on.
func (s *Service) SetNumCores(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCores, n)
	}
	if previous := s.allocator.Capacity(); previous != n {
		s.allocator.SetCapacity(n)
		s.logger.WithFields(logrus.Fields{"from": previous, "to": n}).Info("cores changed")
	}
	return nil
}

// NumCores returns the current capacity
func (s *Service) NumCores() int {
	return s.allocator.Capacity()
}

// Start launches the scheduling loop; when killed it resumes first.
func (s *Service) Start(ctx context.Context) {
	_, span := tracing.StartSpan(ctx, "procsim.start")
	defer tracing.EndSpan(span, nil)
	if s.allocator.Killed() {
		s.Resume()
	}
	s.runtime.Start(ctx)
}

// Stop halts the loop with a bounded wait; process states are kept.
func (s *Service) Stop() {
	ctx, span := tracing.StartSpan(context.Background(), "procsim.stop")
	defer tracing.EndSpan(span, nil)
	s.runtime.Stop(ctx)
}

// Kill sets the OS-wide killed flag; the next tick turns processes into zombies.
func (s *Service) Kill() {
	if s.allocator.Killed() {
		return
	}
	s.allocator.SetKilled(true)
	s.logger.WithField("run", s.runtime.RunID()).Info("simulation killed")
}

// Resume clears the killed flag; the next tick restores zombies.
func (s *Service) Resume() {
	if !s.allocator.Killed() {
		return
	}
	s.allocator.SetKilled(false)
	s.logger.WithField("run", s.runtime.RunID()).Info("simulation resumed")
}

// Killed reports whether the OS is killed
func (s *Service) Killed() bool {
	return s.allocator.Killed()
}

// Running reports whether the scheduling loop is running
func (s *Service) Running() bool {
	return s.runtime.Running()
}

// ChangeProcessState applies a manual override (Blocked, Ready or Terminated).
// Unknown pids and unsupported states are ignored.
func (s *Service) ChangeProcessState(ctx context.Context, pid int, state process.State) {
	ctx, span := tracing.StartSpan(ctx, "procsim.changeProcessState")
	span.WithInt("pid", pid).WithAttributes(map[string]string{"state": string(state)})
	defer tracing.EndSpan(span, nil)
	s.allocator.Override(ctx, pid, state)
}

// Processes returns a point-in-time snapshot of registered processes ordered
// by pid, optionally restricted to states.
func (s *Service) Processes(ctx context.Context, states ...process.State) ([]*process.Snapshot, error) {
	processes, err := s.processDAO.List(ctx, dao.WithStates(states...)...)
	if err != nil {
		return nil, err
	}
	ret := make([]*process.Snapshot, 0, len(processes))
	for _, p := range processes {
		ret = append(ret, p.Snapshot())
	}
	return ret, nil
}

// Process returns a snapshot of pid or dao.ErrNotFound
func (s *Service) Process(ctx context.Context, pid int) (*process.Snapshot, error) {
	p, err := s.processDAO.Load(ctx, pid)
	if err != nil {
		return nil, err
	}
	return p.Snapshot(), nil
}

// RemoveProcess unregisters a terminated process and cancels its pending transitions.
func (s *Service) RemoveProcess(ctx context.Context, pid int) error {
	p, err := s.processDAO.Load(ctx, pid)
	if err != nil {
		return fmt.Errorf("failed to remove process %d: %w", pid, err)
	}
	if !p.GetState().IsTerminated() {
		return fmt.Errorf("failed to remove process %d: %w", pid, process.ErrNotTerminated)
	}
	if err = s.processDAO.Delete(ctx, pid); err != nil {
		return fmt.Errorf("failed to remove process %d: %w", pid, err)
	}
	s.allocator.Forget(pid)
	s.progress.Move(process.StateTerminated, process.StateNone)
	s.logger.WithField("pid", pid).Debug("process removed")
	return nil
}

// Stats returns aggregated counters
func (s *Service) Stats() progress.Progress {
	return s.progress.Snapshot()
}

// OnStatsChange registers a callback receiving the latest counters after they
// change. It runs on its own goroutine and may call back into the controller.
func (s *Service) OnStatsChange(cb func(progress.Progress)) {
	s.progress.OnChange(cb)
}

// Checkpoint persists the current snapshot of every process and removes
// stored snapshots of processes that are no longer registered.
func (s *Service) Checkpoint(ctx context.Context) (err error) {
	if s.snapshotDAO == nil {
		return ErrNoSnapshotStore
	}
	ctx, span := tracing.StartSpan(ctx, "procsim.checkpoint")
	defer func() { tracing.EndSpan(span, err) }()
	snapshots, err := s.Processes(ctx)
	if err != nil {
		return err
	}
	live := make(map[int]bool, len(snapshots))
	for _, snapshot := range snapshots {
		live[snapshot.PID] = true
		if err = s.snapshotDAO.Save(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to checkpoint process %d: %w", snapshot.PID, err)
		}
	}
	stored, err := s.snapshotDAO.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for _, snapshot := range stored {
		if live[snapshot.PID] {
			continue
		}
		if err = s.snapshotDAO.Delete(ctx, snapshot.PID); err != nil && !errors.Is(err, dao.ErrNotFound) {
			return fmt.Errorf("failed to delete checkpoint %d: %w", snapshot.PID, err)
		}
	}
	span.WithInt("processes", len(snapshots))
	return nil
}

// Listen delivers transition events to handler on a background goroutine,
// replacing any previous handler. The returned function stops delivery.
func (s *Service) Listen(ctx context.Context, handler func(*event.Event[process.Transition])) func() {
	s.mux.Lock()
	previous := s.listener
	listener := event.NewListener[process.Transition](s.publisher, handler, s.logger)
	s.listener = listener
	s.mux.Unlock()
	if previous != nil {
		previous.Stop()
	}
	listener.Start(ctx)
	return listener.Stop
}

// DroppedEvents returns number of transition events dropped on a full queue
func (s *Service) DroppedEvents() int {
	return s.queue.Dropped()
}

// onTransition runs after every state change, once the process lock is released.
func (s *Service) onTransition(t process.Transition) {
	runID := s.runtime.RunID()
	s.logger.WithFields(logrus.Fields{
		"pid": t.PID, "from": t.From, "to": t.To, "trigger": t.Trigger, "run": runID,
	}).Debug("process transition")
	s.progress.Move(t.From, t.To)
	anEvent := event.NewEvent(&event.Context{RunID: runID, PID: t.PID, EventType: EventTypeTransition}, t)
	if err := s.publisher.Publish(context.Background(), anEvent); err != nil {
		if errors.Is(err, messaging.ErrQueueFull) {
			s.logger.WithField("pid", t.PID).Warn("transition event dropped: queue full")
		} else {
			s.logger.WithError(err).Warn("failed to publish transition event")
		}
	}
	for _, listener := range s.listeners {
		listener(t)
	}
}

// New creates a simulator with default configuration unless WithConfig is given.
func New(options ...Option) *Service {
	ret := &Service{}
	if err := ret.init(options); err != nil {
		ret.logger.WithError(err).Warn("simulator initialised without optional services")
	}
	return ret
}

// NewFromConfig validates cfg and creates a simulator from it; options are
// applied after the configuration.
func NewFromConfig(cfg *Config, options ...Option) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ret := &Service{}
	if err := ret.init(append([]Option{WithConfig(cfg)}, options...)); err != nil {
		return nil, err
	}
	return ret, nil
}
