package transition

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/procsim/internal/clock"
	"github.com/viant/procsim/runtime/process"
)

// Kind distinguishes independent delayed actions on the same process.
type Kind string

const (
	// KindState moves the process to Target.
	KindState Kind = "state"
	// KindRelease clears a temporary manual Ready override.
	KindRelease Kind = "release"
)

// Transition represents a delayed action on a process
type Transition struct {
	PID         int
	Kind        Kind
	Target      process.State
	Delay       time.Duration
	ScheduledAt time.Time
	// Epoch is copied from the scheduler when the transition is created; the
	// handler can use it to discard transitions that belong to an earlier run.
	Epoch uint64
}

// Handler applies a fired transition.
type Handler func(ctx context.Context, t *Transition)

type key struct {
	pid  int
	kind Kind
}

type entry struct {
	transition *Transition
	timer      *time.Timer
}

// Service schedules and cancels delayed transitions
type Service struct {
	handler Handler
	logger  logrus.FieldLogger
	mux     sync.Mutex
	pending map[key]*entry
	epoch   uint64
}

// Option configures the Service
type Option func(s *Service)

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New creates a transition scheduler delivering fired transitions to handler.
func New(handler Handler, options ...Option) *Service {
	ret := &Service{
		handler: handler,
		pending: make(map[key]*entry),
	}
	for _, opt := range options {
		opt(ret)
	}
	if ret.logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		ret.logger = logger
	}
	return ret
}

// Schedule arranges for a transition to fire after delay. It returns false,
// without scheduling anything, when a transition of the same kind is already
// pending for pid.
func (s *Service) Schedule(pid int, kind Kind, target process.State, delay time.Duration) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	k := key{pid: pid, kind: kind}
	if _, ok := s.pending[k]; ok {
		return false
	}
	s.schedule(k, target, delay)
	return true
}

// Reschedule replaces any pending transition of the same kind for pid.
func (s *Service) Reschedule(pid int, kind Kind, target process.State, delay time.Duration) {
	s.mux.Lock()
	defer s.mux.Unlock()
	k := key{pid: pid, kind: kind}
	if prev, ok := s.pending[k]; ok {
		prev.timer.Stop()
		delete(s.pending, k)
	}
	s.schedule(k, target, delay)
}

// schedule must be called with s.mux held
func (s *Service) schedule(k key, target process.State, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	t := &Transition{
		PID:         k.pid,
		Kind:        k.kind,
		Target:      target,
		Delay:       delay,
		ScheduledAt: clock.Now(),
		Epoch:       s.epoch,
	}
	e := &entry{transition: t}
	e.timer = time.AfterFunc(delay, func() { s.fire(k, e) })
	s.pending[k] = e
	s.logger.WithFields(logrus.Fields{"pid": k.pid, "kind": k.kind, "to": target, "delay": delay}).Debug("transition scheduled")
}

func (s *Service) fire(k key, e *entry) {
	s.mux.Lock()
	current, ok := s.pending[k]
	if !ok || current != e {
		// cancelled or replaced after the timer had already started firing
		s.mux.Unlock()
		return
	}
	delete(s.pending, k)
	s.mux.Unlock()
	if s.handler != nil {
		s.handler(context.Background(), e.transition)
	}
}

// Cancel stops the pending transition of kind for pid; it reports whether one was pending.
func (s *Service) Cancel(pid int, kind Kind) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	k := key{pid: pid, kind: kind}
	e, ok := s.pending[k]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, k)
	return true
}

// CancelAll stops every pending transition of the given kinds (all kinds when
// none are given), advances the epoch and returns the affected pids.
func (s *Service) CancelAll(kinds ...Kind) []int {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.epoch++
	var pids []int
	for k, e := range s.pending {
		if len(kinds) > 0 && !hasKind(kinds, k.kind) {
			continue
		}
		e.timer.Stop()
		delete(s.pending, k)
		pids = append(pids, k.pid)
	}
	return pids
}

// Epoch returns the current epoch
func (s *Service) Epoch() uint64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.epoch
}

// Pending reports whether a transition of kind is pending for pid
func (s *Service) Pending(pid int, kind Kind) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	_, ok := s.pending[key{pid: pid, kind: kind}]
	return ok
}

// Len returns the number of pending transitions
func (s *Service) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.pending)
}

func hasKind(kinds []Kind, kind Kind) bool {
	for _, candidate := range kinds {
		if candidate == kind {
			return true
		}
	}
	return false
}
