package process

import (
	"errors"
	"sync"
	"time"

	"github.com/qmuntal/stateless"
	"github.com/viant/procsim/internal/clock"
	"github.com/viant/procsim/policy"
)

// ErrNotTerminated is returned when an operation requires a terminated process.
var ErrNotTerminated = errors.New("process: not terminated")

// Transition describes a single state change of a process.
type Transition struct {
	PID     int       `json:"pid"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	Trigger Trigger   `json:"trigger"`
	At      time.Time `json:"at"`
}

// Listener is notified after every transition, once the process lock has
// been released.
type Listener func(t Transition)

// Process represents a simulated process
type Process struct {
	PID              int             `json:"pid"`
	Priority         policy.Priority `json:"priority"`
	ExecutionTime    int             `json:"executionTime"`
	Progress         int             `json:"progress"`
	State            State           `json:"state"`
	ManualState      State           `json:"manualState,omitempty"`
	PreZombieState   State           `json:"preZombieState,omitempty"`
	ScheduledPending bool            `json:"scheduledPending"`
	ReadySince       *time.Time      `json:"readySince,omitempty"`
	SuspendedSince   *time.Time      `json:"suspendedSince,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	FinishedAt       *time.Time      `json:"finishedAt,omitempty"`

	mu        sync.RWMutex
	machine   *stateless.StateMachine
	listeners []Listener
	recorded  []Transition
}

// New creates a process in state New. A non-positive executionTime falls back
// to the priority's default quota.
func New(pid int, priority policy.Priority, executionTime int, listeners ...Listener) *Process {
	if executionTime <= 0 {
		executionTime = priority.ExecutionTime()
	}
	now := clock.Now()
	ret := &Process{
		PID:           pid,
		Priority:      priority,
		ExecutionTime: executionTime,
		State:         StateNew,
		CreatedAt:     now,
		UpdatedAt:     now,
		listeners:     listeners,
	}
	ret.machine = newMachine(ret)
	return ret
}

// fire must be called with p.mu held; a trigger that is not permitted from the
// current state is a no-op reported as false.
func (p *Process) fire(trigger Trigger) bool {
	return p.machine.Fire(trigger) == nil
}

// unlock releases p.mu and then notifies listeners of the transitions recorded
// while it was held.
func (p *Process) unlock() {
	transitions := p.recorded
	p.recorded = nil
	p.mu.Unlock()
	for _, t := range transitions {
		for _, listener := range p.listeners {
			listener(t)
		}
	}
}

// Fire applies trigger if the current state permits it.
func (p *Process) Fire(trigger Trigger) bool {
	p.mu.Lock()
	defer p.unlock()
	return p.fire(trigger)
}

// GetState returns the current state
func (p *Process) GetState() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.State
}

// Manual returns the active manual override, StateNone when there is none.
func (p *Process) Manual() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ManualState
}

// Rank returns the priority rank; priority is immutable after creation.
func (p *Process) Rank() int {
	return p.Priority.Rank()
}

// Advance consumes one execution unit of a running process. It returns true
// when the quota is exhausted and the process has terminated.
func (p *Process) Advance() bool {
	p.mu.Lock()
	defer p.unlock()
	if p.State != StateRunning {
		return false
	}
	if p.Progress < p.ExecutionTime {
		p.Progress++
	}
	if p.Progress >= p.ExecutionTime {
		return p.fire(TriggerComplete)
	}
	return false
}

// Kill moves a live process into Zombie remembering the state to restore.
// Terminated and already zombie processes are left untouched, which keeps the
// remembered state from being overwritten within one episode.
func (p *Process) Kill() bool {
	p.mu.Lock()
	defer p.unlock()
	if p.State == StateTerminated || p.State == StateZombie {
		return false
	}
	previous := p.State
	if !p.fire(TriggerKill) {
		return false
	}
	p.PreZombieState = previous
	return true
}

// Restore leaves Zombie for the remembered state, or Ready when none was recorded.
func (p *Process) Restore() bool {
	p.mu.Lock()
	defer p.unlock()
	if p.State != StateZombie {
		return false
	}
	if !p.fire(TriggerRestore) {
		return false
	}
	p.PreZombieState = StateNone
	return true
}

// Override applies a manual state change. Terminated is permanent; Blocked
// pins the process until changed again; Ready sets a temporary override that
// Release clears. Zombie processes only accept Terminated.
func (p *Process) Override(target State) bool {
	p.mu.Lock()
	defer p.unlock()
	switch target {
	case StateTerminated:
		if !p.fire(TriggerTerminate) {
			return false
		}
		p.PreZombieState = StateNone
	case StateBlocked:
		if p.State == StateTerminated || p.State == StateZombie {
			return false
		}
		if p.State != StateBlocked && !p.fire(TriggerBlock) {
			return false
		}
	case StateReady:
		if !p.fire(TriggerUnblock) {
			return false
		}
	default:
		return false
	}
	p.ManualState = target
	return true
}

// Release clears a temporary Ready override, but only while the process is
// still Ready under that override.
func (p *Process) Release() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State != StateReady || p.ManualState != StateReady {
		return false
	}
	p.ManualState = StateNone
	return true
}

// Hold keeps a manually blocked process in Blocked.
func (p *Process) Hold() bool {
	p.mu.Lock()
	defer p.unlock()
	if p.State == StateBlocked {
		return false
	}
	return p.fire(TriggerBlock)
}

// MarkScheduled sets the pending flag; it returns false when a delayed
// transition is already pending.
func (p *Process) MarkScheduled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ScheduledPending {
		return false
	}
	p.ScheduledPending = true
	return true
}

// ClearScheduled resets the pending flag
func (p *Process) ClearScheduled() {
	p.mu.Lock()
	p.ScheduledPending = false
	p.mu.Unlock()
}

// IsScheduled reports whether a delayed transition is pending
func (p *Process) IsScheduled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ScheduledPending
}

// ReadyFor returns how long the process has been Ready, zero otherwise.
func (p *Process) ReadyFor() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clock.Since(p.ReadySince)
}

// SuspendedFor returns how long the process has been ReadySuspended, zero otherwise.
func (p *Process) SuspendedFor() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clock.Since(p.SuspendedSince)
}

// Snapshot returns a consistent read-only copy of the display fields.
func (p *Process) Snapshot() *Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &Snapshot{
		PID:           p.PID,
		Priority:      p.Priority,
		State:         p.State,
		ManualState:   p.ManualState,
		Progress:      p.Progress,
		ExecutionTime: p.ExecutionTime,
		UpdatedAt:     p.UpdatedAt,
	}
}
