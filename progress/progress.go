package progress

import (
	"sync"
	"time"

	"github.com/viant/procsim/runtime/process"
)

// Delta represents an incremental counter change; fields may be negative.
type Delta struct {
	Ticks             int
	Preemptions       int
	Completions       int
	ZombieConversions int
}

// Progress keeps aggregated simulation counters. It is safe for concurrent use.
type Progress struct {
	RunID     string
	StartedAt time.Time

	States            map[process.State]int
	Ticks             int
	Preemptions       int
	Completions       int
	ZombieConversions int

	sync.Mutex
	onChange func(Progress)
	notify   chan struct{}
}

// New creates an empty tracker
func New() *Progress {
	return &Progress{States: map[process.State]int{}}
}

// Update applies the supplied delta.
func (p *Progress) Update(d Delta) {
	if p == nil {
		return
	}
	p.Lock()
	p.Ticks += d.Ticks
	p.Preemptions += d.Preemptions
	p.Completions += d.Completions
	p.ZombieConversions += d.ZombieConversions
	p.changed()
	p.Unlock()
}

// Move accounts for a process leaving from and entering to; StateNone on
// either side models registration and removal.
func (p *Progress) Move(from, to process.State) {
	if p == nil || from == to {
		return
	}
	p.Lock()
	if from != process.StateNone {
		if p.States[from]--; p.States[from] <= 0 {
			delete(p.States, from)
		}
	}
	if to != process.StateNone {
		p.States[to]++
	}
	switch {
	case to == process.StateZombie:
		p.ZombieConversions++
	case from == process.StateRunning && to == process.StateBlockedSuspended:
		p.Preemptions++
	case from == process.StateRunning && to == process.StateTerminated:
		p.Completions++
	}
	p.changed()
	p.Unlock()
}

// Start resets counters for a new run, keeping per-state counts.
func (p *Progress) Start(runID string, at time.Time) {
	if p == nil {
		return
	}
	p.Lock()
	p.RunID = runID
	p.StartedAt = at
	p.Ticks = 0
	p.Preemptions = 0
	p.Completions = 0
	p.ZombieConversions = 0
	p.Unlock()
}

// Snapshot returns a copy of the tracker suitable for read-only inspection.
func (p *Progress) Snapshot() Progress {
	if p == nil {
		return Progress{}
	}
	p.Lock()
	defer p.Unlock()
	return p.copy()
}

// Count returns number of processes in state
func (p *Progress) Count(state process.State) int {
	if p == nil {
		return 0
	}
	p.Lock()
	defer p.Unlock()
	return p.States[state]
}

// OnChange registers a callback receiving the latest snapshot after counters
// change. It runs on a dedicated goroutine with no lock held, so bursts of
// changes may be coalesced into one call. A nil callback stops delivery.
func (p *Progress) OnChange(cb func(Progress)) {
	if p == nil {
		return
	}
	p.Lock()
	defer p.Unlock()
	p.onChange = cb
	if cb == nil {
		if p.notify != nil {
			close(p.notify)
			p.notify = nil
		}
		return
	}
	if p.notify == nil {
		p.notify = make(chan struct{}, 1)
		go p.deliver(p.notify)
	}
}

func (p *Progress) deliver(notify chan struct{}) {
	for range notify {
		p.Lock()
		snapshot, cb := p.copy(), p.onChange
		p.Unlock()
		if cb != nil {
			cb(snapshot)
		}
	}
}

// changed must be called with the lock held
func (p *Progress) changed() {
	if p.notify == nil {
		return
	}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Progress) copy() Progress {
	states := make(map[process.State]int, len(p.States))
	for k, v := range p.States {
		states[k] = v
	}
	return Progress{
		RunID:             p.RunID,
		StartedAt:         p.StartedAt,
		States:            states,
		Ticks:             p.Ticks,
		Preemptions:       p.Preemptions,
		Completions:       p.Completions,
		ZombieConversions: p.ZombieConversions,
	}
}
