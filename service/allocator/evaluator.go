package allocator

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/transition"
)

// tickState carries the per-tick view shared by all evaluations
type tickState struct {
	processes []*process.Process
	running   int
	capacity  int
}

// evaluate applies the automatic state machine to a single process.
func (s *Service) evaluate(p *process.Process, state *tickState) {
	switch p.GetState() {
	case process.StateNew:
		p.Fire(process.TriggerAdmit)
	case process.StateReady:
		if p.ReadyFor() < s.config.units(s.config.ReadyDwell) {
			return
		}
		s.dispatch(p, state)
	case process.StateRunning:
		if p.Advance() {
			state.running--
			s.log(p.PID).Debug("process completed")
			s.promote(state)
		}
	case process.StateBlockedSuspended:
		if state.running < state.capacity {
			s.schedule(p, process.StateReadySuspended, s.config.units(s.config.SuspendDelay))
		}
	case process.StateReadySuspended:
		remaining := s.config.units(s.config.SuspendDelay) - p.SuspendedFor()
		s.schedule(p, process.StateReady, max(remaining, 0))
	}
}

// dispatch runs a Ready process on a free core, preempts a strictly lower
// ranked incumbent, or defers the process to BlockedSuspended.
func (s *Service) dispatch(p *process.Process, state *tickState) {
	if state.running < state.capacity {
		if p.Fire(process.TriggerDispatch) {
			state.running++
		}
		return
	}
	victim := lowestRunning(state.processes)
	if victim != nil && p.Priority.Outranks(victim.Priority) {
		if victim.Fire(process.TriggerPreempt) && p.Fire(process.TriggerDispatch) {
			s.log(p.PID).WithFields(logrus.Fields{"preempted": victim.PID, "priority": p.Priority}).Debug("process preempted")
		}
		return
	}
	p.Fire(process.TriggerDefer)
}

// promote schedules the first waiting BlockedSuspended process for activation
// after a core has been released.
func (s *Service) promote(state *tickState) {
	for _, candidate := range state.processes {
		if candidate.GetState() != process.StateBlockedSuspended || candidate.IsScheduled() {
			continue
		}
		if manual := candidate.Manual(); manual == process.StateBlocked || manual == process.StateTerminated {
			continue
		}
		s.schedule(candidate, process.StateReadySuspended, s.config.units(s.config.SuspendDelay))
		return
	}
}

// schedule arms a delayed automatic transition unless one is already pending.
func (s *Service) schedule(p *process.Process, target process.State, delay time.Duration) {
	if !p.MarkScheduled() {
		return
	}
	s.transitions.Schedule(p.PID, transition.KindState, target, delay)
}

// enforceCapacity preempts the lowest ranked running processes, newest first,
// until the running count fits the current number of cores.
func (s *Service) enforceCapacity(state *tickState) {
	state.running = countState(state.processes, process.StateRunning)
	for state.running > state.capacity {
		var victim *process.Process
		for _, p := range state.processes {
			if p.GetState() != process.StateRunning {
				continue
			}
			if victim == nil || p.Rank() <= victim.Rank() {
				victim = p
			}
		}
		if victim == nil || !victim.Fire(process.TriggerPreempt) {
			return
		}
		state.running--
		s.log(victim.PID).WithField("cores", state.capacity).Debug("process preempted: capacity reduced")
	}
}

// lowestRunning returns the running process with the lowest rank; ties go to
// the lowest pid since processes are ordered by pid.
func lowestRunning(processes []*process.Process) *process.Process {
	var ret *process.Process
	for _, p := range processes {
		if p.GetState() != process.StateRunning {
			continue
		}
		if ret == nil || p.Rank() < ret.Rank() {
			ret = p
		}
	}
	return ret
}

func countState(processes []*process.Process, state process.State) int {
	count := 0
	for _, p := range processes {
		if p.GetState() == state {
			count++
		}
	}
	return count
}
