package process

import (
	"context"

	"github.com/qmuntal/stateless"
	"github.com/viant/procsim/internal/clock"
)

// live states may be blocked, unblocked, terminated or killed at any time
var live = []State{StateNew, StateReady, StateRunning, StateBlocked, StateBlockedSuspended, StateReadySuspended}

// newMachine builds the lifecycle state machine of p. The state itself is
// stored on the process; the machine only validates and applies transitions.
// Terminated has no permitted triggers.
func newMachine(p *Process) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return p.State, nil
		},
		func(_ context.Context, state stateless.State) error {
			p.State = state.(State)
			return nil
		},
		stateless.FiringImmediate,
	)

	for _, state := range live {
		cfg := sm.Configure(state).
			Permit(TriggerTerminate, StateTerminated).
			Permit(TriggerKill, StateZombie)
		if state != StateBlocked {
			cfg.Permit(TriggerBlock, StateBlocked)
		}
		if state == StateReady {
			cfg.PermitReentry(TriggerUnblock)
		} else {
			cfg.Permit(TriggerUnblock, StateReady)
		}
	}

	sm.Configure(StateNew).
		Permit(TriggerAdmit, StateReady)

	sm.Configure(StateReady).
		Permit(TriggerDispatch, StateRunning).
		Permit(TriggerDefer, StateBlockedSuspended).
		OnEntry(func(_ context.Context, _ ...any) error {
			p.ReadySince = clock.Ptr()
			return nil
		}).
		OnExit(func(_ context.Context, _ ...any) error {
			p.ReadySince = nil
			return nil
		})

	sm.Configure(StateRunning).
		Permit(TriggerPreempt, StateBlockedSuspended).
		Permit(TriggerComplete, StateTerminated)

	sm.Configure(StateBlockedSuspended).
		Permit(TriggerActivate, StateReadySuspended)

	sm.Configure(StateReadySuspended).
		Permit(TriggerRequeue, StateReady).
		OnEntry(func(_ context.Context, _ ...any) error {
			p.SuspendedSince = clock.Ptr()
			return nil
		}).
		OnExit(func(_ context.Context, _ ...any) error {
			p.SuspendedSince = nil
			return nil
		})

	sm.Configure(StateZombie).
		Permit(TriggerTerminate, StateTerminated).
		PermitDynamic(TriggerRestore, func(_ context.Context, _ ...any) (stateless.State, error) {
			if p.PreZombieState == StateNone {
				return StateReady, nil
			}
			return p.PreZombieState, nil
		})

	sm.Configure(StateTerminated).
		OnEntry(func(_ context.Context, _ ...any) error {
			p.FinishedAt = clock.Ptr()
			return nil
		})

	sm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		at := clock.Now()
		p.UpdatedAt = at
		if len(p.listeners) == 0 {
			return
		}
		p.recorded = append(p.recorded, Transition{
			PID:     p.PID,
			From:    t.Source.(State),
			To:      t.Destination.(State),
			Trigger: t.Trigger.(Trigger),
			At:      at,
		})
	})
	return sm
}
