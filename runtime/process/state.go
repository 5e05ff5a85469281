package process

import (
	"encoding/json"
	"fmt"
	"strings"
)

// State represents the lifecycle state of a process
type State string

const (
	// StateNone is the zero value; as a manual override it means "no override".
	StateNone             State = ""
	StateNew              State = "new"
	StateReady            State = "ready"
	StateRunning          State = "running"
	StateBlocked          State = "blocked"
	StateTerminated       State = "terminated"
	StateZombie           State = "zombie"
	StateBlockedSuspended State = "blockedSuspended"
	StateReadySuspended   State = "readySuspended"
)

// States lists every lifecycle state in display order.
var States = []State{
	StateNew, StateReady, StateRunning, StateBlocked,
	StateTerminated, StateZombie, StateBlockedSuspended, StateReadySuspended,
}

var labels = map[State]string{
	StateNone:             "None",
	StateNew:              "New",
	StateReady:            "Ready",
	StateRunning:          "Running",
	StateBlocked:          "Blocked",
	StateTerminated:       "Terminated",
	StateZombie:           "Zombie",
	StateBlockedSuspended: "Blocked Suspended",
	StateReadySuspended:   "Ready Suspended",
}

// aliases used by process lists that offer actions rather than states
var aliases = map[string]State{
	"end":       StateTerminated,
	"unblocked": StateReady,
}

// String returns the display label, e.g. "Blocked Suspended".
func (s State) String() string {
	if label, ok := labels[s]; ok {
		return label
	}
	return string(s)
}

// IsTerminated reports whether s is the absorbing terminal state.
func (s State) IsTerminated() bool {
	return s == StateTerminated
}

// IsOverride reports whether s may be used as a manual override.
func (s State) IsOverride() bool {
	switch s {
	case StateBlocked, StateReady, StateTerminated:
		return true
	}
	return false
}

// ParseState converts a state identifier or display label into a State.
// Matching ignores case, spaces and underscores.
func ParseState(text string) (State, error) {
	key := normalize(text)
	if state, ok := aliases[key]; ok {
		return state, nil
	}
	for _, candidate := range States {
		if normalize(string(candidate)) == key || normalize(labels[candidate]) == key {
			return candidate, nil
		}
	}
	return StateNone, fmt.Errorf("unknown process state: %q", text)
}

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, " ", "")
	return strings.ReplaceAll(text, "_", "")
}

// MarshalJSON encodes the state using its identifier
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON accepts identifiers and display labels
func (s *State) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	if text == "" {
		*s = StateNone
		return nil
	}
	parsed, err := ParseState(text)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Trigger represents an event that moves a process between states
type Trigger string

const (
	TriggerAdmit     Trigger = "admit"     // New -> Ready
	TriggerDispatch  Trigger = "dispatch"  // Ready -> Running
	TriggerDefer     Trigger = "defer"     // Ready -> BlockedSuspended, no free core
	TriggerPreempt   Trigger = "preempt"   // Running -> BlockedSuspended, displaced
	TriggerComplete  Trigger = "complete"  // Running -> Terminated, quota consumed
	TriggerActivate  Trigger = "activate"  // BlockedSuspended -> ReadySuspended
	TriggerRequeue   Trigger = "requeue"   // ReadySuspended -> Ready
	TriggerBlock     Trigger = "block"     // manual
	TriggerUnblock   Trigger = "unblock"   // manual
	TriggerTerminate Trigger = "terminate" // manual
	TriggerKill      Trigger = "kill"      // any live state -> Zombie
	TriggerRestore   Trigger = "restore"   // Zombie -> remembered state
)

// TriggerFor returns the automatic trigger that leads to target, used by
// delayed transitions that only know their destination.
func TriggerFor(target State) (Trigger, bool) {
	switch target {
	case StateReadySuspended:
		return TriggerActivate, true
	case StateReady:
		return TriggerRequeue, true
	}
	return "", false
}
