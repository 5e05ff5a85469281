package dao

import "github.com/viant/procsim/runtime/process"

// StateParameter is the parameter name used to filter by process state
const StateParameter = "State"

type Parameter struct {
	Name  string
	Value interface{}
}

func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}

// WithStates returns a parameter restricting List to the given states; nil
// when no state is given so that callers can pass the result unconditionally.
func WithStates(states ...process.State) []*Parameter {
	if len(states) == 0 {
		return nil
	}
	values := make([]string, len(states))
	for i, state := range states {
		values[i] = string(state)
	}
	return []*Parameter{NewParameter(StateParameter, values...)}
}
