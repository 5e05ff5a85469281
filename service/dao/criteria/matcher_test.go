package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
)

func TestFilterByState(t *testing.T) {
	testCases := []struct {
		name       string
		state      process.State
		parameters []*dao.Parameter
		expect     bool
	}{
		{name: "no parameters", state: process.StateReady, expect: true},
		{name: "single match", state: process.StateReady, parameters: dao.WithStates(process.StateReady), expect: true},
		{name: "single miss", state: process.StateRunning, parameters: dao.WithStates(process.StateReady), expect: false},
		{name: "multi match", state: process.StateRunning, parameters: dao.WithStates(process.StateReady, process.StateRunning), expect: true},
		{name: "multi miss", state: process.StateZombie, parameters: dao.WithStates(process.StateReady, process.StateRunning), expect: false},
		{name: "other name", state: process.StateZombie, parameters: []*dao.Parameter{dao.NewParameter("Priority", "High")}, expect: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, FilterByState(tc.state, tc.parameters))
		})
	}
}
