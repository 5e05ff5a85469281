package process

import (
	"time"

	"github.com/viant/procsim/policy"
)

// Snapshot is a point-in-time, read-only view of a process as exposed to
// display layers and persisted by checkpoints.
type Snapshot struct {
	PID           int             `json:"pid" yaml:"pid"`
	Priority      policy.Priority `json:"priority" yaml:"priority"`
	State         State           `json:"state" yaml:"state"`
	ManualState   State           `json:"manualState,omitempty" yaml:"manualState,omitempty"`
	Progress      int             `json:"progress" yaml:"progress"`
	ExecutionTime int             `json:"executionTime" yaml:"executionTime"`
	UpdatedAt     time.Time       `json:"updatedAt" yaml:"updatedAt"`
}
