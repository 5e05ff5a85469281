package policy

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPriority is returned when a label is not one of the recognised priorities.
var ErrInvalidPriority = errors.New("policy: invalid priority")

// Priority is a process priority label.
type Priority string

// Recognised priorities, highest first.
const (
	High       Priority = "High"
	MediumHigh Priority = "Medium High"
	MediumLow  Priority = "Medium Low"
	Low        Priority = "Low"
)

// Priorities lists every recognised priority, highest first.
var Priorities = []Priority{High, MediumHigh, MediumLow, Low}

var ranks = map[Priority]int{
	High:       4,
	MediumHigh: 3,
	MediumLow:  2,
	Low:        1,
}

var defaultQuotas = map[Priority]int{
	High:       100,
	MediumHigh: 200,
	MediumLow:  300,
	Low:        400,
}

// Rank returns the numeric rank of the priority; unrecognised labels rank 0.
func (p Priority) Rank() int {
	return ranks[p]
}

// IsValid reports whether p is one of the recognised priorities.
func (p Priority) IsValid() bool {
	_, ok := ranks[p]
	return ok
}

// ExecutionTime returns the default quota of abstract execution units.
func (p Priority) ExecutionTime() int {
	return defaultQuotas[p]
}

func (p Priority) String() string {
	return string(p)
}

// Parse converts a label into a Priority. Matching ignores case and
// surrounding white space; anything else yields ErrInvalidPriority.
func Parse(label string) (Priority, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	for _, candidate := range Priorities {
		if strings.ToLower(string(candidate)) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, label)
}

// Outranks reports whether p strictly outranks other. Equal ranks never
// outrank each other, so an incumbent keeps its core on a tie.
func (p Priority) Outranks(other Priority) bool {
	return p.Rank() > other.Rank()
}

// ---------------------------------------------------------------------------
// Quota table
// ---------------------------------------------------------------------------

// Table overrides the execution-time quota per priority label. Missing or
// non-positive entries fall back to the defaults. A nil *Table is valid and
// means "defaults only".
type Table struct {
	Quotas map[string]int `json:"quotas,omitempty" yaml:"quotas,omitempty"`
}

// ExecutionTime returns the quota for p honouring overrides.
func (t *Table) ExecutionTime(p Priority) int {
	if t != nil {
		for label, quota := range t.Quotas {
			if quota > 0 && strings.EqualFold(strings.TrimSpace(label), string(p)) {
				return quota
			}
		}
	}
	return p.ExecutionTime()
}

// Validate returns an error for override labels that are not priorities.
func (t *Table) Validate() error {
	if t == nil {
		return nil
	}
	for label, quota := range t.Quotas {
		if _, err := Parse(label); err != nil {
			return err
		}
		if quota < 0 {
			return fmt.Errorf("policy: quota for %q must be >= 0", label)
		}
	}
	return nil
}
