// Package policy holds the priority policy of the simulator: it maps a
// priority label to the numeric rank used for preemption and to the
// execution-time quota assigned to a process when it is created.
//
// The policy is a pure function of the label. A Table can override the
// default quotas (for example from configuration); ranks are fixed.
package policy
