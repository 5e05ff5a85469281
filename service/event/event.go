package event

import (
	"time"

	"github.com/viant/procsim/internal/clock"
)

// Context identifies where an event originated
type Context struct {
	RunID     string `json:"runID,omitempty"`
	PID       int    `json:"pid"`
	EventType string `json:"eventType"`
}

// Event wraps a payload with its origin
type Event[T any] struct {
	Context   *Context  `json:"context"`
	CreatedAt time.Time `json:"createdAt"`
	Data      T         `json:"data"`
}

func NewEvent[T any](context *Context, data T) *Event[T] {
	return &Event[T]{
		Context:   context,
		CreatedAt: clock.Now(),
		Data:      data,
	}
}
