package procsim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/procsim/policy"
	"github.com/viant/procsim/service/meta"
)

// Config is a serialisable representation of the simulator configuration.
// Durations accept Go duration strings ("100ms", "1s") in YAML documents.
type Config struct {
	Scheduler  SchedulerConfig `json:"scheduler" yaml:"scheduler"`
	Priorities *policy.Table   `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Events     EventsConfig    `json:"events" yaml:"events"`
	Snapshot   SnapshotConfig  `json:"snapshot" yaml:"snapshot"`
	Tracing    TracingConfig   `json:"tracing" yaml:"tracing"`
	Log        LogConfig       `json:"log" yaml:"log"`
}

// SchedulerConfig controls the scheduling loop
type SchedulerConfig struct {
	Cores        int           `json:"cores" yaml:"cores"`
	TickInterval time.Duration `json:"tickInterval" yaml:"tickInterval"`
	TimeUnit     time.Duration `json:"timeUnit" yaml:"timeUnit"`
	ReadyDwell   int           `json:"readyDwell" yaml:"readyDwell"`
	SuspendDelay int           `json:"suspendDelay" yaml:"suspendDelay"`
	ReleaseDelay int           `json:"releaseDelay" yaml:"releaseDelay"`
	StopTimeout  time.Duration `json:"stopTimeout" yaml:"stopTimeout"`
}

// EventsConfig sizes the transition event queue
type EventsConfig struct {
	Buffer int `json:"buffer" yaml:"buffer"`
}

// SnapshotConfig points checkpoints to an afs location; empty URL disables them.
type SnapshotConfig struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

type TracingConfig struct {
	Enabled        bool   `json:"enabled" yaml:"enabled"`
	ServiceName    string `json:"serviceName,omitempty" yaml:"serviceName,omitempty"`
	ServiceVersion string `json:"serviceVersion,omitempty" yaml:"serviceVersion,omitempty"`
	OutputFile     string `json:"outputFile,omitempty" yaml:"outputFile,omitempty"`
}

type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

// DefaultConfig returns a Config populated with the reference timings: a
// 100ms tick, one core and 3 time units of one second for every delay.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Cores:        1,
			TickInterval: 100 * time.Millisecond,
			TimeUnit:     time.Second,
			ReadyDwell:   3,
			SuspendDelay: 3,
			ReleaseDelay: 3,
			StopTimeout:  time.Second,
		},
		Events:  EventsConfig{Buffer: 256},
		Tracing: TracingConfig{ServiceName: "procsim", ServiceVersion: "0.1.0"},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	s := c.Scheduler
	if s.Cores < 1 {
		errs = append(errs, fmt.Errorf("scheduler.cores: %w", ErrInvalidCores))
	}
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.tickInterval must be > 0"))
	}
	if s.TimeUnit <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.timeUnit must be > 0"))
	}
	if s.ReadyDwell < 0 || s.SuspendDelay < 0 || s.ReleaseDelay < 0 {
		errs = append(errs, fmt.Errorf("scheduler delays must be >= 0"))
	}
	if s.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scheduler.stopTimeout must be > 0"))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, fmt.Errorf("events.buffer must be > 0"))
	}
	if err := c.Priorities.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("priorities: %w", err))
	}
	if c.Log.Level != "" {
		if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
			errs = append(errs, fmt.Errorf("log.level: %w", err))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML or JSON document from any afs URL on top of the
// defaults. ${env.KEY} expressions are expanded; options are passed to the
// storage service (e.g. an embed.FS).
func LoadConfig(ctx context.Context, URL string, options ...storage.Option) (*Config, error) {
	ret := DefaultConfig()
	if err := meta.New(afs.New(), "", options...).Load(ctx, URL, ret); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := ret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", URL, err)
	}
	return ret, nil
}
