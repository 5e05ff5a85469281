package procsim

import (
	"github.com/sirupsen/logrus"
	"github.com/viant/procsim/runtime/process"
	"github.com/viant/procsim/service/dao"
	"github.com/viant/procsim/tracing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Option customises the Service
type Option func(s *Service)

// WithConfig sets the configuration; nil keeps the defaults.
func WithConfig(config *Config) Option {
	return func(s *Service) {
		if config != nil {
			s.config = config
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSnapshotDAO sets the store used by Checkpoint
func WithSnapshotDAO(snapshotDAO dao.Service[int, process.Snapshot]) Option {
	return func(s *Service) {
		s.snapshotDAO = snapshotDAO
	}
}

// WithProcessDAO sets the live process registry
func WithProcessDAO(processDAO dao.Service[int, process.Process]) Option {
	return func(s *Service) {
		s.processDAO = processDAO
	}
}

// WithTransitionListener registers a listener called synchronously after
// every process transition, on the goroutine that applied it. It must return
// quickly; use Listen to issue commands in response to transitions.
func WithTransitionListener(listener process.Listener) Option {
	return func(s *Service) {
		s.listeners = append(s.listeners, listener)
	}
}

// WithTracing configures OpenTelemetry tracing with the stdout exporter; an
// empty outputFile writes to os.Stdout. The first successful initialisation wins.
func WithTracing(serviceName, serviceVersion, outputFile string) Option {
	return func(s *Service) {
		_ = tracing.Init(serviceName, serviceVersion, outputFile)
	}
}

// WithTracingExporter configures OpenTelemetry tracing using a custom SpanExporter.
func WithTracingExporter(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) Option {
	return func(s *Service) {
		_ = tracing.InitWithExporter(serviceName, serviceVersion, exporter)
	}
}
