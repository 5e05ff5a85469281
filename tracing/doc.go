// Package tracing wraps OpenTelemetry so that the scheduler and controller can
// record spans for ticks and control operations. Without Init the global
// no-op provider is used and spans cost nothing.
package tracing
