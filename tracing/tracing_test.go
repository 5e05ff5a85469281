package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	if !assert.NoError(t, InitWithExporter("procsim", "0.0.1", exporter)) {
		return
	}

	ctx, parent := StartSpan(context.Background(), "scheduler.tick")
	parent.WithInt("running", 2).WithAttributes(map[string]string{"run": "r1"})
	_, child := StartSpan(ctx, "process.kill")
	EndSpan(child, errors.New("failed"))
	EndSpan(parent, nil)
	EndSpan(nil, nil)

	spans := exporter.GetSpans()
	if !assert.Len(t, spans, 2) {
		return
	}
	assert.Equal(t, "process.kill", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
	assert.Equal(t, "scheduler.tick", spans[1].Name)
	assert.Contains(t, spans[1].Attributes, attribute.Int("running", 2))
	assert.Contains(t, spans[1].Attributes, attribute.String("run", "r1"))
}
