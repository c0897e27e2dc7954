package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("route", "/api/cycles/:id"),
		attribute.String("employee_id", "456"),
		attribute.String("outcome", "eligible"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "route" && attrs[1].Key != "route" {
		t.Fatalf("expected route to be retained")
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	ctx := context.Background()
	m.RecordHTTPRequest(ctx, "get", "/api/cycles", 200, 15*time.Millisecond)
	m.RecordEligibility(ctx, "eligible", 3)
	m.RecordSizeSelections(ctx, 0)
	m.RecordReception(ctx, "received")

	var nilMetrics *Metrics
	nilMetrics.RecordHTTPRequest(ctx, "get", "/", 200, time.Millisecond)
}
