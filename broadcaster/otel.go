package broadcaster

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricStarts   = "gemtot.broadcast.starts"
	MetricStops    = "gemtot.broadcast.stops"
	MetricFailures = "gemtot.broadcast.failures"
)

// instrumentationName names the tracer and meter.
const instrumentationName = "github.com/passkit/gemtot/broadcaster"

type otelMetrics struct {
	starts   metric.Int64Counter
	stops    metric.Int64Counter
	failures metric.Int64Counter
}

func newOTelMetrics(meter metric.Meter) (*otelMetrics, error) {
	m := &otelMetrics{}
	var err error

	m.starts, err = meter.Int64Counter(
		MetricStarts,
		metric.WithDescription("Number of times the beacon went on air"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create starts counter: %w", err)
	}

	m.stops, err = meter.Int64Counter(
		MetricStops,
		metric.WithDescription("Number of times the beacon went off air"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stops counter: %w", err)
	}

	m.failures, err = meter.Int64Counter(
		MetricFailures,
		metric.WithDescription("Number of failed attempts to start the beacon"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}

	return m, nil
}

func (m *otelMetrics) recordFailure(ctx context.Context, reason string) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
