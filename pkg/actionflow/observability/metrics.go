package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Call outcomes reported to RecordCall.
const (
	OutcomeDispatched   = "dispatched"
	OutcomeScheduled    = "scheduled"
	OutcomeBlocked      = "blocked"
	OutcomeThrottled    = "throttled"
	OutcomeDebounced    = "debounced"
	OutcomeRecuperating = "recuperating"
	OutcomeSkipped      = "skipped"
	OutcomeFailed       = "failed"
)

// MetricsRecorder records actionflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordCall records the outcome of one call.
	RecordCall(ctx context.Context, channelID, outcome string)

	// RecordDispatch records a handler invocation with its duration and error status.
	RecordDispatch(ctx context.Context, channelID string, duration time.Duration, err error)

	// RecordChain records a chain reaction between two channels.
	RecordChain(ctx context.Context, fromID, toID string)

	// RecordStress records the breathing monitor state.
	RecordStress(ctx context.Context, stress float64, recuperating bool)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	calls           metric.Int64Counter
	dispatches      metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	dispatchErrors  metric.Int64Counter
	chains          metric.Int64Counter
	stress          metric.Float64Gauge
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("actionflow")

	calls, err := meter.Int64Counter("actionflow.call.count",
		metric.WithDescription("Number of calls by outcome"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter("actionflow.dispatch.count",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("actionflow.dispatch.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	dispatchErrors, err := meter.Int64Counter("actionflow.dispatch.errors",
		metric.WithDescription("Number of handler failures"),
	)
	if err != nil {
		return nil, err
	}

	chains, err := meter.Int64Counter("actionflow.chain.count",
		metric.WithDescription("Number of chain reactions"),
	)
	if err != nil {
		return nil, err
	}

	stress, err := meter.Float64Gauge("actionflow.breathing.stress",
		metric.WithDescription("Current stress level between 0 and 1"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		calls:           calls,
		dispatches:      dispatches,
		dispatchLatency: dispatchLatency,
		dispatchErrors:  dispatchErrors,
		chains:          chains,
		stress:          stress,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordCall records a call outcome.
func (m *otelMetrics) RecordCall(ctx context.Context, channelID, outcome string) {
	m.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel_id", channelID),
		attribute.String("outcome", outcome),
	))
}

// RecordDispatch records a handler invocation.
func (m *otelMetrics) RecordDispatch(ctx context.Context, channelID string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("channel_id", channelID))

	m.dispatches.Add(ctx, 1, attrs)
	m.dispatchLatency.Record(ctx, Milliseconds(duration), attrs)

	if err != nil {
		m.dispatchErrors.Add(ctx, 1, attrs)
	}
}

// RecordChain records a chain reaction.
func (m *otelMetrics) RecordChain(ctx context.Context, fromID, toID string) {
	m.chains.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel_id", fromID),
		attribute.String("next_channel_id", toID),
	))
}

// RecordStress records the breathing state.
func (m *otelMetrics) RecordStress(ctx context.Context, stress float64, recuperating bool) {
	m.stress.Record(ctx, stress, metric.WithAttributes(
		attribute.Bool("recuperating", recuperating),
	))
}
