package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels used across instruments.
const (
	OutcomeSuccess    = "success"
	OutcomeFailure    = "failure"
	OutcomeMalformed  = "malformed"
	OutcomeSuperseded = "superseded"
	OutcomeCached     = "cached"
)

// Registry holds the dashboard pipeline instruments. A nil *Registry is
// valid and records nothing.
type Registry struct {
	meter metric.Meter

	// Chart data
	FetchAttempts   metric.Int64Counter
	FetchRetries    metric.Int64Counter
	FetchExhausted  metric.Int64Counter
	FetchDuration   metric.Float64Histogram
	YearCacheLookup metric.Int64Counter

	// Analysis
	AnalysisCounter metric.Int64Counter
	ModelLatency    metric.Float64Histogram
	ActiveSessions  metric.Int64ObservableGauge
	activeSessionsN atomic.Int64
}

// NewRegistry creates the instruments on the global meter provider.
func NewRegistry(meterName string) (*Registry, error) {
	return newRegistry(otel.Meter(meterName))
}

// NewNoopRegistry returns a registry backed by a no-op meter.
func NewNoopRegistry() *Registry {
	r, _ := newRegistry(noop.NewMeterProvider().Meter("noop"))
	return r
}

func newRegistry(meter metric.Meter) (*Registry, error) {
	r := &Registry{meter: meter}
	if err := r.initChartMetrics(); err != nil {
		return nil, err
	}
	if err := r.initAnalysisMetrics(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) initChartMetrics() error {
	var err error

	r.FetchAttempts, err = r.meter.Int64Counter(
		"insights.chart.fetch_attempts",
		metric.WithDescription("Year fetch attempts by outcome"),
	)
	if err != nil {
		return err
	}

	r.FetchRetries, err = r.meter.Int64Counter(
		"insights.chart.fetch_retries",
		metric.WithDescription("Retry delays scheduled after a failed year fetch"),
	)
	if err != nil {
		return err
	}

	r.FetchExhausted, err = r.meter.Int64Counter(
		"insights.chart.fetch_exhausted",
		metric.WithDescription("Year loads that ran out of attempts"),
	)
	if err != nil {
		return err
	}

	r.FetchDuration, err = r.meter.Float64Histogram(
		"insights.chart.fetch_duration",
		metric.WithDescription("Duration of a single year fetch attempt"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000),
	)
	if err != nil {
		return err
	}

	r.YearCacheLookup, err = r.meter.Int64Counter(
		"insights.chart.cache_lookups",
		metric.WithDescription("Year cache lookups by result (hit or miss)"),
	)
	return err
}

func (r *Registry) initAnalysisMetrics() error {
	var err error

	r.AnalysisCounter, err = r.meter.Int64Counter(
		"insights.analysis.requests",
		metric.WithDescription("Analysis requests by metric type and outcome"),
	)
	if err != nil {
		return err
	}

	r.ModelLatency, err = r.meter.Float64Histogram(
		"insights.analysis.model_latency",
		metric.WithDescription("Generative model call latency"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000),
	)
	if err != nil {
		return err
	}

	r.ActiveSessions, err = r.meter.Int64ObservableGauge(
		"insights.dashboard.active_sessions",
		metric.WithDescription("Dashboard sessions currently held in memory"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.activeSessionsN.Load())
			return nil
		}),
	)
	return err
}

// RecordFetchAttempt counts one year fetch attempt and its duration.
func (r *Registry) RecordFetchAttempt(ctx context.Context, metricType string, d time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	attrs := metric.WithAttributes(
		attribute.String("metric", metricType),
		attribute.String("outcome", outcome),
	)
	r.FetchAttempts.Add(ctx, 1, attrs)
	r.FetchDuration.Record(ctx, float64(d.Milliseconds()), attrs)
}

// RecordRetry counts a scheduled retry delay.
func (r *Registry) RecordRetry(ctx context.Context, metricType string, attempt int) {
	if r == nil {
		return
	}
	r.FetchRetries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("metric", metricType),
		attribute.Int("attempt", attempt),
	))
}

// RecordExhausted counts a year load that failed every attempt.
func (r *Registry) RecordExhausted(ctx context.Context, metricType string) {
	if r == nil {
		return
	}
	r.FetchExhausted.Add(ctx, 1, metric.WithAttributes(attribute.String("metric", metricType)))
}

// RecordCacheLookup counts a year cache hit or miss.
func (r *Registry) RecordCacheLookup(ctx context.Context, metricType string, hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.YearCacheLookup.Add(ctx, 1, metric.WithAttributes(
		attribute.String("metric", metricType),
		attribute.String("result", result),
	))
}

// RecordAnalysis counts one analysis request by outcome.
func (r *Registry) RecordAnalysis(ctx context.Context, metricType, outcome string) {
	if r == nil {
		return
	}
	r.AnalysisCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("metric", metricType),
		attribute.String("outcome", outcome),
	))
}

// RecordModelLatency records the duration of a model call.
func (r *Registry) RecordModelLatency(ctx context.Context, provider string, d time.Duration) {
	if r == nil {
		return
	}
	r.ModelLatency.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

// SetActiveSessions updates the session gauge.
func (r *Registry) SetActiveSessions(n int) {
	if r == nil {
		return
	}
	r.activeSessionsN.Store(int64(n))
}
