package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(m metricdata.Metrics) int64 {
	s, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range s.DataPoints {
		total += dp.Value
	}
	return total
}

func TestRegistryRecords(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := newRegistry(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordFetchAttempt(ctx, "requests", 20*time.Millisecond, errors.New("503"))
	r.RecordFetchAttempt(ctx, "requests", 10*time.Millisecond, nil)
	r.RecordRetry(ctx, "requests", 1)
	r.RecordCacheLookup(ctx, "requests", true)
	r.RecordCacheLookup(ctx, "requests", false)
	r.RecordAnalysis(ctx, "requests", OutcomeSuccess)
	r.SetActiveSessions(4)

	got := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(got["insights.chart.fetch_attempts"]))
	assert.Equal(t, int64(1), sumOf(got["insights.chart.fetch_retries"]))
	assert.Equal(t, int64(2), sumOf(got["insights.chart.cache_lookups"]))
	assert.Equal(t, int64(1), sumOf(got["insights.analysis.requests"]))

	gauge, ok := got["insights.dashboard.active_sessions"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordFetchAttempt(context.Background(), "reports", time.Second, nil)
		r.RecordAnalysis(context.Background(), "reports", OutcomeFailure)
		r.SetActiveSessions(1)
	})
	assert.NotNil(t, NewNoopRegistry())
}
