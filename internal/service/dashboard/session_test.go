package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/llm"
	"github.com/davidleathers/barangay-insights/internal/service/retry"
	"github.com/davidleathers/barangay-insights/internal/testutil"
)

const stableReply = `{"trend":"stable","percentageChange":"+0.5%","analysis":"Flat.","prediction":"Flat again.","insights":["No change"],"recommendations":["Keep staffing"]}`

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func olderYearsPages() map[int]YearPage {
	available := []int{2021, 2022, 2023}
	return map[int]YearPage{
		2025: {AvailableYears: available},
		2021: {
			Records: []metric.Record{
				{Year: 2021, Month: 2, Metrics: map[string]float64{"requests": 12, "reports": 4}, Predicted: map[string]float64{"requests": 13}},
				{Year: 2021, Month: 1, Metrics: map[string]float64{"requests": 10, "reports": 2}},
			},
			AvailableYears: available,
		},
		2022: {
			Records:        []metric.Record{{Year: 2022, Month: 1, Metrics: map[string]float64{"requests": 20}}},
			AvailableYears: available,
		},
	}
}

func newTestSession(t *testing.T, fetcher Fetcher, model llm.Model) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	s := NewSession("s1", SessionConfig{
		Fetcher: fetcher,
		Model:   model,
		Now:     clock.Now,
		ChartOptions: []ChartOption{
			WithRetrySleeper((&delayRecorder{}).Sleep),
		},
	})
	t.Cleanup(s.Close)
	return s, clock
}

func TestSessionChartFallsBackToFirstAvailableYear(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := &scriptedFetcher{pages: olderYearsPages()}
	s, _ := newTestSession(t, fetcher, nil)

	view := s.Chart(context.Background(), metric.TypeRequests, nil)

	require.NoError(t, view.Err)
	assert.True(t, view.HasYear)
	assert.Equal(t, 2021, view.Year)
	assert.Equal(t, []int{2021, 2022, 2023}, view.AvailableYears)
	assert.Equal(t, []metric.SeriesPoint{
		{"month": 1, "requests": 10},
		{"month": 2, "requests": 12, "requestsPredicted": 13},
	}, view.Points)
	assert.Equal(t, int32(2), fetcher.calls.Load(), "current year then the fallback")

	again := s.Chart(context.Background(), metric.TypeReports, nil)
	assert.Equal(t, 2021, again.Year)
	assert.Equal(t, metric.SeriesPoint{"month": 1, "reports": 2}, again.Points[0])
	assert.Equal(t, int32(2), fetcher.calls.Load(), "cached year is not refetched")
}

func TestSessionChartExplicitYear(t *testing.T) {
	fetcher := &scriptedFetcher{pages: olderYearsPages()}
	s, _ := newTestSession(t, fetcher, nil)

	view := s.Chart(testutil.TestContext(t), metric.TypeRequests, testutil.Ptr(2022))

	// The first fetch has no list of years yet, so 2022 is loaded directly.
	require.NoError(t, view.Err)
	assert.Equal(t, 2022, view.Year)
	require.Len(t, view.Points, 1)
	assert.Equal(t, 20.0, view.Points[0]["requests"])

	current, ok := s.selection.Current()
	require.True(t, ok)
	assert.Equal(t, 2022, current)
}

func TestSessionChartNoData(t *testing.T) {
	fetcher := &scriptedFetcher{pages: map[int]YearPage{}}
	s, _ := newTestSession(t, fetcher, nil)

	view := s.Chart(context.Background(), metric.TypeRequests, nil)

	assert.False(t, view.HasYear)
	assert.Equal(t, 2025, view.Year)
	assert.Empty(t, view.Points)
	assert.NoError(t, view.Err)
}

func TestSessionChartReportsExhaustion(t *testing.T) {
	defer goleak.VerifyNone(t)

	fetcher := &scriptedFetcher{failures: 10, pages: olderYearsPages()}
	s, _ := newTestSession(t, fetcher, nil)

	view := s.Chart(context.Background(), metric.TypeRequests, nil)

	assert.ErrorIs(t, view.Err, apperrors.ErrRetryExhausted)
	assert.Empty(t, view.Points)
	assert.Equal(t, int32(retry.DefaultPolicy().MaxAttempts), fetcher.calls.Load())
}

func TestSessionAnalyze(t *testing.T) {
	var got llm.Request
	model := llm.ModelFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return stableReply, nil
	})
	fetcher := &scriptedFetcher{pages: olderYearsPages()}
	s, _ := newTestSession(t, fetcher, model)

	r, err := s.Analyze(context.Background(), metric.TypeRequests, 2021)
	require.NoError(t, err)
	assert.Equal(t, insight.TrendStable, r.Trend)
	assert.Contains(t, got.Prompt, `{"month":2,"value":12,"predictedValue":13}`)

	snap, ok := s.Latest(metric.TypeRequests)
	require.True(t, ok)
	assert.Equal(t, "+0.5%", snap.Result.PercentageChange)
}

func TestSessionAnalyzeEmptyYear(t *testing.T) {
	model := llm.ModelFunc(func(context.Context, llm.Request) (string, error) {
		t.Fatal("model must not be called without data")
		return "", nil
	})
	s, _ := newTestSession(t, &scriptedFetcher{pages: olderYearsPages()}, model)

	_, err := s.Analyze(context.Background(), metric.TypeRequests, 2023)
	assert.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestSessionAnalyzeSeriesSkipsFetch(t *testing.T) {
	model := llm.ModelFunc(func(_ context.Context, req llm.Request) (string, error) {
		return stableReply, nil
	})
	fetcher := &scriptedFetcher{pages: olderYearsPages()}
	s, _ := newTestSession(t, fetcher, model)

	series := []metric.SeriesPoint{{"month": 1, "requests": 5}, {"month": 2, "requests": 6}}
	r, err := s.AnalyzeSeries(context.Background(), metric.TypeRequests, series)
	require.NoError(t, err)
	assert.Equal(t, insight.TrendStable, r.Trend)
	assert.Zero(t, fetcher.calls.Load())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	s, _ := newTestSession(t, &scriptedFetcher{pages: olderYearsPages()}, nil)
	s.Close()
	s.Close()

	view := s.Chart(context.Background(), metric.TypeRequests, nil)
	assert.ErrorIs(t, view.Err, ErrClosed)
}
