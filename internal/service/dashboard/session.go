package dashboard

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/davidleathers/barangay-insights/internal/domain/insight"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/llm"
	"github.com/davidleathers/barangay-insights/internal/service/analysis"
)

// SessionConfig holds what every session is built from.
type SessionConfig struct {
	Fetcher         Fetcher
	Model           llm.Model
	ChartOptions    []ChartOption
	AnalysisOptions []analysis.Option
	Now             func() time.Time
	Logger          *slog.Logger
}

// ChartView is one metric's chart for the selected year. Err is set when
// loading the year failed; Points then holds whatever was cached before.
type ChartView struct {
	MetricType     metric.Type
	Year           int
	HasYear        bool
	AvailableYears []int
	Points         []metric.SeriesPoint
	Err            error
}

// Session is the state behind one open dashboard: the year cache shared by
// all charts, the selected year and the latest analysis per metric.
type Session struct {
	ID string

	cache     *YearlyMetricCache
	charts    *ChartDataCoordinator
	analysis  *analysis.Coordinator
	selection *YearSelection
	now       func() time.Time

	lastSeen atomic.Int64
	closed   atomic.Bool
}

func NewSession(id string, cfg SessionConfig) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session_id", id)

	cache := NewYearlyMetricCache()
	chartOpts := append([]ChartOption{WithChartLogger(logger)}, cfg.ChartOptions...)
	analysisOpts := append([]analysis.Option{analysis.WithLogger(logger), analysis.WithClock(now)}, cfg.AnalysisOptions...)

	s := &Session{
		ID:        id,
		cache:     cache,
		charts:    NewChartDataCoordinator(cache, cfg.Fetcher, chartOpts...),
		analysis:  analysis.NewCoordinator(cfg.Model, analysisOpts...),
		selection: NewYearSelection(now),
		now:       now,
	}
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastSeen.Store(s.now().UnixNano())
}

// LastSeen is the time of the last request served by the session.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// Chart loads the chart of metricType. With requested nil the current
// selection is kept, or the calendar year is tried for a new session. When
// the loaded year turns out to have no data the selection moves to an
// available year and that year is loaded instead.
func (s *Session) Chart(ctx context.Context, metricType metric.Type, requested *int) ChartView {
	s.touch()

	year := s.now().Year()
	if requested != nil {
		year = *requested
	} else if current, ok := s.selection.Current(); ok {
		year = current
	}

	res := s.charts.EnsureYear(ctx, year)
	available := s.charts.AvailableYears()

	var (
		resolved int
		ok       bool
	)
	if requested != nil {
		resolved, ok = s.selection.Select(*requested, available)
	} else {
		resolved, ok = s.selection.Update(available)
	}

	view := ChartView{MetricType: metricType, AvailableYears: available}
	if !ok {
		// Nothing to show yet. Keep the attempted year so the caller can
		// still see what failed.
		view.Year = year
		view.Points = projectMetric(metricType, res.Records)
		view.Err = res.Err
		return view
	}
	if resolved != year {
		res = s.charts.EnsureYear(ctx, resolved)
	}

	view.Year = resolved
	view.HasYear = true
	view.Points = projectMetric(metricType, res.Records)
	view.Err = res.Err
	return view
}

// Analyze requests an analysis of metricType over year's cached points,
// loading the year first if needed.
func (s *Session) Analyze(ctx context.Context, metricType metric.Type, year int) (*insight.Result, error) {
	s.touch()
	res := s.charts.EnsureYear(ctx, year)
	if res.Err != nil && len(res.Records) == 0 {
		return nil, res.Err
	}
	return s.analysis.Analyze(ctx, metricType, projectMetric(metricType, res.Records))
}

// AnalyzeSeries requests an analysis of a caller-supplied series.
func (s *Session) AnalyzeSeries(ctx context.Context, metricType metric.Type, series []metric.SeriesPoint) (*insight.Result, error) {
	s.touch()
	return s.analysis.Analyze(ctx, metricType, series)
}

// Latest returns the last accepted analysis of metricType.
func (s *Session) Latest(metricType metric.Type) (insight.Snapshot, bool) {
	return s.analysis.Latest(metricType)
}

// Close cancels pending retries and model calls. It is safe to call more
// than once.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.charts.Close()
	s.analysis.Close()
}

// projectMetric keeps the month, the metric and its forecast of each point.
func projectMetric(metricType metric.Type, records []metric.Record) []metric.SeriesPoint {
	all := metric.Points(records)
	out := make([]metric.SeriesPoint, 0, len(all))
	for _, p := range all {
		q := metric.SeriesPoint{"month": p["month"]}
		if v, ok := p[string(metricType)]; ok {
			q[string(metricType)] = v
		}
		if v, ok := p[metricType.PredictedKey()]; ok {
			q[metricType.PredictedKey()] = v
		}
		out = append(out, q)
	}
	return out
}
