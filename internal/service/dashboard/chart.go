package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
	"github.com/davidleathers/barangay-insights/internal/metrics"
	"github.com/davidleathers/barangay-insights/internal/service/retry"
)

// ErrClosed is returned once the owning session has been torn down.
var ErrClosed = errors.New("dashboard: coordinator closed")

// YearPage is what a fetcher returns for one year.
type YearPage struct {
	Records        []metric.Record
	AvailableYears []int
}

// Fetcher loads every metric of one year from the analytics source.
// Errors that may clear up on retry should be TRANSIENT_FETCH AppErrors.
type Fetcher interface {
	FetchYear(ctx context.Context, year int) (YearPage, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, year int) (YearPage, error)

func (f FetcherFunc) FetchYear(ctx context.Context, year int) (YearPage, error) {
	return f(ctx, year)
}

// YearResult always carries whatever the cache holds for Year, even when
// Err is set.
type YearResult struct {
	Year    int
	Records []metric.Record
	Err     error
}

// ChartDataCoordinator loads years into a YearlyMetricCache on demand.
// Concurrent requests for the same year share one load; different years
// load independently.
type ChartDataCoordinator struct {
	cache   *YearlyMetricCache
	fetcher Fetcher

	policy       retry.Policy
	sleep        retry.Sleeper
	fetchTimeout time.Duration

	group singleflight.Group

	// mu orders merges against Close.
	mu        sync.RWMutex
	closed    bool
	available []int

	ctx    context.Context
	cancel context.CancelFunc

	logger  *slog.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
}

type ChartOption func(*ChartDataCoordinator)

func WithRetryPolicy(p retry.Policy) ChartOption {
	return func(c *ChartDataCoordinator) { c.policy = p }
}

// WithRetrySleeper replaces the timer used between attempts.
func WithRetrySleeper(s retry.Sleeper) ChartOption {
	return func(c *ChartDataCoordinator) { c.sleep = s }
}

// WithFetchTimeout bounds each individual fetch attempt.
func WithFetchTimeout(d time.Duration) ChartOption {
	return func(c *ChartDataCoordinator) { c.fetchTimeout = d }
}

func WithChartLogger(l *slog.Logger) ChartOption {
	return func(c *ChartDataCoordinator) { c.logger = l }
}

func WithChartMetrics(m *metrics.Registry) ChartOption {
	return func(c *ChartDataCoordinator) { c.metrics = m }
}

func NewChartDataCoordinator(cache *YearlyMetricCache, fetcher Fetcher, opts ...ChartOption) *ChartDataCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &ChartDataCoordinator{
		cache:   cache,
		fetcher: fetcher,
		policy:  retry.DefaultPolicy(),
		sleep:   retry.TimerSleep,
		ctx:     ctx,
		cancel:  cancel,
		logger:  slog.Default(),
		tracer:  telemetry.Tracer("dashboard"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "chart_data")
	return c
}

// EnsureYear returns the records of year, loading them first when the
// cache does not have the year yet. A failed load is reported in
// YearResult.Err next to whatever the cache already holds; EnsureYear
// itself never fails. If ctx ends first the load keeps running for other
// callers and ctx's error is reported.
func (c *ChartDataCoordinator) EnsureYear(ctx context.Context, year int) YearResult {
	if c.isClosed() {
		return YearResult{Year: year, Records: c.cache.Slice(year), Err: ErrClosed}
	}

	if c.cache.Has(year) {
		c.metrics.RecordCacheLookup(ctx, "all", true)
		return YearResult{Year: year, Records: c.cache.Slice(year)}
	}
	c.metrics.RecordCacheLookup(ctx, "all", false)

	ch := c.group.DoChan(strconv.Itoa(year), func() (interface{}, error) {
		return nil, c.loadMissing(year)
	})

	select {
	case res := <-ch:
		return YearResult{Year: year, Records: c.cache.Slice(year), Err: res.Err}
	case <-ctx.Done():
		return YearResult{Year: year, Records: c.cache.Slice(year), Err: ctx.Err()}
	}
}

// loadMissing loads year unless a flight that finished after the caller's
// cache check already did.
func (c *ChartDataCoordinator) loadMissing(year int) error {
	if c.cache.Has(year) {
		return nil
	}
	return c.load(year)
}

func (c *ChartDataCoordinator) load(year int) error {
	ctx, span := c.tracer.Start(c.ctx, "dashboard.load_year",
		trace.WithAttributes(attribute.Int("year", year)))
	defer span.End()

	scheduler := retry.New(c.policy,
		retry.WithSleeper(c.sleep),
		retry.WithObserver(func(st retry.RetryState) {
			if st.State != retry.StateWaiting {
				return
			}
			c.metrics.RecordRetry(ctx, "all", st.Attempt)
			c.logger.WarnContext(ctx, "year fetch failed, retrying",
				"year", year,
				"attempt", st.Attempt,
				"max_attempts", st.MaxAttempts,
				"delay", st.Delay,
				"error", st.LastError)
		}),
	)

	page, err := retry.Run(ctx, scheduler, func(ctx context.Context) (YearPage, error) {
		if c.fetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.fetchTimeout)
			defer cancel()
		}
		start := time.Now()
		page, err := c.fetcher.FetchYear(ctx, year)
		c.metrics.RecordFetchAttempt(ctx, "all", time.Since(start), err)
		return page, err
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if errors.Is(err, apperrors.ErrRetryExhausted) {
			c.metrics.RecordExhausted(ctx, "all")
		}
		if c.ctx.Err() != nil {
			return ErrClosed
		}
		c.logger.ErrorContext(ctx, "year fetch failed", "year", year, "error", err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	records := make([]metric.Record, 0, len(page.Records))
	for _, r := range page.Records {
		if r.Year == year {
			records = append(records, r)
		}
	}
	if dropped := len(page.Records) - len(records); dropped > 0 {
		c.logger.WarnContext(ctx, "dropped records outside requested year", "year", year, "count", dropped)
	}

	c.cache.Merge(records)
	c.cache.MarkYear(year)
	if page.AvailableYears != nil {
		c.available = normalizeYears(page.AvailableYears)
	}

	c.logger.DebugContext(ctx, "year loaded", "year", year, "records", len(records))
	return nil
}

// AvailableYears is the list reported by the most recent successful fetch.
func (c *ChartDataCoordinator) AvailableYears() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]int(nil), c.available...)
}

// Close abandons pending retries. Loads still in flight finish without
// touching the cache.
func (c *ChartDataCoordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cancel()
}

func (c *ChartDataCoordinator) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func normalizeYears(years []int) []int {
	seen := make(map[int]struct{}, len(years))
	out := make([]int, 0, len(years))
	for _, y := range years {
		if _, ok := seen[y]; ok || y <= 0 {
			continue
		}
		seen[y] = struct{}{}
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}
