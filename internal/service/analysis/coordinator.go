package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/llm"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
	"github.com/davidleathers/barangay-insights/internal/metrics"
)

var (
	// ErrSuperseded is returned to a caller whose request was overtaken by a
	// newer request for the same metric type.
	ErrSuperseded = errors.New("analysis: superseded by a newer request")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("analysis: coordinator closed")
)

// DefaultModelTimeout bounds a model call when no timeout is configured.
const DefaultModelTimeout = 60 * time.Second

// ResultCache stores validated results by prompt fingerprint. Get returns
// nil without error on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (*insight.Result, error)
	Set(ctx context.Context, key string, r *insight.Result, ttl time.Duration) error
}

// Coordinator runs analyses. For each metric type only the most recent
// request may publish a result; starting a new one cancels the model call
// of the previous one.
type Coordinator struct {
	model    llm.Model
	timeout  time.Duration
	cache    ResultCache
	cacheTTL time.Duration
	now      func() time.Time

	mu      sync.Mutex
	closed  bool
	gens    map[metric.Type]uint64
	cancels map[metric.Type]context.CancelFunc
	latest  map[metric.Type]insight.Snapshot

	logger  *slog.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
}

type Option func(*Coordinator)

// WithModelTimeout bounds each model call.
func WithModelTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithResultCache reuses results for identical prompts for ttl.
func WithResultCache(rc ResultCache, ttl time.Duration) Option {
	return func(c *Coordinator) {
		c.cache = rc
		c.cacheTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(model llm.Model, opts ...Option) *Coordinator {
	c := &Coordinator{
		model:   model,
		timeout: DefaultModelTimeout,
		now:     time.Now,
		gens:    make(map[metric.Type]uint64),
		cancels: make(map[metric.Type]context.CancelFunc),
		latest:  make(map[metric.Type]insight.Snapshot),
		logger:  slog.Default(),
		tracer:  telemetry.Tracer("analysis"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "analysis")
	return c
}

// Analyze builds the prompt for series, makes one model call and
// validates the reply. The model is never retried: a failed call is an
// ANALYSIS_FAILED error and an unusable reply a MALFORMED_RESPONSE error.
// A caller overtaken by a newer request for the same metric type gets
// ErrSuperseded and its result is discarded.
func (c *Coordinator) Analyze(ctx context.Context, metricType metric.Type, series []metric.SeriesPoint) (*insight.Result, error) {
	ctx, span := c.tracer.Start(ctx, "analysis.analyze",
		trace.WithAttributes(attribute.String("metric", string(metricType)), attribute.Int("points", len(series))))
	defer span.End()

	result, outcome, err := c.analyze(ctx, metricType, series)
	c.metrics.RecordAnalysis(ctx, string(metricType), outcome)
	if err != nil {
		telemetry.RecordError(span, err)
	}
	return result, err
}

func (c *Coordinator) analyze(ctx context.Context, metricType metric.Type, series []metric.SeriesPoint) (*insight.Result, string, error) {
	prompt, err := BuildPrompt(metricType, series)
	if err != nil {
		return nil, metrics.OutcomeFailure, err
	}

	gen, callCtx, release, err := c.begin(ctx, metricType)
	if err != nil {
		return nil, metrics.OutcomeFailure, err
	}
	defer release()

	key := c.cacheKey(prompt)
	if cached := c.lookup(callCtx, key); cached != nil {
		if !c.commit(metricType, gen, cached) {
			return nil, metrics.OutcomeSuperseded, ErrSuperseded
		}
		return cached, metrics.OutcomeCached, nil
	}

	callCtx, cancel := context.WithTimeout(callCtx, c.timeout)
	defer cancel()

	start := time.Now()
	raw, err := c.model.Generate(callCtx, llm.Request{
		System: prompt.System,
		Prompt: prompt.Text,
		Schema: prompt.Schema,
	})
	c.metrics.RecordModelLatency(ctx, c.model.Name(), time.Since(start))

	if staleErr := c.checkCurrent(metricType, gen); staleErr != nil {
		return nil, metrics.OutcomeSuperseded, staleErr
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "model call failed", "metric", metricType, "error", err)
		if ctx.Err() != nil {
			return nil, metrics.OutcomeFailure, ctx.Err()
		}
		return nil, metrics.OutcomeFailure,
			apperrors.NewAnalysisFailedError("failed to generate analysis").WithCause(err)
	}

	result, err := ParseResponse(raw)
	if err != nil {
		c.logger.WarnContext(ctx, "model reply rejected",
			"metric", metricType,
			"reason", apperrors.Reason(err),
			"error", err)
		return nil, metrics.OutcomeMalformed, err
	}

	if !c.commit(metricType, gen, result) {
		return nil, metrics.OutcomeSuperseded, ErrSuperseded
	}
	c.store(ctx, key, result)
	return result, metrics.OutcomeSuccess, nil
}

// begin registers a new request for metricType and cancels the one it
// replaces. release must be called when the request ends.
func (c *Coordinator) begin(ctx context.Context, metricType metric.Type) (uint64, context.Context, func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, nil, nil, ErrClosed
	}

	if prev, ok := c.cancels[metricType]; ok {
		prev()
	}
	c.gens[metricType]++
	gen := c.gens[metricType]

	callCtx, cancel := context.WithCancel(ctx)
	c.cancels[metricType] = cancel

	release := func() {
		c.mu.Lock()
		if c.gens[metricType] == gen {
			delete(c.cancels, metricType)
		}
		c.mu.Unlock()
		cancel()
	}
	return gen, callCtx, release, nil
}

func (c *Coordinator) checkCurrent(metricType metric.Type, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.gens[metricType] != gen {
		return ErrSuperseded
	}
	return nil
}

// commit publishes r as the latest result if gen is still current.
func (c *Coordinator) commit(metricType metric.Type, gen uint64, r *insight.Result) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gens[metricType] != gen {
		return false
	}
	c.latest[metricType] = insight.Snapshot{
		MetricType:  string(metricType),
		Result:      *r,
		GeneratedAt: c.now(),
	}
	return true
}

// Latest returns the most recent accepted result for metricType.
func (c *Coordinator) Latest(metricType metric.Type) (insight.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.latest[metricType]
	return s, ok
}

// Close cancels every in-flight model call. Results arriving afterwards
// are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = make(map[metric.Type]context.CancelFunc)
}

func (c *Coordinator) cacheKey(p Prompt) string {
	h := sha256.New()
	h.Write([]byte(c.model.Name()))
	h.Write([]byte{0})
	h.Write([]byte(p.Text))
	return "insights:analysis:" + hex.EncodeToString(h.Sum(nil))
}

func (c *Coordinator) lookup(ctx context.Context, key string) *insight.Result {
	if c.cache == nil {
		return nil
	}
	r, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "result cache lookup failed", "error", err)
		return nil
	}
	return r
}

func (c *Coordinator) store(ctx context.Context, key string, r *insight.Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, r, c.cacheTTL); err != nil {
		c.logger.WarnContext(ctx, "result cache store failed", "error", err)
	}
}
