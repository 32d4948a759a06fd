package rest

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
)

// HealthChecker checks the health of a dependency
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// PingChecker adapts a ping function, such as pgxpool.Pool.Ping, to
// HealthChecker.
type PingChecker struct {
	name string
	ping func(ctx context.Context) error
}

func NewPingChecker(name string, ping func(ctx context.Context) error) PingChecker {
	return PingChecker{name: name, ping: ping}
}

func (p PingChecker) Name() string { return p.name }

func (p PingChecker) Check(ctx context.Context) error { return p.ping(ctx) }

// HealthStatus represents the health status
type HealthStatus string

const (
	HealthStatusPass HealthStatus = "pass"
	HealthStatusFail HealthStatus = "fail"
)

// HealthCheckResult is the outcome of one checker.
type HealthCheckResult struct {
	Status       HealthStatus `json:"status"`
	Error        string       `json:"error,omitempty"`
	ResponseTime string       `json:"responseTime"`
}

// HealthResponse represents the overall health response
type HealthResponse struct {
	Status  HealthStatus                 `json:"status"`
	Version string                       `json:"version"`
	Uptime  string                       `json:"uptime"`
	Checks  map[string]HealthCheckResult `json:"checks,omitempty"`
}

// HealthService runs dependency checks for /health. Results are cached
// briefly so probes do not hammer the database.
type HealthService struct {
	version   string
	timeout   time.Duration
	cacheFor  time.Duration
	checkers  []HealthChecker
	tracer    trace.Tracer
	startTime time.Time
	now       func() time.Time

	mu     sync.Mutex
	cached map[string]cachedHealthResult
}

type cachedHealthResult struct {
	result HealthCheckResult
	at     time.Time
}

func NewHealthService(version string, checkers ...HealthChecker) *HealthService {
	return &HealthService{
		version:   version,
		timeout:   3 * time.Second,
		cacheFor:  5 * time.Second,
		checkers:  checkers,
		tracer:    telemetry.Tracer("api.rest.health"),
		startTime: time.Now(),
		now:       time.Now,
		cached:    make(map[string]cachedHealthResult),
	}
}

// Handler answers 200 when every check passes and 503 otherwise.
func (h *HealthService) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := h.tracer.Start(r.Context(), "health.check")
		defer span.End()

		checks := h.runChecks(ctx)
		resp := HealthResponse{
			Status:  HealthStatusPass,
			Version: h.version,
			Uptime:  h.now().Sub(h.startTime).Truncate(time.Second).String(),
			Checks:  checks,
		}
		status := http.StatusOK
		for _, c := range checks {
			if c.Status == HealthStatusFail {
				resp.Status = HealthStatusFail
				status = http.StatusServiceUnavailable
				break
			}
		}

		span.SetAttributes(
			attribute.String("health.status", string(resp.Status)),
			attribute.Int("health.checks_count", len(checks)),
		)
		writeJSON(w, status, resp)
	}
}

func (h *HealthService) runChecks(ctx context.Context) map[string]HealthCheckResult {
	results := make(map[string]HealthCheckResult, len(h.checkers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range h.checkers {
		if cached, ok := h.getCached(c.Name()); ok {
			mu.Lock()
			results[c.Name()] = cached
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			start := time.Now()
			err := c.Check(checkCtx)
			res := HealthCheckResult{Status: HealthStatusPass, ResponseTime: time.Since(start).String()}
			if err != nil {
				res.Status = HealthStatusFail
				res.Error = err.Error()
			}
			h.store(c.Name(), res)

			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

func (h *HealthService) getCached(name string) (HealthCheckResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.cached[name]
	if !ok || h.now().Sub(c.at) >= h.cacheFor {
		return HealthCheckResult{}, false
	}
	return c.result, true
}

func (h *HealthService) store(name string, res HealthCheckResult) {
	h.mu.Lock()
	h.cached[name] = cachedHealthResult{result: res, at: h.now()}
	h.mu.Unlock()
}

// CheckerNames lists the registered checkers, sorted.
func (h *HealthService) CheckerNames() []string {
	names := make([]string, len(h.checkers))
	for i, c := range h.checkers {
		names[i] = c.Name()
	}
	sort.Strings(names)
	return names
}
