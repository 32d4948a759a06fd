// Package analyticsapi loads yearly dashboard data, either from a remote
// GET /analytics endpoint or from the in-process analytics service.
package analyticsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/service/analytics"
	"github.com/davidleathers/barangay-insights/internal/service/dashboard"
)

const maxErrorBody = 64 << 10

// Client fetches years from a remote analytics endpoint.
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a client for baseURL. timeout bounds each request when
// the caller's context has no earlier deadline.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url must be http or https: %q", baseURL)
	}
	return &Client{
		base: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

// FetchYear requests every metric of year. Network failures, 5xx and 429
// answers are TRANSIENT_FETCH errors; other 4xx answers are
// INVALID_REQUEST and are not retried.
func (c *Client) FetchYear(ctx context.Context, year int) (dashboard.YearPage, error) {
	u := c.base.JoinPath("analytics")
	q := u.Query()
	q.Set("metric", analytics.MetricAll)
	q.Set("year", strconv.Itoa(year))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return dashboard.YearPage{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return dashboard.YearPage{}, ctx.Err()
		}
		c.logger.Warn("analytics request failed", zap.Int("year", year), zap.Error(err))
		return dashboard.YearPage{}, apperrors.NewTransientFetchError("analytics request failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return dashboard.YearPage{}, statusError(resp)
	}

	var body analytics.MonthlyResult
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return dashboard.YearPage{}, apperrors.NewTransientFetchError("analytics response could not be decoded").WithCause(err)
	}
	return dashboard.YearPage{Records: body.Records, AvailableYears: body.AvailableYears}, nil
}

func statusError(resp *http.Response) error {
	msg := http.StatusText(resp.StatusCode)
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var envelope struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		msg = envelope.Error
	}

	cause := fmt.Errorf("analytics returned %d: %s", resp.StatusCode, msg)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return apperrors.NewTransientFetchError(msg).
			WithDetail("status", resp.StatusCode).
			WithCause(cause)
	}
	return apperrors.NewInvalidRequestError(msg).
		WithDetail("status", resp.StatusCode).
		WithCause(cause)
}
