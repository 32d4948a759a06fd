package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/insight"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/service/analytics"
	"github.com/davidleathers/barangay-insights/internal/service/dashboard"
)

const (
	sessionHeader    = "X-Session-ID"
	maxSessionIDLen  = 128
	maxBodyBytes     = 1 << 20
	quotaKeyAnalysis = "analysis:"
)

// QuotaLimiter counts events per key in a sliding window.
type QuotaLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// Quota bounds how many analyses one session may request per window.
type Quota struct {
	Limiter QuotaLimiter
	Limit   int
	Window  time.Duration
}

func (q Quota) enabled() bool {
	return q.Limiter != nil && q.Limit > 0 && q.Window > 0
}

// Handler serves the analytics and dashboard endpoints.
type Handler struct {
	analytics *analytics.Service
	sessions  *dashboard.Registry
	quota     Quota
	logger    *slog.Logger
	now       func() time.Time
}

func NewHandler(svc *analytics.Service, sessions *dashboard.Registry, quota Quota, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		analytics: svc,
		sessions:  sessions,
		quota:     quota,
		logger:    logger.With("component", "rest"),
		now:       time.Now,
	}
}

// handleAnalytics serves GET /analytics?metric=&year=.
func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if strings.TrimSpace(q.Get("metric")) == "" {
		writeError(w, apperrors.NewInvalidRequestError("metric is required"))
		return
	}
	year, err := parseYear(q.Get("year"))
	if err != nil {
		writeError(w, err)
		return
	}
	if year == nil {
		y := h.now().Year()
		year = &y
	}

	res, err := h.analytics.Monthly(r.Context(), analytics.MonthlyRequest{Metric: q.Get("metric"), Year: *year})
	if err != nil {
		h.logFailure(r, "analytics request failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handlePredictions serves POST /predictions.
func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	var req analytics.PredictionRequest
	if err := decodeBody(w, r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			err = apperrors.NewInvalidRequestError("request body is required")
		}
		writeError(w, err)
		return
	}
	if len(req.Data) == 0 {
		writeError(w, apperrors.NewInvalidRequestError("data must be a non-empty array"))
		return
	}

	f, err := h.analytics.Predict(r.Context(), req)
	if err != nil {
		h.logFailure(r, "prediction failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// ChartResponse is one metric's chart for the dashboard. Year is null until
// some year with data is known; Error carries a fetch failure next to
// whatever data was already cached.
type ChartResponse struct {
	Metric         string               `json:"metric"`
	Year           *int                 `json:"year"`
	AvailableYears []int                `json:"availableYears"`
	Points         []metric.SeriesPoint `json:"points"`
	Error          *string              `json:"error"`
}

func (h *Handler) handleChart(w http.ResponseWriter, r *http.Request) {
	metricType, err := metric.ParseType(r.PathValue("metric"))
	if err != nil {
		writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, err)
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	view := session.Chart(r.Context(), metricType, year)
	resp := ChartResponse{
		Metric:         string(metricType),
		AvailableYears: view.AvailableYears,
		Points:         view.Points,
	}
	if resp.AvailableYears == nil {
		resp.AvailableYears = []int{}
	}
	if resp.Points == nil {
		resp.Points = []metric.SeriesPoint{}
	}
	if view.HasYear {
		resp.Year = &view.Year
	}
	if view.Err != nil {
		h.logFailure(r, "chart load failed", view.Err)
		_, body := HandleError(view.Err)
		resp.Error = &body.Error
	}
	writeJSON(w, http.StatusOK, resp)
}

// InsightRequest is the optional body of an analysis request. Without a
// series the session's cached data for the year is analyzed.
type InsightRequest struct {
	Series []metric.SeriesPoint `json:"series"`
}

// InsightResponse wraps a validated analysis.
type InsightResponse struct {
	Metric string          `json:"metric"`
	Year   int             `json:"year"`
	Result *insight.Result `json:"result"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	metricType, err := metric.ParseType(r.PathValue("metric"))
	if err != nil {
		writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	year, err := parseYear(r.URL.Query().Get("year"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req InsightRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, err)
			return
		}
	}
	if year == nil && len(req.Series) == 0 {
		writeError(w, apperrors.NewInvalidRequestError("year is required unless a series is supplied"))
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if !h.allowAnalysis(w, r, session.ID) {
		return
	}

	var result *insight.Result
	if len(req.Series) > 0 {
		result, err = session.AnalyzeSeries(r.Context(), metricType, req.Series)
	} else {
		result, err = session.Analyze(r.Context(), metricType, *year)
	}
	if err != nil {
		h.logFailure(r, "analysis failed", err)
		writeError(w, err)
		return
	}

	resp := InsightResponse{Metric: string(metricType), Result: result}
	if year != nil {
		resp.Year = *year
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleLatestInsight(w http.ResponseWriter, r *http.Request) {
	metricType, err := metric.ParseType(r.PathValue("metric"))
	if err != nil {
		writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return
	}
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, ok := session.Latest(metricType)
	if !ok {
		writeError(w, apperrors.NewNotFoundError("analysis"))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleResetSession tears down the caller's session.
func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		writeError(w, apperrors.NewInvalidRequestError(sessionHeader+" header is required"))
		return
	}
	if !h.sessions.Remove(id) {
		writeError(w, apperrors.NewNotFoundError("session"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the caller's dashboard session, opening one when the
// header is absent or unknown. The id is echoed back in the response.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		id = uuid.NewString()
	}
	if len(id) > maxSessionIDLen {
		writeError(w, apperrors.NewInvalidRequestError(sessionHeader+" is too long"))
		return nil, false
	}
	s, created := h.sessions.Get(id)
	if s == nil {
		writeError(w, dashboard.ErrClosed)
		return nil, false
	}
	if created {
		h.logger.DebugContext(r.Context(), "dashboard session opened", "session_id", id)
	}
	w.Header().Set(sessionHeader, id)
	return s, true
}

// allowAnalysis applies the per-session quota. A limiter failure lets the
// request through.
func (h *Handler) allowAnalysis(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	if !h.quota.enabled() {
		return true
	}
	key := quotaKeyAnalysis + sessionID
	ok, err := h.quota.Limiter.Allow(r.Context(), key, h.quota.Limit, h.quota.Window)
	if err != nil {
		h.logger.WarnContext(r.Context(), "analysis quota check failed", "session_id", sessionID, "error", err)
		return true
	}
	if !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.quota.Window.Seconds())))
		writeError(w, apperrors.NewRateLimitError("analysis quota exceeded").
			WithDetail("limit", h.quota.Limit).
			WithDetail("window", h.quota.Window.String()))
		return false
	}
	if remaining, err := h.quota.Limiter.Remaining(r.Context(), key, h.quota.Limit, h.quota.Window); err == nil {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}
	return true
}

func (h *Handler) logFailure(r *http.Request, msg string, err error) {
	status, _ := HandleError(err)
	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, msg,
		"request_id", RequestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"status", status,
		"error", err)
}

// parseYear returns nil for an empty value.
func parseYear(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError("year must be an integer").WithDetail("year", raw)
	}
	return &y, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.NewInvalidRequestError("request body too large")
		}
		return apperrors.NewInvalidRequestError("invalid JSON body").WithCause(err)
	}
	return nil
}
