package analytics

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidleathers/barangay-insights/internal/domain/errors"
	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/infrastructure/telemetry"
	"github.com/davidleathers/barangay-insights/internal/service/forecast"
)

// MetricAll selects every metric type.
const MetricAll = "all"

const (
	minYear = 1900
	maxYear = 9999
)

// Service serves monthly observations with fitted predictions, and linear
// forecasts over caller-supplied series.
type Service struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewService creates a new analytics service
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		validate: validator.New(),
		logger:   logger.With("component", "analytics"),
		tracer:   telemetry.Tracer("analytics"),
	}
}

// Monthly returns year's records for the requested metric. Every metric
// with data gets a fitted value for its observed months and a projection
// for the rest of the year.
func (s *Service) Monthly(ctx context.Context, req MonthlyRequest) (*MonthlyResult, error) {
	types, err := parseMetric(req.Metric)
	if err != nil {
		return nil, err
	}
	if req.Year < minYear || req.Year > maxYear {
		return nil, errors.NewInvalidRequestError("year is out of range").WithDetail("year", req.Year)
	}

	ctx, span := s.tracer.Start(ctx, "analytics.monthly", trace.WithAttributes(
		attribute.String("metric", req.Metric), attribute.Int("year", req.Year)))
	defer span.End()

	obs, err := s.repo.MonthlyValues(ctx, req.Year, types)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.ErrorContext(ctx, "failed to load observations", "year", req.Year, "error", err)
		return nil, errors.NewTransientFetchError("failed to load observations").WithCause(err)
	}
	years, err := s.repo.AvailableYears(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, errors.NewTransientFetchError("failed to load available years").WithCause(err)
	}

	return &MonthlyResult{
		Metric:         strings.ToLower(strings.TrimSpace(req.Metric)),
		Year:           req.Year,
		AvailableYears: years,
		Records:        buildRecords(req.Year, obs),
	}, nil
}

// Predict fits a linear trend to req.Data.
func (s *Service) Predict(ctx context.Context, req PredictionRequest) (*forecast.Forecast, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, errors.NewInvalidRequestError("data must be a non-empty array of monthly points").WithCause(err)
	}
	points := make([]forecast.Point, len(req.Data))
	copy(points, req.Data)
	sort.SliceStable(points, func(i, j int) bool { return points[i].Month < points[j].Month })
	return forecast.Linear(points, req.Horizon)
}

// Import validates and stores observations. It returns how many were
// written.
func (s *Service) Import(ctx context.Context, obs []metric.Observation) (int, error) {
	if len(obs) == 0 {
		return 0, errors.NewInvalidRequestError("no observations to import")
	}
	for i := range obs {
		if _, err := metric.ParseType(string(obs[i].MetricType)); err != nil {
			return 0, errors.NewInvalidRequestError(err.Error()).WithDetail("index", i)
		}
		if err := s.validate.StructCtx(ctx, obs[i]); err != nil {
			return 0, errors.NewInvalidRequestError("invalid observation").WithDetail("index", i).WithCause(err)
		}
	}
	if err := s.repo.Upsert(ctx, obs); err != nil {
		return 0, errors.NewInternalError("failed to store observations").WithCause(err)
	}
	s.logger.InfoContext(ctx, "observations imported", "count", len(obs))
	return len(obs), nil
}

func parseMetric(raw string) ([]metric.Type, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return nil, errors.NewInvalidRequestError("metric is required")
	}
	if name == MetricAll {
		return metric.Types(), nil
	}
	t, err := metric.ParseType(name)
	if err != nil {
		return nil, errors.NewInvalidRequestError(err.Error())
	}
	return []metric.Type{t}, nil
}

// buildRecords groups observations into one record per month and fills
// the predicted values of every observed metric.
func buildRecords(year int, obs []metric.Observation) []metric.Record {
	byMonth := make(map[int]*metric.Record)
	get := func(month int) *metric.Record {
		r, ok := byMonth[month]
		if !ok {
			r = &metric.Record{Year: year, Month: month, Metrics: map[string]float64{}}
			byMonth[month] = r
		}
		return r
	}

	series := make(map[metric.Type][]forecast.Point)
	for _, o := range obs {
		if o.Year != year || o.Month < 1 || o.Month > 12 {
			continue
		}
		get(o.Month).Metrics[string(o.MetricType)] = o.Value
		series[o.MetricType] = append(series[o.MetricType], forecast.Point{Month: o.Month, Value: o.Value})
	}

	for t, points := range series {
		sort.SliceStable(points, func(i, j int) bool { return points[i].Month < points[j].Month })
		last := points[len(points)-1].Month
		f, err := forecast.Linear(points, 12-last)
		if err != nil {
			continue
		}
		for _, p := range append(f.Fitted, f.Predictions...) {
			r := get(p.Month)
			if r.Predicted == nil {
				r.Predicted = map[string]float64{}
			}
			r.Predicted[string(t)] = p.Value
		}
	}

	records := make([]metric.Record, 0, len(byMonth))
	for _, r := range byMonth {
		records = append(records, *r)
	}
	metric.SortByMonth(records)
	return records
}
