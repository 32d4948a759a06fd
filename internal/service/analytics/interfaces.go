package analytics

import (
	"context"

	"github.com/davidleathers/barangay-insights/internal/domain/metric"
	"github.com/davidleathers/barangay-insights/internal/service/forecast"
)

// Repository is the observation store.
type Repository interface {
	// MonthlyValues returns the observations of year for the given types,
	// ordered by month.
	MonthlyValues(ctx context.Context, year int, types []metric.Type) ([]metric.Observation, error)
	// AvailableYears returns every year with at least one observation,
	// ascending.
	AvailableYears(ctx context.Context) ([]int, error)
	// Upsert inserts observations, replacing existing (type, year, month)
	// rows.
	Upsert(ctx context.Context, obs []metric.Observation) error
}

// MonthlyRequest selects the data behind GET /analytics. Metric is a
// metric type or "all".
type MonthlyRequest struct {
	Metric string
	Year   int
}

// MonthlyResult is one year of records with fitted predictions.
type MonthlyResult struct {
	Metric         string          `json:"metric"`
	Year           int             `json:"year"`
	AvailableYears []int           `json:"availableYears"`
	Records        []metric.Record `json:"records"`
}

// PredictionRequest is the body of POST /predictions.
type PredictionRequest struct {
	Data    []forecast.Point `json:"data" validate:"required,min=1,dive"`
	Horizon int              `json:"horizon" validate:"min=0,max=24"`
}
