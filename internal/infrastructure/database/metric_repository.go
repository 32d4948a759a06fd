package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/davidleathers/barangay-insights/internal/domain/metric"
)

// DB is the part of a pgx pool the repositories use.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// MetricRepository stores monthly observations in metric_observations.
type MetricRepository struct {
	db     DB
	logger *zap.Logger
}

func NewMetricRepository(db DB, logger *zap.Logger) *MetricRepository {
	return &MetricRepository{db: db, logger: logger}
}

// MonthlyValues returns year's observations of the given types, ordered by
// month then type.
func (r *MetricRepository) MonthlyValues(ctx context.Context, year int, types []metric.Type) ([]metric.Observation, error) {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}

	rows, err := r.db.Query(ctx, `
		SELECT metric_type, year, month, value
		FROM metric_observations
		WHERE year = $1 AND metric_type = ANY($2)
		ORDER BY month, metric_type`, year, names)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}

	obs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (metric.Observation, error) {
		var (
			o    metric.Observation
			name string
		)
		if err := row.Scan(&name, &o.Year, &o.Month, &o.Value); err != nil {
			return o, err
		}
		o.MetricType = metric.Type(name)
		return o, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan observations: %w", err)
	}
	return obs, nil
}

// AvailableYears lists the years with at least one observation, ascending.
func (r *MetricRepository) AvailableYears(ctx context.Context) ([]int, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT year FROM metric_observations ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("query years: %w", err)
	}
	years, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return nil, fmt.Errorf("scan years: %w", err)
	}
	return years, nil
}

// Upsert writes obs in one transaction, replacing rows with the same
// (metric_type, year, month).
func (r *MetricRepository) Upsert(ctx context.Context, obs []metric.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, o := range obs {
			batch.Queue(`
				INSERT INTO metric_observations (metric_type, year, month, value, updated_at)
				VALUES ($1, $2, $3, $4, now())
				ON CONFLICT (metric_type, year, month)
				DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
				string(o.MetricType), o.Year, o.Month, o.Value)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("upsert observations: %w", err)
	}

	r.logger.Debug("observations upserted", zap.Int("count", len(obs)))
	return nil
}
