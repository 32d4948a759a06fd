package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// TxBeginner is satisfied by *pgxpool.Pool and pgx.Tx.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// WithRollback runs fn inside a transaction that is always rolled back, so
// nothing fn writes is visible to later tests.
//
// Usage:
//
//	WithRollback(t, ctx, pool, func(tx pgx.Tx) {
//	    repo := database.NewMetricRepository(tx, logger)
//	    // writes through repo vanish afterwards
//	})
func WithRollback(t *testing.T, ctx context.Context, db TxBeginner, fn func(tx pgx.Tx)) {
	t.Helper()

	tx, err := db.Begin(ctx)
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			t.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	fn(tx)
}
