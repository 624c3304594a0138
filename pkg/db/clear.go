package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearPerformance removes every stored performance snapshot. The schema is kept.
func ClearPerformance(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing %s", clearLogPrefix, PerformanceTable))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE method_performance`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Performance snapshots cleared", clearLogPrefix))
	return nil
}
