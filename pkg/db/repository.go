package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// Repository reads and writes performance snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Ping checks database reachability.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// UpsertPerformance writes absolute counters for each method in one round trip.
func (r *Repository) UpsertPerformance(ctx context.Context, rows []MethodPerformance) error {
	if len(rows) == 0 {
		return nil
	}
	now := time.Now().UTC()

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(
			`INSERT INTO method_performance
			   (method, total_requests, success_count, failure_count, cache_hits, total_duration_ms, modified)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (method) DO UPDATE SET
			   total_requests = EXCLUDED.total_requests,
			   success_count = EXCLUDED.success_count,
			   failure_count = EXCLUDED.failure_count,
			   cache_hits = EXCLUDED.cache_hits,
			   total_duration_ms = EXCLUDED.total_duration_ms,
			   modified = EXCLUDED.modified`,
			row.Method, row.TotalRequests, row.SuccessCount, row.FailureCount, row.CacheHits, row.TotalDurationMs, now)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, row := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("%s - upsert %s failed: %w", repoLogPrefix, row.Method, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - UpsertPerformance wrote %d rows", repoLogPrefix, len(rows)))
	return nil
}

// ListPerformance returns every stored snapshot ordered by method.
func (r *Repository) ListPerformance(ctx context.Context) ([]MethodPerformance, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT method, total_requests, success_count, failure_count, cache_hits, total_duration_ms, modified
		 FROM method_performance
		 ORDER BY method`)
	if err != nil {
		return nil, fmt.Errorf("%s - list failed: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []MethodPerformance
	for rows.Next() {
		var m MethodPerformance
		if err := rows.Scan(&m.Method, &m.TotalRequests, &m.SuccessCount, &m.FailureCount, &m.CacheHits, &m.TotalDurationMs, &m.Modified); err != nil {
			return nil, fmt.Errorf("%s - scan failed: %w", repoLogPrefix, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - rows failed: %w", repoLogPrefix, err)
	}
	return out, nil
}
