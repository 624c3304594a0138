package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/mcp-engine/pkg/db"
	"github.com/morezero/mcp-engine/pkg/performance"
)

const backgroundLogPrefix = "server:background"

// Sweeper drops expired rate-limit windows and cache entries.
type Sweeper interface {
	Sweep() (windows, entries int)
}

// PerformanceStore persists performance snapshots.
type PerformanceStore interface {
	Ping(ctx context.Context) error
	UpsertPerformance(ctx context.Context, rows []db.MethodPerformance) error
	ListPerformance(ctx context.Context) ([]db.MethodPerformance, error)
}

// janitorInterval sweeps at most once a minute and at least once per window.
func janitorInterval(window time.Duration) time.Duration {
	if window <= 0 || window > time.Minute {
		return time.Minute
	}
	return window
}

func runJanitor(ctx context.Context, s Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			windows, entries := s.Sweep()
			if windows > 0 || entries > 0 {
				slog.Debug(fmt.Sprintf("%s - swept %d rate-limit windows, %d cache entries", backgroundLogPrefix, windows, entries))
			}
		}
	}
}

// perfSync keeps the tracker and the store in step. Totals are written as
// absolute values, so nothing is flushed until the stored totals have been
// folded into the tracker.
type perfSync struct {
	store    PerformanceStore
	tracker  *performance.Tracker
	restored bool
}

func newPerfSync(store PerformanceStore, tracker *performance.Tracker) *perfSync {
	return &perfSync{store: store, tracker: tracker}
}

// restore merges the stored totals into the tracker. It is a no-op once it
// has succeeded.
func (p *perfSync) restore(ctx context.Context) error {
	if p.restored {
		return nil
	}
	if err := restorePerformance(ctx, p.store, p.tracker); err != nil {
		return err
	}
	p.restored = true
	return nil
}

// flush retries a pending restore, then writes the tracker to the store.
func (p *perfSync) flush(ctx context.Context) error {
	if err := p.restore(ctx); err != nil {
		return fmt.Errorf("%s - skipping flush, stored totals not restored: %w", backgroundLogPrefix, err)
	}
	return flushPerformance(ctx, p.store, p.tracker)
}

// runFlusher flushes every interval and once more after ctx is cancelled.
func runFlusher(ctx context.Context, p *perfSync, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := p.flush(finalCtx); err != nil {
				slog.Warn(fmt.Sprintf("%s - final flush failed: %v", backgroundLogPrefix, err))
			}
			cancel()
			return
		case <-ticker.C:
			if err := p.flush(ctx); err != nil {
				slog.Warn(fmt.Sprintf("%s - flush failed: %v", backgroundLogPrefix, err))
			}
		}
	}
}

func flushPerformance(ctx context.Context, store PerformanceStore, tracker *performance.Tracker) error {
	records := tracker.Snapshot()
	rows := make([]db.MethodPerformance, 0, len(records))
	for _, r := range records {
		rows = append(rows, db.MethodPerformance{
			Method:          r.Method,
			TotalRequests:   r.TotalRequests,
			SuccessCount:    r.SuccessCount,
			FailureCount:    r.FailureCount,
			CacheHits:       r.CacheHits,
			TotalDurationMs: r.TotalDurationMs,
		})
	}
	return store.UpsertPerformance(ctx, rows)
}

func restorePerformance(ctx context.Context, store PerformanceStore, tracker *performance.Tracker) error {
	rows, err := store.ListPerformance(ctx)
	if err != nil {
		return err
	}
	records := make([]performance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, performance.Record{
			Method:          row.Method,
			TotalRequests:   row.TotalRequests,
			SuccessCount:    row.SuccessCount,
			FailureCount:    row.FailureCount,
			CacheHits:       row.CacheHits,
			TotalDurationMs: row.TotalDurationMs,
		})
	}
	tracker.Restore(records)
	slog.Info(fmt.Sprintf("%s - restored performance stats for %d methods", backgroundLogPrefix, len(records)))
	return nil
}
