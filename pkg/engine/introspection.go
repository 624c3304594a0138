package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/mcp-engine/pkg/batch"
	"github.com/morezero/mcp-engine/pkg/cache"
	"github.com/morezero/mcp-engine/pkg/events"
	"github.com/morezero/mcp-engine/pkg/performance"
	"github.com/morezero/mcp-engine/pkg/protocol"
	"github.com/morezero/mcp-engine/pkg/registry"
)

const introspectionLogPrefix = "engine:introspection"

// Features lists what the engine supports, for info and capability listings.
var Features = []string{
	"batch", "priority", "validation", "rate-limiting",
	"concurrency-control", "caching", "performance-tracking",
}

// InfoOutput describes the running engine.
type InfoOutput struct {
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	Protocol      string     `json:"protocol"`
	Features      []string   `json:"features"`
	Limits        LimitsInfo `json:"limits"`
	UptimeSeconds int64      `json:"uptimeSeconds"`
}

// LimitsInfo reports the configured ceilings.
type LimitsInfo struct {
	MaxConcurrentRequests int            `json:"maxConcurrentRequests"`
	MaxConcurrentBatches  int            `json:"maxConcurrentBatches"`
	MaxBatchSize          int            `json:"maxBatchSize"`
	RateLimitWindowMs     int64          `json:"rateLimitWindowMs"`
	RateLimits            map[string]int `json:"rateLimits"`
}

// Info returns protocol and version information.
func (e *Engine) Info() *InfoOutput {
	limits := make(map[string]int)
	for _, p := range protocol.Priorities() {
		limits[p.String()] = e.limiter.Limit(p)
	}
	window := e.config.RateLimitWindow
	if window <= 0 {
		window = 60 * time.Second
	}
	return &InfoOutput{
		Name:     e.config.Name,
		Version:  e.config.Version,
		Protocol: protocol.Version,
		Features: Features,
		Limits: LimitsInfo{
			MaxConcurrentRequests: e.governor.MaxActiveRequests(),
			MaxConcurrentBatches:  e.governor.MaxActiveBatches(),
			MaxBatchSize:          e.batches.MaxBatchSize(),
			RateLimitWindowMs:     window.Milliseconds(),
			RateLimits:            limits,
		},
		UptimeSeconds: int64(time.Since(e.started).Seconds()),
	}
}

// CapabilitiesOutput lists the callable surface.
type CapabilitiesOutput struct {
	Methods    []registry.MethodInfo `json:"methods"`
	Features   []string              `json:"features"`
	Priorities []string              `json:"priorities"`
}

// Capabilities returns registered methods and engine features.
func (e *Engine) Capabilities() *CapabilitiesOutput {
	priorities := make([]string, 0, 4)
	for _, p := range protocol.Priorities() {
		priorities = append(priorities, p.String())
	}
	return &CapabilitiesOutput{
		Methods:    e.registry.Descriptors(),
		Features:   Features,
		Priorities: priorities,
	}
}

// BatchStats returns aggregate batch counters.
func (e *Engine) BatchStats() batch.Stats {
	return e.batches.Stats()
}

// PerformanceStats returns stats for one method, or for every method when
// method is empty.
func (e *Engine) PerformanceStats(method string) []performance.Stats {
	if method != "" {
		return []performance.Stats{e.tracker.Stats(method)}
	}
	return e.tracker.All()
}

// CacheStats returns cache usage counters.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// HealthOutput holds the result of a health check.
type HealthOutput struct {
	Status         string          `json:"status"`
	Checks         map[string]bool `json:"checks"`
	CacheSize      int             `json:"cacheSize"`
	ActiveRequests int             `json:"activeRequests"`
	ActiveBatches  int             `json:"activeBatches"`
	Methods        int             `json:"methods"`
	Timestamp      string          `json:"timestamp"`

	// RejectedAdmissions counts requests and batches turned away at a
	// concurrency ceiling since start.
	RejectedAdmissions int64 `json:"rejectedAdmissions"`
}

// Healthy reports whether every check passed.
func (h *HealthOutput) Healthy() bool {
	return h.Status == "healthy"
}

// Health runs every collaborator check concurrently and reports engine load.
func (e *Engine) Health(ctx context.Context) *HealthOutput {
	results := make(map[string]bool, len(e.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for name, check := range e.checks {
		wg.Add(1)
		go func(name string, check HealthCheck) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, e.healthTimeout)
			defer cancel()
			err := check(checkCtx)
			if err != nil {
				slog.Warn(fmt.Sprintf("%s - health check %s failed: %v", introspectionLogPrefix, name, err))
			}
			mu.Lock()
			results[name] = err == nil
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()

	status := "healthy"
	for _, ok := range results {
		if !ok {
			status = "unhealthy"
		}
	}

	return &HealthOutput{
		Status:             status,
		Checks:             results,
		CacheSize:          e.cache.Len(),
		ActiveRequests:     e.governor.ActiveRequests(),
		ActiveBatches:      e.governor.ActiveBatches(),
		Methods:            e.registry.Len(),
		Timestamp:          time.Now().UTC().Format(time.RFC3339),
		RejectedAdmissions: e.governor.Rejected(),
	}
}

// Ready reports whether the engine has methods to serve.
func (e *Engine) Ready() bool {
	return e.registry.Len() > 0
}

// InvalidateInput selects which cache entries to drop. Exactly one of Key,
// Pattern or All should be set.
type InvalidateInput struct {
	Key     string `json:"key,omitempty"`
	Pattern string `json:"pattern,omitempty"`
	All     bool   `json:"all,omitempty"`
}

// InvalidateOutput reports how many entries were dropped.
type InvalidateOutput struct {
	Removed int `json:"removed"`
}

// InvalidateCache drops cache entries and publishes a cache.invalidated event.
func (e *Engine) InvalidateCache(ctx context.Context, in InvalidateInput) (*InvalidateOutput, error) {
	set := 0
	for _, b := range []bool{in.Key != "", in.Pattern != "", in.All} {
		if b {
			set++
		}
	}
	if set != 1 {
		return nil, registry.NewRegistryError(registry.CodeInvalidArgument, "exactly one of key, pattern or all is required")
	}

	event := events.NewEvent(events.TypeCacheInvalidated)
	removed := 0
	switch {
	case in.All:
		removed = e.cache.Clear()
	case in.Key != "":
		if e.cache.Evict(in.Key) {
			removed = 1
		}
		event.Key = in.Key
	default:
		n, err := e.cache.EvictPattern(in.Pattern)
		if err != nil {
			return nil, registry.NewRegistryError(registry.CodeInvalidArgument, err.Error())
		}
		removed = n
		event.Pattern = in.Pattern
	}
	event.Count = removed

	slog.Info(fmt.Sprintf("%s - cache invalidated key=%q pattern=%q all=%t removed=%d", introspectionLogPrefix, in.Key, in.Pattern, in.All, removed))
	if err := e.publisher.Publish(ctx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish cache invalidation: %v", introspectionLogPrefix, err))
	}
	return &InvalidateOutput{Removed: removed}, nil
}

// CheckNames returns the configured health check names, sorted.
func (e *Engine) CheckNames() []string {
	names := make([]string, 0, len(e.checks))
	for name := range e.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
