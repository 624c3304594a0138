// Package performance accumulates per-method latency and outcome counters.
package performance

import (
	"sort"
	"sync"
	"time"
)

// Record holds the raw counters for one method.
type Record struct {
	Method          string
	TotalRequests   int64
	SuccessCount    int64
	FailureCount    int64
	CacheHits       int64
	TotalDurationMs float64
}

// Stats is the reporting view of a Record.
type Stats struct {
	Method             string  `json:"method"`
	TotalRequests      int64   `json:"totalRequests"`
	SuccessCount       int64   `json:"successCount"`
	FailureCount       int64   `json:"failureCount"`
	CacheHits          int64   `json:"cacheHits"`
	AverageDurationMs  float64 `json:"averageDurationMs"`
	SuccessRatePercent float64 `json:"successRatePercent"`
}

func (r Record) stats() Stats {
	s := Stats{
		Method:        r.Method,
		TotalRequests: r.TotalRequests,
		SuccessCount:  r.SuccessCount,
		FailureCount:  r.FailureCount,
		CacheHits:     r.CacheHits,
	}
	if r.TotalRequests > 0 {
		s.AverageDurationMs = r.TotalDurationMs / float64(r.TotalRequests)
		s.SuccessRatePercent = float64(r.SuccessCount) / float64(r.TotalRequests) * 100
	}
	return s
}

// Tracker is purely additive: records are never evicted.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*Record)}
}

func (t *Tracker) recordLocked(method string) *Record {
	r, ok := t.records[method]
	if !ok {
		r = &Record{Method: method}
		t.records[method] = r
	}
	return r
}

// Record adds one dispatch attempt.
func (t *Tracker) Record(method string, duration time.Duration, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(method)
	r.TotalRequests++
	r.TotalDurationMs += float64(duration) / float64(time.Millisecond)
	if success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
}

// RecordCacheHit counts a request answered from cache as a success that took
// no handler time.
func (t *Tracker) RecordCacheHit(method string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.recordLocked(method)
	r.TotalRequests++
	r.SuccessCount++
	r.CacheHits++
}

// Stats returns the stats for method. Unknown methods report zeros.
func (t *Tracker) Stats(method string) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.records[method]; ok {
		return r.stats()
	}
	return Stats{Method: method}
}

// All returns stats for every method seen, sorted by method name.
func (t *Tracker) All() []Stats {
	records := t.Snapshot()
	out := make([]Stats, 0, len(records))
	for _, r := range records {
		out = append(out, r.stats())
	}
	return out
}

// Snapshot copies the raw counters, sorted by method name.
func (t *Tracker) Snapshot() []Record {
	t.mu.Lock()
	out := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		out = append(out, *r)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// Restore adds previously persisted counters to the tracker.
func (t *Tracker) Restore(records []Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, in := range records {
		if in.Method == "" {
			continue
		}
		r := t.recordLocked(in.Method)
		r.TotalRequests += in.TotalRequests
		r.SuccessCount += in.SuccessCount
		r.FailureCount += in.FailureCount
		r.CacheHits += in.CacheHits
		r.TotalDurationMs += in.TotalDurationMs
	}
}
