package db

import "time"

// MethodPerformance is a row in the method_performance table.
type MethodPerformance struct {
	Method          string    `json:"method"`
	TotalRequests   int64     `json:"total_requests"`
	SuccessCount    int64     `json:"success_count"`
	FailureCount    int64     `json:"failure_count"`
	CacheHits       int64     `json:"cache_hits"`
	TotalDurationMs float64   `json:"total_duration_ms"`
	Modified        time.Time `json:"modified"`
}
