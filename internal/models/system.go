package models

import "time"

// SystemMetrics is a point-in-time snapshot of process and pipeline
// counters exposed by the status endpoint.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	ClassificationCalls      uint64    `json:"classification_calls"`
	ClassificationRetries    uint64    `json:"classification_retries"`
	Fallbacks                uint64    `json:"fallbacks"`
	RunsCompleted            uint64    `json:"runs_completed"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
