package models

import "time"

// CourseStatistics combines seat occupancy with waitlist figures for one course.
type CourseStatistics struct {
	CourseID    string             `json:"course_id"`
	Metrics     map[string]float64 `json:"metrics"`
	GeneratedAt time.Time          `json:"generated_at"`
}

// SystemMetrics is a JSON-friendly snapshot of process counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Enrollments              uint64    `json:"enrollments"`
	Rejections               uint64    `json:"rejections"`
	Promotions               uint64    `json:"promotions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
