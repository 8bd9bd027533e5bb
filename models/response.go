package models

// PropertyResponse is the response for POST /api/property.
type PropertyResponse struct {
	// Success indicates whether the acquisition completed without errors.
	Success bool `json:"success"`

	// Data is the extracted record. Populated only when Success is true.
	Data *Property `json:"data,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the record was served from cache.
	// Values: "hit", "miss", or empty (caching disabled).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// AcquireMs is the time spent navigating, waiting out a challenge, and
	// extracting the record.
	AcquireMs int64 `json:"acquire_ms"`
}

// HealthResponse is the response for GET /api/health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "busy"
	Uptime  string       `json:"uptime"`
	Session SessionStats `json:"session"`
	Version string       `json:"version"`
}

// SessionStats reports the state of the shared browser session.
type SessionStats struct {
	// Connected is false until the first acquisition lazily launches the
	// browser, and again after it is closed.
	Connected bool `json:"connected"`

	// ActivePages is the number of page contexts currently open for
	// acquisitions (the sentinel tab is not counted).
	ActivePages int `json:"active_pages"`

	// MaxConcurrent is the configured acquisition concurrency bound.
	MaxConcurrent int `json:"max_concurrent"`
}
