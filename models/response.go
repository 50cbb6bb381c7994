package models

// AgentsResponse is the envelope for listing and static-parse results.
type AgentsResponse struct {
	Success bool           `json:"success"`
	Total   int            `json:"total"`
	Agents  []AgentSummary `json:"agents"`

	// Partial is set when pagination terminated early but collected
	// results are still returned (degraded, labeled — never silent).
	Partial *ErrorDetail `json:"partial,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	Error *ErrorDetail `json:"error,omitempty"`
}

// ProfileResponse is the envelope for a single profile fetch.
type ProfileResponse struct {
	Success bool          `json:"success"`
	Agent   *AgentProfile `json:"agent,omitempty"`
	Error   *ErrorDetail  `json:"error,omitempty"`
}

// FullScrapeResponse is the envelope for the full (listing + profiles)
// scrape. Profile failures never fail the batch: successfully scraped
// profiles are returned together with the IDs that failed.
type FullScrapeResponse struct {
	Success   bool           `json:"success"`
	Total     int            `json:"total"`
	Agents    []AgentProfile `json:"agents"`
	FailedIDs []string       `json:"failed_ids,omitempty"`

	Partial     *ErrorDetail `json:"partial,omitempty"`
	CacheStatus string       `json:"cache_status,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
}

// VerifyResponse is the envelope for POST /api/v1/verify.
type VerifyResponse struct {
	Success bool                `json:"success"`
	Result  *VerificationResult `json:"result,omitempty"`
	Error   *ErrorDetail        `json:"error,omitempty"`
}

// ErrorResponse is the bare envelope middleware rejections use.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status   string                  `json:"status"` // "healthy" or "degraded"
	Uptime   string                  `json:"uptime"`
	Backends map[string]BackendStats `json:"backends"`
	Drift    map[string]DriftStatus  `json:"drift,omitempty"`
	Version  string                  `json:"version"`
}

// DriftStatus is the last structure-drift observation for a page kind.
type DriftStatus struct {
	Distance int  `json:"distance"`
	Drifted  bool `json:"drifted"`
}

// BackendStats reports the state of one automation backend's handle pool.
type BackendStats struct {
	Live   int  `json:"live"`   // live handles (pages / sessions)
	InUse  int  `json:"in_use"` // currently checked out
	Max    int  `json:"max"`    // pool bound
	Opened bool `json:"opened"` // lazily created yet?
}
