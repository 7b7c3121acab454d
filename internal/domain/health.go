package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual service.
type ServiceHealth struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	LatencyMs     int64   `json:"latencyMs"`
	UptimePercent float64 `json:"uptimePercent"`
	LastChecked   string  `json:"lastChecked"`
}

// UsageMetrics is returned by GET /v1/metrics/usage.
type UsageMetrics struct {
	TotalGenerations    int64   `json:"totalGenerations"`
	ErrorRate           float64 `json:"errorRate"`
	FallbackRate        float64 `json:"fallbackRate"`
	AvgTokensPerRequest float64 `json:"avgTokensPerRequest"`
	EstimatedCostUsd    float64 `json:"estimatedCostUsd"`
	CacheHitRate        float64 `json:"cacheHitRate"`
	Period              string  `json:"period"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
