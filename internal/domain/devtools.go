package domain

// DevGrantCreditsRequest is the payload for POST /v1/dev/grant-credits.
type DevGrantCreditsRequest struct {
	Credits int `json:"credits"`
}

// DevCompleteStagingRequest is the payload for POST /v1/dev/complete-staging.
type DevCompleteStagingRequest struct {
	JobID     string `json:"jobId"`
	ResultURL string `json:"resultUrl,omitempty"`
}
