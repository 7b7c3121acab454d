package domain

import "time"

// Staging job statuses. Transitions only move forward:
// pending -> processing -> completed|failed. The single exception is the
// provider-swap requeue (processing -> pending) after the primary vendor
// exhausts its attempts.
const (
	StagingStatusPending    = "pending"
	StagingStatusProcessing = "processing"
	StagingStatusCompleted  = "completed"
	StagingStatusFailed     = "failed"
	StagingStatusCancelled  = "cancelled"
)

// StagingJob tracks one virtual-staging request's lifecycle against an
// external vendor.
type StagingJob struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	GenerationID string     `json:"generation_id,omitempty"`
	ImageURL     string     `json:"image_url"`
	RoomType     string     `json:"room_type"`
	Style        string     `json:"style"`
	Status       string     `json:"status"`
	Provider     string     `json:"provider"`
	VendorJobID  string     `json:"vendor_job_id,omitempty"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	ResultURL    string     `json:"result_url,omitempty"`
	Error        string     `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StagingRequest is the payload for POST /v1/staging.
type StagingRequest struct {
	ImageURL     string `json:"imageUrl"`
	RoomType     string `json:"roomType"`
	Style        string `json:"style"`
	GenerationID string `json:"generationId,omitempty"`
}

// VendorSubmission is returned by a staging vendor when a job is accepted.
type VendorSubmission struct {
	VendorJobID string
}

// Vendor job statuses reported by the staging vendors' status endpoints.
const (
	VendorStatusQueued     = "queued"
	VendorStatusProcessing = "processing"
	VendorStatusDone       = "done"
	VendorStatusError      = "error"
)

// VendorStatus is the result of polling a vendor's status endpoint.
type VendorStatus struct {
	Status    string
	ResultURL string
	Error     string
}

// StagingPollResult summarizes one cron-invoked poll pass.
type StagingPollResult struct {
	Polled    int `json:"polled"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Requeued  int `json:"requeued"`
}
