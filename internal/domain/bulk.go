package domain

import "time"

// Bulk job row cap per submission.
const BulkMaxRows = 200

// Bulk job / row statuses.
const (
	BulkStatusPending    = "pending"
	BulkStatusProcessing = "processing"
	BulkStatusCompleted  = "completed"
	BulkStatusFailed     = "failed"
)

// BulkJob is a batch of listing-generation rows processed incrementally by
// the cron-invoked handler.
type BulkJob struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Status        string    `json:"status"`
	TotalRows     int       `json:"total_rows"`
	ProcessedRows int       `json:"processed_rows"`
	FailedRows    int       `json:"failed_rows"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BulkRow is one listing in a bulk job.
type BulkRow struct {
	ID           string          `json:"id"`
	BulkJobID    string          `json:"bulk_job_id"`
	Address      string          `json:"address"`
	Property     PropertyDetails `json:"property"`
	CopyType     string          `json:"copy_type"`
	Tone         string          `json:"tone,omitempty"`
	Status       string          `json:"status"`
	GenerationID string          `json:"generation_id,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// BulkRequest is the payload for POST /v1/bulk.
type BulkRequest struct {
	Rows []BulkRowInput `json:"rows"`
}

// BulkRowInput is one row in a bulk submission.
type BulkRowInput struct {
	Address  string          `json:"address"`
	Property PropertyDetails `json:"property"`
	CopyType string          `json:"copyType"`
	Tone     string          `json:"tone,omitempty"`
}

// BulkProcessResult summarizes one cron-invoked processing pass.
type BulkProcessResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	JobsClosed int `json:"jobs_closed"`
}
