package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// ============================================================
// Staging queue - the table behind the polling state machine
// ============================================================

// stagingRow maps the staging_jobs table columns.
type stagingRow struct {
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

func (r *stagingRow) toDomain() *domain.StagingJob {
	return &domain.StagingJob{
		ID:           r.ID,
		UserID:       r.UserID,
		GenerationID: r.GenerationID,
		ImageURL:     r.ImageURL,
		RoomType:     r.RoomType,
		Style:        r.Style,
		Status:       r.Status,
		Provider:     r.Provider,
		VendorJobID:  r.VendorJobID,
		Attempts:     r.Attempts,
		MaxAttempts:  r.MaxAttempts,
		ResultURL:    r.ResultURL,
		Error:        r.Error,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		CompletedAt:  r.CompletedAt,
	}
}

// CreateStagingJob inserts a staging queue entry.
func (c *Client) CreateStagingJob(ctx context.Context, job *domain.StagingJob) (*domain.StagingJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateStagingJob")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", job.UserID))

	row := map[string]any{
		"id":           job.ID,
		"user_id":      job.UserID,
		"image_url":    job.ImageURL,
		"room_type":    job.RoomType,
		"style":        job.Style,
		"status":       job.Status,
		"provider":     job.Provider,
		"attempts":     job.Attempts,
		"max_attempts": job.MaxAttempts,
		"created_at":   job.CreatedAt.Format(time.RFC3339),
		"updated_at":   job.UpdatedAt.Format(time.RFC3339),
	}
	if job.GenerationID != "" {
		row["generation_id"] = job.GenerationID
	}

	body, err := c.doPost(ctx, "staging_jobs", row)
	if err != nil {
		return nil, err
	}

	var results []stagingRow
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode staging_job: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result from staging_jobs insert")
	}
	return results[0].toDomain(), nil
}

// GetStagingJob fetches one entry scoped to its owner.
func (c *Client) GetStagingJob(ctx context.Context, userID, jobID string) (*domain.StagingJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetStagingJob")
	defer span.End()

	path := fmt.Sprintf("staging_jobs?user_id=eq.%s&id=eq.%s&limit=1",
		url.QueryEscape(userID), url.QueryEscape(jobID))
	return c.getStagingJob(ctx, path, jobID)
}

// GetStagingJobByID fetches one entry without an owner scope (poller use).
func (c *Client) GetStagingJobByID(ctx context.Context, jobID string) (*domain.StagingJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetStagingJobByID")
	defer span.End()

	path := fmt.Sprintf("staging_jobs?id=eq.%s&limit=1", url.QueryEscape(jobID))
	return c.getStagingJob(ctx, path, jobID)
}

func (c *Client) getStagingJob(ctx context.Context, path, jobID string) (*domain.StagingJob, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/staging", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "staging job", ID: jobID}
	}

	var rows []stagingRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode staging_job: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "staging job", ID: jobID}
	}
	return rows[0].toDomain(), nil
}

// ListStagingJobs fetches a user's staging jobs, newest first.
func (c *Client) ListStagingJobs(ctx context.Context, userID, status string, page, pageSize int) ([]domain.StagingJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListStagingJobs")
	defer span.End()

	offset := (page - 1) * pageSize
	path := fmt.Sprintf("staging_jobs?user_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
		url.QueryEscape(userID), pageSize, offset)
	if status != "" {
		path += "&status=eq." + url.QueryEscape(status)
	}
	return c.listStagingJobs(ctx, path)
}

// ListPollableJobs returns pending and processing entries, FIFO by creation.
// Pending entries here are submit retries (the initial async submit failed
// or the job was requeued onto the fallback provider).
func (c *Client) ListPollableJobs(ctx context.Context, limit int) ([]domain.StagingJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPollableJobs")
	defer span.End()

	path := fmt.Sprintf("staging_jobs?status=in.(%s,%s)&order=created_at.asc&limit=%d",
		domain.StagingStatusPending, domain.StagingStatusProcessing, limit)
	return c.listStagingJobs(ctx, path)
}

func (c *Client) listStagingJobs(ctx context.Context, path string) ([]domain.StagingJob, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/staging", Err: err}
	}
	if body == nil {
		return []domain.StagingJob{}, nil
	}

	var rows []stagingRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode staging_jobs: %w", err)
	}
	out := make([]domain.StagingJob, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}

// UpdateStagingJob patches a staging entry. updated_at is always bumped.
func (c *Client) UpdateStagingJob(ctx context.Context, jobID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateStagingJob")
	defer span.End()
	span.SetAttributes(attribute.String("staging.id", jobID))

	updates["updated_at"] = time.Now().Format(time.RFC3339)
	path := fmt.Sprintf("staging_jobs?id=eq.%s", url.QueryEscape(jobID))
	return c.doPatch(ctx, path, updates)
}
