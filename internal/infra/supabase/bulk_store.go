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
// Bulk jobs & rows - processed incrementally by the cron handler
// ============================================================

type bulkRowRow struct {
	ID           string          `json:"id"`
	BulkJobID    string          `json:"bulk_job_id"`
	Address      string          `json:"address"`
	Property     json.RawMessage `json:"property"`
	CopyType     string          `json:"copy_type"`
	Tone         string          `json:"tone,omitempty"`
	Status       string          `json:"status"`
	GenerationID string          `json:"generation_id,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (r *bulkRowRow) toDomain() (*domain.BulkRow, error) {
	var prop domain.PropertyDetails
	if len(r.Property) > 0 {
		if err := json.Unmarshal(r.Property, &prop); err != nil {
			return nil, fmt.Errorf("decode bulk row property: %w", err)
		}
	}
	return &domain.BulkRow{
		ID:           r.ID,
		BulkJobID:    r.BulkJobID,
		Address:      r.Address,
		Property:     prop,
		CopyType:     r.CopyType,
		Tone:         r.Tone,
		Status:       r.Status,
		GenerationID: r.GenerationID,
		Error:        r.Error,
	}, nil
}

// CreateBulkJob inserts the job header and all its rows.
func (c *Client) CreateBulkJob(ctx context.Context, job *domain.BulkJob, rows []domain.BulkRow) (*domain.BulkJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateBulkJob")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", job.UserID), attribute.Int("rows", len(rows)))

	header := map[string]any{
		"id":             job.ID,
		"user_id":        job.UserID,
		"status":         job.Status,
		"total_rows":     job.TotalRows,
		"processed_rows": 0,
		"failed_rows":    0,
		"created_at":     job.CreatedAt.Format(time.RFC3339),
		"updated_at":     job.CreatedAt.Format(time.RFC3339),
	}
	if _, err := c.doPost(ctx, "bulk_jobs", header); err != nil {
		return nil, err
	}

	payload := make([]map[string]any, 0, len(rows))
	for i := range rows {
		prop, err := json.Marshal(rows[i].Property)
		if err != nil {
			return nil, fmt.Errorf("encode bulk row property: %w", err)
		}
		payload = append(payload, map[string]any{
			"id":          rows[i].ID,
			"bulk_job_id": job.ID,
			"address":     rows[i].Address,
			"property":    json.RawMessage(prop),
			"copy_type":   rows[i].CopyType,
			"tone":        rows[i].Tone,
			"status":      domain.BulkStatusPending,
		})
	}
	if err := c.doPostBatch(ctx, "bulk_rows", payload); err != nil {
		// Roll the header back so a half-created job is not left pending.
		_ = c.doDelete(ctx, fmt.Sprintf("bulk_jobs?id=eq.%s", url.QueryEscape(job.ID)))
		return nil, err
	}

	return job, nil
}

// GetBulkJob fetches a job header scoped to its owner.
func (c *Client) GetBulkJob(ctx context.Context, userID, jobID string) (*domain.BulkJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBulkJob")
	defer span.End()

	path := fmt.Sprintf("bulk_jobs?user_id=eq.%s&id=eq.%s&limit=1",
		url.QueryEscape(userID), url.QueryEscape(jobID))
	return c.getBulkJob(ctx, path, jobID)
}

// GetBulkJobByID fetches a job header without an owner scope (cron use).
func (c *Client) GetBulkJobByID(ctx context.Context, jobID string) (*domain.BulkJob, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetBulkJobByID")
	defer span.End()

	path := fmt.Sprintf("bulk_jobs?id=eq.%s&limit=1", url.QueryEscape(jobID))
	return c.getBulkJob(ctx, path, jobID)
}

func (c *Client) getBulkJob(ctx context.Context, path, jobID string) (*domain.BulkJob, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/bulk", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "bulk job", ID: jobID}
	}

	var rows []domain.BulkJob
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode bulk_job: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "bulk job", ID: jobID}
	}
	return &rows[0], nil
}

// ListPendingRows returns pending rows across jobs, oldest job first.
func (c *Client) ListPendingRows(ctx context.Context, limit int) ([]domain.BulkRow, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPendingRows")
	defer span.End()

	path := fmt.Sprintf("bulk_rows?status=eq.%s&order=created_at.asc&limit=%d",
		domain.BulkStatusPending, limit)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/bulk", Err: err}
	}
	if body == nil {
		return []domain.BulkRow{}, nil
	}

	var rows []bulkRowRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode bulk_rows: %w", err)
	}
	out := make([]domain.BulkRow, 0, len(rows))
	for i := range rows {
		r, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// UpdateBulkRow patches one row.
func (c *Client) UpdateBulkRow(ctx context.Context, rowID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateBulkRow")
	defer span.End()

	path := fmt.Sprintf("bulk_rows?id=eq.%s", url.QueryEscape(rowID))
	return c.doPatch(ctx, path, updates)
}

// UpdateBulkJob patches a job header. updated_at is always bumped.
func (c *Client) UpdateBulkJob(ctx context.Context, jobID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateBulkJob")
	defer span.End()

	updates["updated_at"] = time.Now().Format(time.RFC3339)
	path := fmt.Sprintf("bulk_jobs?id=eq.%s", url.QueryEscape(jobID))
	return c.doPatch(ctx, path, updates)
}

// CountRemainingRows counts rows of a job still pending.
func (c *Client) CountRemainingRows(ctx context.Context, jobID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CountRemainingRows")
	defer span.End()

	path := fmt.Sprintf("bulk_rows?bulk_job_id=eq.%s&status=eq.%s&select=id",
		url.QueryEscape(jobID), domain.BulkStatusPending)
	body, err := c.get(ctx, path)
	if err != nil {
		return 0, &domain.ErrExternalService{Service: "supabase/bulk", Err: err}
	}
	if body == nil {
		return 0, nil
	}

	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("decode bulk_rows count: %w", err)
	}
	return len(rows), nil
}
