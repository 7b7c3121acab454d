package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// integrationRow maps the Supabase connector row, including the stored
// api_key which services mask before it reaches a response.
type integrationRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Kind        string    `json:"kind"`
	Name        string    `json:"name"`
	EndpointURL string    `json:"endpoint_url"`
	APIKey      string    `json:"api_key"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r *integrationRow) toDomain() *domain.IntegrationConfig {
	return &domain.IntegrationConfig{
		ID:          r.ID,
		UserID:      r.UserID,
		Kind:        r.Kind,
		Name:        r.Name,
		EndpointURL: r.EndpointURL,
		APIKey:      r.APIKey,
		Enabled:     r.Enabled,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// CreateIntegration inserts a connector config.
func (c *Client) CreateIntegration(ctx context.Context, cfg *domain.IntegrationConfig) (*domain.IntegrationConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateIntegration")
	defer span.End()

	row := map[string]any{
		"id":           cfg.ID,
		"user_id":      cfg.UserID,
		"kind":         cfg.Kind,
		"name":         cfg.Name,
		"endpoint_url": cfg.EndpointURL,
		"api_key":      cfg.APIKey,
		"enabled":      cfg.Enabled,
		"created_at":   cfg.CreatedAt.Format(time.RFC3339),
		"updated_at":   cfg.UpdatedAt.Format(time.RFC3339),
	}
	body, err := c.doPost(ctx, "integrations", row)
	if err != nil {
		return nil, err
	}

	var results []integrationRow
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode integration: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result from integrations insert")
	}
	return results[0].toDomain(), nil
}

// ListIntegrations fetches a user's connectors.
func (c *Client) ListIntegrations(ctx context.Context, userID string) ([]domain.IntegrationConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListIntegrations")
	defer span.End()

	path := fmt.Sprintf("integrations?user_id=eq.%s&order=created_at.asc", url.QueryEscape(userID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/integrations", Err: err}
	}
	if body == nil {
		return []domain.IntegrationConfig{}, nil
	}

	var rows []integrationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode integrations: %w", err)
	}
	out := make([]domain.IntegrationConfig, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toDomain())
	}
	return out, nil
}

// GetIntegration fetches a single connector, scoped to its owner.
func (c *Client) GetIntegration(ctx context.Context, userID, integrationID string) (*domain.IntegrationConfig, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetIntegration")
	defer span.End()

	path := fmt.Sprintf("integrations?id=eq.%s&user_id=eq.%s&limit=1",
		url.QueryEscape(integrationID), url.QueryEscape(userID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/integrations", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "integration", ID: integrationID}
	}

	var rows []integrationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode integration: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "integration", ID: integrationID}
	}
	return rows[0].toDomain(), nil
}

// UpdateIntegration applies partial updates and bumps updated_at.
func (c *Client) UpdateIntegration(ctx context.Context, integrationID string, updates map[string]any) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateIntegration")
	defer span.End()

	updates["updated_at"] = time.Now().Format(time.RFC3339)
	path := fmt.Sprintf("integrations?id=eq.%s", url.QueryEscape(integrationID))
	return c.doPatch(ctx, path, updates)
}

// DeleteIntegration removes a connector, scoped to its owner.
func (c *Client) DeleteIntegration(ctx context.Context, userID, integrationID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteIntegration")
	defer span.End()

	path := fmt.Sprintf("integrations?id=eq.%s&user_id=eq.%s",
		url.QueryEscape(integrationID), url.QueryEscape(userID))
	return c.doDelete(ctx, path)
}

// CreatePushRecord records one delivery attempt.
func (c *Client) CreatePushRecord(ctx context.Context, rec *domain.PushRecord) (*domain.PushRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreatePushRecord")
	defer span.End()

	row := map[string]any{
		"id":             rec.ID,
		"integration_id": rec.IntegrationID,
		"generation_id":  rec.GenerationID,
		"status":         rec.Status,
		"response_code":  rec.ResponseCode,
		"created_at":     rec.CreatedAt.Format(time.RFC3339),
	}
	if rec.Error != "" {
		row["error"] = rec.Error
	}
	body, err := c.doPost(ctx, "push_records", row)
	if err != nil {
		return nil, err
	}

	var results []domain.PushRecord
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode push record: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result from push_records insert")
	}
	return &results[0], nil
}

// ListPushRecords fetches delivery history for a connector, newest first.
func (c *Client) ListPushRecords(ctx context.Context, integrationID string, page, pageSize int) ([]domain.PushRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListPushRecords")
	defer span.End()

	offset := (page - 1) * pageSize
	path := fmt.Sprintf("push_records?integration_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
		url.QueryEscape(integrationID), pageSize, offset)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/integrations", Err: err}
	}
	if body == nil {
		return []domain.PushRecord{}, nil
	}

	var rows []domain.PushRecord
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode push records: %w", err)
	}
	return rows, nil
}
