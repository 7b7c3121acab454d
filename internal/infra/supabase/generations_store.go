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
// Generations - CRUD via PostgREST
// ============================================================

// generationRow maps the generations table columns.
type generationRow struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	TeamID           string          `json:"team_id,omitempty"`
	Address          string          `json:"address"`
	FormattedAddress string          `json:"formatted_address,omitempty"`
	Latitude         float64         `json:"latitude,omitempty"`
	Longitude        float64         `json:"longitude,omitempty"`
	GeoAccurate      bool            `json:"geo_accurate"`
	Property         json.RawMessage `json:"property"`
	CopyType         string          `json:"copy_type"`
	Tone             string          `json:"tone,omitempty"`
	Content          string          `json:"content"`
	Title            string          `json:"title,omitempty"`
	Variants         []string        `json:"variants,omitempty"`
	Provider         string          `json:"provider"`
	TokensUsed       int             `json:"tokens_used"`
	StagedImageURL   string          `json:"staged_image_url,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (r *generationRow) toDomain() (*domain.Generation, error) {
	var prop domain.PropertyDetails
	if len(r.Property) > 0 {
		if err := json.Unmarshal(r.Property, &prop); err != nil {
			return nil, fmt.Errorf("decode property: %w", err)
		}
	}
	return &domain.Generation{
		ID:               r.ID,
		UserID:           r.UserID,
		TeamID:           r.TeamID,
		Address:          r.Address,
		FormattedAddress: r.FormattedAddress,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		GeoAccurate:      r.GeoAccurate,
		Property:         prop,
		CopyType:         r.CopyType,
		Tone:             r.Tone,
		Content:          r.Content,
		Title:            r.Title,
		Variants:         r.Variants,
		Provider:         r.Provider,
		TokensUsed:       r.TokensUsed,
		StagedImageURL:   r.StagedImageURL,
		CreatedAt:        r.CreatedAt,
	}, nil
}

// CreateGeneration inserts a generation row.
func (c *Client) CreateGeneration(ctx context.Context, gen *domain.Generation) (*domain.Generation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateGeneration")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", gen.UserID))

	prop, err := json.Marshal(gen.Property)
	if err != nil {
		return nil, fmt.Errorf("encode property: %w", err)
	}

	row := map[string]any{
		"id":                gen.ID,
		"user_id":           gen.UserID,
		"address":           gen.Address,
		"formatted_address": gen.FormattedAddress,
		"latitude":          gen.Latitude,
		"longitude":         gen.Longitude,
		"geo_accurate":      gen.GeoAccurate,
		"property":          json.RawMessage(prop),
		"copy_type":         gen.CopyType,
		"tone":              gen.Tone,
		"content":           gen.Content,
		"title":             gen.Title,
		"variants":          gen.Variants,
		"provider":          gen.Provider,
		"tokens_used":       gen.TokensUsed,
		"created_at":        gen.CreatedAt.Format(time.RFC3339),
	}
	if gen.TeamID != "" {
		row["team_id"] = gen.TeamID
	}

	body, err := c.doPost(ctx, "generations", row)
	if err != nil {
		return nil, err
	}

	var results []generationRow
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode generation: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result from generations insert")
	}
	return results[0].toDomain()
}

// ListGenerations fetches a user's generations, newest first.
func (c *Client) ListGenerations(ctx context.Context, userID, copyType string, page, pageSize int) ([]domain.Generation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListGenerations")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	offset := (page - 1) * pageSize
	path := fmt.Sprintf("generations?user_id=eq.%s&order=created_at.desc&limit=%d&offset=%d",
		url.QueryEscape(userID), pageSize, offset)
	if copyType != "" {
		path += "&copy_type=eq." + url.QueryEscape(copyType)
	}

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/generations", Err: err}
	}
	if body == nil {
		return []domain.Generation{}, nil
	}

	var rows []generationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode generations: %w", err)
	}
	out := make([]domain.Generation, 0, len(rows))
	for i := range rows {
		g, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, nil
}

// GetGeneration fetches one generation scoped to its owner.
func (c *Client) GetGeneration(ctx context.Context, userID, generationID string) (*domain.Generation, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetGeneration")
	defer span.End()

	path := fmt.Sprintf("generations?user_id=eq.%s&id=eq.%s&limit=1",
		url.QueryEscape(userID), url.QueryEscape(generationID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/generations", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "generation", ID: generationID}
	}

	var rows []generationRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode generation: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "generation", ID: generationID}
	}
	return rows[0].toDomain()
}

// DeleteGeneration removes a generation scoped to its owner.
func (c *Client) DeleteGeneration(ctx context.Context, userID, generationID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteGeneration")
	defer span.End()

	path := fmt.Sprintf("generations?user_id=eq.%s&id=eq.%s",
		url.QueryEscape(userID), url.QueryEscape(generationID))
	return c.doDelete(ctx, path)
}

// SetStagedImage records the staged image URL reconciled from a completed
// staging job.
func (c *Client) SetStagedImage(ctx context.Context, generationID, imageURL string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetStagedImage")
	defer span.End()

	path := fmt.Sprintf("generations?id=eq.%s", url.QueryEscape(generationID))
	return c.doPatch(ctx, path, map[string]any{"staged_image_url": imageURL})
}
