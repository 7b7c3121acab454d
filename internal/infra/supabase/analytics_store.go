package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// InsertUsageEvent records one billable action. Failures here must not
// fail the user request, so callers log and continue on error.
func (c *Client) InsertUsageEvent(ctx context.Context, ev *domain.UsageEvent) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertUsageEvent")
	defer span.End()

	row := map[string]any{
		"id":         ev.ID,
		"user_id":    ev.UserID,
		"event_type": ev.EventType,
		"credits":    ev.Credits,
		"created_at": ev.CreatedAt.Format(time.RFC3339),
	}
	if ev.TeamID != "" {
		row["team_id"] = ev.TeamID
	}
	if ev.CopyType != "" {
		row["copy_type"] = ev.CopyType
	}
	if ev.Provider != "" {
		row["provider"] = ev.Provider
	}
	_, err := c.doPost(ctx, "usage_events", row)
	return err
}

// ListUsageEvents fetches a user's events since the given time.
func (c *Client) ListUsageEvents(ctx context.Context, userID string, since time.Time) ([]domain.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUsageEvents")
	defer span.End()

	path := fmt.Sprintf("usage_events?user_id=eq.%s&created_at=gte.%s&order=created_at.asc",
		url.QueryEscape(userID), url.QueryEscape(since.UTC().Format(time.RFC3339)))
	return c.listEvents(ctx, path)
}

// ListTeamUsageEvents fetches all team members' events since the given time.
func (c *Client) ListTeamUsageEvents(ctx context.Context, teamID string, since time.Time) ([]domain.UsageEvent, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTeamUsageEvents")
	defer span.End()

	path := fmt.Sprintf("usage_events?team_id=eq.%s&created_at=gte.%s&order=created_at.asc",
		url.QueryEscape(teamID), url.QueryEscape(since.UTC().Format(time.RFC3339)))
	return c.listEvents(ctx, path)
}

func (c *Client) listEvents(ctx context.Context, path string) ([]domain.UsageEvent, error) {
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/analytics", Err: err}
	}
	if body == nil {
		return []domain.UsageEvent{}, nil
	}

	var rows []domain.UsageEvent
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode usage events: %w", err)
	}
	return rows, nil
}
