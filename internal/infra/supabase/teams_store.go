package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// ============================================================
// Teams, members & invites
// ============================================================

// CreateTeam inserts a team row.
func (c *Client) CreateTeam(ctx context.Context, team *domain.Team) (*domain.Team, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTeam")
	defer span.End()

	row := map[string]any{
		"id":         team.ID,
		"owner_id":   team.OwnerID,
		"name":       team.Name,
		"created_at": team.CreatedAt.Format(time.RFC3339),
	}
	body, err := c.doPost(ctx, "teams", row)
	if err != nil {
		return nil, err
	}

	var results []domain.Team
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result from teams insert")
	}
	return &results[0], nil
}

// GetTeam fetches a team by ID.
func (c *Client) GetTeam(ctx context.Context, teamID string) (*domain.Team, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTeam")
	defer span.End()

	path := fmt.Sprintf("teams?id=eq.%s&limit=1", url.QueryEscape(teamID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/teams", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "team", ID: teamID}
	}

	var rows []domain.Team
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode team: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "team", ID: teamID}
	}
	return &rows[0], nil
}

// GetTeamMember fetches a single membership row; nil when not a member.
func (c *Client) GetTeamMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetTeamMember")
	defer span.End()

	path := fmt.Sprintf("team_members?team_id=eq.%s&user_id=eq.%s&limit=1",
		url.QueryEscape(teamID), url.QueryEscape(userID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/teams", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.TeamMember
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode team member: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListTeamMembers fetches all members of a team.
func (c *Client) ListTeamMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTeamMembers")
	defer span.End()

	path := fmt.Sprintf("team_members?team_id=eq.%s&order=joined_at.asc", url.QueryEscape(teamID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/teams", Err: err}
	}
	if body == nil {
		return []domain.TeamMember{}, nil
	}

	var rows []domain.TeamMember
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode team members: %w", err)
	}
	return rows, nil
}

// AddTeamMember inserts a membership row.
func (c *Client) AddTeamMember(ctx context.Context, member *domain.TeamMember) error {
	ctx, span := tracer.Start(ctx, "Supabase.AddTeamMember")
	defer span.End()

	row := map[string]any{
		"team_id":   member.TeamID,
		"user_id":   member.UserID,
		"role":      member.Role,
		"joined_at": member.JoinedAt.Format(time.RFC3339),
	}
	_, err := c.doPost(ctx, "team_members", row)
	return err
}

// RemoveTeamMember deletes a membership row.
func (c *Client) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RemoveTeamMember")
	defer span.End()

	path := fmt.Sprintf("team_members?team_id=eq.%s&user_id=eq.%s",
		url.QueryEscape(teamID), url.QueryEscape(userID))
	return c.doDelete(ctx, path)
}

// inviteRow includes the stored token hash, which never leaves this package.
type inviteRow struct {
	ID         string     `json:"id"`
	TeamID     string     `json:"team_id"`
	Email      string     `json:"email"`
	TokenHash  string     `json:"token_hash"`
	ExpiresAt  time.Time  `json:"expires_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (r *inviteRow) toDomain() *domain.TeamInvite {
	return &domain.TeamInvite{
		ID:         r.ID,
		TeamID:     r.TeamID,
		Email:      r.Email,
		ExpiresAt:  r.ExpiresAt,
		AcceptedAt: r.AcceptedAt,
		CreatedAt:  r.CreatedAt,
	}
}

// CreateInvite inserts an invite row. invite.Token must already be hashed
// by the service; the raw token is never stored.
func (c *Client) CreateInvite(ctx context.Context, invite *domain.TeamInvite) (*domain.TeamInvite, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateInvite")
	defer span.End()

	row := map[string]any{
		"id":         invite.ID,
		"team_id":    invite.TeamID,
		"email":      invite.Email,
		"token_hash": invite.Token,
		"expires_at": invite.ExpiresAt.Format(time.RFC3339),
		"created_at": invite.CreatedAt.Format(time.RFC3339),
	}
	body, err := c.doPost(ctx, "team_invites", row)
	if err != nil {
		return nil, err
	}

	var results []inviteRow
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("decode invite: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no result from team_invites insert")
	}
	return results[0].toDomain(), nil
}

// GetInviteByToken looks an invite up by its token hash.
func (c *Client) GetInviteByToken(ctx context.Context, tokenHash string) (*domain.TeamInvite, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetInviteByToken")
	defer span.End()

	path := fmt.Sprintf("team_invites?token_hash=eq.%s&limit=1", url.QueryEscape(tokenHash))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/teams", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []inviteRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode invite: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toDomain(), nil
}

// MarkInviteAccepted stamps accepted_at on an invite.
func (c *Client) MarkInviteAccepted(ctx context.Context, inviteID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.MarkInviteAccepted")
	defer span.End()

	path := fmt.Sprintf("team_invites?id=eq.%s", url.QueryEscape(inviteID))
	return c.doPatch(ctx, path, map[string]any{
		"accepted_at": time.Now().Format(time.RFC3339),
	})
}

// SetUserTeam links a user profile to a team.
func (c *Client) SetUserTeam(ctx context.Context, userID, teamID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SetUserTeam")
	defer span.End()

	path := fmt.Sprintf("user_profiles?id=eq.%s", url.QueryEscape(userID))
	return c.doPatch(ctx, path, map[string]any{"team_id": teamID})
}
