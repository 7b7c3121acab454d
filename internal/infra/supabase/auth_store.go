package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// ============================================================
// AuthStore implementation - auth CRUD via PostgREST
// ============================================================

// --- User lookup ---

func (c *Client) GetUserByID(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByID")
	defer span.End()

	path := fmt.Sprintf("user_profiles?id=eq.%s&limit=1", url.QueryEscape(userID))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.UserProfile
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode user_profiles: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) GetUserByEmail(ctx context.Context, email string) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByEmail")
	defer span.End()

	path := fmt.Sprintf("user_profiles?email=eq.%s&limit=1", url.QueryEscape(email))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, nil // not found is not an error for auth lookup
	}

	var rows []domain.UserProfile
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode user_profiles: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// --- Registration ---

func (c *Client) CreateUserWithCredentials(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.RegisterResponse, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUserWithCredentials")
	defer span.End()

	userID := uuid.New().String()

	// 1. Create the agent profile
	profileData := map[string]any{
		"id":         userID,
		"email":      req.Email,
		"name":       req.Name,
		"created_at": time.Now().Format(time.RFC3339),
	}
	if req.Brokerage != "" {
		profileData["brokerage"] = req.Brokerage
	}

	_, err := c.doPost(ctx, "user_profiles", profileData)
	if err != nil {
		return nil, fmt.Errorf("create user profile: %w", err)
	}

	// 2. Create auth credentials
	credData := map[string]any{
		"id":            uuid.New().String(),
		"user_id":       userID,
		"password_hash": passwordHash,
	}

	_, err = c.doPost(ctx, "auth_credentials", credData)
	if err != nil {
		return nil, fmt.Errorf("create auth credentials: %w", err)
	}

	return &domain.RegisterResponse{
		UserID: userID,
		Email:  req.Email,
	}, nil
}

// --- Credentials ---

func (c *Client) GetCredentials(ctx context.Context, userID string) (*domain.AuthCredential, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCredentials")
	defer span.End()

	path := fmt.Sprintf("auth_credentials?user_id=eq.%s&limit=1", url.QueryEscape(userID))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}

	var rows []domain.AuthCredential
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode auth_credentials: %w", err)
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}
	return &rows[0], nil
}

// --- Profile ---

func (c *Client) UpdateUserProfile(ctx context.Context, userID string, updates map[string]any) (*domain.UserProfile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUserProfile")
	defer span.End()

	path := fmt.Sprintf("user_profiles?id=eq.%s", url.QueryEscape(userID))
	if err := c.doPatch(ctx, path, updates); err != nil {
		return nil, err
	}

	profile, err := c.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return profile, nil
}

// --- Refresh tokens ---

func (c *Client) StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.StoreRefreshToken")
	defer span.End()

	data := map[string]any{
		"id":         uuid.New().String(),
		"user_id":    userID,
		"token_hash": tokenHash,
		"expires_at": expiresAt.Format(time.RFC3339),
		"revoked":    false,
	}

	_, err := c.doPost(ctx, "auth_refresh_tokens", data)
	return err
}

func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.AuthRefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRefreshToken")
	defer span.End()

	path := fmt.Sprintf("auth_refresh_tokens?token_hash=eq.%s&revoked=eq.false&limit=1", url.QueryEscape(tokenHash))
	body, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.AuthRefreshToken
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode auth_refresh_tokens: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeRefreshToken")
	defer span.End()

	path := fmt.Sprintf("auth_refresh_tokens?token_hash=eq.%s", url.QueryEscape(tokenHash))
	return c.doPatch(ctx, path, map[string]any{"revoked": true})
}

func (c *Client) RevokeAllRefreshTokens(ctx context.Context, userID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeAllRefreshTokens")
	defer span.End()

	path := fmt.Sprintf("auth_refresh_tokens?user_id=eq.%s&revoked=eq.false", url.QueryEscape(userID))
	return c.doPatch(ctx, path, map[string]any{"revoked": true})
}
