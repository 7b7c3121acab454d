package domain

import "time"

// UserProfile is the agent/broker profile row.
type UserProfile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Brokerage   string    `json:"brokerage,omitempty"`
	DefaultTone string    `json:"default_tone,omitempty"`
	TeamID      string    `json:"team_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AuthCredential is the stored password hash for a user.
type AuthCredential struct {
	UserID       string `json:"user_id"`
	PasswordHash string `json:"password_hash"`
}

// AuthRefreshToken is a stored (hashed) refresh token.
type AuthRefreshToken struct {
	UserID    string    `json:"user_id"`
	TokenHash string    `json:"token_hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RegisterRequest is the payload for POST /v1/auth/register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Brokerage string `json:"brokerage,omitempty"`
}

// RegisterResponse is returned after successful registration.
type RegisterResponse struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// LoginRequest is the payload for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the token pair.
type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	UserID       string `json:"userId"`
	Name         string `json:"name,omitempty"`
}

// RefreshRequest is the payload for POST /v1/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateProfileRequest is the payload for PUT /v1/profile.
type UpdateProfileRequest struct {
	Name        string `json:"name,omitempty"`
	Brokerage   string `json:"brokerage,omitempty"`
	DefaultTone string `json:"defaultTone,omitempty"`
}
