// Package service contains the application services orchestrating stores
// and external clients behind the HTTP handlers.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const bcryptCost = 12

// AuthService orchestrates registration, login and token rotation.
type AuthService struct {
	store      port.AuthStore
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(store port.AuthStore, jwtSecret string, accessTTL, refreshTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		store:      store,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// ============================================================
// Register - POST /v1/auth/register
// ============================================================

func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if len(req.Password) < 8 {
		return nil, &domain.ErrValidation{Field: "password", Message: "password must be at least 8 characters"}
	}

	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if existing != nil {
		return nil, &domain.ErrConflict{Message: "email already registered"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	resp, err := s.store.CreateUserWithCredentials(ctx, req, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("agent registered",
		zap.String("user_id", resp.UserID),
		zap.String("email", maskEmail(req.Email)),
	)

	return resp, nil
}

// ============================================================
// Login - POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))

	profile, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if profile == nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	cred, err := s.store.GetCredentials(ctx, profile.ID)
	if err != nil {
		// Profile exists but no credentials were saved. Treat as invalid
		// credentials to avoid leaking internal state.
		s.logger.Warn("login: credentials missing for existing profile",
			zap.String("user_id", profile.ID),
		)
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: failed password attempt", zap.String("user_id", profile.ID))
		return nil, &domain.ErrUnauthorized{Message: "invalid credentials"}
	}

	return s.issueTokens(ctx, profile)
}

// ============================================================
// Refresh - POST /v1/auth/refresh
// ============================================================

func (s *AuthService) Refresh(ctx context.Context, req *domain.RefreshRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	tokenHash := hashToken(req.RefreshToken)

	stored, err := s.store.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("get refresh token: %w", err)
	}
	if stored == nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid refresh token"}
	}

	if stored.ExpiresAt.Before(time.Now()) {
		s.logger.Warn("refresh: expired token used", zap.String("user_id", stored.UserID))
		_ = s.store.RevokeRefreshToken(ctx, tokenHash)
		return nil, &domain.ErrUnauthorized{Message: "refresh token expired"}
	}

	// Rotation: the presented token is single use.
	_ = s.store.RevokeRefreshToken(ctx, tokenHash)

	profile, err := s.store.GetUserByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if profile == nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid refresh token"}
	}

	return s.issueTokens(ctx, profile)
}

// ============================================================
// Logout - POST /v1/auth/logout
// ============================================================

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	if err := s.store.RevokeAllRefreshTokens(ctx, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	s.logger.Info("agent logged out", zap.String("user_id", userID))
	return nil
}

// ============================================================
// Profile - GET/PUT /v1/profile
// ============================================================

func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.GetProfile")
	defer span.End()

	profile, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return profile, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req *domain.UpdateProfileRequest) (*domain.UserProfile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.UpdateProfile")
	defer span.End()

	updates := map[string]any{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Brokerage != "" {
		updates["brokerage"] = req.Brokerage
	}
	if req.DefaultTone != "" {
		updates["default_tone"] = req.DefaultTone
	}
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}

	return s.store.UpdateUserProfile(ctx, userID, updates)
}

// ============================================================
// JWT helpers
// ============================================================

// JWTClaims are the custom claims carried by access tokens.
type JWTClaims struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "invalid token type"}
	}

	return claims, nil
}

func (s *AuthService) issueTokens(ctx context.Context, profile *domain.UserProfile) (*domain.LoginResponse, error) {
	accessToken, err := s.signAccessToken(profile.ID, profile.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.store.StoreRefreshToken(ctx, profile.ID, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	s.logger.Info("agent logged in", zap.String("user_id", profile.ID))

	return &domain.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(s.accessTTL.Seconds()),
		UserID:       profile.ID,
		Name:         profile.Name,
	}, nil
}

func (s *AuthService) signAccessToken(userID, email string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Sub:   userID,
		Email: email,
		Type:  "access",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    "lister-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) generateRefreshToken() (raw string, hashed string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	hashed = hashToken(raw)
	return raw, hashed, nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func maskEmail(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "***"
	}
	return string(parts[0][0]) + "***@" + parts[1]
}
