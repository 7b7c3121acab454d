package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

func newAuthFixture() (*service.AuthService, *memAuthStore) {
	store := newMemAuthStore()
	svc := service.NewAuthService(store, "test-secret", 15*time.Minute, 720*time.Hour, zap.NewNop())
	return svc, store
}

func registerAgent(t *testing.T, svc *service.AuthService) *domain.RegisterResponse {
	t.Helper()
	resp, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:    "agent@example.com",
		Password: "correct-horse",
		Name:     "Sam Agent",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	svc, store := newAuthFixture()
	resp := registerAgent(t, svc)

	if store.creds[resp.UserID].PasswordHash == "correct-horse" {
		t.Fatal("expected password to be hashed")
	}

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "Agent@Example.com", // case-insensitive
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("expected login to succeed, got %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}
	if login.UserID != resp.UserID {
		t.Errorf("expected user %s, got %s", resp.UserID, login.UserID)
	}

	claims, err := svc.ValidateAccessToken(login.AccessToken)
	if err != nil {
		t.Fatalf("expected access token to validate, got %v", err)
	}
	if claims.Sub != resp.UserID {
		t.Errorf("expected sub %s, got %s", resp.UserID, claims.Sub)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, _ := newAuthFixture()
	registerAgent(t, svc)

	_, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "agent@example.com",
		Password: "wrong-password",
	})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever-pass",
	})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	svc, _ := newAuthFixture()

	cases := []struct {
		name string
		req  *domain.RegisterRequest
	}{
		{"bad email", &domain.RegisterRequest{Email: "not-an-email", Password: "longenough", Name: "A"}},
		{"short password", &domain.RegisterRequest{Email: "a@example.com", Password: "short", Name: "A"}},
		{"missing name", &domain.RegisterRequest{Email: "a@example.com", Password: "longenough"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.req)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newAuthFixture()
	registerAgent(t, svc)

	_, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email:    "agent@example.com",
		Password: "another-pass",
		Name:     "Other",
	})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	svc, _ := newAuthFixture()
	registerAgent(t, svc)

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "agent@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	refreshed, err := svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	if err != nil {
		t.Fatalf("expected refresh to succeed, got %v", err)
	}
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("expected a rotated refresh token")
	}

	// The presented token is single use.
	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected reused token to be rejected, got %v", err)
	}
}

func TestLogout_RevokesAllTokens(t *testing.T) {
	svc, _ := newAuthFixture()
	resp := registerAgent(t, svc)

	login, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email:    "agent@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if err := svc.Logout(context.Background(), resp.UserID); err != nil {
		t.Fatalf("logout: %v", err)
	}

	_, err = svc.Refresh(context.Background(), &domain.RefreshRequest{RefreshToken: login.RefreshToken})
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected refresh after logout to fail, got %v", err)
	}
}

func TestValidateAccessToken_RejectsGarbage(t *testing.T) {
	svc, _ := newAuthFixture()

	_, err := svc.ValidateAccessToken("not-a-jwt")
	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _ := newAuthFixture()
	resp := registerAgent(t, svc)

	updated, err := svc.UpdateProfile(context.Background(), resp.UserID, &domain.UpdateProfileRequest{
		Brokerage:   "Tideline Realty",
		DefaultTone: "luxury",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Brokerage != "Tideline Realty" {
		t.Errorf("expected brokerage updated, got %q", updated.Brokerage)
	}

	_, err = svc.UpdateProfile(context.Background(), resp.UserID, &domain.UpdateProfileRequest{})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error on empty update, got %v", err)
	}
}
