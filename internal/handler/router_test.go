package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zprovisionz/lowcountrylister/internal/handler"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"

	"go.uber.org/zap"
)

func newTestRouter() http.Handler {
	return handler.NewRouter(handler.Services{}, handler.RouterConfig{}, observability.NewMetrics(), zap.NewNop())
}

func TestHealthz(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.IncrGeneration("completed", "mls")
	router := handler.NewRouter(handler.Services{}, handler.RouterConfig{}, metrics, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	// The endpoint must expose the application registry, not the
	// process-wide default one.
	if body := rec.Body.String(); !strings.Contains(body, "lister_generations_total") {
		t.Error("expected application metrics in /metrics output")
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/v1/quota", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCronRouteRequiresSecret(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/cron/staging/poll", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestDevToolsDisabledByDefault(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/v1/dev/reset-quota", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Error("expected dev route to be absent when dev tools are off")
	}
}
