package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/service"
)

// ============================================================
// Analytics Handlers
// ============================================================

func analyticsSummaryHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /analytics/summary")
		defer span.End()

		summary, err := svc.Summary(ctx, UserIDFromContext(ctx), parseDays(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func teamAnalyticsHandler(svc *service.AnalyticsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /analytics/team/{teamId}")
		defer span.End()

		analytics, err := svc.Team(ctx, UserIDFromContext(ctx), chi.URLParam(r, "teamId"), parseDays(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, analytics)
	}
}

// parseDays reads the trailing window from either ?period=7d|30d|90d or a
// bare ?days=N.
func parseDays(r *http.Request) int {
	if v := r.URL.Query().Get("period"); v != "" {
		if d, err := strconv.Atoi(strings.TrimSuffix(v, "d")); err == nil {
			return d
		}
	}
	if v := r.URL.Query().Get("days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil {
			return d
		}
	}
	return 30
}
