package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

// ============================================================
// Bulk Generation Handlers
// ============================================================

func createBulkHandler(svc *service.BulkService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /bulk")
		defer span.End()

		var req domain.BulkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		job, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
	}
}

func getBulkHandler(svc *service.BulkService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /bulk/{jobId}")
		defer span.End()

		job, err := svc.Get(ctx, UserIDFromContext(ctx), chi.URLParam(r, "jobId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// ============================================================
// Cron Handlers - invoked by the external scheduler
// ============================================================

func cronStagingPollHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cron/staging/poll")
		defer span.End()

		result, err := svc.Poll(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func cronBulkProcessHandler(svc *service.BulkService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cron/bulk/process")
		defer span.End()

		result, err := svc.Process(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
