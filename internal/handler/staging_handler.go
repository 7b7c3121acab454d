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
// Virtual Staging Handlers
// ============================================================

func createStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /staging")
		defer span.End()

		var req domain.StagingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		job, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		// The vendor submission runs async; 202 signals the job is queued.
		writeJSON(w, http.StatusAccepted, job)
	}
}

func listStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /staging")
		defer span.End()

		page, pageSize := parsePagination(r)
		status := r.URL.Query().Get("status")

		resp, err := svc.List(ctx, UserIDFromContext(ctx), status, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /staging/{jobId}")
		defer span.End()

		job, err := svc.Get(ctx, UserIDFromContext(ctx), chi.URLParam(r, "jobId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func cancelStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /staging/{jobId}/cancel")
		defer span.End()

		job, err := svc.Cancel(ctx, UserIDFromContext(ctx), chi.URLParam(r, "jobId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}
