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
// Integration Handlers
// ============================================================

func createIntegrationHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /integrations")
		defer span.End()

		var req domain.IntegrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cfg, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, cfg)
	}
}

func listIntegrationsHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /integrations")
		defer span.End()

		configs, err := svc.List(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, configs)
	}
}

func getIntegrationHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /integrations/{integrationId}")
		defer span.End()

		cfg, err := svc.Get(ctx, UserIDFromContext(ctx), chi.URLParam(r, "integrationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func updateIntegrationHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /integrations/{integrationId}")
		defer span.End()

		var req domain.IntegrationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		cfg, err := svc.Update(ctx, UserIDFromContext(ctx), chi.URLParam(r, "integrationId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

func deleteIntegrationHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /integrations/{integrationId}")
		defer span.End()

		id := chi.URLParam(r, "integrationId")
		if err := svc.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "integration deleted", ID: id})
	}
}

func pushIntegrationHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /integrations/{integrationId}/push")
		defer span.End()

		var req domain.PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.GenerationID == "" {
			writeError(w, http.StatusBadRequest, "generationId is required")
			return
		}

		rec, err := svc.Push(ctx, UserIDFromContext(ctx), chi.URLParam(r, "integrationId"), &req)
		if err != nil {
			// A failed delivery still produced a record worth returning.
			if rec != nil {
				writeJSON(w, http.StatusBadGateway, rec)
				return
			}
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func integrationHistoryHandler(svc *service.IntegrationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /integrations/{integrationId}/pushes")
		defer span.End()

		page, pageSize := parsePagination(r)
		records, err := svc.History(ctx, UserIDFromContext(ctx), chi.URLParam(r, "integrationId"), page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}
