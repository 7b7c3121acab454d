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
// Generation Handlers
// ============================================================

func createGenerationHandler(svc *service.GenerationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /generations")
		defer span.End()

		var req domain.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		gen, err := svc.Generate(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, gen)
	}
}

func listGenerationsHandler(svc *service.GenerationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /generations")
		defer span.End()

		page, pageSize := parsePagination(r)
		copyType := r.URL.Query().Get("copy_type")

		resp, err := svc.List(ctx, UserIDFromContext(ctx), copyType, page, pageSize)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getGenerationHandler(svc *service.GenerationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /generations/{generationId}")
		defer span.End()

		gen, err := svc.Get(ctx, UserIDFromContext(ctx), chi.URLParam(r, "generationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, gen)
	}
}

func deleteGenerationHandler(svc *service.GenerationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /generations/{generationId}")
		defer span.End()

		id := chi.URLParam(r, "generationId")
		if err := svc.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "generation deleted", ID: id})
	}
}

func regenerateHandler(svc *service.GenerationService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /generations/{generationId}/regenerate")
		defer span.End()

		gen, err := svc.Regenerate(ctx, UserIDFromContext(ctx), chi.URLParam(r, "generationId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, gen)
	}
}
