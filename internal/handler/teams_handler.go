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
// Team Handlers
// ============================================================

func createTeamHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /teams")
		defer span.End()

		var req domain.CreateTeamRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		team, err := svc.Create(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, team)
	}
}

func getTeamHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /teams/{teamId}")
		defer span.End()

		team, err := svc.Get(ctx, UserIDFromContext(ctx), chi.URLParam(r, "teamId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, team)
	}
}

func inviteTeamHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /teams/{teamId}/invites")
		defer span.End()

		var req domain.InviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		invite, token, err := svc.Invite(ctx, UserIDFromContext(ctx), chi.URLParam(r, "teamId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		// The raw token is only available in this response.
		writeJSON(w, http.StatusCreated, map[string]any{
			"invite": invite,
			"token":  token,
		})
	}
}

func acceptInviteHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /teams/invites/accept")
		defer span.End()

		var req domain.AcceptInviteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		team, err := svc.AcceptInvite(ctx, UserIDFromContext(ctx), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, team)
	}
}

func listTeamMembersHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /teams/{teamId}/members")
		defer span.End()

		members, err := svc.Members(ctx, UserIDFromContext(ctx), chi.URLParam(r, "teamId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, members)
	}
}

func removeTeamMemberHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /teams/{teamId}/members/{userId}")
		defer span.End()

		teamID := chi.URLParam(r, "teamId")
		targetID := chi.URLParam(r, "userId")
		if err := svc.RemoveMember(ctx, UserIDFromContext(ctx), teamID, targetID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "member removed", ID: targetID})
	}
}

func teamUsageHandler(svc *service.TeamService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /teams/{teamId}/usage")
		defer span.End()

		usage, err := svc.Usage(ctx, UserIDFromContext(ctx), chi.URLParam(r, "teamId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, usage)
	}
}
