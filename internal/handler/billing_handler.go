package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

// ============================================================
// Quota & Billing Handlers
// ============================================================

const maxWebhookBody = 64 * 1024

func quotaStatusHandler(svc *service.QuotaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /quota")
		defer span.End()

		status, err := svc.Status(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

// stripeWebhookHandler verifies the Stripe signature, extracts the
// subscription state and hands it to the quota service. Unhandled event
// types are acknowledged so Stripe stops retrying them.
func stripeWebhookHandler(svc *service.QuotaService, webhookSecret string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /webhooks/stripe")
		defer span.End()

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "unable to read body")
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), webhookSecret)
		if err != nil {
			logger.Warn("stripe: signature verification failed", zap.Error(err))
			writeError(w, http.StatusBadRequest, "invalid signature")
			return
		}

		switch event.Type {
		case "customer.subscription.created",
			"customer.subscription.updated",
			"customer.subscription.deleted":
		case "invoice.paid":
			var inv stripe.Invoice
			if err := json.Unmarshal(event.Data.Raw, &inv); err != nil || inv.Customer == nil {
				logger.Error("stripe: malformed invoice payload",
					zap.String("event_id", event.ID),
					zap.Error(err),
				)
				writeError(w, http.StatusBadRequest, "malformed event payload")
				return
			}
			if err := svc.ApplyInvoicePaid(ctx, event.ID, inv.Customer.ID); err != nil {
				handleServiceError(w, err, logger)
				return
			}
			writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "processed", ID: event.ID})
			return
		default:
			writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "ignored"})
			return
		}

		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			logger.Error("stripe: malformed subscription payload",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			writeError(w, http.StatusBadRequest, "malformed event payload")
			return
		}

		upd := &domain.SubscriptionUpdate{
			EventID:        event.ID,
			EventType:      string(event.Type),
			SubscriptionID: sub.ID,
			Status:         string(sub.Status),
			PeriodStart:    time.Unix(sub.CurrentPeriodStart, 0),
			PeriodEnd:      time.Unix(sub.CurrentPeriodEnd, 0),
		}
		if sub.Customer != nil {
			upd.StripeCustomerID = sub.Customer.ID
		}
		if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
			upd.PriceID = sub.Items.Data[0].Price.ID
		}

		if err := svc.ApplySubscriptionUpdate(ctx, upd); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "processed", ID: event.ID})
	}
}

// ============================================================
// Dev Tools Handlers
// ============================================================

func devResetQuotaHandler(svc *service.QuotaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/reset-quota")
		defer span.End()

		status, err := svc.DevResetQuota(ctx, UserIDFromContext(ctx))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func devGrantCreditsHandler(svc *service.QuotaService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/grant-credits")
		defer span.End()

		var req domain.DevGrantCreditsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		status, err := svc.DevGrantCredits(ctx, UserIDFromContext(ctx), req.Credits)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func devCompleteStagingHandler(svc *service.StagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/dev/complete-staging")
		defer span.End()

		var req domain.DevCompleteStagingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		job, err := svc.DevCompleteStaging(ctx, UserIDFromContext(ctx), req.JobID, req.ResultURL)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}
