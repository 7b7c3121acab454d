package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

var tracer = otel.Tracer("handler")

// Services bundles everything the router needs.
type Services struct {
	Auth         *service.AuthService
	Generations  *service.GenerationService
	Staging      *service.StagingService
	Quota        *service.QuotaService
	Bulk         *service.BulkService
	Teams        *service.TeamService
	Analytics    *service.AnalyticsService
	Integrations *service.IntegrationService
}

// RouterConfig carries the router-level knobs out of the main config.
type RouterConfig struct {
	AllowedOrigins      []string
	StripeWebhookSecret string
	CronSecret          string
	DevTools            bool
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, cfg RouterConfig, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Generations, logger))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// Auth (public)
		// =============================================
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authRegisterHandler(svcs.Auth, logger))
			r.Post("/login", authLoginHandler(svcs.Auth, logger))
			r.Post("/refresh", authRefreshHandler(svcs.Auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(JWTAuthMiddleware(svcs.Auth, logger))
				r.Post("/logout", authLogoutHandler(svcs.Auth, logger))
			})
		})

		// =============================================
		// Stripe webhook (Stripe-signed, not JWT)
		// =============================================
		r.Post("/webhooks/stripe", stripeWebhookHandler(svcs.Quota, cfg.StripeWebhookSecret, logger))

		// =============================================
		// Cron endpoints (shared-secret header)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(CronAuthMiddleware(cfg.CronSecret, logger))
			r.Post("/cron/staging/poll", cronStagingPollHandler(svcs.Staging, logger))
			r.Post("/cron/bulk/process", cronBulkProcessHandler(svcs.Bulk, logger))
		})

		// =============================================
		// Authenticated API
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svcs.Auth, logger))

			// Profile
			r.Get("/profile", getProfileHandler(svcs.Auth, logger))
			r.Put("/profile", updateProfileHandler(svcs.Auth, logger))

			// Listing copy
			r.Post("/generations", createGenerationHandler(svcs.Generations, logger))
			r.Get("/generations", listGenerationsHandler(svcs.Generations, logger))
			r.Get("/generations/{generationId}", getGenerationHandler(svcs.Generations, logger))
			r.Delete("/generations/{generationId}", deleteGenerationHandler(svcs.Generations, logger))
			r.Post("/generations/{generationId}/regenerate", regenerateHandler(svcs.Generations, logger))

			// Virtual staging
			r.Post("/staging", createStagingHandler(svcs.Staging, logger))
			r.Get("/staging", listStagingHandler(svcs.Staging, logger))
			r.Get("/staging/{jobId}", getStagingHandler(svcs.Staging, logger))
			r.Post("/staging/{jobId}/cancel", cancelStagingHandler(svcs.Staging, logger))

			// Quota
			r.Get("/quota", quotaStatusHandler(svcs.Quota, logger))

			// Bulk generation
			r.Post("/bulk", createBulkHandler(svcs.Bulk, logger))
			r.Get("/bulk/{jobId}", getBulkHandler(svcs.Bulk, logger))

			// Teams
			r.Post("/teams", createTeamHandler(svcs.Teams, logger))
			r.Post("/teams/invites/accept", acceptInviteHandler(svcs.Teams, logger))
			r.Get("/teams/{teamId}", getTeamHandler(svcs.Teams, logger))
			r.Post("/teams/{teamId}/invites", inviteTeamHandler(svcs.Teams, logger))
			r.Get("/teams/{teamId}/members", listTeamMembersHandler(svcs.Teams, logger))
			r.Delete("/teams/{teamId}/members/{userId}", removeTeamMemberHandler(svcs.Teams, logger))
			r.Get("/teams/{teamId}/usage", teamUsageHandler(svcs.Teams, logger))

			// Analytics
			r.Get("/analytics/summary", analyticsSummaryHandler(svcs.Analytics, logger))
			r.Get("/analytics/team/{teamId}", teamAnalyticsHandler(svcs.Analytics, logger))

			// Integrations
			r.Post("/integrations", createIntegrationHandler(svcs.Integrations, logger))
			r.Get("/integrations", listIntegrationsHandler(svcs.Integrations, logger))
			r.Get("/integrations/{integrationId}", getIntegrationHandler(svcs.Integrations, logger))
			r.Put("/integrations/{integrationId}", updateIntegrationHandler(svcs.Integrations, logger))
			r.Delete("/integrations/{integrationId}", deleteIntegrationHandler(svcs.Integrations, logger))
			r.Post("/integrations/{integrationId}/push", pushIntegrationHandler(svcs.Integrations, logger))
			r.Get("/integrations/{integrationId}/pushes", integrationHistoryHandler(svcs.Integrations, logger))

			// Usage metrics
			r.Get("/metrics/usage", usageMetricsHandler(metrics, logger))

			// 🛠 Dev Tools (testing helpers)
			if cfg.DevTools {
				r.Post("/dev/reset-quota", devResetQuotaHandler(svcs.Quota, logger))
				r.Post("/dev/grant-credits", devGrantCreditsHandler(svcs.Quota, logger))
				r.Post("/dev/complete-staging", devCompleteStagingHandler(svcs.Staging, logger))
			}
		})
	})

	return r
}
