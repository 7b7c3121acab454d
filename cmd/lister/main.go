package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zprovisionz/lowcountrylister/internal/config"
	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/handler"
	"github.com/zprovisionz/lowcountrylister/internal/infra/cache"
	"github.com/zprovisionz/lowcountrylister/internal/infra/client"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/infra/resilience"
	"github.com/zprovisionz/lowcountrylister/internal/infra/supabase"
	"github.com/zprovisionz/lowcountrylister/internal/service"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.Int("staging_max_attempts", cfg.StagingMaxAttempts),
		zap.Int("bulk_batch_size", cfg.BulkBatchSize),
		zap.Bool("dev_tools", cfg.DevTools),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "lowcountrylister")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Cache ---
	geoCache := cache.New[*domain.GeoResult](cfg.CacheTTL)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	supabaseCB := resilience.NewCircuitBreaker("supabase")
	copyCB := resilience.NewCircuitBreaker("copy-providers")
	geoCB := resilience.NewCircuitBreaker("geocoding")
	stagingCB := resilience.NewCircuitBreaker("staging-vendors")
	pollBulkhead := resilience.NewBulkhead(cfg.MaxConcurrency)

	// --- Store ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	if cfg.SupabaseURL == "" {
		logger.Fatal("SUPABASE_URL is required")
	}
	store := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		supabaseCB,
		resilienceCfg,
		logger,
	)

	// --- Clients ---
	openaiClient := client.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, copyCB, resilienceCfg)
	geminiClient, err := client.NewGeminiClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, copyCB, resilienceCfg)
	if err != nil {
		logger.Fatal("failed to init gemini client", zap.Error(err))
	}
	defer geminiClient.Close()

	geocodio := client.NewGeocodioClient(httpClient, "", cfg.GeocodioAPIKey, geoCB, resilienceCfg)
	googleMaps := client.NewGoogleMapsClient(httpClient, "", cfg.GoogleMapsAPIKey, geoCB, resilienceCfg)

	stagingPrimary := client.NewStagingVendorClient(httpClient, "primary", cfg.StagingPrimaryURL, cfg.StagingPrimaryKey, stagingCB, resilienceCfg)
	stagingFallback := client.NewStagingVendorClient(httpClient, "fallback", cfg.StagingFallbackURL, cfg.StagingFallbackKey, stagingCB, resilienceCfg)

	pusher := client.NewHTTPPusher(httpClient, resilienceCfg)

	// --- Services ---
	authSvc := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL, logger)
	quotaSvc := service.NewQuotaService(store, store, store, cfg.TierForPrice, metrics, logger)
	generationSvc := service.NewGenerationService(
		store,
		store,
		store,
		quotaSvc,
		openaiClient,
		geminiClient,
		geocodio,
		googleMaps,
		geoCache,
		metrics,
		logger,
	)
	stagingSvc := service.NewStagingService(
		store,
		store,
		store,
		store,
		quotaSvc,
		stagingPrimary,
		stagingFallback,
		pollBulkhead,
		cfg.StagingMaxAttempts,
		cfg.StagingPollBatch,
		metrics,
		logger,
	)
	bulkSvc := service.NewBulkService(store, generationSvc, quotaSvc, cfg.BulkBatchSize, logger)
	teamSvc := service.NewTeamService(store, store, store, logger)
	analyticsSvc := service.NewAnalyticsService(store, store, logger)
	integrationSvc := service.NewIntegrationService(store, store, pusher, logger)

	// --- Router ---
	router := handler.NewRouter(
		handler.Services{
			Auth:         authSvc,
			Generations:  generationSvc,
			Staging:      stagingSvc,
			Quota:        quotaSvc,
			Bulk:         bulkSvc,
			Teams:        teamSvc,
			Analytics:    analyticsSvc,
			Integrations: integrationSvc,
		},
		handler.RouterConfig{
			AllowedOrigins:      cfg.AllowedOrigins,
			StripeWebhookSecret: cfg.StripeWebhookSecret,
			CronSecret:          cfg.CronSecret,
			DevTools:            cfg.DevTools,
		},
		metrics,
		logger,
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
