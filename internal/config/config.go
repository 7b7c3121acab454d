package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// CORS
	AllowedOrigins []string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Copy providers
	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string

	// Geocoding
	GeocodioAPIKey   string
	GoogleMapsAPIKey string

	// Virtual staging vendors
	StagingPrimaryURL  string
	StagingPrimaryKey  string
	StagingFallbackURL string
	StagingFallbackKey string
	StagingMaxAttempts int
	StagingPollBatch   int

	// Bulk processing
	BulkBatchSize int

	// Stripe
	StripeWebhookSecret string
	StripePriceStarter  string
	StripePricePro      string
	StripePriceTeam     string

	// Cron endpoint protection
	CronSecret string

	// JWT / Auth
	JWTSecret     string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration

	// Dev mode
	DevTools bool // DEV_TOOLS=true enables the /v1/dev endpoints
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 30*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 10),

		CacheTTL: getEnvDuration("CACHE_TTL", 15*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-1.5-pro"),

		GeocodioAPIKey:   getEnv("GEOCODIO_API_KEY", ""),
		GoogleMapsAPIKey: getEnv("GOOGLE_MAPS_API_KEY", ""),

		StagingPrimaryURL:  getEnv("STAGING_PRIMARY_URL", ""),
		StagingPrimaryKey:  getEnv("STAGING_PRIMARY_KEY", ""),
		StagingFallbackURL: getEnv("STAGING_FALLBACK_URL", ""),
		StagingFallbackKey: getEnv("STAGING_FALLBACK_KEY", ""),
		StagingMaxAttempts: getEnvInt("STAGING_MAX_ATTEMPTS", 3),
		StagingPollBatch:   getEnvInt("STAGING_POLL_BATCH", 20),

		BulkBatchSize: getEnvInt("BULK_BATCH_SIZE", 10),

		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripePriceStarter:  getEnv("STRIPE_PRICE_STARTER", ""),
		StripePricePro:      getEnv("STRIPE_PRICE_PRO", ""),
		StripePriceTeam:     getEnv("STRIPE_PRICE_TEAM", ""),

		CronSecret: getEnv("CRON_SECRET", ""),

		JWTSecret:     getEnv("JWT_SECRET", "lister-default-dev-secret-change-me"),
		JWTAccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 30*24*time.Hour),

		DevTools: getEnv("DEV_TOOLS", "false") == "true",
	}
}

// TierForPrice maps a Stripe price ID to a subscription tier.
// Unknown or empty price IDs return "". The empty check also keeps an
// unset STRIPE_PRICE_* env from matching an empty incoming ID.
func (c *Config) TierForPrice(priceID string) string {
	if priceID == "" {
		return ""
	}
	switch priceID {
	case c.StripePriceStarter:
		return "starter"
	case c.StripePricePro:
		return "pro"
	case c.StripePriceTeam:
		return "team"
	default:
		return ""
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
