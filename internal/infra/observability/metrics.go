package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// Metrics holds all Prometheus metrics for the API.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	tokensUsed      *prometheus.CounterVec
	generations     *prometheus.CounterVec
	stagingJobs     *prometheus.CounterVec
	creditsConsumed prometheus.Counter
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lister_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lister_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lister_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lister_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		tokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lister_llm_tokens_total",
				Help: "Total LLM tokens consumed.",
			},
			[]string{"provider"},
		),
		generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lister_generations_total",
				Help: "Total copy generations by status.",
			},
			[]string{"status", "copy_type"},
		),
		stagingJobs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lister_staging_jobs_total",
				Help: "Total staging job transitions by status.",
			},
			[]string{"status"},
		),
		creditsConsumed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "lister_credits_consumed_total",
				Help: "Total quota credits consumed.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTokens records token usage attributed to a provider.
func (m *Metrics) RecordTokens(provider string, tokens int) {
	m.tokensUsed.WithLabelValues(provider).Add(float64(tokens))
}

// IncrGeneration increments the generation counter.
func (m *Metrics) IncrGeneration(status, copyType string) {
	m.generations.WithLabelValues(status, copyType).Inc()
}

// IncrStagingJob increments the staging transition counter.
func (m *Metrics) IncrStagingJob(status string) {
	m.stagingJobs.WithLabelValues(status).Inc()
}

// AddCreditsConsumed adds to the consumed-credits counter.
func (m *Metrics) AddCreditsConsumed(n int) {
	m.creditsConsumed.Add(float64(n))
}

// GetUsageSnapshot returns a snapshot of usage metrics suitable for the
// GET /v1/metrics/usage endpoint.
func (m *Metrics) GetUsageSnapshot() *domain.UsageMetrics {
	// Prometheus counters expose cumulative values. The status and cache
	// labels here mirror the ones the services emit.
	openaiTokens := getCounterValue(m.tokensUsed, "openai")
	geminiTokens := getCounterValue(m.tokensUsed, "gemini")

	var completed, fallback, failed float64
	for _, ct := range []string{domain.CopyTypeMLS, domain.CopyTypeAirbnb, domain.CopyTypeSocial} {
		completed += getCounterValue2(m.generations, "completed", ct)
		fallback += getCounterValue2(m.generations, "fallback", ct)
		failed += getCounterValue2(m.generations, "failed", ct)
	}
	cacheHits := getCounterValue(m.cacheHits, "geocode")
	cacheMisses := getCounterValue(m.cacheMisses, "geocode")

	total := completed + fallback + failed
	totalTokens := openaiTokens + geminiTokens

	avgTokens := float64(0)
	errorRate := float64(0)
	fallbackRate := float64(0)
	cacheHitRate := float64(0)

	if total > 0 {
		avgTokens = totalTokens / total
		errorRate = failed / total
		fallbackRate = fallback / total
	}
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	// Estimated cost: blended ~$0.01/1k tokens across gpt-4o and gemini-1.5-pro
	estimatedCost := totalTokens / 1000 * 0.01

	return &domain.UsageMetrics{
		TotalGenerations:    int64(total),
		ErrorRate:           errorRate,
		FallbackRate:        fallbackRate,
		AvgTokensPerRequest: avgTokens,
		EstimatedCostUsd:    estimatedCost,
		CacheHitRate:        cacheHitRate,
		Period:              "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func getCounterValue2(cv *prometheus.CounterVec, l1, l2 string) float64 {
	counter := cv.WithLabelValues(l1, l2)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
