package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/cache"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

type genFixture struct {
	svc       *service.GenerationService
	store     *memGenerationStore
	analytics *memAnalyticsStore
	quota     *memQuotaStore
	primary   *stubCopyGenerator
	fallback  *stubCopyGenerator
	geocoder  *stubGeocoder
	backup    *stubGeocoder
	geoCache  *cache.InMemory[*domain.GeoResult]
	metrics   *observability.Metrics
}

func newGenFixture() *genFixture {
	auth := newMemAuthStore()
	auth.addUser(&domain.UserProfile{ID: "agent-1", Email: "a@example.com"})
	team := newMemTeamStore(auth)
	quotaStore := newMemQuotaStore()
	quotaSvc := service.NewQuotaService(quotaStore, team, auth, testTierFor, observability.NewMetrics(), zap.NewNop())

	f := &genFixture{
		store:     newMemGenerationStore(),
		analytics: &memAnalyticsStore{},
		quota:     quotaStore,
		primary: &stubCopyGenerator{
			name:   "openai",
			result: &domain.CopyResult{Content: "Charming cottage near the marsh.", Provider: "openai", TokensUsed: 420},
		},
		fallback: &stubCopyGenerator{
			name:   "gemini",
			result: &domain.CopyResult{Content: "Sunlit cottage with marsh views.", Provider: "gemini", TokensUsed: 380},
		},
		geocoder: &stubGeocoder{
			name: "geocodio",
			geo: &domain.GeoResult{
				Formatted: "123 King St, Charleston, SC 29401",
				Latitude:  32.78,
				Longitude: -79.93,
				County:    "Charleston County",
				Accurate:  true,
				Provider:  "geocodio",
			},
		},
		backup:   &stubGeocoder{name: "google"},
		geoCache: cache.New[*domain.GeoResult](time.Minute),
		metrics:  observability.NewMetrics(),
	}
	f.svc = service.NewGenerationService(
		f.store,
		f.analytics,
		auth,
		quotaSvc,
		f.primary,
		f.fallback,
		f.geocoder,
		f.backup,
		f.geoCache,
		f.metrics,
		zap.NewNop(),
	)
	return f
}

func validRequest(copyType string) *domain.GenerateRequest {
	return &domain.GenerateRequest{
		Address: "123 King St, Charleston SC",
		Property: domain.PropertyDetails{
			PropertyType: "single_family",
			Bedrooms:     3,
			Bathrooms:    2,
			SquareFeet:   1850,
		},
		CopyType: copyType,
		Tone:     "warm",
	}
}

func TestGenerate_Success(t *testing.T) {
	f := newGenFixture()

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeAirbnb))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gen.Provider != "openai" {
		t.Errorf("expected provider openai, got %s", gen.Provider)
	}
	if gen.FormattedAddress != "123 King St, Charleston, SC 29401" {
		t.Errorf("expected formatted address from geocoder, got %s", gen.FormattedAddress)
	}
	if !gen.GeoAccurate {
		t.Error("expected geo_accurate true")
	}
	if gen.TokensUsed != 420 {
		t.Errorf("expected 420 tokens, got %d", gen.TokensUsed)
	}
	if f.quota.quotas["agent-1"].Used != 1 {
		t.Errorf("expected 1 credit consumed, got %d", f.quota.quotas["agent-1"].Used)
	}
	if f.analytics.count() != 1 {
		t.Errorf("expected a usage event, got %d", f.analytics.count())
	}
}

func TestGenerate_FallsBackToSecondProvider(t *testing.T) {
	f := newGenFixture()
	f.primary.err = errors.New("rate limited")

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeSocial))
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if gen.Provider != "gemini" {
		t.Errorf("expected fallback provider gemini, got %s", gen.Provider)
	}

	snap := f.metrics.GetUsageSnapshot()
	if snap.TotalGenerations != 1 {
		t.Errorf("expected 1 generation in snapshot, got %d", snap.TotalGenerations)
	}
	if snap.FallbackRate != 1 {
		t.Errorf("expected fallback rate 1, got %f", snap.FallbackRate)
	}
}

func TestGenerate_SnapshotCountsTraffic(t *testing.T) {
	f := newGenFixture()

	if _, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	snap := f.metrics.GetUsageSnapshot()
	if snap.TotalGenerations != 1 {
		t.Errorf("expected 1 generation in snapshot, got %d", snap.TotalGenerations)
	}
	if snap.CacheHitRate != 0 {
		t.Errorf("expected cache hit rate 0 on first lookup, got %f", snap.CacheHitRate)
	}
	if snap.AvgTokensPerRequest != 420 {
		t.Errorf("expected 420 avg tokens, got %f", snap.AvgTokensPerRequest)
	}
}

func TestGenerate_BothProvidersFail(t *testing.T) {
	f := newGenFixture()
	f.primary.err = errors.New("rate limited")
	f.fallback.err = errors.New("unavailable")

	_, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err == nil {
		t.Fatal("expected error when both providers fail")
	}
}

func TestGenerate_MLSTruncatedAtWordBoundary(t *testing.T) {
	f := newGenFixture()
	long := strings.Repeat("gracious southern living awaits ", 60) // well past the cap
	f.primary.result = &domain.CopyResult{Content: long, Provider: "openai", TokensUsed: 900}

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(gen.Content) > domain.MLSMaxLength {
		t.Errorf("expected content capped at %d chars, got %d", domain.MLSMaxLength, len(gen.Content))
	}
	if strings.HasSuffix(gen.Content, " ") {
		t.Error("expected no trailing space after truncation")
	}
	// A cut mid-word would leave a fragment; the last token must be a
	// whole word from the source text.
	words := strings.Fields(gen.Content)
	last := words[len(words)-1]
	if last != "gracious" && last != "southern" && last != "living" && last != "awaits" {
		t.Errorf("truncation cut mid-word: %q", last)
	}
}

func TestGenerate_MLSTruncationKeepsRunesWhole(t *testing.T) {
	f := newGenFixture()
	// Accented text with no spaces forces the hard cut, which must land
	// on a rune boundary, not a byte offset.
	long := strings.Repeat("café", 400)
	f.primary.result = &domain.CopyResult{Content: long, Provider: "openai", TokensUsed: 900}

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !utf8.ValidString(gen.Content) {
		t.Error("expected truncated content to remain valid UTF-8")
	}
	if n := utf8.RuneCountInString(gen.Content); n != domain.MLSMaxLength {
		t.Errorf("expected %d runes, got %d", domain.MLSMaxLength, n)
	}
}

func TestGenerate_AirbnbNotTruncated(t *testing.T) {
	f := newGenFixture()
	long := strings.Repeat("a stay to remember ", 100)
	f.primary.result = &domain.CopyResult{Content: long, Title: "Marsh View Cottage", Provider: "openai"}

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeAirbnb))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(gen.Content) != len(long) {
		t.Error("expected airbnb copy to keep full length")
	}
	if gen.Title != "Marsh View Cottage" {
		t.Errorf("expected title preserved, got %q", gen.Title)
	}
}

func TestGenerate_GeocodeFailureDegrades(t *testing.T) {
	f := newGenFixture()
	f.geocoder.err = errors.New("geocodio down")
	f.backup.err = errors.New("google down")

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err != nil {
		t.Fatalf("expected generation to proceed without geocoding, got %v", err)
	}
	if gen.GeoAccurate {
		t.Error("expected geo_accurate false when geocoding is unavailable")
	}
	if gen.FormattedAddress != "" {
		t.Errorf("expected no formatted address, got %q", gen.FormattedAddress)
	}
}

func TestGenerate_GeocoderFallback(t *testing.T) {
	f := newGenFixture()
	f.geocoder.err = errors.New("geocodio down")
	f.backup.geo = &domain.GeoResult{
		Formatted: "123 King Street, Charleston, SC",
		Accurate:  true,
		Provider:  "google",
	}

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gen.FormattedAddress != "123 King Street, Charleston, SC" {
		t.Errorf("expected backup geocoder result, got %q", gen.FormattedAddress)
	}
}

func TestGenerate_GeoCacheSkipsProvider(t *testing.T) {
	f := newGenFixture()
	f.geoCache.Set("123 king st, charleston sc", &domain.GeoResult{
		Formatted: "cached address",
		Accurate:  true,
	})

	gen, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gen.FormattedAddress != "cached address" {
		t.Errorf("expected cached geocode result, got %q", gen.FormattedAddress)
	}
	if f.geocoder.callCount() != 0 {
		t.Errorf("expected no geocoder call on cache hit, got %d", f.geocoder.callCount())
	}
}

func TestGenerate_QuotaExceededBlocksProviderCall(t *testing.T) {
	f := newGenFixture()
	f.quota.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now(),
		Used:       3,
		Limit:      3,
	}

	_, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))

	var exceeded *domain.ErrQuotaExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if f.primary.callCount() != 0 {
		t.Error("expected no provider call when quota is exhausted")
	}
}

func TestGenerate_Validation(t *testing.T) {
	f := newGenFixture()

	cases := []struct {
		name string
		req  *domain.GenerateRequest
	}{
		{"missing address", &domain.GenerateRequest{CopyType: domain.CopyTypeMLS, Property: domain.PropertyDetails{PropertyType: "condo"}}},
		{"bad copy type", &domain.GenerateRequest{Address: "1 Main St", CopyType: "flyer", Property: domain.PropertyDetails{PropertyType: "condo"}}},
		{"missing property type", &domain.GenerateRequest{Address: "1 Main St", CopyType: domain.CopyTypeMLS}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Generate(context.Background(), "agent-1", tc.req)
			var ve *domain.ErrValidation
			if !errors.As(err, &ve) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestRegenerate_ReusesStoredInputs(t *testing.T) {
	f := newGenFixture()

	first, err := f.svc.Generate(context.Background(), "agent-1", validRequest(domain.CopyTypeMLS))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	second, err := f.svc.Regenerate(context.Background(), "agent-1", first.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if second.ID == first.ID {
		t.Error("expected a new generation record")
	}
	if second.Address != first.Address || second.CopyType != first.CopyType {
		t.Error("expected regenerate to reuse stored inputs")
	}
	if f.quota.quotas["agent-1"].Used != 2 {
		t.Errorf("expected regenerate to cost a fresh credit, used=%d", f.quota.quotas["agent-1"].Used)
	}
}

func TestDelete_UnknownGeneration(t *testing.T) {
	f := newGenFixture()

	err := f.svc.Delete(context.Background(), "agent-1", "missing")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
