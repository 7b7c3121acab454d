package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var genTracer = otel.Tracer("service/generation")

// GenerationService orchestrates geocoding, quota checks and the copy
// providers for listing generations.
type GenerationService struct {
	store           port.GenerationStore
	analytics       port.AnalyticsStore
	authStore       port.AuthStore
	quota           *QuotaService
	primary         port.CopyGenerator
	fallback        port.CopyGenerator
	geocoder        port.Geocoder
	geocoderBackup  port.Geocoder
	geoCache        port.Cache[*domain.GeoResult]
	metrics         *observability.Metrics
	logger          *zap.Logger
}

// NewGenerationService creates the generation service with all
// dependencies injected.
func NewGenerationService(
	store port.GenerationStore,
	analytics port.AnalyticsStore,
	authStore port.AuthStore,
	quota *QuotaService,
	primary, fallback port.CopyGenerator,
	geocoder, geocoderBackup port.Geocoder,
	geoCache port.Cache[*domain.GeoResult],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *GenerationService {
	return &GenerationService{
		store:          store,
		analytics:      analytics,
		authStore:      authStore,
		quota:          quota,
		primary:        primary,
		fallback:       fallback,
		geocoder:       geocoder,
		geocoderBackup: geocoderBackup,
		geoCache:       geoCache,
		metrics:        metrics,
		logger:         logger,
	}
}

// Generate runs the full pipeline: validate, geocode, debit quota, call
// the copy provider (falling back once) and persist the result.
func (s *GenerationService) Generate(ctx context.Context, userID string, req *domain.GenerateRequest) (*domain.Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := genTracer.Start(ctx, "GenerationService.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("copy.type", req.CopyType))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("generation", time.Since(start))
	}()

	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}

	// Geocoding failures degrade, not fail: copy is still generated
	// from the raw address with geo_accurate=false.
	geo := s.resolveAddress(ctx, req.Address)

	if err := s.quota.Consume(ctx, userID, domain.CreditsGeneration); err != nil {
		return nil, err
	}

	copyReq := &domain.CopyRequest{
		Address:  req.Address,
		Property: req.Property,
		CopyType: req.CopyType,
		Tone:     req.Tone,
	}
	if geo != nil {
		copyReq.Address = geo.Formatted
		copyReq.County = geo.County
	}

	result, usedFallback, err := s.generateWithFallback(ctx, copyReq)
	if err != nil {
		s.metrics.IncrGeneration("failed", req.CopyType)
		return nil, err
	}

	content := result.Content
	if req.CopyType == domain.CopyTypeMLS {
		content = truncateAtWord(content, domain.MLSMaxLength)
	}

	gen := &domain.Generation{
		ID:         uuid.New().String(),
		UserID:     userID,
		Address:    req.Address,
		Property:   req.Property,
		CopyType:   req.CopyType,
		Tone:       req.Tone,
		Content:    content,
		Title:      result.Title,
		Variants:   result.Variants,
		Provider:   result.Provider,
		TokensUsed: result.TokensUsed,
		CreatedAt:  time.Now(),
	}
	if geo != nil {
		gen.FormattedAddress = geo.Formatted
		gen.Latitude = geo.Latitude
		gen.Longitude = geo.Longitude
		gen.GeoAccurate = geo.Accurate
	}
	if profile, err := s.authStore.GetUserByID(ctx, userID); err == nil && profile != nil {
		gen.TeamID = profile.TeamID
	}

	created, err := s.store.CreateGeneration(ctx, gen)
	if err != nil {
		return nil, fmt.Errorf("persist generation: %w", err)
	}

	status := "completed"
	if usedFallback {
		status = "fallback"
	}
	s.metrics.IncrGeneration(status, req.CopyType)
	s.metrics.RecordTokens(result.Provider, result.TokensUsed)
	s.recordEvent(ctx, created)

	s.logger.Info("generation completed",
		zap.String("generation_id", created.ID),
		zap.String("user_id", userID),
		zap.String("copy_type", req.CopyType),
		zap.String("provider", result.Provider),
		zap.Int("tokens", result.TokensUsed),
	)

	return created, nil
}

// Regenerate reruns the pipeline with the stored inputs of an existing
// generation. It costs a fresh credit and produces a new record.
func (s *GenerationService) Regenerate(ctx context.Context, userID, generationID string) (*domain.Generation, error) {
	ctx, span := genTracer.Start(ctx, "GenerationService.Regenerate")
	defer span.End()

	existing, err := s.store.GetGeneration(ctx, userID, generationID)
	if err != nil {
		return nil, err
	}

	return s.Generate(ctx, userID, &domain.GenerateRequest{
		Address:  existing.Address,
		Property: existing.Property,
		CopyType: existing.CopyType,
		Tone:     existing.Tone,
	})
}

// List returns a page of the caller's generations.
func (s *GenerationService) List(ctx context.Context, userID, copyType string, page, pageSize int) (*domain.ListResponse[domain.Generation], error) {
	ctx, span := genTracer.Start(ctx, "GenerationService.List")
	defer span.End()

	if copyType != "" && !validCopyType(copyType) {
		return nil, &domain.ErrValidation{Field: "copyType", Message: "unknown copy type"}
	}

	gens, err := s.store.ListGenerations(ctx, userID, copyType, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &domain.ListResponse[domain.Generation]{
		Data:     gens,
		Total:    len(gens),
		Page:     page,
		PageSize: pageSize,
		HasMore:  len(gens) == pageSize,
	}, nil
}

// Get returns a single generation owned by the caller.
func (s *GenerationService) Get(ctx context.Context, userID, generationID string) (*domain.Generation, error) {
	ctx, span := genTracer.Start(ctx, "GenerationService.Get")
	defer span.End()

	return s.store.GetGeneration(ctx, userID, generationID)
}

// Delete removes a generation owned by the caller.
func (s *GenerationService) Delete(ctx context.Context, userID, generationID string) error {
	ctx, span := genTracer.Start(ctx, "GenerationService.Delete")
	defer span.End()

	if _, err := s.store.GetGeneration(ctx, userID, generationID); err != nil {
		return err
	}
	return s.store.DeleteGeneration(ctx, userID, generationID)
}

// ============================================================
// Internal helpers
// ============================================================

// resolveAddress geocodes with the primary provider, falling back once.
// A nil return means the address could not be resolved.
func (s *GenerationService) resolveAddress(ctx context.Context, address string) *domain.GeoResult {
	key := strings.ToLower(strings.TrimSpace(address))
	if cached, ok := s.geoCache.Get(key); ok {
		s.metrics.IncrCacheHit("geocode")
		return cached
	}
	s.metrics.IncrCacheMiss("geocode")

	geo, err := s.geocoder.Resolve(ctx, address)
	if err != nil {
		s.metrics.IncrExternalError(s.geocoder.Name())
		s.logger.Warn("primary geocoder failed, trying fallback",
			zap.String("provider", s.geocoder.Name()),
			zap.Error(err),
		)
		geo, err = s.geocoderBackup.Resolve(ctx, address)
		if err != nil {
			s.metrics.IncrExternalError(s.geocoderBackup.Name())
			s.logger.Warn("geocoding unavailable, proceeding with raw address",
				zap.Error(err),
			)
			return nil
		}
	}

	s.geoCache.Set(key, geo)
	return geo
}

// generateWithFallback calls the primary copy provider, switching to the
// fallback on any error. The bool reports whether the fallback produced
// the result.
func (s *GenerationService) generateWithFallback(ctx context.Context, req *domain.CopyRequest) (*domain.CopyResult, bool, error) {
	result, err := s.primary.GenerateCopy(ctx, req)
	if err == nil {
		return result, false, nil
	}

	s.metrics.IncrExternalError(s.primary.Name())
	s.logger.Warn("primary copy provider failed, falling back",
		zap.String("provider", s.primary.Name()),
		zap.Error(err),
	)

	result, fbErr := s.fallback.GenerateCopy(ctx, req)
	if fbErr != nil {
		s.metrics.IncrExternalError(s.fallback.Name())
		return nil, false, fmt.Errorf("both copy providers failed: %w", fbErr)
	}
	return result, true, nil
}

func (s *GenerationService) recordEvent(ctx context.Context, gen *domain.Generation) {
	ev := &domain.UsageEvent{
		ID:        uuid.New().String(),
		UserID:    gen.UserID,
		TeamID:    gen.TeamID,
		EventType: domain.EventGeneration,
		CopyType:  gen.CopyType,
		Provider:  gen.Provider,
		Credits:   domain.CreditsGeneration,
		CreatedAt: time.Now(),
	}
	if err := s.analytics.InsertUsageEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to record usage event", zap.Error(err))
	}
}

func validateGenerateRequest(req *domain.GenerateRequest) error {
	if strings.TrimSpace(req.Address) == "" {
		return &domain.ErrValidation{Field: "address", Message: "address is required"}
	}
	if !validCopyType(req.CopyType) {
		return &domain.ErrValidation{Field: "copyType", Message: "must be one of mls, airbnb, social"}
	}
	if req.Property.PropertyType == "" {
		return &domain.ErrValidation{Field: "property.property_type", Message: "property type is required"}
	}
	if req.Property.Bedrooms < 0 || req.Property.Bathrooms < 0 {
		return &domain.ErrValidation{Field: "property", Message: "bedrooms and bathrooms must not be negative"}
	}
	return nil
}

func validCopyType(ct string) bool {
	switch ct {
	case domain.CopyTypeMLS, domain.CopyTypeAirbnb, domain.CopyTypeSocial:
		return true
	}
	return false
}

// truncateAtWord caps s at limit characters, cutting back to the last
// word boundary and trimming trailing punctuation. The limit counts
// runes, not bytes, so multibyte text is never split mid-character.
func truncateAtWord(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	cut := string([]rune(s)[:limit])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ,;:-")
}
