package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var integrationTracer = otel.Tracer("service/integration")

// IntegrationService manages MLS/CRM connectors and outbound pushes.
type IntegrationService struct {
	store       port.IntegrationStore
	generations port.GenerationStore
	pusher      port.ListingPusher
	logger      *zap.Logger
}

// NewIntegrationService creates a new integration service.
func NewIntegrationService(store port.IntegrationStore, generations port.GenerationStore, pusher port.ListingPusher, logger *zap.Logger) *IntegrationService {
	return &IntegrationService{
		store:       store,
		generations: generations,
		pusher:      pusher,
		logger:      logger,
	}
}

// Create stores a new connector. The API key is write-only; reads get a
// masked placeholder.
func (s *IntegrationService) Create(ctx context.Context, userID string, req *domain.IntegrationRequest) (*domain.IntegrationConfig, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Create")
	defer span.End()

	if err := validateIntegrationRequest(req, true); err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now()
	cfg, err := s.store.CreateIntegration(ctx, &domain.IntegrationConfig{
		ID:          uuid.New().String(),
		UserID:      userID,
		Kind:        req.Kind,
		Name:        strings.TrimSpace(req.Name),
		EndpointURL: req.EndpointURL,
		APIKey:      req.APIKey,
		Enabled:     enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("create integration: %w", err)
	}

	s.logger.Info("integration created",
		zap.String("integration_id", cfg.ID),
		zap.String("user_id", userID),
		zap.String("kind", cfg.Kind),
	)

	cfg.APIKey = maskKey(cfg.APIKey)
	return cfg, nil
}

// List returns the caller's connectors with masked keys.
func (s *IntegrationService) List(ctx context.Context, userID string) ([]domain.IntegrationConfig, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.List")
	defer span.End()

	configs, err := s.store.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		configs[i].APIKey = maskKey(configs[i].APIKey)
	}
	return configs, nil
}

// Get returns a single connector with a masked key.
func (s *IntegrationService) Get(ctx context.Context, userID, integrationID string) (*domain.IntegrationConfig, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Get")
	defer span.End()

	cfg, err := s.store.GetIntegration(ctx, userID, integrationID)
	if err != nil {
		return nil, err
	}
	cfg.APIKey = maskKey(cfg.APIKey)
	return cfg, nil
}

// Update applies partial changes to a connector the caller owns.
func (s *IntegrationService) Update(ctx context.Context, userID, integrationID string, req *domain.IntegrationRequest) (*domain.IntegrationConfig, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Update")
	defer span.End()

	if _, err := s.store.GetIntegration(ctx, userID, integrationID); err != nil {
		return nil, err
	}
	if err := validateIntegrationRequest(req, false); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if req.Name != "" {
		updates["name"] = strings.TrimSpace(req.Name)
	}
	if req.Kind != "" {
		updates["kind"] = req.Kind
	}
	if req.EndpointURL != "" {
		updates["endpoint_url"] = req.EndpointURL
	}
	if req.APIKey != "" {
		updates["api_key"] = req.APIKey
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if len(updates) == 0 {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}

	if err := s.store.UpdateIntegration(ctx, integrationID, updates); err != nil {
		return nil, fmt.Errorf("update integration: %w", err)
	}

	return s.Get(ctx, userID, integrationID)
}

// Delete removes a connector the caller owns.
func (s *IntegrationService) Delete(ctx context.Context, userID, integrationID string) error {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Delete")
	defer span.End()

	if _, err := s.store.GetIntegration(ctx, userID, integrationID); err != nil {
		return err
	}
	return s.store.DeleteIntegration(ctx, userID, integrationID)
}

// Push delivers a generation to the connector's endpoint and records the
// outcome either way.
func (s *IntegrationService) Push(ctx context.Context, userID, integrationID string, req *domain.PushRequest) (*domain.PushRecord, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.Push")
	defer span.End()
	span.SetAttributes(attribute.String("integration.id", integrationID))

	cfg, err := s.store.GetIntegration(ctx, userID, integrationID)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, &domain.ErrValidation{Field: "integration", Message: "integration is disabled"}
	}

	gen, err := s.generations.GetGeneration(ctx, userID, req.GenerationID)
	if err != nil {
		return nil, err
	}

	payload := &domain.ListingPushPayload{
		Address:     gen.Address,
		Property:    gen.Property,
		CopyType:    gen.CopyType,
		Content:     gen.Content,
		Title:       gen.Title,
		GeneratedAt: gen.CreatedAt,
		Source:      "lowcountrylister",
	}

	code, pushErr := s.pusher.Push(ctx, cfg.EndpointURL, cfg.APIKey, payload)

	rec := &domain.PushRecord{
		ID:            uuid.New().String(),
		IntegrationID: integrationID,
		GenerationID:  gen.ID,
		Status:        "delivered",
		ResponseCode:  code,
		CreatedAt:     time.Now(),
	}
	if pushErr != nil {
		rec.Status = "failed"
		rec.Error = pushErr.Error()
	}

	stored, err := s.store.CreatePushRecord(ctx, rec)
	if err != nil {
		s.logger.Warn("failed to record push",
			zap.String("integration_id", integrationID),
			zap.Error(err),
		)
		stored = rec
	}

	s.logger.Info("listing push finished",
		zap.String("integration_id", integrationID),
		zap.String("generation_id", gen.ID),
		zap.String("status", stored.Status),
		zap.Int("response_code", code),
	)

	if pushErr != nil {
		return stored, pushErr
	}
	return stored, nil
}

// History lists past deliveries for a connector the caller owns.
func (s *IntegrationService) History(ctx context.Context, userID, integrationID string, page, pageSize int) ([]domain.PushRecord, error) {
	ctx, span := integrationTracer.Start(ctx, "IntegrationService.History")
	defer span.End()

	if _, err := s.store.GetIntegration(ctx, userID, integrationID); err != nil {
		return nil, err
	}
	return s.store.ListPushRecords(ctx, integrationID, page, pageSize)
}

func validateIntegrationRequest(req *domain.IntegrationRequest, creating bool) error {
	if creating || req.Kind != "" {
		if req.Kind != domain.IntegrationMLS && req.Kind != domain.IntegrationCRM {
			return &domain.ErrValidation{Field: "kind", Message: "must be mls or crm"}
		}
	}
	if creating && strings.TrimSpace(req.Name) == "" {
		return &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if creating || req.EndpointURL != "" {
		u, err := url.Parse(req.EndpointURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return &domain.ErrValidation{Field: "endpointUrl", Message: "a valid http(s) URL is required"}
		}
	}
	return nil
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
