package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var quotaTracer = otel.Tracer("service/quota")

// TierResolver maps a Stripe price ID to a subscription tier.
type TierResolver func(priceID string) string

// QuotaService manages subscription state and the rolling credit cycle.
// Quota rows reset lazily: the first read or consume past the end of a
// cycle starts a fresh one.
type QuotaService struct {
	store     port.QuotaStore
	teamStore port.TeamStore
	authStore port.AuthStore
	tierFor   TierResolver
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewQuotaService creates a new quota service.
func NewQuotaService(
	store port.QuotaStore,
	teamStore port.TeamStore,
	authStore port.AuthStore,
	tierFor TierResolver,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *QuotaService {
	return &QuotaService{
		store:     store,
		teamStore: teamStore,
		authStore: authStore,
		tierFor:   tierFor,
		metrics:   metrics,
		logger:    logger,
	}
}

// Status returns the caller's current quota, pooled through the team
// owner when the caller belongs to a team.
func (s *QuotaService) Status(ctx context.Context, userID string) (*domain.QuotaStatus, error) {
	ctx, span := quotaTracer.Start(ctx, "QuotaService.Status")
	defer span.End()

	poolID, pooled, err := s.poolOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	tier, err := s.tierOf(ctx, poolID)
	if err != nil {
		return nil, err
	}

	quota, err := s.currentQuota(ctx, poolID, tier)
	if err != nil {
		return nil, err
	}

	return &domain.QuotaStatus{
		Tier:       tier,
		Used:       quota.Used,
		Limit:      quota.Limit,
		Remaining:  max(quota.Limit-quota.Used, 0),
		CycleStart: quota.CycleStart,
		CycleEnd:   quota.CycleStart.AddDate(0, 0, domain.QuotaCycleDays),
		Pooled:     pooled,
	}, nil
}

// Remaining returns the credits left in the caller's pool.
func (s *QuotaService) Remaining(ctx context.Context, userID string) (int, error) {
	status, err := s.Status(ctx, userID)
	if err != nil {
		return 0, err
	}
	return status.Remaining, nil
}

// Consume debits credits from the caller's pool. It returns
// ErrQuotaExceeded without debiting when the pool cannot cover the cost.
func (s *QuotaService) Consume(ctx context.Context, userID string, credits int) error {
	ctx, span := quotaTracer.Start(ctx, "QuotaService.Consume")
	defer span.End()
	span.SetAttributes(attribute.Int("quota.credits", credits))

	poolID, _, err := s.poolOwner(ctx, userID)
	if err != nil {
		return err
	}

	tier, err := s.tierOf(ctx, poolID)
	if err != nil {
		return err
	}

	quota, err := s.currentQuota(ctx, poolID, tier)
	if err != nil {
		return err
	}

	if quota.Used+credits > quota.Limit {
		return &domain.ErrQuotaExceeded{Used: quota.Used, Limit: quota.Limit}
	}

	quota.Used += credits
	if err := s.store.UpsertQuota(ctx, quota); err != nil {
		return fmt.Errorf("upsert quota: %w", err)
	}

	s.metrics.AddCreditsConsumed(credits)
	return nil
}

// ============================================================
// Stripe webhook processing
// ============================================================

// ApplySubscriptionUpdate processes a verified Stripe subscription event.
// Replayed event IDs are acknowledged without reprocessing.
func (s *QuotaService) ApplySubscriptionUpdate(ctx context.Context, upd *domain.SubscriptionUpdate) error {
	ctx, span := quotaTracer.Start(ctx, "QuotaService.ApplySubscriptionUpdate")
	defer span.End()
	span.SetAttributes(attribute.String("stripe.event_type", upd.EventType))

	if err := s.store.InsertWebhookEvent(ctx, upd.EventID, upd.EventType); err != nil {
		var dup *domain.ErrDuplicate
		if errors.As(err, &dup) {
			s.logger.Info("webhook event replayed, skipping",
				zap.String("event_id", upd.EventID),
			)
			return nil
		}
		return fmt.Errorf("record webhook event: %w", err)
	}

	userID, err := s.store.GetUserIDByStripeCustomer(ctx, upd.StripeCustomerID)
	if err != nil {
		return fmt.Errorf("resolve stripe customer: %w", err)
	}

	tier := s.tierFor(upd.PriceID)
	if upd.EventType == "customer.subscription.deleted" || upd.Status == "canceled" {
		tier = domain.TierFree
	} else if tier == "" {
		// Unknown price ID: keep whatever tier the user already has.
		existing, err := s.store.GetSubscription(ctx, userID)
		if err != nil {
			return fmt.Errorf("get subscription: %w", err)
		}
		if existing != nil {
			tier = existing.Tier
		} else {
			tier = domain.TierFree
		}
		s.logger.Warn("unknown stripe price ID, keeping current tier",
			zap.String("price_id", upd.PriceID),
			zap.String("user_id", userID),
			zap.String("tier", tier),
		)
	}

	sub := &domain.Subscription{
		UserID:               userID,
		Tier:                 tier,
		Status:               upd.Status,
		StripeCustomerID:     upd.StripeCustomerID,
		StripeSubscriptionID: upd.SubscriptionID,
		CurrentPeriodStart:   upd.PeriodStart,
		CurrentPeriodEnd:     upd.PeriodEnd,
		UpdatedAt:            time.Now(),
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	// Raise or lower the pool limit mid-cycle; usage already spent stays.
	quota, err := s.store.GetQuota(ctx, userID)
	if err != nil {
		return fmt.Errorf("get quota: %w", err)
	}
	if quota != nil && quota.Limit != domain.TierLimit(tier) {
		quota.Limit = domain.TierLimit(tier)
		if err := s.store.UpsertQuota(ctx, quota); err != nil {
			return fmt.Errorf("upsert quota: %w", err)
		}
	}

	s.logger.Info("subscription updated",
		zap.String("user_id", userID),
		zap.String("tier", tier),
		zap.String("status", upd.Status),
	)
	return nil
}

// ApplyInvoicePaid marks the customer's subscription active after a
// successful payment. Replayed event IDs are acknowledged without
// reprocessing; customers without a subscription row are ignored.
func (s *QuotaService) ApplyInvoicePaid(ctx context.Context, eventID, stripeCustomerID string) error {
	ctx, span := quotaTracer.Start(ctx, "QuotaService.ApplyInvoicePaid")
	defer span.End()

	if err := s.store.InsertWebhookEvent(ctx, eventID, "invoice.paid"); err != nil {
		var dup *domain.ErrDuplicate
		if errors.As(err, &dup) {
			return nil
		}
		return fmt.Errorf("record webhook event: %w", err)
	}

	userID, err := s.store.GetUserIDByStripeCustomer(ctx, stripeCustomerID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			s.logger.Warn("invoice.paid for unknown customer",
				zap.String("stripe_customer_id", stripeCustomerID),
			)
			return nil
		}
		return fmt.Errorf("resolve stripe customer: %w", err)
	}

	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil || sub.Status == "active" {
		return nil
	}

	sub.Status = "active"
	sub.UpdatedAt = time.Now()
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	s.logger.Info("subscription reactivated by paid invoice",
		zap.String("user_id", userID),
	)
	return nil
}

// ============================================================
// Dev tools
// ============================================================

// DevResetQuota starts a fresh cycle with zero usage for the caller's
// pool. Only reachable when dev tools are enabled.
func (s *QuotaService) DevResetQuota(ctx context.Context, userID string) (*domain.QuotaStatus, error) {
	ctx, span := quotaTracer.Start(ctx, "QuotaService.DevResetQuota")
	defer span.End()

	poolID, _, err := s.poolOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier, err := s.tierOf(ctx, poolID)
	if err != nil {
		return nil, err
	}

	quota := &domain.Quota{
		UserID:     poolID,
		CycleStart: time.Now(),
		Used:       0,
		Limit:      domain.TierLimit(tier),
	}
	if err := s.store.UpsertQuota(ctx, quota); err != nil {
		return nil, fmt.Errorf("upsert quota: %w", err)
	}

	s.logger.Info("dev quota reset", zap.String("pool_id", poolID))
	return s.Status(ctx, userID)
}

// DevGrantCredits refunds spent credits to the caller's pool without
// touching the cycle. Only reachable when dev tools are enabled.
func (s *QuotaService) DevGrantCredits(ctx context.Context, userID string, credits int) (*domain.QuotaStatus, error) {
	ctx, span := quotaTracer.Start(ctx, "QuotaService.DevGrantCredits")
	defer span.End()

	if credits <= 0 {
		return nil, &domain.ErrValidation{Field: "credits", Message: "must be positive"}
	}

	poolID, _, err := s.poolOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	tier, err := s.tierOf(ctx, poolID)
	if err != nil {
		return nil, err
	}
	quota, err := s.currentQuota(ctx, poolID, tier)
	if err != nil {
		return nil, err
	}

	quota.Used = max(quota.Used-credits, 0)
	if err := s.store.UpsertQuota(ctx, quota); err != nil {
		return nil, fmt.Errorf("upsert quota: %w", err)
	}

	s.logger.Info("dev credits granted",
		zap.String("pool_id", poolID),
		zap.Int("credits", credits),
	)
	return s.Status(ctx, userID)
}

// ============================================================
// Internal helpers
// ============================================================

// poolOwner resolves whose quota row a user draws from. Team members
// share the team owner's pool.
func (s *QuotaService) poolOwner(ctx context.Context, userID string) (string, bool, error) {
	profile, err := s.authStore.GetUserByID(ctx, userID)
	if err != nil {
		return "", false, fmt.Errorf("get user: %w", err)
	}
	if profile == nil {
		return "", false, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if profile.TeamID == "" {
		return userID, false, nil
	}

	team, err := s.teamStore.GetTeam(ctx, profile.TeamID)
	if err != nil {
		return "", false, fmt.Errorf("get team: %w", err)
	}
	return team.OwnerID, team.OwnerID != userID, nil
}

// tierOf reads the pool owner's subscription tier. No row, or a lapsed
// subscription, means free.
func (s *QuotaService) tierOf(ctx context.Context, poolID string) (string, error) {
	sub, err := s.store.GetSubscription(ctx, poolID)
	if err != nil {
		return "", fmt.Errorf("get subscription: %w", err)
	}
	if sub == nil || sub.Status == "canceled" {
		return domain.TierFree, nil
	}
	return sub.Tier, nil
}

// currentQuota loads the pool's quota row, starting a fresh cycle when
// none exists or the previous one has ended.
func (s *QuotaService) currentQuota(ctx context.Context, poolID, tier string) (*domain.Quota, error) {
	quota, err := s.store.GetQuota(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}

	now := time.Now()
	if quota == nil || now.After(quota.CycleStart.AddDate(0, 0, domain.QuotaCycleDays)) {
		quota = &domain.Quota{
			UserID:     poolID,
			CycleStart: now,
			Used:       0,
			Limit:      domain.TierLimit(tier),
		}
		if err := s.store.UpsertQuota(ctx, quota); err != nil {
			return nil, fmt.Errorf("upsert quota: %w", err)
		}
	}
	return quota, nil
}
