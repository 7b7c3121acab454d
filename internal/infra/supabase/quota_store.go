package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// ============================================================
// Subscriptions, quota counters & Stripe webhook dedup
// ============================================================

type subscriptionRow struct {
	UserID               string    `json:"user_id"`
	Tier                 string    `json:"tier"`
	Status               string    `json:"status"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodStart   time.Time `json:"current_period_start"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// GetSubscription fetches the subscription row for a user. A missing row
// means the free tier; nil is returned without error.
func (c *Client) GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSubscription")
	defer span.End()

	path := fmt.Sprintf("subscriptions?user_id=eq.%s&limit=1", url.QueryEscape(userID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/subscriptions", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []subscriptionRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode subscription: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &domain.Subscription{
		UserID:               r.UserID,
		Tier:                 r.Tier,
		Status:               r.Status,
		StripeCustomerID:     r.StripeCustomerID,
		StripeSubscriptionID: r.StripeSubscriptionID,
		CurrentPeriodStart:   r.CurrentPeriodStart,
		CurrentPeriodEnd:     r.CurrentPeriodEnd,
		UpdatedAt:            r.UpdatedAt,
	}, nil
}

// UpsertSubscription inserts or replaces the subscription row for a user.
func (c *Client) UpsertSubscription(ctx context.Context, sub *domain.Subscription) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertSubscription")
	defer span.End()

	row := map[string]any{
		"user_id":                sub.UserID,
		"tier":                   sub.Tier,
		"status":                 sub.Status,
		"stripe_customer_id":     sub.StripeCustomerID,
		"stripe_subscription_id": sub.StripeSubscriptionID,
		"current_period_start":   sub.CurrentPeriodStart.Format(time.RFC3339),
		"current_period_end":     sub.CurrentPeriodEnd.Format(time.RFC3339),
		"updated_at":             time.Now().Format(time.RFC3339),
	}

	// PostgREST upsert: POST with resolution=merge-duplicates on the PK.
	_, err := c.doPostUpsert(ctx, "subscriptions", row)
	return err
}

// GetUserIDByStripeCustomer resolves the owning user for a Stripe customer.
func (c *Client) GetUserIDByStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserIDByStripeCustomer")
	defer span.End()

	path := fmt.Sprintf("subscriptions?stripe_customer_id=eq.%s&select=user_id&limit=1",
		url.QueryEscape(stripeCustomerID))
	body, err := c.get(ctx, path)
	if err != nil {
		return "", &domain.ErrExternalService{Service: "supabase/subscriptions", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return "", &domain.ErrNotFound{Resource: "subscription", ID: stripeCustomerID}
	}

	var rows []struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return "", fmt.Errorf("decode subscription lookup: %w", err)
	}
	if len(rows) == 0 {
		return "", &domain.ErrNotFound{Resource: "subscription", ID: stripeCustomerID}
	}
	return rows[0].UserID, nil
}

// GetQuota fetches the quota counter row for a user; nil when absent.
func (c *Client) GetQuota(ctx context.Context, userID string) (*domain.Quota, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetQuota")
	defer span.End()

	path := fmt.Sprintf("quota_counters?user_id=eq.%s&limit=1", url.QueryEscape(userID))
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/quota", Err: err}
	}
	if body == nil || string(body) == "[]" {
		return nil, nil
	}

	var rows []domain.Quota
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode quota: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertQuota inserts or replaces the quota counter for a user.
func (c *Client) UpsertQuota(ctx context.Context, q *domain.Quota) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertQuota")
	defer span.End()

	row := map[string]any{
		"user_id":     q.UserID,
		"cycle_start": q.CycleStart.Format(time.RFC3339),
		"used":        q.Used,
		"limit":       q.Limit,
	}
	_, err := c.doPostUpsert(ctx, "quota_counters", row)
	return err
}

// InsertWebhookEvent records a processed Stripe event ID. A unique-key
// conflict surfaces as domain.ErrDuplicate so replayed deliveries can be
// acknowledged without reprocessing.
func (c *Client) InsertWebhookEvent(ctx context.Context, eventID, eventType string) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertWebhookEvent")
	defer span.End()

	row := map[string]any{
		"event_id":     eventID,
		"event_type":   eventType,
		"processed_at": time.Now().Format(time.RFC3339),
	}
	_, err := c.doPost(ctx, "webhook_events", row)
	if err != nil {
		if strings.Contains(err.Error(), "returned 409") || strings.Contains(err.Error(), "duplicate key") {
			return &domain.ErrDuplicate{Key: eventID}
		}
		return err
	}
	return nil
}
