package domain

import "time"

// Subscription tiers and their generation-credit allowance per 30-day cycle.
const (
	TierFree    = "free"
	TierStarter = "starter"
	TierPro     = "pro"
	TierTeam    = "team"
)

// TierLimit returns the credit allowance for a tier. Unknown tiers get the
// free allowance.
func TierLimit(tier string) int {
	switch tier {
	case TierStarter:
		return 25
	case TierPro:
		return 150
	case TierTeam:
		return 600
	default:
		return 3
	}
}

// Credit cost per operation.
const (
	CreditsGeneration = 1
	CreditsStaging    = 2
)

// QuotaCycleDays is the rolling cycle length. A cycle resets lazily the
// first time it is read or consumed past its end.
const QuotaCycleDays = 30

// Subscription mirrors the Stripe-synced subscription row for a user.
type Subscription struct {
	UserID               string    `json:"user_id"`
	Tier                 string    `json:"tier"`
	Status               string    `json:"status"` // active, past_due, canceled, trialing
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodStart   time.Time `json:"current_period_start"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Quota is the per-user (or team-pooled) usage counter for the current cycle.
type Quota struct {
	UserID     string    `json:"user_id"`
	CycleStart time.Time `json:"cycle_start"`
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
}

// QuotaStatus is returned by GET /v1/quota.
type QuotaStatus struct {
	Tier       string    `json:"tier"`
	Used       int       `json:"used"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	CycleStart time.Time `json:"cycle_start"`
	CycleEnd   time.Time `json:"cycle_end"`
	Pooled     bool      `json:"pooled"` // true when drawing from a team pool
}

// SubscriptionUpdate is the normalized form of a Stripe subscription
// webhook event, after signature verification and parsing.
type SubscriptionUpdate struct {
	EventID          string
	EventType        string
	StripeCustomerID string
	SubscriptionID   string
	PriceID          string
	Status           string
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

// WebhookEvent records a processed Stripe event ID for replay dedup.
type WebhookEvent struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	ProcessedAt time.Time `json:"processed_at"`
}
