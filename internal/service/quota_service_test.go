package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

func newQuotaFixture() (*service.QuotaService, *memQuotaStore, *memTeamStore, *memAuthStore) {
	auth := newMemAuthStore()
	team := newMemTeamStore(auth)
	store := newMemQuotaStore()
	svc := service.NewQuotaService(store, team, auth, testTierFor, observability.NewMetrics(), zap.NewNop())
	return svc, store, team, auth
}

func TestQuotaStatus_FreeTierDefaults(t *testing.T) {
	svc, _, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1", Email: "a@example.com"})

	status, err := svc.Status(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if status.Tier != domain.TierFree {
		t.Errorf("expected tier free, got %s", status.Tier)
	}
	if status.Limit != 3 {
		t.Errorf("expected limit 3, got %d", status.Limit)
	}
	if status.Remaining != 3 {
		t.Errorf("expected remaining 3, got %d", status.Remaining)
	}
	if status.Pooled {
		t.Error("expected a solo user not to be pooled")
	}
	if !status.CycleEnd.After(status.CycleStart) {
		t.Error("expected cycle end after cycle start")
	}
}

func TestQuotaConsume_ExceededWithoutDebit(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now(),
		Used:       3,
		Limit:      3,
	}

	err := svc.Consume(context.Background(), "agent-1", 1)

	var exceeded *domain.ErrQuotaExceeded
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if store.quotas["agent-1"].Used != 3 {
		t.Errorf("expected no debit on rejection, used=%d", store.quotas["agent-1"].Used)
	}
}

func TestQuotaConsume_LazyCycleReset(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now().AddDate(0, 0, -31),
		Used:       3,
		Limit:      3,
	}

	if err := svc.Consume(context.Background(), "agent-1", 1); err != nil {
		t.Fatalf("expected consume to succeed after cycle reset, got %v", err)
	}

	q := store.quotas["agent-1"]
	if q.Used != 1 {
		t.Errorf("expected fresh cycle with used=1, got %d", q.Used)
	}
	if q.CycleStart.Before(time.Now().Add(-time.Minute)) {
		t.Error("expected a fresh cycle start")
	}
}

func TestQuotaStatus_TeamPooling(t *testing.T) {
	svc, store, team, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "owner-1", Email: "o@example.com"})
	auth.addUser(&domain.UserProfile{ID: "member-1", Email: "m@example.com", TeamID: "team-1"})
	team.teams["team-1"] = &domain.Team{ID: "team-1", OwnerID: "owner-1", Name: "Palmetto Group"}

	store.subs["owner-1"] = &domain.Subscription{UserID: "owner-1", Tier: domain.TierPro, Status: "active"}
	store.quotas["owner-1"] = &domain.Quota{
		UserID:     "owner-1",
		CycleStart: time.Now(),
		Used:       10,
		Limit:      150,
	}

	status, err := svc.Status(context.Background(), "member-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !status.Pooled {
		t.Error("expected member quota to be pooled")
	}
	if status.Tier != domain.TierPro {
		t.Errorf("expected owner's pro tier, got %s", status.Tier)
	}
	if status.Used != 10 {
		t.Errorf("expected pooled usage 10, got %d", status.Used)
	}

	// Member consumption debits the owner's row.
	if err := svc.Consume(context.Background(), "member-1", 2); err != nil {
		t.Fatalf("expected pooled consume to succeed, got %v", err)
	}
	if store.quotas["owner-1"].Used != 12 {
		t.Errorf("expected owner pool used=12, got %d", store.quotas["owner-1"].Used)
	}
}

func TestApplySubscriptionUpdate_Upgrade(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.customers["cus_123"] = "agent-1"
	store.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now(),
		Used:       2,
		Limit:      3,
	}

	err := svc.ApplySubscriptionUpdate(context.Background(), &domain.SubscriptionUpdate{
		EventID:          "evt_1",
		EventType:        "customer.subscription.created",
		StripeCustomerID: "cus_123",
		SubscriptionID:   "sub_1",
		PriceID:          "price_pro",
		Status:           "active",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sub := store.subs["agent-1"]
	if sub == nil || sub.Tier != domain.TierPro {
		t.Fatalf("expected pro subscription, got %+v", sub)
	}

	q := store.quotas["agent-1"]
	if q.Limit != 150 {
		t.Errorf("expected mid-cycle limit raise to 150, got %d", q.Limit)
	}
	if q.Used != 2 {
		t.Errorf("expected spent usage to carry over, got %d", q.Used)
	}
}

func TestApplySubscriptionUpdate_UnknownPriceKeepsTier(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.customers["cus_123"] = "agent-1"
	store.subs["agent-1"] = &domain.Subscription{
		UserID: "agent-1", Tier: domain.TierStarter, Status: "active",
	}

	err := svc.ApplySubscriptionUpdate(context.Background(), &domain.SubscriptionUpdate{
		EventID:          "evt_unknown_price",
		EventType:        "customer.subscription.updated",
		StripeCustomerID: "cus_123",
		SubscriptionID:   "sub_1",
		PriceID:          "price_legacy_grandfathered",
		Status:           "active",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sub := store.subs["agent-1"]
	if sub.Tier != domain.TierStarter {
		t.Errorf("expected tier kept at starter, got %s", sub.Tier)
	}
}

func TestApplyInvoicePaid_ReactivatesSubscription(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.customers["cus_123"] = "agent-1"
	store.subs["agent-1"] = &domain.Subscription{
		UserID: "agent-1", Tier: domain.TierPro, Status: "past_due",
	}

	if err := svc.ApplyInvoicePaid(context.Background(), "evt_inv_1", "cus_123"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if store.subs["agent-1"].Status != "active" {
		t.Errorf("expected active status, got %s", store.subs["agent-1"].Status)
	}

	// Replay of the same event is acknowledged without error.
	if err := svc.ApplyInvoicePaid(context.Background(), "evt_inv_1", "cus_123"); err != nil {
		t.Fatalf("expected replay to be skipped, got %v", err)
	}

	// Unknown customers are ignored, not errors.
	if err := svc.ApplyInvoicePaid(context.Background(), "evt_inv_2", "cus_missing"); err != nil {
		t.Fatalf("expected unknown customer to be ignored, got %v", err)
	}
}

func TestApplySubscriptionUpdate_DuplicateEventSkipped(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.customers["cus_123"] = "agent-1"
	store.events["evt_replay"] = true

	err := svc.ApplySubscriptionUpdate(context.Background(), &domain.SubscriptionUpdate{
		EventID:          "evt_replay",
		EventType:        "customer.subscription.updated",
		StripeCustomerID: "cus_123",
		PriceID:          "price_pro",
		Status:           "active",
	})
	if err != nil {
		t.Fatalf("expected replayed event to be acknowledged, got %v", err)
	}
	if store.subs["agent-1"] != nil {
		t.Error("expected no subscription write for a replayed event")
	}
}

func TestApplySubscriptionUpdate_DeleteDowngradesToFree(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.customers["cus_123"] = "agent-1"
	store.subs["agent-1"] = &domain.Subscription{UserID: "agent-1", Tier: domain.TierPro, Status: "active"}
	store.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now(),
		Used:       20,
		Limit:      150,
	}

	err := svc.ApplySubscriptionUpdate(context.Background(), &domain.SubscriptionUpdate{
		EventID:          "evt_2",
		EventType:        "customer.subscription.deleted",
		StripeCustomerID: "cus_123",
		PriceID:          "price_pro",
		Status:           "canceled",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if store.subs["agent-1"].Tier != domain.TierFree {
		t.Errorf("expected downgrade to free, got %s", store.subs["agent-1"].Tier)
	}
	if store.quotas["agent-1"].Limit != 3 {
		t.Errorf("expected limit lowered to 3, got %d", store.quotas["agent-1"].Limit)
	}
}

func TestDevResetQuota(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now().AddDate(0, 0, -10),
		Used:       3,
		Limit:      3,
	}

	status, err := svc.DevResetQuota(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.Used != 0 {
		t.Errorf("expected usage reset to 0, got %d", status.Used)
	}
}

func TestDevGrantCredits(t *testing.T) {
	svc, store, _, auth := newQuotaFixture()
	auth.addUser(&domain.UserProfile{ID: "agent-1"})
	store.quotas["agent-1"] = &domain.Quota{
		UserID:     "agent-1",
		CycleStart: time.Now().AddDate(0, 0, -1),
		Used:       3,
		Limit:      3,
	}

	status, err := svc.DevGrantCredits(context.Background(), "agent-1", 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if status.Used != 1 || status.Remaining != 2 {
		t.Errorf("expected 1 used / 2 remaining, got %d/%d", status.Used, status.Remaining)
	}

	if _, err := svc.DevGrantCredits(context.Background(), "agent-1", 0); err == nil {
		t.Error("expected validation error for zero credits")
	}
}
