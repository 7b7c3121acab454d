package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/service"
)

type analyticsFixture struct {
	svc   *service.AnalyticsService
	store *memAnalyticsStore
	team  *memTeamStore
}

func newAnalyticsFixture() *analyticsFixture {
	f := &analyticsFixture{
		store: &memAnalyticsStore{},
		team:  newMemTeamStore(newMemAuthStore()),
	}
	f.svc = service.NewAnalyticsService(f.store, f.team, zap.NewNop())
	return f
}

func (f *analyticsFixture) addEvent(userID, teamID, eventType, copyType, provider string, credits int, at time.Time) {
	f.store.InsertUsageEvent(context.Background(), &domain.UsageEvent{
		ID:        "ev-" + at.Format("150405.000000000"),
		UserID:    userID,
		TeamID:    teamID,
		EventType: eventType,
		CopyType:  copyType,
		Provider:  provider,
		Credits:   credits,
		CreatedAt: at,
	})
}

func TestAnalyticsSummary_Aggregates(t *testing.T) {
	f := newAnalyticsFixture()
	now := time.Now()
	f.addEvent("agent-1", "", domain.EventGeneration, domain.CopyTypeMLS, "openai", 1, now.Add(-time.Hour))
	f.addEvent("agent-1", "", domain.EventGeneration, domain.CopyTypeAirbnb, "gemini", 1, now.Add(-26*time.Hour))
	f.addEvent("agent-1", "", domain.EventStaging, "", "", 2, now.Add(-2*time.Hour))
	f.addEvent("someone-else", "", domain.EventGeneration, domain.CopyTypeMLS, "openai", 1, now)

	summary, err := f.svc.Summary(context.Background(), "agent-1", 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if summary.TotalEvents != 3 {
		t.Errorf("expected 3 events, got %d", summary.TotalEvents)
	}
	if summary.CreditsSpent != 4 {
		t.Errorf("expected 4 credits, got %d", summary.CreditsSpent)
	}
	if summary.ByEventType[domain.EventGeneration] != 2 {
		t.Errorf("expected 2 generation events, got %d", summary.ByEventType[domain.EventGeneration])
	}
	if summary.ByCopyType[domain.CopyTypeMLS] != 1 {
		t.Errorf("expected 1 mls event, got %d", summary.ByCopyType[domain.CopyTypeMLS])
	}
	if summary.ByProvider["openai"] != 1 {
		t.Errorf("expected 1 openai event, got %d", summary.ByProvider["openai"])
	}
	if summary.Period != "7d" {
		t.Errorf("expected period 7d, got %s", summary.Period)
	}
}

func TestAnalyticsSummary_DailySeriesZeroFilled(t *testing.T) {
	f := newAnalyticsFixture()
	f.addEvent("agent-1", "", domain.EventGeneration, domain.CopyTypeMLS, "openai", 1, time.Now())

	summary, err := f.svc.Summary(context.Background(), "agent-1", 14)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(summary.Daily) != 14 {
		t.Fatalf("expected 14 daily buckets, got %d", len(summary.Daily))
	}
	last := summary.Daily[len(summary.Daily)-1]
	if last.Date != time.Now().Format("2006-01-02") {
		t.Errorf("expected last bucket to be today, got %s", last.Date)
	}
	if last.Count != 1 {
		t.Errorf("expected 1 event today, got %d", last.Count)
	}
	if summary.Daily[0].Count != 0 {
		t.Errorf("expected oldest bucket zero-filled, got %d", summary.Daily[0].Count)
	}
}

func TestAnalyticsSummary_DaysClampedToDefault(t *testing.T) {
	f := newAnalyticsFixture()

	for _, days := range []int{0, -5, 400} {
		summary, err := f.svc.Summary(context.Background(), "agent-1", days)
		if err != nil {
			t.Fatalf("days=%d: %v", days, err)
		}
		if summary.Period != "30d" {
			t.Errorf("days=%d: expected period 30d, got %s", days, summary.Period)
		}
		if len(summary.Daily) != 30 {
			t.Errorf("days=%d: expected 30 daily buckets, got %d", days, len(summary.Daily))
		}
	}
}

func TestAnalyticsTeam_RequiresMembership(t *testing.T) {
	f := newAnalyticsFixture()
	f.team.CreateTeam(context.Background(), &domain.Team{ID: "team-1", OwnerID: "owner-1"})
	f.team.AddTeamMember(context.Background(), &domain.TeamMember{TeamID: "team-1", UserID: "owner-1", Role: domain.RoleOwner})

	_, err := f.svc.Team(context.Background(), "outsider", "team-1", 30)
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAnalyticsTeam_PlainMemberForbidden(t *testing.T) {
	f := newAnalyticsFixture()
	f.team.CreateTeam(context.Background(), &domain.Team{ID: "team-1", OwnerID: "owner-1"})
	f.team.AddTeamMember(context.Background(), &domain.TeamMember{TeamID: "team-1", UserID: "owner-1", Role: domain.RoleOwner})
	f.team.AddTeamMember(context.Background(), &domain.TeamMember{TeamID: "team-1", UserID: "member-1", Role: domain.RoleMember})

	_, err := f.svc.Team(context.Background(), "member-1", "team-1", 30)
	var forbidden *domain.ErrForbidden
	if !errors.As(err, &forbidden) {
		t.Fatalf("expected ErrForbidden for plain member, got %v", err)
	}

	if _, err := f.svc.Team(context.Background(), "owner-1", "team-1", 30); err != nil {
		t.Fatalf("expected owner access, got %v", err)
	}
}

func TestAnalyticsTeam_PerMemberTotalsSortedByCredits(t *testing.T) {
	f := newAnalyticsFixture()
	f.team.CreateTeam(context.Background(), &domain.Team{ID: "team-1", OwnerID: "owner-1"})
	f.team.AddTeamMember(context.Background(), &domain.TeamMember{TeamID: "team-1", UserID: "owner-1", Role: domain.RoleOwner})
	f.team.AddTeamMember(context.Background(), &domain.TeamMember{TeamID: "team-1", UserID: "member-1", Role: domain.RoleMember})

	now := time.Now()
	f.addEvent("owner-1", "team-1", domain.EventGeneration, domain.CopyTypeMLS, "openai", 1, now)
	f.addEvent("member-1", "team-1", domain.EventGeneration, domain.CopyTypeAirbnb, "openai", 1, now)
	f.addEvent("member-1", "team-1", domain.EventStaging, "", "", 2, now)

	analytics, err := f.svc.Team(context.Background(), "owner-1", "team-1", 30)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if analytics.TotalEvents != 3 {
		t.Errorf("expected 3 team events, got %d", analytics.TotalEvents)
	}
	if analytics.CreditsSpent != 4 {
		t.Errorf("expected 4 team credits, got %d", analytics.CreditsSpent)
	}
	if len(analytics.Members) != 2 {
		t.Fatalf("expected 2 member rows, got %d", len(analytics.Members))
	}
	if analytics.Members[0].UserID != "member-1" || analytics.Members[0].Credits != 3 {
		t.Errorf("expected member-1 first with 3 credits, got %+v", analytics.Members[0])
	}
	if analytics.Members[0].Generations != 1 {
		t.Errorf("expected 1 generation for member-1, got %d", analytics.Members[0].Generations)
	}
	if analytics.Members[1].UserID != "owner-1" || analytics.Members[1].Credits != 1 {
		t.Errorf("expected owner-1 second with 1 credit, got %+v", analytics.Members[1])
	}
}
