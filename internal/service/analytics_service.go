package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var analyticsTracer = otel.Tracer("service/analytics")

// AnalyticsService aggregates usage events into dashboard summaries.
type AnalyticsService struct {
	store     port.AnalyticsStore
	teamStore port.TeamStore
	logger    *zap.Logger
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(store port.AnalyticsStore, teamStore port.TeamStore, logger *zap.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:     store,
		teamStore: teamStore,
		logger:    logger,
	}
}

// Summary aggregates the caller's activity over the trailing period.
func (s *AnalyticsService) Summary(ctx context.Context, userID string, days int) (*domain.AnalyticsSummary, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.Summary")
	defer span.End()
	span.SetAttributes(attribute.Int("analytics.days", days))

	if days <= 0 || days > 365 {
		days = 30
	}

	since := time.Now().AddDate(0, 0, -days)
	events, err := s.store.ListUsageEvents(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return summarize(events, days), nil
}

// Team aggregates a whole team's activity. Restricted to team owners
// and admins.
func (s *AnalyticsService) Team(ctx context.Context, userID, teamID string, days int) (*domain.TeamAnalytics, error) {
	ctx, span := analyticsTracer.Start(ctx, "AnalyticsService.Team")
	defer span.End()

	member, err := s.teamStore.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if member == nil {
		return nil, &domain.ErrForbidden{Message: "not a member of this team"}
	}
	if member.Role != domain.RoleOwner && member.Role != domain.RoleAdmin {
		return nil, &domain.ErrForbidden{Message: "requires admin role"}
	}

	if days <= 0 || days > 365 {
		days = 30
	}

	since := time.Now().AddDate(0, 0, -days)
	events, err := s.store.ListTeamUsageEvents(ctx, teamID, since)
	if err != nil {
		return nil, fmt.Errorf("list team events: %w", err)
	}

	perMember := map[string]*domain.TeamUsage{}
	total := 0
	credits := 0
	for _, ev := range events {
		total++
		credits += ev.Credits
		mu, ok := perMember[ev.UserID]
		if !ok {
			mu = &domain.TeamUsage{UserID: ev.UserID}
			perMember[ev.UserID] = mu
		}
		if ev.EventType == domain.EventGeneration {
			mu.Generations++
		}
		mu.Credits += ev.Credits
	}

	members := make([]domain.TeamUsage, 0, len(perMember))
	for _, mu := range perMember {
		members = append(members, *mu)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Credits > members[j].Credits })

	return &domain.TeamAnalytics{
		TeamID:       teamID,
		Period:       fmt.Sprintf("%dd", days),
		TotalEvents:  total,
		CreditsSpent: credits,
		Members:      members,
	}, nil
}

// summarize folds events into the summary shape. The daily series
// covers every day of the period, zero-filled.
func summarize(events []domain.UsageEvent, days int) *domain.AnalyticsSummary {
	summary := &domain.AnalyticsSummary{
		Period:      fmt.Sprintf("%dd", days),
		ByEventType: map[string]int{},
		ByCopyType:  map[string]int{},
		ByProvider:  map[string]int{},
	}

	daily := map[string]int{}
	for _, ev := range events {
		summary.TotalEvents++
		summary.CreditsSpent += ev.Credits
		summary.ByEventType[ev.EventType]++
		if ev.CopyType != "" {
			summary.ByCopyType[ev.CopyType]++
		}
		if ev.Provider != "" {
			summary.ByProvider[ev.Provider]++
		}
		daily[ev.CreatedAt.Format("2006-01-02")]++
	}

	today := time.Now()
	summary.Daily = make([]domain.DailyCount, 0, days)
	for i := days - 1; i >= 0; i-- {
		day := today.AddDate(0, 0, -i).Format("2006-01-02")
		summary.Daily = append(summary.Daily, domain.DailyCount{Date: day, Count: daily[day]})
	}

	return summary
}
