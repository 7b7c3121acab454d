package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var teamTracer = otel.Tracer("service/team")

// TeamService manages brokerage teams, memberships and invites.
type TeamService struct {
	store     port.TeamStore
	authStore port.AuthStore
	analytics port.AnalyticsStore
	logger    *zap.Logger
}

// NewTeamService creates a new team service.
func NewTeamService(store port.TeamStore, authStore port.AuthStore, analytics port.AnalyticsStore, logger *zap.Logger) *TeamService {
	return &TeamService{
		store:     store,
		authStore: authStore,
		analytics: analytics,
		logger:    logger,
	}
}

// Create creates a team with the caller as owner. A user belongs to at
// most one team.
func (s *TeamService) Create(ctx context.Context, userID string, req *domain.CreateTeamRequest) (*domain.Team, error) {
	ctx, span := teamTracer.Start(ctx, "TeamService.Create")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "team name is required"}
	}

	profile, err := s.authStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if profile.TeamID != "" {
		return nil, &domain.ErrConflict{Message: "user already belongs to a team"}
	}

	now := time.Now()
	team, err := s.store.CreateTeam(ctx, &domain.Team{
		ID:        uuid.New().String(),
		OwnerID:   userID,
		Name:      strings.TrimSpace(req.Name),
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}

	if err := s.store.AddTeamMember(ctx, &domain.TeamMember{
		TeamID:   team.ID,
		UserID:   userID,
		Role:     domain.RoleOwner,
		JoinedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("add owner membership: %w", err)
	}
	if err := s.store.SetUserTeam(ctx, userID, team.ID); err != nil {
		return nil, fmt.Errorf("link owner profile: %w", err)
	}

	s.logger.Info("team created",
		zap.String("team_id", team.ID),
		zap.String("owner_id", userID),
	)

	return team, nil
}

// Get returns a team the caller belongs to.
func (s *TeamService) Get(ctx context.Context, userID, teamID string) (*domain.Team, error) {
	ctx, span := teamTracer.Start(ctx, "TeamService.Get")
	defer span.End()

	if _, err := s.requireMember(ctx, teamID, userID); err != nil {
		return nil, err
	}
	return s.store.GetTeam(ctx, teamID)
}

// Invite creates a single-use invite token for an email address. Only
// the raw token returned here can redeem the invite; storage keeps a
// hash.
func (s *TeamService) Invite(ctx context.Context, userID, teamID string, req *domain.InviteRequest) (*domain.TeamInvite, string, error) {
	ctx, span := teamTracer.Start(ctx, "TeamService.Invite")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}

	member, err := s.requireMember(ctx, teamID, userID)
	if err != nil {
		return nil, "", err
	}
	if member.Role != domain.RoleOwner && member.Role != domain.RoleAdmin {
		return nil, "", &domain.ErrForbidden{Message: "only owners and admins can invite"}
	}

	raw, err := randomToken()
	if err != nil {
		return nil, "", fmt.Errorf("generate invite token: %w", err)
	}

	now := time.Now()
	invite, err := s.store.CreateInvite(ctx, &domain.TeamInvite{
		ID:        uuid.New().String(),
		TeamID:    teamID,
		Email:     email,
		Token:     hashToken(raw),
		ExpiresAt: now.Add(domain.InviteTTL),
		CreatedAt: now,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create invite: %w", err)
	}

	s.logger.Info("team invite created",
		zap.String("team_id", teamID),
		zap.String("invite_id", invite.ID),
		zap.String("email", maskEmail(email)),
	)

	return invite, raw, nil
}

// AcceptInvite redeems an invite token for the authenticated caller.
func (s *TeamService) AcceptInvite(ctx context.Context, userID string, req *domain.AcceptInviteRequest) (*domain.Team, error) {
	ctx, span := teamTracer.Start(ctx, "TeamService.AcceptInvite")
	defer span.End()

	if req.Token == "" {
		return nil, &domain.ErrValidation{Field: "token", Message: "token is required"}
	}

	invite, err := s.store.GetInviteByToken(ctx, hashToken(req.Token))
	if err != nil {
		return nil, fmt.Errorf("look up invite: %w", err)
	}
	if invite == nil {
		return nil, &domain.ErrNotFound{Resource: "invite", ID: "token"}
	}
	if invite.AcceptedAt != nil {
		return nil, &domain.ErrConflict{Message: "invite already used"}
	}
	if invite.ExpiresAt.Before(time.Now()) {
		return nil, &domain.ErrValidation{Field: "token", Message: "invite has expired"}
	}

	profile, err := s.authStore.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if profile.TeamID != "" {
		return nil, &domain.ErrConflict{Message: "user already belongs to a team"}
	}
	if !strings.EqualFold(profile.Email, invite.Email) {
		return nil, &domain.ErrForbidden{Message: "invite was issued for a different email"}
	}

	now := time.Now()
	if err := s.store.AddTeamMember(ctx, &domain.TeamMember{
		TeamID:   invite.TeamID,
		UserID:   userID,
		Role:     domain.RoleMember,
		JoinedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	if err := s.store.SetUserTeam(ctx, userID, invite.TeamID); err != nil {
		return nil, fmt.Errorf("link profile: %w", err)
	}
	if err := s.store.MarkInviteAccepted(ctx, invite.ID); err != nil {
		s.logger.Warn("failed to mark invite accepted",
			zap.String("invite_id", invite.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("team invite accepted",
		zap.String("team_id", invite.TeamID),
		zap.String("user_id", userID),
	)

	return s.store.GetTeam(ctx, invite.TeamID)
}

// Members lists the team roster, visible to any member.
func (s *TeamService) Members(ctx context.Context, userID, teamID string) ([]domain.TeamMember, error) {
	ctx, span := teamTracer.Start(ctx, "TeamService.Members")
	defer span.End()

	if _, err := s.requireMember(ctx, teamID, userID); err != nil {
		return nil, err
	}
	return s.store.ListTeamMembers(ctx, teamID)
}

// RemoveMember drops a member from the team. Owners cannot be removed;
// members may remove themselves.
func (s *TeamService) RemoveMember(ctx context.Context, userID, teamID, targetID string) error {
	ctx, span := teamTracer.Start(ctx, "TeamService.RemoveMember")
	defer span.End()

	caller, err := s.requireMember(ctx, teamID, userID)
	if err != nil {
		return err
	}

	target, err := s.store.GetTeamMember(ctx, teamID, targetID)
	if err != nil {
		return fmt.Errorf("get member: %w", err)
	}
	if target == nil {
		return &domain.ErrNotFound{Resource: "team member", ID: targetID}
	}
	if target.Role == domain.RoleOwner {
		return &domain.ErrForbidden{Message: "the team owner cannot be removed"}
	}
	if userID != targetID && caller.Role != domain.RoleOwner && caller.Role != domain.RoleAdmin {
		return &domain.ErrForbidden{Message: "only owners and admins can remove members"}
	}

	if err := s.store.RemoveTeamMember(ctx, teamID, targetID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if err := s.store.SetUserTeam(ctx, targetID, ""); err != nil {
		s.logger.Warn("failed to unlink removed member",
			zap.String("user_id", targetID),
			zap.Error(err),
		)
	}

	s.logger.Info("team member removed",
		zap.String("team_id", teamID),
		zap.String("user_id", targetID),
		zap.String("removed_by", userID),
	)
	return nil
}

// Usage reports per-member consumption for the current quota cycle.
func (s *TeamService) Usage(ctx context.Context, userID, teamID string) ([]domain.TeamUsage, error) {
	ctx, span := teamTracer.Start(ctx, "TeamService.Usage")
	defer span.End()

	if _, err := s.requireMember(ctx, teamID, userID); err != nil {
		return nil, err
	}

	members, err := s.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}

	since := time.Now().AddDate(0, 0, -domain.QuotaCycleDays)
	events, err := s.analytics.ListTeamUsageEvents(ctx, teamID, since)
	if err != nil {
		return nil, fmt.Errorf("list team events: %w", err)
	}

	generations := map[string]int{}
	credits := map[string]int{}
	for _, ev := range events {
		if ev.EventType == domain.EventGeneration {
			generations[ev.UserID]++
		}
		credits[ev.UserID] += ev.Credits
	}

	usage := make([]domain.TeamUsage, 0, len(members))
	for _, m := range members {
		name := ""
		if profile, err := s.authStore.GetUserByID(ctx, m.UserID); err == nil && profile != nil {
			name = profile.Name
		}
		usage = append(usage, domain.TeamUsage{
			UserID:      m.UserID,
			Name:        name,
			Generations: generations[m.UserID],
			Credits:     credits[m.UserID],
		})
	}
	return usage, nil
}

func (s *TeamService) requireMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error) {
	member, err := s.store.GetTeamMember(ctx, teamID, userID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if member == nil {
		return nil, &domain.ErrForbidden{Message: "not a member of this team"}
	}
	return member, nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
