package port

import (
	"context"
	"time"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// GenerationStore persists listing-copy generations.
type GenerationStore interface {
	CreateGeneration(ctx context.Context, gen *domain.Generation) (*domain.Generation, error)
	ListGenerations(ctx context.Context, userID, copyType string, page, pageSize int) ([]domain.Generation, error)
	GetGeneration(ctx context.Context, userID, generationID string) (*domain.Generation, error)
	DeleteGeneration(ctx context.Context, userID, generationID string) error
	SetStagedImage(ctx context.Context, generationID, imageURL string) error
}

// StagingStore persists staging queue entries.
type StagingStore interface {
	CreateStagingJob(ctx context.Context, job *domain.StagingJob) (*domain.StagingJob, error)
	GetStagingJob(ctx context.Context, userID, jobID string) (*domain.StagingJob, error)
	GetStagingJobByID(ctx context.Context, jobID string) (*domain.StagingJob, error)
	ListStagingJobs(ctx context.Context, userID, status string, page, pageSize int) ([]domain.StagingJob, error)
	// ListPollableJobs returns pending and processing entries, FIFO by creation.
	ListPollableJobs(ctx context.Context, limit int) ([]domain.StagingJob, error)
	UpdateStagingJob(ctx context.Context, jobID string, updates map[string]any) error
}

// QuotaStore persists subscriptions, quota counters and webhook dedup rows.
type QuotaStore interface {
	GetSubscription(ctx context.Context, userID string) (*domain.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *domain.Subscription) error
	GetUserIDByStripeCustomer(ctx context.Context, stripeCustomerID string) (string, error)
	GetQuota(ctx context.Context, userID string) (*domain.Quota, error)
	UpsertQuota(ctx context.Context, q *domain.Quota) error
	// InsertWebhookEvent returns domain.ErrDuplicate when the event ID was
	// already processed.
	InsertWebhookEvent(ctx context.Context, eventID, eventType string) error
}

// BulkStore persists bulk jobs and their rows.
type BulkStore interface {
	CreateBulkJob(ctx context.Context, job *domain.BulkJob, rows []domain.BulkRow) (*domain.BulkJob, error)
	GetBulkJob(ctx context.Context, userID, jobID string) (*domain.BulkJob, error)
	GetBulkJobByID(ctx context.Context, jobID string) (*domain.BulkJob, error)
	// ListPendingRows returns pending rows across jobs, oldest job first.
	ListPendingRows(ctx context.Context, limit int) ([]domain.BulkRow, error)
	UpdateBulkRow(ctx context.Context, rowID string, updates map[string]any) error
	UpdateBulkJob(ctx context.Context, jobID string, updates map[string]any) error
	CountRemainingRows(ctx context.Context, jobID string) (int, error)
}

// TeamStore persists teams, members and invites.
type TeamStore interface {
	CreateTeam(ctx context.Context, team *domain.Team) (*domain.Team, error)
	GetTeam(ctx context.Context, teamID string) (*domain.Team, error)
	GetTeamMember(ctx context.Context, teamID, userID string) (*domain.TeamMember, error)
	ListTeamMembers(ctx context.Context, teamID string) ([]domain.TeamMember, error)
	AddTeamMember(ctx context.Context, member *domain.TeamMember) error
	RemoveTeamMember(ctx context.Context, teamID, userID string) error
	CreateInvite(ctx context.Context, invite *domain.TeamInvite) (*domain.TeamInvite, error)
	GetInviteByToken(ctx context.Context, tokenHash string) (*domain.TeamInvite, error)
	MarkInviteAccepted(ctx context.Context, inviteID string) error
	SetUserTeam(ctx context.Context, userID, teamID string) error
}

// AnalyticsStore persists and queries usage events.
type AnalyticsStore interface {
	InsertUsageEvent(ctx context.Context, ev *domain.UsageEvent) error
	ListUsageEvents(ctx context.Context, userID string, since time.Time) ([]domain.UsageEvent, error)
	ListTeamUsageEvents(ctx context.Context, teamID string, since time.Time) ([]domain.UsageEvent, error)
}

// IntegrationStore persists MLS/CRM connector configs and push records.
type IntegrationStore interface {
	CreateIntegration(ctx context.Context, cfg *domain.IntegrationConfig) (*domain.IntegrationConfig, error)
	ListIntegrations(ctx context.Context, userID string) ([]domain.IntegrationConfig, error)
	GetIntegration(ctx context.Context, userID, integrationID string) (*domain.IntegrationConfig, error)
	UpdateIntegration(ctx context.Context, integrationID string, updates map[string]any) error
	DeleteIntegration(ctx context.Context, userID, integrationID string) error
	CreatePushRecord(ctx context.Context, rec *domain.PushRecord) (*domain.PushRecord, error)
	ListPushRecords(ctx context.Context, integrationID string, page, pageSize int) ([]domain.PushRecord, error)
}

// AuthStore defines all data operations for the authentication system.
type AuthStore interface {
	GetUserByID(ctx context.Context, userID string) (*domain.UserProfile, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.UserProfile, error)
	CreateUserWithCredentials(ctx context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.RegisterResponse, error)
	GetCredentials(ctx context.Context, userID string) (*domain.AuthCredential, error)
	UpdateUserProfile(ctx context.Context, userID string, updates map[string]any) (*domain.UserProfile, error)

	StoreRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.AuthRefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, userID string) error
}
