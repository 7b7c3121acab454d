package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
)

// --- Store mocks ---
//
// Simple in-memory implementations of the store ports. Everything is
// mutex-guarded because the staging and poll paths touch them from
// goroutines.

type memAuthStore struct {
	mu      sync.Mutex
	users   map[string]*domain.UserProfile
	creds   map[string]*domain.AuthCredential
	refresh map[string]*domain.AuthRefreshToken
}

func newMemAuthStore() *memAuthStore {
	return &memAuthStore{
		users:   map[string]*domain.UserProfile{},
		creds:   map[string]*domain.AuthCredential{},
		refresh: map[string]*domain.AuthRefreshToken{},
	}
}

func (m *memAuthStore) addUser(p *domain.UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[p.ID] = p
}

func (m *memAuthStore) GetUserByID(_ context.Context, userID string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID], nil
}

func (m *memAuthStore) GetUserByEmail(_ context.Context, email string) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *memAuthStore) CreateUserWithCredentials(_ context.Context, req *domain.RegisterRequest, passwordHash string) (*domain.RegisterResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.users[id] = &domain.UserProfile{
		ID:        id,
		Email:     req.Email,
		Name:      req.Name,
		Brokerage: req.Brokerage,
		CreatedAt: time.Now(),
	}
	m.creds[id] = &domain.AuthCredential{UserID: id, PasswordHash: passwordHash}
	return &domain.RegisterResponse{UserID: id, Email: req.Email}, nil
}

func (m *memAuthStore) GetCredentials(_ context.Context, userID string) (*domain.AuthCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "credentials", ID: userID}
	}
	return cred, nil
}

func (m *memAuthStore) UpdateUserProfile(_ context.Context, userID string, updates map[string]any) (*domain.UserProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	if v, ok := updates["name"].(string); ok {
		u.Name = v
	}
	if v, ok := updates["brokerage"].(string); ok {
		u.Brokerage = v
	}
	if v, ok := updates["default_tone"].(string); ok {
		u.DefaultTone = v
	}
	return u, nil
}

func (m *memAuthStore) StoreRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenHash] = &domain.AuthRefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
	return nil
}

func (m *memAuthStore) GetRefreshToken(_ context.Context, tokenHash string) (*domain.AuthRefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh[tokenHash], nil
}

func (m *memAuthStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refresh, tokenHash)
	return nil
}

func (m *memAuthStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, tok := range m.refresh {
		if tok.UserID == userID {
			delete(m.refresh, hash)
		}
	}
	return nil
}

type memQuotaStore struct {
	mu        sync.Mutex
	subs      map[string]*domain.Subscription
	quotas    map[string]*domain.Quota
	customers map[string]string // stripe customer ID -> user ID
	events    map[string]bool
}

func newMemQuotaStore() *memQuotaStore {
	return &memQuotaStore{
		subs:      map[string]*domain.Subscription{},
		quotas:    map[string]*domain.Quota{},
		customers: map[string]string{},
		events:    map[string]bool{},
	}
}

func (m *memQuotaStore) GetSubscription(_ context.Context, userID string) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subs[userID], nil
}

func (m *memQuotaStore) UpsertSubscription(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.UserID] = sub
	return nil
}

func (m *memQuotaStore) GetUserIDByStripeCustomer(_ context.Context, stripeCustomerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.customers[stripeCustomerID]
	if !ok {
		return "", &domain.ErrNotFound{Resource: "stripe customer", ID: stripeCustomerID}
	}
	return userID, nil
}

func (m *memQuotaStore) GetQuota(_ context.Context, userID string) (*domain.Quota, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quotas[userID], nil
}

func (m *memQuotaStore) UpsertQuota(_ context.Context, q *domain.Quota) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *q
	m.quotas[q.UserID] = &cp
	return nil
}

func (m *memQuotaStore) InsertWebhookEvent(_ context.Context, eventID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[eventID] {
		return &domain.ErrDuplicate{Key: eventID}
	}
	m.events[eventID] = true
	return nil
}

type memTeamStore struct {
	mu      sync.Mutex
	auth    *memAuthStore
	teams   map[string]*domain.Team
	members map[string][]*domain.TeamMember
	invites []*domain.TeamInvite
}

func newMemTeamStore(auth *memAuthStore) *memTeamStore {
	return &memTeamStore{
		auth:    auth,
		teams:   map[string]*domain.Team{},
		members: map[string][]*domain.TeamMember{},
	}
}

func (m *memTeamStore) CreateTeam(_ context.Context, team *domain.Team) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[team.ID] = team
	return team, nil
}

func (m *memTeamStore) GetTeam(_ context.Context, teamID string) (*domain.Team, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.teams[teamID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "team", ID: teamID}
	}
	return team, nil
}

func (m *memTeamStore) GetTeamMember(_ context.Context, teamID, userID string) (*domain.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members[teamID] {
		if mem.UserID == userID {
			return mem, nil
		}
	}
	return nil, nil
}

func (m *memTeamStore) ListTeamMembers(_ context.Context, teamID string) ([]domain.TeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TeamMember, 0, len(m.members[teamID]))
	for _, mem := range m.members[teamID] {
		out = append(out, *mem)
	}
	return out, nil
}

func (m *memTeamStore) AddTeamMember(_ context.Context, member *domain.TeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.TeamID] = append(m.members[member.TeamID], member)
	return nil
}

func (m *memTeamStore) RemoveTeamMember(_ context.Context, teamID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.members[teamID][:0]
	for _, mem := range m.members[teamID] {
		if mem.UserID != userID {
			kept = append(kept, mem)
		}
	}
	m.members[teamID] = kept
	return nil
}

func (m *memTeamStore) CreateInvite(_ context.Context, invite *domain.TeamInvite) (*domain.TeamInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites = append(m.invites, invite)
	return invite, nil
}

func (m *memTeamStore) GetInviteByToken(_ context.Context, tokenHash string) (*domain.TeamInvite, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.Token == tokenHash {
			return inv, nil
		}
	}
	return nil, nil
}

func (m *memTeamStore) MarkInviteAccepted(_ context.Context, inviteID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invites {
		if inv.ID == inviteID {
			now := time.Now()
			inv.AcceptedAt = &now
			return nil
		}
	}
	return &domain.ErrNotFound{Resource: "invite", ID: inviteID}
}

func (m *memTeamStore) SetUserTeam(_ context.Context, userID, teamID string) error {
	m.auth.mu.Lock()
	defer m.auth.mu.Unlock()
	if u, ok := m.auth.users[userID]; ok {
		u.TeamID = teamID
	}
	return nil
}

type memGenerationStore struct {
	mu     sync.Mutex
	gens   map[string]*domain.Generation
	staged map[string]string // generation ID -> staged image URL
}

func newMemGenerationStore() *memGenerationStore {
	return &memGenerationStore{
		gens:   map[string]*domain.Generation{},
		staged: map[string]string{},
	}
}

func (m *memGenerationStore) CreateGeneration(_ context.Context, gen *domain.Generation) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *gen
	m.gens[gen.ID] = &cp
	return &cp, nil
}

func (m *memGenerationStore) ListGenerations(_ context.Context, userID, copyType string, _, _ int) ([]domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Generation
	for _, g := range m.gens {
		if g.UserID == userID && (copyType == "" || g.CopyType == copyType) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memGenerationStore) GetGeneration(_ context.Context, userID, generationID string) (*domain.Generation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gens[generationID]
	if !ok || g.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "generation", ID: generationID}
	}
	return g, nil
}

func (m *memGenerationStore) DeleteGeneration(_ context.Context, userID, generationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.gens[generationID]
	if !ok || g.UserID != userID {
		return &domain.ErrNotFound{Resource: "generation", ID: generationID}
	}
	delete(m.gens, generationID)
	return nil
}

func (m *memGenerationStore) SetStagedImage(_ context.Context, generationID, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staged[generationID] = imageURL
	return nil
}

type memStagingStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.StagingJob
}

func newMemStagingStore() *memStagingStore {
	return &memStagingStore{jobs: map[string]*domain.StagingJob{}}
}

func (m *memStagingStore) job(jobID string) *domain.StagingJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	if j == nil {
		return nil
	}
	cp := *j
	return &cp
}

func (m *memStagingStore) CreateStagingJob(_ context.Context, job *domain.StagingJob) (*domain.StagingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStagingStore) GetStagingJob(_ context.Context, userID, jobID string) (*domain.StagingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "staging job", ID: jobID}
	}
	cp := *j
	return &cp, nil
}

func (m *memStagingStore) GetStagingJobByID(_ context.Context, jobID string) (*domain.StagingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "staging job", ID: jobID}
	}
	cp := *j
	return &cp, nil
}

func (m *memStagingStore) ListStagingJobs(_ context.Context, userID, status string, _, _ int) ([]domain.StagingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StagingJob
	for _, j := range m.jobs {
		if j.UserID == userID && (status == "" || j.Status == status) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memStagingStore) ListPollableJobs(_ context.Context, limit int) ([]domain.StagingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StagingJob
	for _, j := range m.jobs {
		if j.Status == domain.StagingStatusPending || j.Status == domain.StagingStatusProcessing {
			out = append(out, *j)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memStagingStore) UpdateStagingJob(_ context.Context, jobID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &domain.ErrNotFound{Resource: "staging job", ID: jobID}
	}
	for k, v := range updates {
		switch k {
		case "status":
			j.Status = v.(string)
		case "provider":
			j.Provider = v.(string)
		case "attempts":
			j.Attempts = v.(int)
		case "vendor_job_id":
			j.VendorJobID = v.(string)
		case "error":
			j.Error = v.(string)
		case "result_url":
			j.ResultURL = v.(string)
		}
	}
	return nil
}

type memBulkStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.BulkJob
	rows map[string]*domain.BulkRow
}

func newMemBulkStore() *memBulkStore {
	return &memBulkStore{
		jobs: map[string]*domain.BulkJob{},
		rows: map[string]*domain.BulkRow{},
	}
}

func (m *memBulkStore) CreateBulkJob(_ context.Context, job *domain.BulkJob, rows []domain.BulkRow) (*domain.BulkJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	out := cp
	return &out, nil
}

func (m *memBulkStore) GetBulkJob(_ context.Context, userID, jobID string) (*domain.BulkJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "bulk job", ID: jobID}
	}
	cp := *j
	return &cp, nil
}

func (m *memBulkStore) GetBulkJobByID(_ context.Context, jobID string) (*domain.BulkJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "bulk job", ID: jobID}
	}
	cp := *j
	return &cp, nil
}

func (m *memBulkStore) ListPendingRows(_ context.Context, limit int) ([]domain.BulkRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BulkRow
	for _, r := range m.rows {
		if r.Status == domain.BulkStatusPending {
			out = append(out, *r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *memBulkStore) UpdateBulkRow(_ context.Context, rowID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[rowID]
	if !ok {
		return &domain.ErrNotFound{Resource: "bulk row", ID: rowID}
	}
	for k, v := range updates {
		switch k {
		case "status":
			r.Status = v.(string)
		case "generation_id":
			r.GenerationID = v.(string)
		case "error":
			r.Error = v.(string)
		}
	}
	return nil
}

func (m *memBulkStore) UpdateBulkJob(_ context.Context, jobID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return &domain.ErrNotFound{Resource: "bulk job", ID: jobID}
	}
	for k, v := range updates {
		switch k {
		case "status":
			j.Status = v.(string)
		case "processed_rows":
			j.ProcessedRows = v.(int)
		case "failed_rows":
			j.FailedRows = v.(int)
		}
	}
	return nil
}

func (m *memBulkStore) CountRemainingRows(_ context.Context, jobID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.BulkJobID == jobID && r.Status == domain.BulkStatusPending {
			n++
		}
	}
	return n, nil
}

type memAnalyticsStore struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (m *memAnalyticsStore) InsertUsageEvent(_ context.Context, ev *domain.UsageEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memAnalyticsStore) ListUsageEvents(_ context.Context, userID string, since time.Time) ([]domain.UsageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UsageEvent
	for _, ev := range m.events {
		if ev.UserID == userID && ev.CreatedAt.After(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memAnalyticsStore) ListTeamUsageEvents(_ context.Context, teamID string, since time.Time) ([]domain.UsageEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.UsageEvent
	for _, ev := range m.events {
		if ev.TeamID == teamID && ev.CreatedAt.After(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memAnalyticsStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type memIntegrationStore struct {
	mu      sync.Mutex
	configs map[string]*domain.IntegrationConfig
	pushes  []domain.PushRecord
}

func newMemIntegrationStore() *memIntegrationStore {
	return &memIntegrationStore{configs: map[string]*domain.IntegrationConfig{}}
}

func (m *memIntegrationStore) CreateIntegration(_ context.Context, cfg *domain.IntegrationConfig) (*domain.IntegrationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.configs[cfg.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memIntegrationStore) ListIntegrations(_ context.Context, userID string) ([]domain.IntegrationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.IntegrationConfig
	for _, c := range m.configs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memIntegrationStore) GetIntegration(_ context.Context, userID, integrationID string) (*domain.IntegrationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[integrationID]
	if !ok || c.UserID != userID {
		return nil, &domain.ErrNotFound{Resource: "integration", ID: integrationID}
	}
	cp := *c
	return &cp, nil
}

func (m *memIntegrationStore) UpdateIntegration(_ context.Context, integrationID string, updates map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[integrationID]
	if !ok {
		return &domain.ErrNotFound{Resource: "integration", ID: integrationID}
	}
	for k, v := range updates {
		switch k {
		case "name":
			c.Name = v.(string)
		case "kind":
			c.Kind = v.(string)
		case "endpoint_url":
			c.EndpointURL = v.(string)
		case "api_key":
			c.APIKey = v.(string)
		case "enabled":
			c.Enabled = v.(bool)
		}
	}
	return nil
}

func (m *memIntegrationStore) DeleteIntegration(_ context.Context, userID, integrationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.configs[integrationID]
	if !ok || c.UserID != userID {
		return &domain.ErrNotFound{Resource: "integration", ID: integrationID}
	}
	delete(m.configs, integrationID)
	return nil
}

func (m *memIntegrationStore) CreatePushRecord(_ context.Context, rec *domain.PushRecord) (*domain.PushRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushes = append(m.pushes, *rec)
	return rec, nil
}

func (m *memIntegrationStore) ListPushRecords(_ context.Context, integrationID string, _, _ int) ([]domain.PushRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PushRecord
	for _, rec := range m.pushes {
		if rec.IntegrationID == integrationID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// --- Client mocks ---

type stubCopyGenerator struct {
	mu     sync.Mutex
	name   string
	result *domain.CopyResult
	err    error
	calls  int
}

func (s *stubCopyGenerator) GenerateCopy(_ context.Context, _ *domain.CopyRequest) (*domain.CopyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubCopyGenerator) Name() string { return s.name }

func (s *stubCopyGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubGeocoder struct {
	mu    sync.Mutex
	name  string
	geo   *domain.GeoResult
	err   error
	calls int
}

func (s *stubGeocoder) Resolve(_ context.Context, _ string) (*domain.GeoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.geo, nil
}

func (s *stubGeocoder) Name() string { return s.name }

func (s *stubGeocoder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubStagingVendor struct {
	mu        sync.Mutex
	name      string
	submitID  string
	submitErr error
	status    *domain.VendorStatus
	statusErr error
	submits   int
}

func (s *stubStagingVendor) Submit(_ context.Context, _, _, _ string) (*domain.VendorSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &domain.VendorSubmission{VendorJobID: s.submitID}, nil
}

func (s *stubStagingVendor) Status(_ context.Context, _ string) (*domain.VendorStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func (s *stubStagingVendor) Name() string { return s.name }

type stubPusher struct {
	mu      sync.Mutex
	code    int
	err     error
	lastURL string
}

func (s *stubPusher) Push(_ context.Context, endpointURL, _ string, _ *domain.ListingPushPayload) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastURL = endpointURL
	return s.code, s.err
}

// --- Shared fixtures ---

func testTierFor(priceID string) string {
	switch priceID {
	case "price_starter":
		return domain.TierStarter
	case "price_pro":
		return domain.TierPro
	case "price_team":
		return domain.TierTeam
	}
	return ""
}
