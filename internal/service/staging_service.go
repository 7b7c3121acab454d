package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/infra/observability"
	"github.com/zprovisionz/lowcountrylister/internal/infra/resilience"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var stagingTracer = otel.Tracer("service/staging")

// submitTimeout bounds the fire-and-forget vendor submission that runs
// outside the request lifecycle.
const submitTimeout = 30 * time.Second

// StagingService manages virtual-staging jobs against external vendors.
// Jobs move pending -> processing -> completed|failed; the only backward
// transition is the requeue that swaps a job onto the fallback vendor.
type StagingService struct {
	store       port.StagingStore
	generations port.GenerationStore
	analytics   port.AnalyticsStore
	authStore   port.AuthStore
	quota       *QuotaService
	primary     port.StagingVendor
	fallback    port.StagingVendor
	bulkhead    *resilience.Bulkhead
	maxAttempts int
	pollBatch   int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewStagingService creates the staging service with all dependencies
// injected.
func NewStagingService(
	store port.StagingStore,
	generations port.GenerationStore,
	analytics port.AnalyticsStore,
	authStore port.AuthStore,
	quota *QuotaService,
	primary, fallback port.StagingVendor,
	bulkhead *resilience.Bulkhead,
	maxAttempts, pollBatch int,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *StagingService {
	return &StagingService{
		store:       store,
		generations: generations,
		analytics:   analytics,
		authStore:   authStore,
		quota:       quota,
		primary:     primary,
		fallback:    fallback,
		bulkhead:    bulkhead,
		maxAttempts: maxAttempts,
		pollBatch:   pollBatch,
		metrics:     metrics,
		logger:      logger,
	}
}

// Create debits quota, enqueues the job and kicks off an async
// submission so the caller gets an immediate 202-style answer.
func (s *StagingService) Create(ctx context.Context, userID string, req *domain.StagingRequest) (*domain.StagingJob, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Create")
	defer span.End()

	if err := validateStagingRequest(req); err != nil {
		return nil, err
	}

	if req.GenerationID != "" {
		// The job must attach to a generation the caller owns.
		if _, err := s.generations.GetGeneration(ctx, userID, req.GenerationID); err != nil {
			return nil, err
		}
	}

	if err := s.quota.Consume(ctx, userID, domain.CreditsStaging); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &domain.StagingJob{
		ID:           uuid.New().String(),
		UserID:       userID,
		GenerationID: req.GenerationID,
		ImageURL:     req.ImageURL,
		RoomType:     req.RoomType,
		Style:        req.Style,
		Status:       domain.StagingStatusPending,
		Provider:     s.primary.Name(),
		MaxAttempts:  s.maxAttempts,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created, err := s.store.CreateStagingJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("persist staging job: %w", err)
	}

	s.metrics.IncrStagingJob(domain.StagingStatusPending)
	s.recordStagingEvent(ctx, created)

	// Submit outside the request; the cron poller picks up anything
	// this attempt leaves behind.
	go s.submitAsync(created)

	s.logger.Info("staging job created",
		zap.String("job_id", created.ID),
		zap.String("user_id", userID),
		zap.String("provider", created.Provider),
	)

	return created, nil
}

// Get returns a job owned by the caller.
func (s *StagingService) Get(ctx context.Context, userID, jobID string) (*domain.StagingJob, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Get")
	defer span.End()

	return s.store.GetStagingJob(ctx, userID, jobID)
}

// List returns a page of the caller's jobs, optionally by status.
func (s *StagingService) List(ctx context.Context, userID, status string, page, pageSize int) (*domain.ListResponse[domain.StagingJob], error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.List")
	defer span.End()

	jobs, err := s.store.ListStagingJobs(ctx, userID, status, page, pageSize)
	if err != nil {
		return nil, err
	}

	return &domain.ListResponse[domain.StagingJob]{
		Data:     jobs,
		Total:    len(jobs),
		Page:     page,
		PageSize: pageSize,
		HasMore:  len(jobs) == pageSize,
	}, nil
}

// Cancel stops a job that has not been handed to a vendor yet. Anything
// past pending keeps running.
func (s *StagingService) Cancel(ctx context.Context, userID, jobID string) (*domain.StagingJob, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Cancel")
	defer span.End()

	job, err := s.store.GetStagingJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StagingStatusPending {
		return nil, &domain.ErrInvalidTransition{From: job.Status, To: domain.StagingStatusCancelled}
	}

	if err := s.store.UpdateStagingJob(ctx, jobID, map[string]any{
		"status": domain.StagingStatusCancelled,
	}); err != nil {
		return nil, err
	}
	job.Status = domain.StagingStatusCancelled

	s.metrics.IncrStagingJob(domain.StagingStatusCancelled)
	return job, nil
}

// ============================================================
// Cron poll pass
// ============================================================

// Poll advances every pollable job one step: pending jobs get
// (re)submitted, processing jobs get their vendor status checked.
// Invoked by the cron endpoint.
func (s *StagingService) Poll(ctx context.Context) (*domain.StagingPollResult, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.Poll")
	defer span.End()

	jobs, err := s.store.ListPollableJobs(ctx, s.pollBatch)
	if err != nil {
		return nil, fmt.Errorf("list pollable jobs: %w", err)
	}
	span.SetAttributes(attribute.Int("staging.poll_count", len(jobs)))

	result := &domain.StagingPollResult{Polled: len(jobs)}
	if len(jobs) == 0 {
		return result, nil
	}

	var completed, failed, requeued counter

	g, gCtx := errgroup.WithContext(ctx)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			if err := s.bulkhead.Acquire(gCtx); err != nil {
				return err
			}
			defer s.bulkhead.Release()

			switch job.Status {
			case domain.StagingStatusPending:
				s.advancePending(gCtx, &job, &failed, &requeued)
			case domain.StagingStatusProcessing:
				s.advanceProcessing(gCtx, &job, &completed, &failed, &requeued)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Completed = completed.get()
	result.Failed = failed.get()
	result.Requeued = requeued.get()

	s.logger.Info("staging poll pass finished",
		zap.Int("polled", result.Polled),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
		zap.Int("requeued", result.Requeued),
	)

	return result, nil
}

// ============================================================
// Dev tools
// ============================================================

// DevCompleteStaging forces a job into the completed state as if the
// vendor had delivered, reconciling the staged image into the parent
// generation. Only reachable when dev tools are enabled.
func (s *StagingService) DevCompleteStaging(ctx context.Context, userID, jobID, resultURL string) (*domain.StagingJob, error) {
	ctx, span := stagingTracer.Start(ctx, "StagingService.DevCompleteStaging")
	defer span.End()

	job, err := s.store.GetStagingJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.StagingStatusCompleted || job.Status == domain.StagingStatusCancelled {
		return nil, &domain.ErrInvalidTransition{From: job.Status, To: domain.StagingStatusCompleted}
	}
	if resultURL == "" {
		resultURL = "https://staging-results.local/" + job.ID + ".jpg"
	}

	s.completeJob(ctx, job, resultURL)
	job.Status = domain.StagingStatusCompleted
	job.ResultURL = resultURL

	s.logger.Info("dev staging completion", zap.String("job_id", job.ID))
	return job, nil
}

// ============================================================
// Internal helpers
// ============================================================

// submitAsync runs one submission attempt detached from the request.
func (s *StagingService) submitAsync(job *domain.StagingJob) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	var failed, requeued counter
	s.advancePending(ctx, job, &failed, &requeued)
}

// advancePending tries to hand a pending job to its vendor. Exhausted
// attempts swap the job to the fallback vendor once, then fail it.
func (s *StagingService) advancePending(ctx context.Context, job *domain.StagingJob, failed, requeued *counter) {
	if job.Attempts >= job.MaxAttempts {
		if s.swapOrFail(ctx, job, "submission attempts exhausted", failed, requeued) {
			return
		}
	}
	vendor := s.vendorFor(job.Provider)

	sub, err := vendor.Submit(ctx, job.ImageURL, job.RoomType, job.Style)
	if err != nil {
		s.metrics.IncrExternalError("staging/" + vendor.Name())
		s.logger.Warn("staging submission failed",
			zap.String("job_id", job.ID),
			zap.String("provider", vendor.Name()),
			zap.Int("attempt", job.Attempts+1),
			zap.Error(err),
		)
		job.Attempts++
		_ = s.store.UpdateStagingJob(ctx, job.ID, map[string]any{
			"attempts": job.Attempts,
			"error":    err.Error(),
		})
		return
	}

	job.Status = domain.StagingStatusProcessing
	job.VendorJobID = sub.VendorJobID
	_ = s.store.UpdateStagingJob(ctx, job.ID, map[string]any{
		"status":        domain.StagingStatusProcessing,
		"vendor_job_id": sub.VendorJobID,
		"error":         "",
	})
	s.metrics.IncrStagingJob(domain.StagingStatusProcessing)
}

// advanceProcessing checks vendor status for a submitted job.
func (s *StagingService) advanceProcessing(ctx context.Context, job *domain.StagingJob, completed, failed, requeued *counter) {
	vendor := s.vendorFor(job.Provider)

	status, err := vendor.Status(ctx, job.VendorJobID)
	if err != nil {
		s.metrics.IncrExternalError("staging/" + vendor.Name())
		s.logger.Warn("staging status check failed",
			zap.String("job_id", job.ID),
			zap.String("provider", vendor.Name()),
			zap.Error(err),
		)
		return // transient; next pass retries
	}

	switch status.Status {
	case domain.VendorStatusDone:
		s.completeJob(ctx, job, status.ResultURL)
		completed.inc()
	case domain.VendorStatusError:
		job.Attempts++
		if job.Attempts >= job.MaxAttempts {
			s.swapOrFail(ctx, job, status.Error, failed, requeued)
			return
		}
		// Resubmit on the next pass.
		_ = s.store.UpdateStagingJob(ctx, job.ID, map[string]any{
			"status":        domain.StagingStatusPending,
			"attempts":      job.Attempts,
			"vendor_job_id": "",
			"error":         status.Error,
		})
	}
	// queued / processing at the vendor: nothing to do yet.
}

// swapOrFail moves an exhausted job to the fallback vendor with a fresh
// attempt budget, or fails it when it is already on the fallback.
// Returns true when the job reached a terminal state.
func (s *StagingService) swapOrFail(ctx context.Context, job *domain.StagingJob, reason string, failed, requeued *counter) bool {
	if job.Provider == s.primary.Name() {
		job.Provider = s.fallback.Name()
		job.Attempts = 0
		job.Status = domain.StagingStatusPending
		_ = s.store.UpdateStagingJob(ctx, job.ID, map[string]any{
			"status":        domain.StagingStatusPending,
			"provider":      job.Provider,
			"attempts":      0,
			"vendor_job_id": "",
			"error":         reason,
		})
		requeued.inc()
		s.logger.Warn("staging job requeued on fallback vendor",
			zap.String("job_id", job.ID),
			zap.String("provider", job.Provider),
		)
		return false
	}

	_ = s.store.UpdateStagingJob(ctx, job.ID, map[string]any{
		"status": domain.StagingStatusFailed,
		"error":  reason,
	})
	s.metrics.IncrStagingJob(domain.StagingStatusFailed)
	failed.inc()
	s.logger.Error("staging job failed on both vendors",
		zap.String("job_id", job.ID),
		zap.String("reason", reason),
	)
	return true
}

// completeJob records the result and reconciles it into the parent
// generation when one is linked.
func (s *StagingService) completeJob(ctx context.Context, job *domain.StagingJob, resultURL string) {
	now := time.Now()
	_ = s.store.UpdateStagingJob(ctx, job.ID, map[string]any{
		"status":       domain.StagingStatusCompleted,
		"result_url":   resultURL,
		"completed_at": now.Format(time.RFC3339),
	})
	s.metrics.IncrStagingJob(domain.StagingStatusCompleted)

	if job.GenerationID != "" {
		if err := s.generations.SetStagedImage(ctx, job.GenerationID, resultURL); err != nil {
			s.logger.Warn("failed to attach staged image to generation",
				zap.String("job_id", job.ID),
				zap.String("generation_id", job.GenerationID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("staging job completed",
		zap.String("job_id", job.ID),
		zap.String("provider", job.Provider),
	)
}

func (s *StagingService) vendorFor(name string) port.StagingVendor {
	if name == s.fallback.Name() {
		return s.fallback
	}
	return s.primary
}

func (s *StagingService) recordStagingEvent(ctx context.Context, job *domain.StagingJob) {
	teamID := ""
	if profile, err := s.authStore.GetUserByID(ctx, job.UserID); err == nil && profile != nil {
		teamID = profile.TeamID
	}
	ev := &domain.UsageEvent{
		ID:        uuid.New().String(),
		UserID:    job.UserID,
		TeamID:    teamID,
		EventType: domain.EventStaging,
		Provider:  job.Provider,
		Credits:   domain.CreditsStaging,
		CreatedAt: time.Now(),
	}
	if err := s.analytics.InsertUsageEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to record usage event", zap.Error(err))
	}
}

func validateStagingRequest(req *domain.StagingRequest) error {
	if strings.TrimSpace(req.ImageURL) == "" {
		return &domain.ErrValidation{Field: "imageUrl", Message: "image URL is required"}
	}
	if !strings.HasPrefix(req.ImageURL, "http://") && !strings.HasPrefix(req.ImageURL, "https://") {
		return &domain.ErrValidation{Field: "imageUrl", Message: "image URL must be http(s)"}
	}
	if strings.TrimSpace(req.RoomType) == "" {
		return &domain.ErrValidation{Field: "roomType", Message: "room type is required"}
	}
	if strings.TrimSpace(req.Style) == "" {
		return &domain.ErrValidation{Field: "style", Message: "style is required"}
	}
	return nil
}

// counter is a tiny atomic-free tally guarded by its own mutex, used by
// the concurrent poll pass.
type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
