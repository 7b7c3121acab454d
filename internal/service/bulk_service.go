package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/zprovisionz/lowcountrylister/internal/domain"
	"github.com/zprovisionz/lowcountrylister/internal/port"
)

var bulkTracer = otel.Tracer("service/bulk")

// BulkService handles batch listing generation. Submissions are stored
// whole; the cron-invoked Process pass works through rows a batch at a
// time so a large job never blocks a request.
type BulkService struct {
	store       port.BulkStore
	generations *GenerationService
	quota       *QuotaService
	batchSize   int
	logger      *zap.Logger
}

// NewBulkService creates a new bulk service.
func NewBulkService(store port.BulkStore, generations *GenerationService, quota *QuotaService, batchSize int, logger *zap.Logger) *BulkService {
	return &BulkService{
		store:       store,
		generations: generations,
		quota:       quota,
		batchSize:   batchSize,
		logger:      logger,
	}
}

// Create validates and stores a bulk job. The whole batch must fit in
// the caller's remaining quota up front; credits are debited per row as
// rows are processed.
func (s *BulkService) Create(ctx context.Context, userID string, req *domain.BulkRequest) (*domain.BulkJob, error) {
	ctx, span := bulkTracer.Start(ctx, "BulkService.Create")
	defer span.End()
	span.SetAttributes(attribute.Int("bulk.rows", len(req.Rows)))

	if len(req.Rows) == 0 {
		return nil, &domain.ErrValidation{Field: "rows", Message: "at least one row is required"}
	}
	if len(req.Rows) > domain.BulkMaxRows {
		return nil, &domain.ErrValidation{
			Field:   "rows",
			Message: fmt.Sprintf("a bulk job is capped at %d rows", domain.BulkMaxRows),
		}
	}
	for i, row := range req.Rows {
		if err := validateGenerateRequest(&domain.GenerateRequest{
			Address:  row.Address,
			Property: row.Property,
			CopyType: row.CopyType,
			Tone:     row.Tone,
		}); err != nil {
			var ve *domain.ErrValidation
			if errors.As(err, &ve) {
				return nil, &domain.ErrValidation{
					Field:   fmt.Sprintf("rows[%d].%s", i, ve.Field),
					Message: ve.Message,
				}
			}
			return nil, err
		}
	}

	remaining, err := s.quota.Remaining(ctx, userID)
	if err != nil {
		return nil, err
	}
	needed := len(req.Rows) * domain.CreditsGeneration
	if needed > remaining {
		return nil, &domain.ErrQuotaExceeded{Used: needed - remaining, Limit: remaining}
	}

	now := time.Now()
	job := &domain.BulkJob{
		ID:        uuid.New().String(),
		UserID:    userID,
		Status:    domain.BulkStatusPending,
		TotalRows: len(req.Rows),
		CreatedAt: now,
		UpdatedAt: now,
	}
	rows := make([]domain.BulkRow, 0, len(req.Rows))
	for _, in := range req.Rows {
		rows = append(rows, domain.BulkRow{
			ID:        uuid.New().String(),
			BulkJobID: job.ID,
			Address:   in.Address,
			Property:  in.Property,
			CopyType:  in.CopyType,
			Tone:      in.Tone,
			Status:    domain.BulkStatusPending,
		})
	}

	created, err := s.store.CreateBulkJob(ctx, job, rows)
	if err != nil {
		return nil, fmt.Errorf("persist bulk job: %w", err)
	}

	s.logger.Info("bulk job created",
		zap.String("job_id", created.ID),
		zap.String("user_id", userID),
		zap.Int("rows", created.TotalRows),
	)

	return created, nil
}

// Get returns a bulk job owned by the caller.
func (s *BulkService) Get(ctx context.Context, userID, jobID string) (*domain.BulkJob, error) {
	ctx, span := bulkTracer.Start(ctx, "BulkService.Get")
	defer span.End()

	return s.store.GetBulkJob(ctx, userID, jobID)
}

// ============================================================
// Cron process pass
// ============================================================

// Process works through up to batchSize pending rows across all jobs,
// oldest first, then closes out any job whose rows are all settled.
// Invoked by the cron endpoint.
func (s *BulkService) Process(ctx context.Context) (*domain.BulkProcessResult, error) {
	ctx, span := bulkTracer.Start(ctx, "BulkService.Process")
	defer span.End()

	rows, err := s.store.ListPendingRows(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("list pending rows: %w", err)
	}
	span.SetAttributes(attribute.Int("bulk.batch", len(rows)))

	result := &domain.BulkProcessResult{}
	touched := map[string]*domain.BulkJob{}

	// Rows run sequentially: each one is an LLM call, and the cron
	// cadence, not this pass, sets the throughput.
	for _, row := range rows {
		job, ok := touched[row.BulkJobID]
		if !ok {
			job, err = s.store.GetBulkJobByID(ctx, row.BulkJobID)
			if err != nil {
				s.logger.Warn("bulk row orphaned, skipping",
					zap.String("row_id", row.ID),
					zap.Error(err),
				)
				continue
			}
			if job.Status == domain.BulkStatusPending {
				job.Status = domain.BulkStatusProcessing
				_ = s.store.UpdateBulkJob(ctx, job.ID, map[string]any{
					"status": domain.BulkStatusProcessing,
				})
			}
			touched[row.BulkJobID] = job
		}

		s.processRow(ctx, job, &row, result)
	}

	// Close out jobs with no rows left.
	for _, job := range touched {
		remaining, err := s.store.CountRemainingRows(ctx, job.ID)
		if err != nil {
			s.logger.Warn("bulk close-out check failed",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			continue
		}
		if remaining > 0 {
			continue
		}

		final := domain.BulkStatusCompleted
		if job.FailedRows == job.TotalRows {
			final = domain.BulkStatusFailed
		}
		_ = s.store.UpdateBulkJob(ctx, job.ID, map[string]any{
			"status":         final,
			"processed_rows": job.ProcessedRows,
			"failed_rows":    job.FailedRows,
		})
		result.JobsClosed++

		s.logger.Info("bulk job closed",
			zap.String("job_id", job.ID),
			zap.String("status", final),
			zap.Int("processed", job.ProcessedRows),
			zap.Int("failed", job.FailedRows),
		)
	}

	return result, nil
}

func (s *BulkService) processRow(ctx context.Context, job *domain.BulkJob, row *domain.BulkRow, result *domain.BulkProcessResult) {
	gen, err := s.generations.Generate(ctx, job.UserID, &domain.GenerateRequest{
		Address:  row.Address,
		Property: row.Property,
		CopyType: row.CopyType,
		Tone:     row.Tone,
	})
	if err != nil {
		job.FailedRows++
		result.Failed++
		_ = s.store.UpdateBulkRow(ctx, row.ID, map[string]any{
			"status": domain.BulkStatusFailed,
			"error":  err.Error(),
		})
		_ = s.store.UpdateBulkJob(ctx, job.ID, map[string]any{
			"failed_rows": job.FailedRows,
		})
		s.logger.Warn("bulk row failed",
			zap.String("job_id", job.ID),
			zap.String("row_id", row.ID),
			zap.Error(err),
		)
		return
	}

	job.ProcessedRows++
	result.Processed++
	_ = s.store.UpdateBulkRow(ctx, row.ID, map[string]any{
		"status":        domain.BulkStatusCompleted,
		"generation_id": gen.ID,
	})
	_ = s.store.UpdateBulkJob(ctx, job.ID, map[string]any{
		"processed_rows": job.ProcessedRows,
	})
}
