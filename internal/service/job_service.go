// Package service implements the application operations the HTTP surface
// exposes: submitting jobs, inspecting their state, retrying failures, and
// listing processed records.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/queue"
	"github.com/voxnote/voxnote-api/internal/store"
)

// RecordCache is the read-through cache over company record listings.
// Implementations return an error on miss; the service treats every cache
// error as a miss and repopulates from the store.
type RecordCache interface {
	GetRecords(ctx context.Context, companyID uuid.UUID) ([]*domain.ProcessedRecord, error)
	SetRecords(ctx context.Context, companyID uuid.UUID, records []*domain.ProcessedRecord) error
}

// SubmitParams carries everything needed to create a job. Prompt is an
// optional instruction passed through to the analysis step.
type SubmitParams struct {
	FileID    string
	UserID    uuid.UUID
	CompanyID uuid.UUID
	StaffID   uuid.UUID
	InputPath string
	JobType   domain.JobType
	Prompt    string
}

// JobStatus is the point-in-time snapshot returned to status pollers.
type JobStatus struct {
	Job         *domain.Job                `json:"job"`
	Steps       []*domain.StepRecord       `json:"steps"`
	ChunkCounts map[domain.ChunkStatus]int `json:"chunk_counts,omitempty"`
}

// JobService defines the operations on jobs and their records that the
// HTTP layer consumes.
type JobService interface {
	// Submit creates a pending job and puts it on the queue.
	Submit(ctx context.Context, params SubmitParams) (*domain.Job, error)

	// GetStatus returns the job snapshot visible to the scope.
	GetStatus(ctx context.Context, id int64, scope store.AuthScope) (*JobStatus, error)

	// List returns the jobs visible to the filter scope, newest first.
	List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error)

	// Retry puts a failed job back on the queue, returning
	// store.ErrConflict unless the job is exactly failed.
	Retry(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error)

	// ListRecords returns the company's processed records.
	ListRecords(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error)
}

// jobServiceImpl coordinates job persistence with queue submission.
type jobServiceImpl struct {
	jobs        store.JobStore
	chunks      store.ChunkStore
	steps       store.StepStore
	records     store.RecordStore
	publisher   queue.Publisher
	cache       RecordCache
	maxAttempts int
}

// NewJobService creates a JobService. cache may be nil when no cache layer
// is configured.
func NewJobService(
	jobs store.JobStore,
	chunks store.ChunkStore,
	steps store.StepStore,
	records store.RecordStore,
	publisher queue.Publisher,
	cache RecordCache,
	maxAttempts int,
) JobService {
	return &jobServiceImpl{
		jobs:        jobs,
		chunks:      chunks,
		steps:       steps,
		records:     records,
		publisher:   publisher,
		cache:       cache,
		maxAttempts: maxAttempts,
	}
}

// Submit creates a pending job and puts it on the queue. When the publish
// fails the job is marked failed rather than left silently stuck in
// pending, and the error is returned to the caller.
func (s *jobServiceImpl) Submit(ctx context.Context, params SubmitParams) (*domain.Job, error) {
	job, err := domain.NewJob(
		params.FileID,
		params.UserID,
		params.CompanyID,
		params.StaffID,
		params.InputPath,
		params.JobType,
		s.maxAttempts,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	job.Prompt = params.Prompt

	if _, err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.publisher.Publish(ctx, queue.NewSubmission(job)); err != nil {
		msg := fmt.Sprintf("enqueue: %v", err)
		if finishErr := s.jobs.Finish(ctx, job.ID, job.Attempts, domain.JobStatusFailed, domain.TimeoutReasonNone, msg); finishErr != nil {
			logger.FromContext(ctx).Error("failed to mark unqueued job failed",
				"job_id", job.ID, "error", finishErr)
		}
		return nil, fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
	}

	logger.FromContext(ctx).Info("job submitted",
		"job_id", job.ID,
		"file_id", job.FileID,
		"job_type", job.JobType)

	return job, nil
}

// GetStatus returns the job with its step records and chunk counts, scoped
// to the caller.
func (s *jobServiceImpl) GetStatus(ctx context.Context, id int64, scope store.AuthScope) (*JobStatus, error) {
	job, err := s.jobs.GetByID(ctx, id, scope)
	if err != nil {
		return nil, err
	}

	steps, err := s.steps.ListByJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job steps: %w", err)
	}

	counts, err := s.chunks.CountByStatus(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count job chunks: %w", err)
	}

	return &JobStatus{Job: job, Steps: steps, ChunkCounts: counts}, nil
}

// List returns the jobs visible to the filter scope, newest first.
func (s *jobServiceImpl) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	return s.jobs.List(ctx, filter)
}

// Retry puts a failed job back on the queue. The store's conditional reset
// rejects the request with ErrConflict unless the job is exactly failed,
// so a retry can never disturb a job another worker is processing.
func (s *jobServiceImpl) Retry(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
	job, err := s.jobs.GetByID(ctx, id, scope)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.ResetForRetry(ctx, id); err != nil {
		return nil, err
	}

	if err := s.chunks.ResetForJob(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to reset chunks: %w", err)
	}

	if err := s.publisher.Publish(ctx, queue.NewSubmission(job)); err != nil {
		// Nothing revisits a pending job without a queue message. Return it
		// to failed so the caller can retry again once the broker recovers.
		msg := fmt.Sprintf("enqueue: %v", err)
		if finishErr := s.jobs.Finish(ctx, id, job.Attempts, domain.JobStatusFailed, domain.TimeoutReasonNone, msg); finishErr != nil {
			logger.FromContext(ctx).Error("failed to mark unqueued retry failed",
				"job_id", id, "error", finishErr)
		}
		return nil, fmt.Errorf("failed to enqueue retried job %d: %w", id, err)
	}

	logger.FromContext(ctx).Info("job retried", "job_id", id, "attempts", job.Attempts)

	return s.jobs.GetByID(ctx, id, scope)
}

// ListRecords returns the company's processed records through the cache.
// Cache failures of any kind fall through to the store.
func (s *jobServiceImpl) ListRecords(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error) {
	if s.cache != nil {
		if records, err := s.cache.GetRecords(ctx, companyID); err == nil {
			return records, nil
		}
	}

	records, err := s.records.ListByCompany(ctx, companyID, limit)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetRecords(ctx, companyID, records); err != nil {
			logger.FromContext(ctx).Warn("failed to cache record listing",
				"company_id", companyID, "error", err)
		}
	}

	return records, nil
}
