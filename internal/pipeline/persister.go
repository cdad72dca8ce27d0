package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/voxnote/voxnote-api/internal/analysis"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// RecordCacheInvalidator drops cached record listings after a write.
type RecordCacheInvalidator interface {
	Invalidate(ctx context.Context, companyID uuid.UUID) error
}

// Persister writes the final processed record for a job. Persisting the
// same job twice updates the existing record in place rather than creating
// a duplicate, so a retried persist step converges on one record per job.
type Persister struct {
	records store.RecordStore
	jobs    store.JobStore
	cache   RecordCacheInvalidator
}

// NewPersister creates a Persister. cache may be nil when no cache layer
// is configured.
func NewPersister(records store.RecordStore, jobs store.JobStore, cache RecordCacheInvalidator) *Persister {
	return &Persister{records: records, jobs: jobs, cache: cache}
}

// Persist stores the record, links it back onto the job, and invalidates
// the company's cached listings. Returns the record's ID, which is stable
// across repeated persists of the same job.
func (p *Persister) Persist(ctx context.Context, job *domain.Job, transcript string, quality domain.QualityStatus, result *analysis.Result) (uuid.UUID, error) {
	record, err := domain.NewProcessedRecord(job, transcript, quality)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build record: %w", err)
	}
	if result != nil {
		record.Summary = result.Summary
		record.KeyPoints = result.KeyPoints
		record.ActionItems = result.ActionItems
		record.Sentiment = result.Sentiment
	}

	recordID, err := p.records.Upsert(ctx, record)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to persist record: %w", err)
	}

	if err := p.jobs.SetRecordID(ctx, job.ID, recordID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to link record to job: %w", err)
	}

	if p.cache != nil {
		if err := p.cache.Invalidate(ctx, job.CompanyID); err != nil {
			// Stale cache entries expire on their own; a failed
			// invalidation must not fail the pipeline.
			logger.FromContext(ctx).Warn("record cache invalidation failed",
				"job_id", job.ID,
				"company_id", job.CompanyID,
				"error", err)
		}
	}

	logger.FromContext(ctx).Info("record persisted",
		"job_id", job.ID,
		"record_id", recordID,
		"quality_status", quality)

	return recordID, nil
}
