package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
)

// RecordStore defines the interface for persisting processed records.
type RecordStore interface {
	// Upsert writes the record idempotently on job ID: a second write for
	// the same job updates the transcript and analysis fields of the
	// existing row instead of creating a duplicate. Returns the record ID
	// that ended up in the store.
	Upsert(ctx context.Context, record *domain.ProcessedRecord) (uuid.UUID, error)

	// GetByJobID returns the record produced by the given job, if any.
	GetByJobID(ctx context.Context, jobID int64) (*domain.ProcessedRecord, error)

	// ListByCompany returns the company's records, newest first.
	ListByCompany(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error)
}
