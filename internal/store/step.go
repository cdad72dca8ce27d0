package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voxnote/voxnote-api/internal/domain"
)

// StepStore defines the interface for persisting per-step execution records.
// Step rows are owned exclusively by the step tracker.
type StepStore interface {
	// Initialize inserts pending records for the given steps, ignoring any
	// that already exist so repeated initialization is harmless.
	Initialize(ctx context.Context, jobID int64, steps []string) error

	// Start marks a step running at the given time, inserting the record if
	// initialization raced and it is missing.
	Start(ctx context.Context, jobID int64, step string, at time.Time) error

	// Complete marks a step completed, recording the completion time, the
	// duration computed by the tracker, and optional result metadata.
	Complete(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error

	// Fail marks a step failed with its error.
	Fail(ctx context.Context, jobID int64, step string, at time.Time, errMsg string) error

	// Skip marks a step skipped with the reason it was not needed.
	Skip(ctx context.Context, jobID int64, step string, reason string) error

	// ListByJob returns the job's step records in pipeline order.
	ListByJob(ctx context.Context, jobID int64) ([]*domain.StepRecord, error)
}
