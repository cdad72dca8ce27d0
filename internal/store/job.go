package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
)

// AuthScope restricts reads to the caller's company and, optionally, user.
// A zero UserID grants company-wide visibility; the upstream CRUD layer
// decides which scope a caller is entitled to.
type AuthScope struct {
	CompanyID uuid.UUID
	UserID    uuid.UUID
}

// ClaimResult carries the state granted by a successful claim.
type ClaimResult struct {
	Attempts  int
	TimeoutAt time.Time
}

// ProgressUpdate is a partial update of a job's live progress fields.
// Nil pointers leave the corresponding column untouched.
type ProgressUpdate struct {
	Status          *domain.JobStatus
	Progress        *int
	CurrentStep     *string
	ErrorMessage    *string
	TotalChunks     *int
	CompletedChunks *int
}

// JobFilter selects jobs for listing.
type JobFilter struct {
	Scope  AuthScope
	Status *domain.JobStatus
	Limit  int
}

// JobStore defines the interface for persisting jobs.
// The conditional Claim and ResetForRetry updates are the system's only
// mutual-exclusion mechanism; no in-process locks guard job ownership.
type JobStore interface {
	// Create persists a new job and returns its assigned ID.
	Create(ctx context.Context, job *domain.Job) (int64, error)

	// Claim atomically transitions a pending or failed job to processing,
	// setting started/heartbeat/timeout timestamps and incrementing the
	// attempt count. maxDuration determines the hard deadline. Returns
	// ErrNotClaimable when the job is in any other state so that two
	// concurrent claimants can never both succeed.
	Claim(ctx context.Context, id int64, maxDuration time.Duration) (*ClaimResult, error)

	// UpdateProgress applies a partial progress update.
	UpdateProgress(ctx context.Context, id int64, upd ProgressUpdate) error

	// Heartbeat refreshes the job's liveness timestamp only.
	Heartbeat(ctx context.Context, id int64) error

	// Finish moves the job to a terminal status, recording the completion
	// time, timeout reason, and error message, and clearing the heartbeat.
	// The write only lands if the row still belongs to the given attempt
	// and has not already reached a terminal status; otherwise ErrConflict
	// is returned. A worker whose job was reaped and reclaimed can then
	// not overwrite the new owner's state.
	Finish(ctx context.Context, id int64, attempt int, status domain.JobStatus, reason domain.TimeoutReason, errMsg string) error

	// GetByID returns the job if it exists and is visible to the scope.
	GetByID(ctx context.Context, id int64, scope AuthScope) (*domain.Job, error)

	// List returns jobs visible to the filter scope, newest first.
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)

	// ResetForRetry conditionally transitions a failed job back to pending,
	// clearing timing and error fields while preserving the attempt count.
	// Returns ErrConflict if the job is not currently failed, which guards
	// against racing a concurrently running worker.
	ResetForRetry(ctx context.Context, id int64) error

	// FindStalled returns processing jobs whose heartbeat is older than the
	// given threshold or whose hard deadline has passed.
	FindStalled(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*domain.Job, error)

	// SetRecordID stores the produced record reference on the job row.
	SetRecordID(ctx context.Context, id int64, recordID uuid.UUID) error

	// WithTx returns a JobStore that runs against the provided transaction.
	WithTx(tx *sql.Tx) JobStore
}
