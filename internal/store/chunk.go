package store

import (
	"context"
	"database/sql"

	"github.com/voxnote/voxnote-api/internal/domain"
)

// ChunkStore defines the interface for persisting audio chunks.
// Chunk rows are owned by the orchestrator, reaper, and retry operation;
// nothing else writes them.
type ChunkStore interface {
	// CreateBatch inserts all chunks for a job in one statement.
	CreateBatch(ctx context.Context, chunks []*domain.Chunk) error

	// UpdateStatus moves a chunk to the given status. A non-empty errMsg is
	// recorded and the retry count is bumped when the status is failed.
	UpdateStatus(ctx context.Context, jobID int64, ordinal int, status domain.ChunkStatus, errMsg string) error

	// SetTranscript marks the chunk completed and stores its transcript.
	// A transcript, once written, is immutable.
	SetTranscript(ctx context.Context, jobID int64, ordinal int, transcript string) error

	// ResetForJob returns every chunk of the job to pending with cleared
	// retry and error state, ahead of a job retry.
	ResetForJob(ctx context.Context, jobID int64) error

	// ListByJob returns the job's chunks in ordinal order.
	ListByJob(ctx context.Context, jobID int64) ([]*domain.Chunk, error)

	// CountByStatus returns how many of the job's chunks are in each status.
	CountByStatus(ctx context.Context, jobID int64) (map[domain.ChunkStatus]int, error)

	// WithTx returns a ChunkStore that runs against the provided transaction.
	WithTx(tx *sql.Tx) ChunkStore
}
