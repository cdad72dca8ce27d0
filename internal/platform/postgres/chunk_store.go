package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

// PostgresChunkStore implements the store.ChunkStore interface using PostgreSQL.
type PostgresChunkStore struct {
	db store.DBTX
}

// NewPostgresChunkStore creates a new PostgresChunkStore.
func NewPostgresChunkStore(db store.DBTX) *PostgresChunkStore {
	return &PostgresChunkStore{db: db}
}

// WithTx returns a ChunkStore that runs against the provided transaction.
func (s *PostgresChunkStore) WithTx(tx *sql.Tx) store.ChunkStore {
	return &PostgresChunkStore{db: tx}
}

// CreateBatch registers all chunks for a job in one statement. A retried
// job splits its input again, so rows left over from an earlier attempt
// are overwritten in place rather than treated as duplicates.
func (s *PostgresChunkStore) CreateBatch(ctx context.Context, chunks []*domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	for _, chunk := range chunks {
		if err := chunk.Validate(); err != nil {
			return fmt.Errorf("%w: chunk %d: %v", store.ErrInvalidEntity, chunk.Ordinal, err)
		}
	}

	now := time.Now().UTC()
	values := make([]string, 0, len(chunks))
	args := make([]any, 0, len(chunks)*7)

	for _, chunk := range chunks {
		base := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args,
			chunk.JobID,
			chunk.Ordinal,
			chunk.FilePath,
			chunk.StartOffset,
			chunk.EndOffset,
			chunk.Status,
			now,
			now,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO chunks (job_id, ordinal, file_path, start_offset, end_offset, status, created_at, updated_at)
		VALUES %s
		ON CONFLICT (job_id, ordinal) DO UPDATE SET
			file_path = EXCLUDED.file_path,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			status = EXCLUDED.status,
			transcript = NULL,
			error_message = '',
			retry_count = 0,
			updated_at = EXCLUDED.updated_at
	`, strings.Join(values, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", MapError(err))
	}

	return nil
}

// UpdateStatus moves a chunk to the given status. Failed transitions bump
// the retry count so it only ever increases.
func (s *PostgresChunkStore) UpdateStatus(ctx context.Context, jobID int64, ordinal int, status domain.ChunkStatus, errMsg string) error {
	query := `
		UPDATE chunks
		SET status = $1,
			error_message = $2,
			retry_count = retry_count + CASE WHEN $1 = 'failed' THEN 1 ELSE 0 END,
			updated_at = $3
		WHERE job_id = $4 AND ordinal = $5
	`

	result, err := s.db.ExecContext(ctx, query, status, errMsg, time.Now().UTC(), jobID, ordinal)
	if err != nil {
		return fmt.Errorf("failed to update chunk status: %w", MapError(err))
	}

	return CheckRowsAffected(result, "chunk")
}

// SetTranscript marks the chunk completed and stores its transcript.
// The empty-transcript guard in the WHERE clause keeps a written
// transcript immutable.
func (s *PostgresChunkStore) SetTranscript(ctx context.Context, jobID int64, ordinal int, transcript string) error {
	query := `
		UPDATE chunks
		SET status = $1, transcript = $2, error_message = '', updated_at = $3
		WHERE job_id = $4 AND ordinal = $5 AND (transcript IS NULL OR transcript = '')
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.ChunkStatusCompleted, transcript, time.Now().UTC(), jobID, ordinal)
	if err != nil {
		return fmt.Errorf("failed to set chunk transcript: %w", MapError(err))
	}

	return CheckRowsAffected(result, "chunk")
}

// ResetForJob returns every chunk of the job to pending with cleared
// retry and error state.
func (s *PostgresChunkStore) ResetForJob(ctx context.Context, jobID int64) error {
	query := `
		UPDATE chunks
		SET status = $1, transcript = NULL, error_message = '', retry_count = 0, updated_at = $2
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.ChunkStatusPending, time.Now().UTC(), jobID); err != nil {
		return fmt.Errorf("failed to reset chunks: %w", MapError(err))
	}

	return nil
}

// ListByJob returns the job's chunks in ordinal order.
func (s *PostgresChunkStore) ListByJob(ctx context.Context, jobID int64) ([]*domain.Chunk, error) {
	query := `
		SELECT job_id, ordinal, file_path, start_offset, end_offset,
			status, transcript, error_message, retry_count, created_at, updated_at
		FROM chunks
		WHERE job_id = $1
		ORDER BY ordinal ASC
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var chunks []*domain.Chunk
	for rows.Next() {
		var chunk domain.Chunk
		var startOffset, endOffset sql.NullFloat64
		var transcript, errorMessage sql.NullString

		err := rows.Scan(
			&chunk.JobID,
			&chunk.Ordinal,
			&chunk.FilePath,
			&startOffset,
			&endOffset,
			&chunk.Status,
			&transcript,
			&errorMessage,
			&chunk.RetryCount,
			&chunk.CreatedAt,
			&chunk.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		if startOffset.Valid {
			chunk.StartOffset = &startOffset.Float64
		}
		if endOffset.Valid {
			chunk.EndOffset = &endOffset.Float64
		}
		chunk.Transcript = transcript.String
		chunk.ErrorMessage = errorMessage.String

		chunks = append(chunks, &chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk rows: %w", err)
	}

	return chunks, nil
}

// CountByStatus returns how many of the job's chunks are in each status.
func (s *PostgresChunkStore) CountByStatus(ctx context.Context, jobID int64) (map[domain.ChunkStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM chunks WHERE job_id = $1 GROUP BY status`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[domain.ChunkStatus]int)
	for rows.Next() {
		var status domain.ChunkStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan chunk count row: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunk count rows: %w", err)
	}

	return counts, nil
}
