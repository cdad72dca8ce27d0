package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

// PostgresStepStore implements the store.StepStore interface using PostgreSQL.
type PostgresStepStore struct {
	db store.DBTX
}

// NewPostgresStepStore creates a new PostgresStepStore.
func NewPostgresStepStore(db store.DBTX) *PostgresStepStore {
	return &PostgresStepStore{db: db}
}

// Initialize inserts pending records for the given steps. ON CONFLICT DO
// NOTHING makes repeated initialization harmless.
func (s *PostgresStepStore) Initialize(ctx context.Context, jobID int64, steps []string) error {
	if len(steps) == 0 {
		return nil
	}

	values := make([]string, 0, len(steps))
	args := make([]any, 0, len(steps)*4)

	for order, step := range steps {
		base := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4))
		args = append(args, jobID, step, order, domain.StepStatusPending)
	}

	query := fmt.Sprintf(`
		INSERT INTO steps (job_id, step, step_order, status)
		VALUES %s
		ON CONFLICT (job_id, step) DO NOTHING
	`, strings.Join(values, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to initialize steps: %w", MapError(err))
	}

	return nil
}

// Start marks a step running at the given time. The upsert inserts the
// record when an initialization race left it missing.
func (s *PostgresStepStore) Start(ctx context.Context, jobID int64, step string, at time.Time) error {
	query := `
		INSERT INTO steps (job_id, step, step_order, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, step) DO UPDATE
		SET status = $4, started_at = $5, completed_at = NULL, error_message = ''
	`

	order := stepOrder(step)
	if _, err := s.db.ExecContext(ctx, query, jobID, step, order, domain.StepStatusRunning, at.UTC()); err != nil {
		return fmt.Errorf("failed to start step: %w", MapError(err))
	}

	return nil
}

// Complete marks a step completed with its duration and result metadata.
func (s *PostgresStepStore) Complete(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error {
	query := `
		UPDATE steps
		SET status = $1, completed_at = $2, duration_ms = $3, metadata = $4
		WHERE job_id = $5 AND step = $6
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StepStatusCompleted, at.UTC(), duration.Milliseconds(), metadata, jobID, step)
	if err != nil {
		return fmt.Errorf("failed to complete step: %w", MapError(err))
	}

	return CheckRowsAffected(result, "step")
}

// Fail marks a step failed with its error.
func (s *PostgresStepStore) Fail(ctx context.Context, jobID int64, step string, at time.Time, errMsg string) error {
	query := `
		UPDATE steps
		SET status = $1, completed_at = $2, error_message = $3
		WHERE job_id = $4 AND step = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.StepStatusFailed, at.UTC(), errMsg, jobID, step)
	if err != nil {
		return fmt.Errorf("failed to fail step: %w", MapError(err))
	}

	return CheckRowsAffected(result, "step")
}

// Skip marks a step skipped with the reason it was not needed.
func (s *PostgresStepStore) Skip(ctx context.Context, jobID int64, step string, reason string) error {
	query := `
		UPDATE steps
		SET status = $1, error_message = '', metadata = $2
		WHERE job_id = $3 AND step = $4
	`

	metadata, err := json.Marshal(map[string]string{"skip_reason": reason})
	if err != nil {
		return fmt.Errorf("failed to marshal skip reason: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, domain.StepStatusSkipped, metadata, jobID, step)
	if err != nil {
		return fmt.Errorf("failed to skip step: %w", MapError(err))
	}

	return CheckRowsAffected(result, "step")
}

// ListByJob returns the job's step records in pipeline order.
func (s *PostgresStepStore) ListByJob(ctx context.Context, jobID int64) ([]*domain.StepRecord, error) {
	query := `
		SELECT job_id, step, step_order, status, started_at, completed_at,
			duration_ms, error_message, metadata
		FROM steps
		WHERE job_id = $1
		ORDER BY step_order ASC
	`

	rows, err := s.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var steps []*domain.StepRecord
	for rows.Next() {
		var record domain.StepRecord
		var startedAt, completedAt sql.NullTime
		var errorMessage sql.NullString
		var metadata []byte

		err := rows.Scan(
			&record.JobID,
			&record.Step,
			&record.StepOrder,
			&record.Status,
			&startedAt,
			&completedAt,
			&record.DurationMS,
			&errorMessage,
			&metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step row: %w", err)
		}

		if startedAt.Valid {
			record.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			record.CompletedAt = &completedAt.Time
		}
		record.ErrorMessage = errorMessage.String
		record.Metadata = metadata

		steps = append(steps, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating step rows: %w", err)
	}

	return steps, nil
}

// stepOrder returns the fixed pipeline position for a step name.
func stepOrder(step string) int {
	for i, name := range domain.PipelineSteps() {
		if name == step {
			return i
		}
	}
	return len(domain.PipelineSteps())
}
