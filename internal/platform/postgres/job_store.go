package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// jobColumns is the select list shared by every job query.
const jobColumns = `id, file_id, user_id, company_id, staff_id, input_path, job_type, prompt,
	status, progress, current_step, attempts, max_attempts,
	started_at, heartbeat_at, timeout_at, timeout_reason, error_message,
	total_chunks, completed_chunks, record_id, completed_at, created_at, updated_at`

// PostgresJobStore implements the store.JobStore interface using PostgreSQL.
type PostgresJobStore struct {
	db store.DBTX
}

// NewPostgresJobStore creates a new PostgresJobStore.
func NewPostgresJobStore(db store.DBTX) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

// WithTx returns a JobStore that runs against the provided transaction.
func (s *PostgresJobStore) WithTx(tx *sql.Tx) store.JobStore {
	return &PostgresJobStore{db: tx}
}

// Create persists a new job and returns its assigned ID.
func (s *PostgresJobStore) Create(ctx context.Context, job *domain.Job) (int64, error) {
	if err := job.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO jobs (file_id, user_id, company_id, staff_id, input_path, job_type, prompt,
			status, progress, timeout_reason, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id
	`

	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx, query,
		job.FileID,
		job.UserID,
		job.CompanyID,
		job.StaffID,
		job.InputPath,
		job.JobType,
		job.Prompt,
		job.Status,
		job.Progress,
		job.TimeoutReason,
		job.MaxAttempts,
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create job: %w", MapError(err))
	}

	job.ID = id
	return id, nil
}

// Claim atomically transitions a pending or failed job to processing.
// The compare-and-set on status is the distributed mutual-exclusion
// primitive: of two concurrent claimants, exactly one sees an affected row.
func (s *PostgresJobStore) Claim(ctx context.Context, id int64, maxDuration time.Duration) (*store.ClaimResult, error) {
	log := logger.FromContext(ctx)

	query := `
		UPDATE jobs
		SET status = $1,
			started_at = $2,
			heartbeat_at = $2,
			timeout_at = $3,
			timeout_reason = $4,
			error_message = '',
			completed_at = NULL,
			attempts = attempts + 1,
			updated_at = $2
		WHERE id = $5 AND status IN ($6, $7)
		RETURNING attempts, timeout_at
	`

	now := time.Now().UTC()
	timeoutAt := now.Add(maxDuration)

	var result store.ClaimResult
	err := s.db.QueryRowContext(ctx, query,
		domain.JobStatusProcessing,
		now,
		timeoutAt,
		domain.TimeoutReasonNone,
		id,
		domain.JobStatusPending,
		domain.JobStatusFailed,
	).Scan(&result.Attempts, &result.TimeoutAt)
	if err != nil {
		if err == sql.ErrNoRows {
			// The job is missing or already owned by another worker.
			// Expected under at-least-once delivery, so not an error.
			log.Debug("job not claimable", "job_id", id)
			return nil, store.ErrNotClaimable
		}
		return nil, fmt.Errorf("failed to claim job: %w", MapError(err))
	}

	return &result, nil
}

// UpdateProgress applies a partial progress update.
func (s *PostgresJobStore) UpdateProgress(ctx context.Context, id int64, upd store.ProgressUpdate) error {
	sets := []string{"updated_at = $1"}
	args := []any{time.Now().UTC()}

	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		appendSet("status", *upd.Status)
	}
	if upd.Progress != nil {
		appendSet("progress", *upd.Progress)
	}
	if upd.CurrentStep != nil {
		appendSet("current_step", *upd.CurrentStep)
	}
	if upd.ErrorMessage != nil {
		appendSet("error_message", *upd.ErrorMessage)
	}
	if upd.TotalChunks != nil {
		appendSet("total_chunks", *upd.TotalChunks)
	}
	if upd.CompletedChunks != nil {
		appendSet("completed_chunks", *upd.CompletedChunks)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", MapError(err))
	}

	return CheckRowsAffected(result, "job")
}

// Heartbeat refreshes the job's liveness timestamp only.
func (s *PostgresJobStore) Heartbeat(ctx context.Context, id int64) error {
	query := `UPDATE jobs SET heartbeat_at = $1, updated_at = $1 WHERE id = $2`

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", MapError(err))
	}

	return CheckRowsAffected(result, "job")
}

// Finish moves the job to a terminal status. Terminal rows carry a
// completion timestamp and no live heartbeat. The attempt and status
// preconditions keep a worker that lost the job to a reaper reset from
// clobbering whatever the new owner has done since.
func (s *PostgresJobStore) Finish(ctx context.Context, id int64, attempt int, status domain.JobStatus, reason domain.TimeoutReason, errMsg string) error {
	query := `
		UPDATE jobs
		SET status = $1,
			timeout_reason = $2,
			error_message = $3,
			heartbeat_at = NULL,
			completed_at = $4,
			updated_at = $4
		WHERE id = $5
			AND attempts = $6
			AND status IN ($7, $8)
	`

	result, err := s.db.ExecContext(ctx, query, status, reason, errMsg, time.Now().UTC(), id, attempt,
		domain.JobStatusPending, domain.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", MapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: job %d no longer belongs to attempt %d", store.ErrConflict, id, attempt)
	}

	return nil
}

// GetByID returns the job if it exists and is visible to the scope.
func (s *PostgresJobStore) GetByID(ctx context.Context, id int64, scope store.AuthScope) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE id = $1 AND company_id = $2`, jobColumns)
	args := []any{id, scope.CompanyID}

	if scope.UserID != uuid.Nil {
		query += " AND user_id = $3"
		args = append(args, scope.UserID)
	}

	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", MapError(err))
	}

	return job, nil
}

// List returns jobs visible to the filter scope, newest first.
func (s *PostgresJobStore) List(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE company_id = $1`, jobColumns)
	args := []any{filter.Scope.CompanyID}

	if filter.Scope.UserID != uuid.Nil {
		args = append(args, filter.Scope.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job rows: %w", err)
	}

	return jobs, nil
}

// ResetForRetry conditionally transitions a failed job back to pending.
// The status precondition in the WHERE clause guards against racing a
// concurrently running worker; attempt history is preserved.
func (s *PostgresJobStore) ResetForRetry(ctx context.Context, id int64) error {
	query := `
		UPDATE jobs
		SET status = $1,
			progress = 0,
			current_step = '',
			started_at = NULL,
			heartbeat_at = NULL,
			timeout_at = NULL,
			timeout_reason = $2,
			error_message = '',
			completed_chunks = 0,
			completed_at = NULL,
			updated_at = $3
		WHERE id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending,
		domain.TimeoutReasonNone,
		time.Now().UTC(),
		id,
		domain.JobStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to reset job for retry: %w", MapError(err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: job %d is not in failed state", store.ErrConflict, id)
	}

	return nil
}

// FindStalled returns processing jobs whose heartbeat is older than the
// threshold or whose hard deadline has passed.
func (s *PostgresJobStore) FindStalled(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*domain.Job, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = $1 AND (heartbeat_at < $2 OR timeout_at < $3)
		ORDER BY heartbeat_at ASC
	`, jobColumns)

	rows, err := s.db.QueryContext(ctx, query,
		domain.JobStatusProcessing,
		now.Add(-heartbeatTimeout),
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stalled jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stalled job row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stalled job rows: %w", err)
	}

	return jobs, nil
}

// SetRecordID stores the produced record reference on the job row.
func (s *PostgresJobStore) SetRecordID(ctx context.Context, id int64, recordID uuid.UUID) error {
	query := `UPDATE jobs SET record_id = $1, updated_at = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, recordID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set job record ID: %w", MapError(err))
	}

	return CheckRowsAffected(result, "job")
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob reads one job row into a domain.Job.
func scanJob(row rowScanner) (*domain.Job, error) {
	var job domain.Job
	var currentStep, errorMessage sql.NullString
	var startedAt, heartbeatAt, timeoutAt, completedAt sql.NullTime
	var recordID uuid.NullUUID

	err := row.Scan(
		&job.ID,
		&job.FileID,
		&job.UserID,
		&job.CompanyID,
		&job.StaffID,
		&job.InputPath,
		&job.JobType,
		&job.Prompt,
		&job.Status,
		&job.Progress,
		&currentStep,
		&job.Attempts,
		&job.MaxAttempts,
		&startedAt,
		&heartbeatAt,
		&timeoutAt,
		&job.TimeoutReason,
		&errorMessage,
		&job.TotalChunks,
		&job.CompletedChunks,
		&recordID,
		&completedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.CurrentStep = currentStep.String
	job.ErrorMessage = errorMessage.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if heartbeatAt.Valid {
		job.HeartbeatAt = &heartbeatAt.Time
	}
	if timeoutAt.Valid {
		job.TimeoutAt = &timeoutAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if recordID.Valid {
		job.RecordID = &recordID.UUID
	}

	return &job, nil
}
