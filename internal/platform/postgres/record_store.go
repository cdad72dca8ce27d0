package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/store"
)

// PostgresRecordStore implements the store.RecordStore interface using PostgreSQL.
type PostgresRecordStore struct {
	db store.DBTX
}

// NewPostgresRecordStore creates a new PostgresRecordStore.
func NewPostgresRecordStore(db store.DBTX) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

// Upsert writes the record idempotently on job ID. The unique constraint on
// job_id plus ON CONFLICT DO UPDATE means a crash-and-resume persist updates
// the existing row instead of creating a duplicate; the original record ID
// is returned either way.
func (s *PostgresRecordStore) Upsert(ctx context.Context, record *domain.ProcessedRecord) (uuid.UUID, error) {
	if err := record.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	keyPoints, err := json.Marshal(record.KeyPoints)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal key points: %w", err)
	}
	actionItems, err := json.Marshal(record.ActionItems)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal action items: %w", err)
	}

	query := `
		INSERT INTO records (id, job_id, company_id, user_id, staff_id,
			transcript, summary, key_points, action_items, sentiment,
			quality_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (job_id) DO UPDATE
		SET transcript = EXCLUDED.transcript,
			summary = EXCLUDED.summary,
			key_points = EXCLUDED.key_points,
			action_items = EXCLUDED.action_items,
			sentiment = EXCLUDED.sentiment,
			quality_status = EXCLUDED.quality_status,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	var id uuid.UUID
	err = s.db.QueryRowContext(ctx, query,
		record.ID,
		record.JobID,
		record.CompanyID,
		record.UserID,
		record.StaffID,
		record.Transcript,
		record.Summary,
		keyPoints,
		actionItems,
		record.Sentiment,
		record.QualityStatus,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert record: %w", MapError(err))
	}

	return id, nil
}

// GetByJobID returns the record produced by the given job, if any.
func (s *PostgresRecordStore) GetByJobID(ctx context.Context, jobID int64) (*domain.ProcessedRecord, error) {
	query := recordSelect + ` WHERE job_id = $1`

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, jobID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", MapError(err))
	}

	return record, nil
}

// ListByCompany returns the company's records, newest first.
func (s *PostgresRecordStore) ListByCompany(ctx context.Context, companyID uuid.UUID, limit int) ([]*domain.ProcessedRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := recordSelect + ` WHERE company_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.ProcessedRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating record rows: %w", err)
	}

	return records, nil
}

const recordSelect = `
	SELECT id, job_id, company_id, user_id, staff_id, transcript, summary,
		key_points, action_items, sentiment, quality_status, created_at, updated_at
	FROM records
`

// scanRecord reads one record row into a domain.ProcessedRecord.
func scanRecord(row rowScanner) (*domain.ProcessedRecord, error) {
	var record domain.ProcessedRecord
	var summary, sentiment sql.NullString
	var keyPoints, actionItems []byte

	err := row.Scan(
		&record.ID,
		&record.JobID,
		&record.CompanyID,
		&record.UserID,
		&record.StaffID,
		&record.Transcript,
		&summary,
		&keyPoints,
		&actionItems,
		&sentiment,
		&record.QualityStatus,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Summary = summary.String
	record.Sentiment = sentiment.String
	if len(keyPoints) > 0 {
		if err := json.Unmarshal(keyPoints, &record.KeyPoints); err != nil {
			return nil, fmt.Errorf("failed to unmarshal key points: %w", err)
		}
	}
	if len(actionItems) > 0 {
		if err := json.Unmarshal(actionItems, &record.ActionItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action items: %w", err)
		}
	}

	return &record, nil
}
