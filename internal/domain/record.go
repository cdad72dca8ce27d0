package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// QualityStatus indicates whether the record was produced from every chunk
// or from a passing-but-incomplete subset.
type QualityStatus string

// Possible quality status values
const (
	QualityStatusComplete QualityStatus = "complete"
	QualityStatusPartial  QualityStatus = "partial"
)

// Common validation errors for ProcessedRecord
var (
	ErrEmptyRecordID        = errors.New("record ID cannot be empty")
	ErrEmptyRecordJobID     = errors.New("record job ID cannot be empty")
	ErrEmptyRecordCompanyID = errors.New("record company ID cannot be empty")
	ErrEmptyTranscript      = errors.New("record transcript cannot be empty")
	ErrInvalidQualityStatus = errors.New("invalid record quality status")
)

// ProcessedRecord is the durable output of a completed job: the merged
// transcript plus the analysis fields derived from it. Exactly one record
// exists per job.
type ProcessedRecord struct {
	ID            uuid.UUID     `json:"id"`
	JobID         int64         `json:"job_id"`
	CompanyID     uuid.UUID     `json:"company_id"`
	UserID        uuid.UUID     `json:"user_id"`
	StaffID       uuid.UUID     `json:"staff_id"`
	Transcript    string        `json:"transcript"`
	Summary       string        `json:"summary,omitempty"`
	KeyPoints     []string      `json:"key_points,omitempty"`
	ActionItems   []string      `json:"action_items,omitempty"`
	Sentiment     string        `json:"sentiment,omitempty"`
	QualityStatus QualityStatus `json:"quality_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewProcessedRecord creates a record for the given job's transcript.
// It generates a new UUID for the record ID and copies the job's caller
// identifiers so records stay queryable after job rows age out.
// Returns an error if validation fails.
func NewProcessedRecord(job *Job, transcript string, quality QualityStatus) (*ProcessedRecord, error) {
	now := time.Now().UTC()
	record := &ProcessedRecord{
		ID:            uuid.New(),
		JobID:         job.ID,
		CompanyID:     job.CompanyID,
		UserID:        job.UserID,
		StaffID:       job.StaffID,
		Transcript:    transcript,
		QualityStatus: quality,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	return record, nil
}

// Validate checks if the ProcessedRecord has valid data.
// Returns an error if any field fails validation.
func (r *ProcessedRecord) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptyRecordID
	}

	if r.JobID == 0 {
		return ErrEmptyRecordJobID
	}

	if r.CompanyID == uuid.Nil {
		return ErrEmptyRecordCompanyID
	}

	if r.Transcript == "" {
		return ErrEmptyTranscript
	}

	if !isValidQualityStatus(r.QualityStatus) {
		return ErrInvalidQualityStatus
	}

	return nil
}

// isValidQualityStatus checks if the given status is a valid QualityStatus.
func isValidQualityStatus(status QualityStatus) bool {
	switch status {
	case QualityStatusComplete, QualityStatusPartial:
		return true
	default:
		return false
	}
}
