package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a processing job.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// TimeoutReason records why a job was timed out, if it was.
type TimeoutReason string

// Possible timeout reason values
const (
	TimeoutReasonNone      TimeoutReason = "none"
	TimeoutReasonHeartbeat TimeoutReason = "heartbeat_timeout"
	TimeoutReasonDuration  TimeoutReason = "max_duration"
	TimeoutReasonManual    TimeoutReason = "manual"
)

// JobType identifies what kind of processing the job requests.
type JobType string

// Possible job type values
const (
	JobTypeTranscription JobType = "transcription"
	JobTypeAnalysis      JobType = "analysis"
)

// Common validation errors for Job
var (
	ErrEmptyFileID          = errors.New("job file ID cannot be empty")
	ErrEmptyJobUserID       = errors.New("job user ID cannot be empty")
	ErrEmptyJobCompanyID    = errors.New("job company ID cannot be empty")
	ErrInvalidJobStatus     = errors.New("invalid job status")
	ErrInvalidJobType       = errors.New("invalid job type")
	ErrInvalidTimeoutReason = errors.New("invalid timeout reason")
	ErrInvalidProgress      = errors.New("job progress must be between 0 and 100")
	ErrInvalidChunkCounts   = errors.New("completed chunks cannot exceed total chunks")
	ErrAttemptsExceeded     = errors.New("terminal job cannot exceed its maximum attempts")
)

// Job represents one asynchronous processing request for a submitted audio
// file. Ownership of a job is decided entirely by its status row in the
// store: whichever worker wins the conditional claim processes it.
type Job struct {
	ID              int64         `json:"id"`
	FileID          string        `json:"file_id"`
	UserID          uuid.UUID     `json:"user_id"`
	CompanyID       uuid.UUID     `json:"company_id"`
	StaffID         uuid.UUID     `json:"staff_id"`
	InputPath       string        `json:"input_path"`
	JobType         JobType       `json:"job_type"`
	Prompt          string        `json:"prompt,omitempty"`
	Status          JobStatus     `json:"status"`
	Progress        int           `json:"progress"`
	CurrentStep     string        `json:"current_step"`
	Attempts        int           `json:"attempts"`
	MaxAttempts     int           `json:"max_attempts"`
	StartedAt       *time.Time    `json:"started_at,omitempty"`
	HeartbeatAt     *time.Time    `json:"heartbeat_at,omitempty"`
	TimeoutAt       *time.Time    `json:"timeout_at,omitempty"`
	TimeoutReason   TimeoutReason `json:"timeout_reason"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	TotalChunks     int           `json:"total_chunks"`
	CompletedChunks int           `json:"completed_chunks"`
	RecordID        *uuid.UUID    `json:"record_id,omitempty"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewJob creates a pending Job for the given file and caller identifiers.
// The store assigns the monotonic ID on insert.
// Returns an error if validation fails.
func NewJob(fileID string, userID, companyID, staffID uuid.UUID, inputPath string, jobType JobType, maxAttempts int) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		FileID:        fileID,
		UserID:        userID,
		CompanyID:     companyID,
		StaffID:       staffID,
		InputPath:     inputPath,
		JobType:       jobType,
		Status:        JobStatusPending,
		TimeoutReason: TimeoutReasonNone,
		MaxAttempts:   maxAttempts,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks if the Job has valid data.
// Returns an error if any field fails validation.
func (j *Job) Validate() error {
	if j.FileID == "" {
		return ErrEmptyFileID
	}

	if j.UserID == uuid.Nil {
		return ErrEmptyJobUserID
	}

	if j.CompanyID == uuid.Nil {
		return ErrEmptyJobCompanyID
	}

	if !isValidJobStatus(j.Status) {
		return ErrInvalidJobStatus
	}

	if !isValidJobType(j.JobType) {
		return ErrInvalidJobType
	}

	if !isValidTimeoutReason(j.TimeoutReason) {
		return ErrInvalidTimeoutReason
	}

	if j.Progress < 0 || j.Progress > 100 {
		return ErrInvalidProgress
	}

	if j.CompletedChunks > j.TotalChunks {
		return ErrInvalidChunkCounts
	}

	if j.IsTerminal() && j.MaxAttempts > 0 && j.Attempts > j.MaxAttempts {
		return ErrAttemptsExceeded
	}

	return nil
}

// IsTerminal reports whether the job has reached a final state that no
// worker will advance further without an explicit retry.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// AttemptsRemaining reports whether the job may still be retried.
func (j *Job) AttemptsRemaining() bool {
	return j.Attempts < j.MaxAttempts
}

// isValidJobStatus checks if the given status is a valid JobStatus.
func isValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// isValidJobType checks if the given type is a valid JobType.
func isValidJobType(jobType JobType) bool {
	switch jobType {
	case JobTypeTranscription, JobTypeAnalysis:
		return true
	default:
		return false
	}
}

// isValidTimeoutReason checks if the given reason is a valid TimeoutReason.
func isValidTimeoutReason(reason TimeoutReason) bool {
	switch reason {
	case TimeoutReasonNone, TimeoutReasonHeartbeat, TimeoutReasonDuration, TimeoutReasonManual:
		return true
	default:
		return false
	}
}
