package domain

import (
	"errors"
	"time"
)

// ChunkStatus represents the transcription state of one audio chunk.
type ChunkStatus string

// Possible chunk status values
const (
	ChunkStatusPending    ChunkStatus = "pending"
	ChunkStatusProcessing ChunkStatus = "processing"
	ChunkStatusCompleted  ChunkStatus = "completed"
	ChunkStatusFailed     ChunkStatus = "failed"
)

// Common validation errors for Chunk
var (
	ErrEmptyChunkJobID    = errors.New("chunk job ID cannot be empty")
	ErrNegativeOrdinal    = errors.New("chunk ordinal cannot be negative")
	ErrEmptyChunkPath     = errors.New("chunk file path cannot be empty")
	ErrInvalidChunkStatus = errors.New("invalid chunk status")
	ErrInvalidOffsets     = errors.New("chunk end offset must be after its start offset")
)

// Chunk is one slice of a job's audio, identified by its ordinal within the
// job. Start and end offsets are seconds within the source audio; both are
// nil when the chunk was produced by slicing raw bytes, where no time
// mapping exists.
type Chunk struct {
	JobID        int64       `json:"job_id"`
	Ordinal      int         `json:"ordinal"`
	FilePath     string      `json:"file_path"`
	StartOffset  *float64    `json:"start_offset,omitempty"`
	EndOffset    *float64    `json:"end_offset,omitempty"`
	Status       ChunkStatus `json:"status"`
	Transcript   string      `json:"transcript,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	RetryCount   int         `json:"retry_count"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// NewChunk creates a pending Chunk for the given job and position.
// Returns an error if validation fails.
func NewChunk(jobID int64, ordinal int, filePath string, startOffset, endOffset *float64) (*Chunk, error) {
	now := time.Now().UTC()
	chunk := &Chunk{
		JobID:       jobID,
		Ordinal:     ordinal,
		FilePath:    filePath,
		StartOffset: startOffset,
		EndOffset:   endOffset,
		Status:      ChunkStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := chunk.Validate(); err != nil {
		return nil, err
	}

	return chunk, nil
}

// Validate checks if the Chunk has valid data.
// Returns an error if any field fails validation.
func (c *Chunk) Validate() error {
	if c.JobID == 0 {
		return ErrEmptyChunkJobID
	}

	if c.Ordinal < 0 {
		return ErrNegativeOrdinal
	}

	if c.FilePath == "" {
		return ErrEmptyChunkPath
	}

	if !isValidChunkStatus(c.Status) {
		return ErrInvalidChunkStatus
	}

	if c.StartOffset != nil && c.EndOffset != nil && *c.EndOffset <= *c.StartOffset {
		return ErrInvalidOffsets
	}

	return nil
}

// isValidChunkStatus checks if the given status is a valid ChunkStatus.
func isValidChunkStatus(status ChunkStatus) bool {
	switch status {
	case ChunkStatusPending, ChunkStatusProcessing, ChunkStatusCompleted, ChunkStatusFailed:
		return true
	default:
		return false
	}
}
