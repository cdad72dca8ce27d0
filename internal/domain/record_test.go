package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProcessedRecord(t *testing.T) {
	t.Parallel()

	job := &Job{
		ID:        42,
		UserID:    uuid.New(),
		CompanyID: uuid.New(),
		StaffID:   uuid.New(),
	}

	record, err := NewProcessedRecord(job, "hello world", QualityStatusComplete)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, record.ID)
	assert.Equal(t, int64(42), record.JobID)
	assert.Equal(t, job.CompanyID, record.CompanyID)
	assert.Equal(t, job.UserID, record.UserID)
	assert.Equal(t, "hello world", record.Transcript)
	assert.Equal(t, QualityStatusComplete, record.QualityStatus)
}

func TestNewProcessedRecord_Invalid(t *testing.T) {
	t.Parallel()

	job := &Job{ID: 42, UserID: uuid.New(), CompanyID: uuid.New()}

	t.Run("empty_transcript", func(t *testing.T) {
		t.Parallel()
		_, err := NewProcessedRecord(job, "", QualityStatusComplete)
		assert.ErrorIs(t, err, ErrEmptyTranscript)
	})

	t.Run("bad_quality", func(t *testing.T) {
		t.Parallel()
		_, err := NewProcessedRecord(job, "text", QualityStatus("excellent"))
		assert.ErrorIs(t, err, ErrInvalidQualityStatus)
	})

	t.Run("job_without_id", func(t *testing.T) {
		t.Parallel()
		_, err := NewProcessedRecord(&Job{CompanyID: uuid.New()}, "text", QualityStatusPartial)
		assert.ErrorIs(t, err, ErrEmptyRecordJobID)
	})
}
