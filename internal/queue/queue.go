// Package queue defines the job submission channel between the API process
// and the workers. The broker guarantees at-least-once delivery; the job
// store's conditional claim makes redelivery safe.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/voxnote/voxnote-api/internal/domain"
)

// Submission is the message published for each job. Everything a worker
// needs to start processing travels in the message; the authoritative job
// state stays in the job store.
type Submission struct {
	MessageID uuid.UUID      `json:"message_id"`
	JobID     int64          `json:"job_id"`
	InputPath string         `json:"input_path"`
	FileID    string         `json:"file_id"`
	UserID    uuid.UUID      `json:"user_id"`
	CompanyID uuid.UUID      `json:"company_id"`
	StaffID   uuid.UUID      `json:"staff_id"`
	JobType   domain.JobType `json:"job_type"`
	Prompt    string         `json:"prompt,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewSubmission builds a Submission for the given job.
func NewSubmission(job *domain.Job) *Submission {
	return &Submission{
		MessageID: uuid.New(),
		JobID:     job.ID,
		InputPath: job.InputPath,
		FileID:    job.FileID,
		UserID:    job.UserID,
		CompanyID: job.CompanyID,
		StaffID:   job.StaffID,
		JobType:   job.JobType,
		Prompt:    job.Prompt,
		CreatedAt: time.Now().UTC(),
	}
}

// Marshal serializes the submission for the wire.
func (s *Submission) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSubmission parses a submission from the wire.
func UnmarshalSubmission(data []byte) (*Submission, error) {
	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Publisher submits jobs to the broker.
type Publisher interface {
	// Publish sends the submission durably to the broker.
	Publish(ctx context.Context, sub *Submission) error
}

// Handler processes one delivered submission. Returning an error causes the
// delivery to be requeued by the broker.
type Handler func(ctx context.Context, sub *Submission) error

// Consumer delivers submissions to a handler until the context is done.
type Consumer interface {
	// Consume blocks, dispatching deliveries to the handler. It returns
	// when the context is cancelled or the broker channel closes.
	Consume(ctx context.Context, handler Handler) error
}
