package domain

import (
	"encoding/json"
	"time"
)

// StepStatus represents the execution state of one pipeline step.
type StepStatus string

// Possible step status values
const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Pipeline step names, in execution order.
const (
	StepConvert    = "convert"
	StepSplit      = "split"
	StepTranscribe = "transcribe"
	StepAnalyze    = "analyze"
	StepPersist    = "persist"
	StepCleanup    = "cleanup"
)

// PipelineSteps returns the fixed step sequence every job runs through.
func PipelineSteps() []string {
	return []string{StepConvert, StepSplit, StepTranscribe, StepAnalyze, StepPersist, StepCleanup}
}

// StepRecord captures the execution of one step of one job. Duration is
// derived by the tracker from its own observed start time, so it reflects
// wall time in the worker rather than timestamp arithmetic in the store.
type StepRecord struct {
	JobID        int64           `json:"job_id"`
	Step         string          `json:"step"`
	StepOrder    int             `json:"step_order"`
	Status       StepStatus      `json:"status"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}
