// Package analysis defines the interface to the external text-analysis
// workflow that turns a merged transcript into structured artifacts.
// Implementations live under internal/platform.
package analysis

import (
	"context"
	"errors"
)

// Common analysis errors.
var (
	// ErrInvalidConfig indicates the executor was constructed with
	// unusable configuration.
	ErrInvalidConfig = errors.New("invalid analysis configuration")

	// ErrInvalidResponse indicates the remote service returned something
	// that cannot be interpreted as a workflow result.
	ErrInvalidResponse = errors.New("invalid analysis response")
)

// Params carries per-job customization for the workflow.
type Params struct {
	// Prompt is an optional caller-supplied instruction appended to the
	// workflow's base prompt.
	Prompt string
}

// Result holds the structured artifacts derived from a transcript.
// Any sub-field the service omits stays empty; enrichment gaps never
// fail the pipeline once a transcript exists.
type Result struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Sentiment   string   `json:"sentiment"`
}

// Executor runs the external analysis workflow once per job.
type Executor interface {
	// Run uploads the merged transcript as a document and invokes the
	// workflow with that document reference plus the given parameters.
	Run(ctx context.Context, jobID int64, transcript string, params Params) (*Result, error)
}
