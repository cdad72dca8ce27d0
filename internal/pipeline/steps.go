package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// stepKey identifies one step of one job in the tracker's start registry.
type stepKey struct {
	jobID int64
	step  string
}

// StepTracker records per-step execution state. Durations are always
// computed from the tracker's own observed start times, never trusted from
// elsewhere. The start registry carries its own mutex because trackers are
// shared across the worker's concurrent job goroutines.
type StepTracker struct {
	store  store.StepStore
	clock  func() time.Time
	mu     sync.Mutex
	starts map[stepKey]time.Time
}

// NewStepTracker creates a StepTracker over the given store.
func NewStepTracker(stepStore store.StepStore) *StepTracker {
	return &StepTracker{
		store:  stepStore,
		clock:  func() time.Time { return time.Now().UTC() },
		starts: make(map[stepKey]time.Time),
	}
}

// Initialize creates pending records for every pipeline step of the job.
// Steps that already exist are left untouched, so re-initialization after
// a retry or recovery is harmless.
func (t *StepTracker) Initialize(ctx context.Context, jobID int64) error {
	if err := t.store.Initialize(ctx, jobID, domain.PipelineSteps()); err != nil {
		return fmt.Errorf("failed to initialize steps: %w", err)
	}
	return nil
}

// Start marks the step running and records its start time locally.
func (t *StepTracker) Start(ctx context.Context, jobID int64, step string) error {
	now := t.clock()

	t.mu.Lock()
	t.starts[stepKey{jobID, step}] = now
	t.mu.Unlock()

	if err := t.store.Start(ctx, jobID, step, now); err != nil {
		return fmt.Errorf("failed to start step %s: %w", step, err)
	}

	logger.FromContext(ctx).Debug("step started", "job_id", jobID, "step", step)
	return nil
}

// Complete marks the step completed, deriving the duration from the
// tracker's own recorded start time.
func (t *StepTracker) Complete(ctx context.Context, jobID int64, step string, metadata json.RawMessage) error {
	now := t.clock()
	duration := t.takeDuration(jobID, step, now)

	if err := t.store.Complete(ctx, jobID, step, now, duration, metadata); err != nil {
		return fmt.Errorf("failed to complete step %s: %w", step, err)
	}

	logger.FromContext(ctx).Debug("step completed",
		"job_id", jobID,
		"step", step,
		"duration_ms", duration.Milliseconds())
	return nil
}

// Fail marks the step failed with its error.
func (t *StepTracker) Fail(ctx context.Context, jobID int64, step string, stepErr error) error {
	now := t.clock()
	t.takeDuration(jobID, step, now)

	if err := t.store.Fail(ctx, jobID, step, now, stepErr.Error()); err != nil {
		return fmt.Errorf("failed to record step failure for %s: %w", step, err)
	}

	return nil
}

// Skip marks a step skipped without it ever entering the running state.
func (t *StepTracker) Skip(ctx context.Context, jobID int64, step, reason string) error {
	if err := t.store.Skip(ctx, jobID, step, reason); err != nil {
		return fmt.Errorf("failed to skip step %s: %w", step, err)
	}

	logger.FromContext(ctx).Debug("step skipped", "job_id", jobID, "step", step, "reason", reason)
	return nil
}

// takeDuration removes the recorded start and returns the elapsed time,
// or zero when no start was observed (e.g. a process restart mid-step).
func (t *StepTracker) takeDuration(jobID int64, step string, now time.Time) time.Duration {
	key := stepKey{jobID, step}

	t.mu.Lock()
	defer t.mu.Unlock()

	start, ok := t.starts[key]
	if !ok {
		return 0
	}
	delete(t.starts, key)
	return now.Sub(start)
}
