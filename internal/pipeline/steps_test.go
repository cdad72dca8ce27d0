package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote/voxnote-api/internal/domain"
)

// steppedClock returns a clock that advances by step on every reading.
func steppedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current := now
		now = now.Add(step)
		return current
	}
}

func TestStepTracker_DurationFromOwnStartTime(t *testing.T) {
	t.Parallel()

	var recorded time.Duration
	stepStore := &mockStepStore{
		CompleteFn: func(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error {
			recorded = duration
			return nil
		},
	}

	tracker := NewStepTracker(stepStore)
	tracker.clock = steppedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), 7*time.Second)

	ctx := context.Background()
	require.NoError(t, tracker.Start(ctx, 1, domain.StepConvert))
	require.NoError(t, tracker.Complete(ctx, 1, domain.StepConvert, nil))

	assert.Equal(t, 7*time.Second, recorded)
}

func TestStepTracker_MissingStartYieldsZeroDuration(t *testing.T) {
	t.Parallel()

	var recorded time.Duration
	stepStore := &mockStepStore{
		CompleteFn: func(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error {
			recorded = duration
			return nil
		},
	}

	tracker := NewStepTracker(stepStore)
	// Completing with no observed start models a restart mid-step.
	require.NoError(t, tracker.Complete(context.Background(), 1, domain.StepSplit, nil))

	assert.Equal(t, time.Duration(0), recorded)
}

func TestStepTracker_StartsAreIndependentPerJob(t *testing.T) {
	t.Parallel()

	durations := make(map[int64]time.Duration)
	var mu sync.Mutex
	stepStore := &mockStepStore{
		CompleteFn: func(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error {
			mu.Lock()
			durations[jobID] = duration
			mu.Unlock()
			return nil
		},
	}

	tracker := NewStepTracker(stepStore)
	tracker.clock = steppedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)

	ctx := context.Background()
	require.NoError(t, tracker.Start(ctx, 1, domain.StepTranscribe)) // t+0
	require.NoError(t, tracker.Start(ctx, 2, domain.StepTranscribe)) // t+1
	require.NoError(t, tracker.Complete(ctx, 1, domain.StepTranscribe, nil))
	require.NoError(t, tracker.Complete(ctx, 2, domain.StepTranscribe, nil))

	assert.Equal(t, 2*time.Second, durations[1])
	assert.Equal(t, 2*time.Second, durations[2])
}

func TestStepTracker_FailConsumesStart(t *testing.T) {
	t.Parallel()

	var completeDuration time.Duration
	stepStore := &mockStepStore{
		CompleteFn: func(ctx context.Context, jobID int64, step string, at time.Time, duration time.Duration, metadata json.RawMessage) error {
			completeDuration = duration
			return nil
		},
	}

	tracker := NewStepTracker(stepStore)
	tracker.clock = steppedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)

	ctx := context.Background()
	require.NoError(t, tracker.Start(ctx, 1, domain.StepAnalyze))
	require.NoError(t, tracker.Fail(ctx, 1, domain.StepAnalyze, errors.New("boom")))

	// A later complete for the same key finds no start left.
	require.NoError(t, tracker.Complete(ctx, 1, domain.StepAnalyze, nil))
	assert.Equal(t, time.Duration(0), completeDuration)
}

func TestStepTracker_Initialize(t *testing.T) {
	t.Parallel()

	var initialized []string
	stepStore := &mockStepStore{
		InitializeFn: func(ctx context.Context, jobID int64, steps []string) error {
			initialized = steps
			return nil
		},
	}

	tracker := NewStepTracker(stepStore)
	require.NoError(t, tracker.Initialize(context.Background(), 7))

	assert.Equal(t, domain.PipelineSteps(), initialized)
}

func TestStepTracker_StoreErrorsPropagate(t *testing.T) {
	t.Parallel()

	storeErr := errors.New("connection reset")
	stepStore := &mockStepStore{
		StartFn: func(ctx context.Context, jobID int64, step string, at time.Time) error {
			return storeErr
		},
	}

	tracker := NewStepTracker(stepStore)
	err := tracker.Start(context.Background(), 1, domain.StepConvert)
	assert.ErrorIs(t, err, storeErr)
}
