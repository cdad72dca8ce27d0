package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/store"
)

// Heartbeat keeps claimed jobs visibly alive while they execute. Each
// running job gets its own ticker goroutine whose lifetime is bound to the
// execution that started it; there is no process-wide timer registry to
// leak entries when a job ends abnormally.
type Heartbeat struct {
	jobs     store.JobStore
	interval time.Duration
}

// NewHeartbeat creates a heartbeat manager beating at the given interval.
func NewHeartbeat(jobs store.JobStore, interval time.Duration) *Heartbeat {
	return &Heartbeat{jobs: jobs, interval: interval}
}

// Start begins beating for the job and returns a stop function. The stop
// function blocks until the ticker goroutine has exited, so callers can
// mark the job terminal immediately afterwards without racing a late beat.
// Stopping twice is safe.
func (h *Heartbeat) Start(ctx context.Context, jobID int64) (stop func()) {
	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				h.beat(tickCtx, jobID)
			}
		}
	}()

	var once bool
	return func() {
		if once {
			return
		}
		once = true
		cancel()
		<-done
	}
}

// Tick records a single heartbeat immediately, outside the periodic
// schedule. Pipeline stages call it after significant units of work so a
// long stage cannot look stalled between ticker beats.
func (h *Heartbeat) Tick(ctx context.Context, jobID int64) {
	h.beat(ctx, jobID)
}

func (h *Heartbeat) beat(ctx context.Context, jobID int64) {
	err := h.jobs.Heartbeat(ctx, jobID)
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}

	// A missed beat is not fatal to the job; the reaper only acts after a
	// sustained gap. Log and let the next beat try again.
	logger.FromContext(ctx).Warn("heartbeat update failed", "job_id", jobID, "error", err)
}
