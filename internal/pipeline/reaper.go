package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/queue"
	"github.com/voxnote/voxnote-api/internal/store"
)

// SweepStats summarizes one reaper pass.
type SweepStats struct {
	Processed         int
	Requeued          int
	PermanentlyFailed int
}

// Reaper recovers jobs whose worker stopped beating or overran the hard
// deadline. It fails the stalled attempt and, when attempts remain, resets
// the job and its chunks and puts it back on the queue.
type Reaper struct {
	jobs             store.JobStore
	chunks           store.ChunkStore
	publisher        queue.Publisher
	heartbeatTimeout time.Duration

	// Guards against overlapping sweeps when one runs long.
	sweeping sync.Mutex
}

// NewReaper creates a Reaper.
func NewReaper(jobs store.JobStore, chunks store.ChunkStore, publisher queue.Publisher, heartbeatTimeout time.Duration) *Reaper {
	return &Reaper{
		jobs:             jobs,
		chunks:           chunks,
		publisher:        publisher,
		heartbeatTimeout: heartbeatTimeout,
	}
}

// Run sweeps on the given interval until the context is done.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	log := logger.FromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reaper stopped")
			return
		case <-ticker.C:
			stats, err := r.Sweep(ctx, time.Now().UTC())
			if err != nil {
				log.Error("reaper sweep failed", "error", err)
				continue
			}
			if stats != nil && stats.Processed > 0 {
				log.Info("reaper sweep finished",
					"processed", stats.Processed,
					"requeued", stats.Requeued,
					"permanently_failed", stats.PermanentlyFailed)
			}
		}
	}
}

// Sweep handles every currently stalled job once. A sweep that would
// overlap an in-flight one returns immediately with nil stats; the next
// tick picks up whatever remains.
func (r *Reaper) Sweep(ctx context.Context, now time.Time) (*SweepStats, error) {
	if !r.sweeping.TryLock() {
		logger.FromContext(ctx).Debug("sweep already in progress, skipping")
		return nil, nil
	}
	defer r.sweeping.Unlock()

	stalled, err := r.jobs.FindStalled(ctx, r.heartbeatTimeout, now)
	if err != nil {
		return nil, fmt.Errorf("failed to find stalled jobs: %w", err)
	}

	stats := &SweepStats{}
	for _, job := range stalled {
		if err := r.reap(ctx, job, now, stats); err != nil {
			// One unreachable job must not starve the rest of the sweep.
			logger.FromContext(ctx).Error("failed to reap job", "job_id", job.ID, "error", err)
		}
	}

	return stats, nil
}

// reap fails one stalled job and requeues it if attempts remain.
func (r *Reaper) reap(ctx context.Context, job *domain.Job, now time.Time, stats *SweepStats) error {
	log := logger.FromContext(ctx).With("job_id", job.ID)

	reason := domain.TimeoutReasonHeartbeat
	if job.TimeoutAt != nil && now.After(*job.TimeoutAt) {
		reason = domain.TimeoutReasonDuration
	}

	errMsg := fmt.Sprintf("reaped: %s (attempt %d of %d)", reason, job.Attempts, job.MaxAttempts)
	if err := r.jobs.Finish(ctx, job.ID, job.Attempts, domain.JobStatusFailed, reason, errMsg); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The job moved on since FindStalled saw it, most likely because
			// its worker finished. Nothing to recover.
			log.Debug("job no longer stalled, skipping")
			return nil
		}
		return fmt.Errorf("failed to fail stalled job: %w", err)
	}
	stats.Processed++

	log.Warn("reaped stalled job",
		"reason", reason,
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts)

	if !job.AttemptsRemaining() {
		stats.PermanentlyFailed++
		log.Error("job permanently failed, attempts exhausted")
		return nil
	}

	if err := r.jobs.ResetForRetry(ctx, job.ID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Someone else moved the job between our Finish and the
			// reset. Their state wins.
			log.Debug("job state changed during reap, leaving it alone")
			return nil
		}
		return fmt.Errorf("failed to reset job for retry: %w", err)
	}

	if err := r.chunks.ResetForJob(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to reset chunks for retry: %w", err)
	}

	if err := r.publisher.Publish(ctx, queue.NewSubmission(job)); err != nil {
		// A pending job with no queue message would sit forever: nothing
		// sweeps pending. Put it back in failed so a later retry can requeue it.
		requeueMsg := fmt.Sprintf("requeue failed: %v", err)
		if finishErr := r.jobs.Finish(ctx, job.ID, job.Attempts, domain.JobStatusFailed, reason, requeueMsg); finishErr != nil {
			log.Error("failed to record requeue failure", "error", finishErr)
		}
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	stats.Requeued++
	log.Info("requeued stalled job for retry")
	return nil
}
