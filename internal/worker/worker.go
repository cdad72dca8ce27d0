// Package worker runs the consuming side of the pipeline: it takes job
// submissions off the queue, makes the input audio available locally, and
// hands each job to the orchestrator under a concurrency bound.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/queue"
	"github.com/voxnote/voxnote-api/internal/store"
)

// InputFetcher materializes a submitted file from object storage.
type InputFetcher interface {
	FetchToDir(ctx context.Context, fileID, dir string) (string, error)
}

// Executor runs one claimed job to a terminal state.
type Executor interface {
	Execute(ctx context.Context, sub *queue.Submission) error
}

// Worker consumes submissions and executes them.
type Worker struct {
	consumer queue.Consumer
	executor Executor
	fetcher  InputFetcher
	cfg      config.PipelineConfig
	sem      chan struct{}
}

// New creates a Worker. fetcher may be nil when every submission carries a
// local input path.
func New(consumer queue.Consumer, executor Executor, fetcher InputFetcher, cfg config.PipelineConfig) *Worker {
	return &Worker{
		consumer: consumer,
		executor: executor,
		fetcher:  fetcher,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.JobConcurrency),
	}
}

// Run consumes until the context is done. In-flight jobs keep their claim
// and heartbeat; on shutdown their contexts cancel and the reaper recovers
// whatever did not finish.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

// handle processes one delivery. A nil return acknowledges the message; an
// error requeues it.
func (w *Worker) handle(ctx context.Context, sub *queue.Submission) error {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	log := logger.FromContext(ctx).With("job_id", sub.JobID, "message_id", sub.MessageID)
	ctx = logger.WithLogger(ctx, log)

	inputPath, err := w.materialize(ctx, sub)
	if err != nil {
		log.Error("failed to materialize job input", "file_id", sub.FileID, "error", err)
		return err
	}
	sub.InputPath = inputPath

	err = w.executor.Execute(ctx, sub)
	if errors.Is(err, store.ErrNotClaimable) {
		// Redelivery of a job another worker already owns or finished.
		log.Debug("dropping redundant delivery")
		return nil
	}

	return err
}

// materialize resolves the submission to a readable local file, fetching
// from object storage by file ID when no usable local path was provided.
func (w *Worker) materialize(ctx context.Context, sub *queue.Submission) (string, error) {
	if sub.InputPath != "" {
		if _, err := os.Stat(sub.InputPath); err == nil {
			return sub.InputPath, nil
		}
	}

	if w.fetcher == nil {
		return "", fmt.Errorf("input %s not found locally and no object storage configured", sub.InputPath)
	}

	dir := filepath.Join(w.cfg.WorkDir, fmt.Sprintf("job-%d", sub.JobID), "input")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create input directory: %w", err)
	}

	path, err := w.fetcher.FetchToDir(ctx, sub.FileID, dir)
	if err != nil {
		return "", fmt.Errorf("failed to fetch input %s: %w", sub.FileID, err)
	}

	logger.FromContext(ctx).Info("fetched input from object storage", "file_id", sub.FileID, "path", path)
	return path, nil
}
