// Package pipeline executes claimed jobs through the fixed step sequence
// and keeps their liveness and step state durable along the way.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/voxnote/voxnote-api/internal/analysis"
	"github.com/voxnote/voxnote-api/internal/audio"
	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/queue"
	"github.com/voxnote/voxnote-api/internal/store"
	"github.com/voxnote/voxnote-api/internal/transcribe"
)

// Job progress checkpoints. Transcription interpolates between the split
// and transcribe marks as chunks settle.
const (
	progressConverted   = 10
	progressSplit       = 25
	progressTranscribed = 70
	progressAnalyzed    = 85
	progressPersisted   = 95
	progressDone        = 100
)

// Converter transcodes an input into the pipeline's target audio format.
type Converter interface {
	NeedsConversion(inputPath string) bool
	Convert(ctx context.Context, jobID int64, inputPath string) (outPath string, converted bool, err error)
}

// Splitter cuts an input into transcription-sized chunk files.
type Splitter interface {
	Split(ctx context.Context, jobID int64, inputPath string) []audio.ChunkFile
}

// Transcriber settles every chunk of a job against the speech-to-text
// service and applies the quality gate.
type Transcriber interface {
	ProcessAll(ctx context.Context, jobID int64, chunks []*domain.Chunk,
		onStatus transcribe.StatusCallback, onProgress transcribe.ProgressCallback) (*transcribe.Outcome, error)
}

// Orchestrator drives one claimed job through convert, split, transcribe,
// analyze, persist, and cleanup. It owns no cross-job state; everything
// durable lives in the stores, so any worker can pick up any job.
type Orchestrator struct {
	jobs        store.JobStore
	chunks      store.ChunkStore
	steps       *StepTracker
	heartbeat   *Heartbeat
	converter   Converter
	splitter    Splitter
	transcriber Transcriber
	analyzer    analysis.Executor
	persister   *Persister
	cfg         config.PipelineConfig
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(
	jobs store.JobStore,
	chunks store.ChunkStore,
	steps *StepTracker,
	heartbeat *Heartbeat,
	converter Converter,
	splitter Splitter,
	transcriber Transcriber,
	analyzer analysis.Executor,
	persister *Persister,
	cfg config.PipelineConfig,
) *Orchestrator {
	return &Orchestrator{
		jobs:        jobs,
		chunks:      chunks,
		steps:       steps,
		heartbeat:   heartbeat,
		converter:   converter,
		splitter:    splitter,
		transcriber: transcriber,
		analyzer:    analyzer,
		persister:   persister,
		cfg:         cfg,
	}
}

// Execute claims the submitted job and runs it to a terminal state. The
// claim is the only gate: when it is denied the delivery was redundant and
// ErrNotClaimable tells the caller to acknowledge it without work. A
// returned error other than ErrNotClaimable means the job's outcome could
// not be durably recorded and the delivery should be redelivered.
func (o *Orchestrator) Execute(ctx context.Context, sub *queue.Submission) error {
	claim, err := o.jobs.Claim(ctx, sub.JobID, o.cfg.MaxJobDuration)
	if err != nil {
		if errors.Is(err, store.ErrNotClaimable) {
			return err
		}
		return fmt.Errorf("failed to claim job %d: %w", sub.JobID, err)
	}

	log := logger.FromContext(ctx).With("job_id", sub.JobID, "attempt", claim.Attempts)
	ctx = logger.WithLogger(ctx, log)
	log.Info("job claimed", "job_type", sub.JobType, "timeout_at", claim.TimeoutAt)

	job, err := o.jobs.GetByID(ctx, sub.JobID, store.AuthScope{CompanyID: sub.CompanyID})
	if err != nil {
		return o.failJob(ctx, nil, sub.JobID, claim.Attempts, "claim", fmt.Errorf("failed to load claimed job: %w", err))
	}

	if err := o.steps.Initialize(ctx, job.ID); err != nil {
		return o.failJob(ctx, nil, job.ID, claim.Attempts, "claim", err)
	}

	stop := o.heartbeat.Start(ctx, job.ID)

	audioPath, err := o.runConvert(ctx, job.ID, sub.InputPath)
	if err != nil {
		return o.failJob(ctx, stop, job.ID, claim.Attempts, domain.StepConvert, err)
	}

	chunks, err := o.runSplit(ctx, job.ID, audioPath)
	if err != nil {
		return o.failJob(ctx, stop, job.ID, claim.Attempts, domain.StepSplit, err)
	}

	outcome, err := o.runTranscribe(ctx, job.ID, chunks)
	if err != nil {
		return o.failJob(ctx, stop, job.ID, claim.Attempts, domain.StepTranscribe, err)
	}

	result, err := o.runAnalyze(ctx, job.ID, outcome.MergedTranscript, job.Prompt)
	if err != nil {
		return o.failJob(ctx, stop, job.ID, claim.Attempts, domain.StepAnalyze, err)
	}

	recordID, err := o.runPersist(ctx, job, outcome, result)
	if err != nil {
		return o.failJob(ctx, stop, job.ID, claim.Attempts, domain.StepPersist, err)
	}

	o.runCleanup(ctx, job.ID)

	stop()

	if err := o.setProgress(ctx, job.ID, "", progressDone); err != nil {
		return err
	}
	if err := o.jobs.Finish(ctx, job.ID, claim.Attempts, domain.JobStatusCompleted, domain.TimeoutReasonNone, ""); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// The reaper took the job away mid-run. The record is durable
			// and the new attempt converges on it, so the delivery is done.
			log.Warn("job changed owner before completion", "error", err)
			return nil
		}
		return fmt.Errorf("failed to mark job %d completed: %w", job.ID, err)
	}

	log.Info("job completed",
		"chunks", len(chunks),
		"quality", outcome.Quality,
		"record_id", recordID)

	return nil
}

// runConvert transcodes the input when needed, or records the step as
// skipped without it ever entering the running state.
func (o *Orchestrator) runConvert(ctx context.Context, jobID int64, inputPath string) (string, error) {
	if !o.converter.NeedsConversion(inputPath) {
		if err := o.steps.Skip(ctx, jobID, domain.StepConvert, "input already in target format"); err != nil {
			return "", err
		}
		return inputPath, nil
	}

	if err := o.startStep(ctx, jobID, domain.StepConvert, progressConverted); err != nil {
		return "", err
	}

	outPath, _, err := o.converter.Convert(ctx, jobID, inputPath)
	if err != nil {
		return "", err
	}

	if err := o.steps.Complete(ctx, jobID, domain.StepConvert, nil); err != nil {
		return "", err
	}

	return outPath, nil
}

// runSplit cuts the audio and registers the resulting chunk rows.
func (o *Orchestrator) runSplit(ctx context.Context, jobID int64, audioPath string) ([]*domain.Chunk, error) {
	if err := o.startStep(ctx, jobID, domain.StepSplit, progressSplit); err != nil {
		return nil, err
	}

	chunkFiles := o.splitter.Split(ctx, jobID, audioPath)
	if len(chunkFiles) == 0 {
		return nil, fmt.Errorf("splitter produced no chunks for %s", audioPath)
	}

	chunks := make([]*domain.Chunk, 0, len(chunkFiles))
	for _, file := range chunkFiles {
		chunk, err := domain.NewChunk(jobID, file.Ordinal, file.Path, file.StartOffset, file.EndOffset)
		if err != nil {
			return nil, fmt.Errorf("invalid chunk %d: %w", file.Ordinal, err)
		}
		chunks = append(chunks, chunk)
	}

	if err := o.chunks.CreateBatch(ctx, chunks); err != nil {
		return nil, err
	}

	total := len(chunks)
	if err := o.jobs.UpdateProgress(ctx, jobID, store.ProgressUpdate{TotalChunks: &total}); err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]int{"chunk_count": total})
	if err := o.steps.Complete(ctx, jobID, domain.StepSplit, metadata); err != nil {
		return nil, err
	}

	return chunks, nil
}

// runTranscribe fans the chunks out to the speech-to-text service,
// mirroring every chunk transition into the store as it happens so a
// crashed worker leaves an accurate picture behind.
func (o *Orchestrator) runTranscribe(ctx context.Context, jobID int64, chunks []*domain.Chunk) (*transcribe.Outcome, error) {
	if err := o.startStep(ctx, jobID, domain.StepTranscribe, progressSplit); err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx)

	var mu sync.Mutex
	completed := 0

	onStatus := func(ctx context.Context, ordinal int, status domain.ChunkStatus, transcript, errMsg string) {
		var err error
		switch status {
		case domain.ChunkStatusCompleted:
			err = o.chunks.SetTranscript(ctx, jobID, ordinal, transcript)
			if err == nil {
				mu.Lock()
				completed++
				count := completed
				mu.Unlock()
				err = o.jobs.UpdateProgress(ctx, jobID, store.ProgressUpdate{CompletedChunks: &count})
			}
		default:
			err = o.chunks.UpdateStatus(ctx, jobID, ordinal, status, errMsg)
		}
		if err != nil {
			// The in-memory result set still settles; the store catches
			// up on the next transition or the reaper's reset.
			log.Warn("failed to record chunk transition",
				"ordinal", ordinal, "status", status, "error", err)
		}
	}

	onProgress := func(ctx context.Context, settled, total int) {
		o.heartbeat.Tick(ctx, jobID)

		progress := progressSplit + (progressTranscribed-progressSplit)*settled/total
		upd := store.ProgressUpdate{Progress: &progress}
		if err := o.jobs.UpdateProgress(ctx, jobID, upd); err != nil {
			log.Warn("failed to update job progress", "error", err)
		}
	}

	outcome, err := o.transcriber.ProcessAll(ctx, jobID, chunks, onStatus, onProgress)
	if err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]any{
		"chunk_count":  len(chunks),
		"success_rate": outcome.SuccessRate,
		"quality":      outcome.Quality,
	})
	if err := o.steps.Complete(ctx, jobID, domain.StepTranscribe, metadata); err != nil {
		return nil, err
	}

	return outcome, nil
}

// runAnalyze enriches the merged transcript through the analysis workflow.
// The prompt travels on the job row, so retried attempts analyze with the
// same instructions the submitter gave.
func (o *Orchestrator) runAnalyze(ctx context.Context, jobID int64, transcript, prompt string) (*analysis.Result, error) {
	if err := o.startStep(ctx, jobID, domain.StepAnalyze, progressTranscribed); err != nil {
		return nil, err
	}

	result, err := o.analyzer.Run(ctx, jobID, transcript, analysis.Params{Prompt: prompt})
	if err != nil {
		return nil, err
	}

	if err := o.steps.Complete(ctx, jobID, domain.StepAnalyze, nil); err != nil {
		return nil, err
	}

	return result, nil
}

// runPersist writes the processed record and links it to the job.
func (o *Orchestrator) runPersist(ctx context.Context, job *domain.Job, outcome *transcribe.Outcome, result *analysis.Result) (string, error) {
	if err := o.startStep(ctx, job.ID, domain.StepPersist, progressAnalyzed); err != nil {
		return "", err
	}

	recordID, err := o.persister.Persist(ctx, job, outcome.MergedTranscript, outcome.Quality, result)
	if err != nil {
		return "", err
	}

	metadata, _ := json.Marshal(map[string]string{"record_id": recordID.String()})
	if err := o.steps.Complete(ctx, job.ID, domain.StepPersist, metadata); err != nil {
		return "", err
	}

	return recordID.String(), nil
}

// runCleanup removes the job's work directory. Cleanup problems never fail
// the job; the record is already durable by the time it runs.
func (o *Orchestrator) runCleanup(ctx context.Context, jobID int64) {
	log := logger.FromContext(ctx)

	if err := o.startStep(ctx, jobID, domain.StepCleanup, progressPersisted); err != nil {
		log.Warn("failed to start cleanup step", "error", err)
		return
	}

	workDir := filepath.Join(o.cfg.WorkDir, fmt.Sprintf("job-%d", jobID))
	if err := os.RemoveAll(workDir); err != nil {
		log.Warn("failed to remove work directory", "dir", workDir, "error", err)
		if failErr := o.steps.Fail(ctx, jobID, domain.StepCleanup, err); failErr != nil {
			log.Warn("failed to record cleanup failure", "error", failErr)
		}
		return
	}

	if err := o.steps.Complete(ctx, jobID, domain.StepCleanup, nil); err != nil {
		log.Warn("failed to complete cleanup step", "error", err)
	}
}

// startStep marks the step running and advances the job's visible step
// and progress in one motion.
func (o *Orchestrator) startStep(ctx context.Context, jobID int64, step string, progress int) error {
	if err := o.steps.Start(ctx, jobID, step); err != nil {
		return err
	}
	return o.setProgress(ctx, jobID, step, progress)
}

func (o *Orchestrator) setProgress(ctx context.Context, jobID int64, step string, progress int) error {
	return o.jobs.UpdateProgress(ctx, jobID, store.ProgressUpdate{
		CurrentStep: &step,
		Progress:    &progress,
	})
}

// failJob records a step failure and moves the job to failed. Work files
// are intentionally left on disk for inspection; the reaper's retry path
// or the next claim resets chunk state, not the filesystem.
func (o *Orchestrator) failJob(ctx context.Context, stop func(), jobID int64, attempt int, step string, cause error) error {
	log := logger.FromContext(ctx)
	log.Error("job step failed", "step", step, "error", cause)

	if step != "claim" {
		if err := o.steps.Fail(ctx, jobID, step, cause); err != nil {
			log.Warn("failed to record step failure", "step", step, "error", err)
		}
	}

	if stop != nil {
		stop()
	}

	errMsg := fmt.Sprintf("%s: %v", step, cause)
	if err := o.jobs.Finish(ctx, jobID, attempt, domain.JobStatusFailed, domain.TimeoutReasonNone, errMsg); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Another owner already moved the job on; its state wins.
			log.Warn("job changed owner before failure was recorded", "error", err)
			return nil
		}
		return fmt.Errorf("failed to mark job %d failed: %w", jobID, err)
	}

	return nil
}
