package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/voxnote/voxnote-api/internal/domain"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
)

// ErrInsufficientSuccessRate is the distinguishable failure returned when
// too few chunks transcribed successfully for the job to be viable.
var ErrInsufficientSuccessRate = errors.New("chunk success rate below configured minimum")

// Result is the settled outcome of one chunk.
type Result struct {
	Index   int
	Text    string
	Success bool
	Err     error
}

// Outcome aggregates all chunk results after the quality gate.
type Outcome struct {
	Results          []Result
	MergedTranscript string
	Quality          domain.QualityStatus
	SuccessRate      float64
}

// StatusCallback reports a chunk status transition as it happens.
type StatusCallback func(ctx context.Context, ordinal int, status domain.ChunkStatus, transcript, errMsg string)

// ProgressCallback reports settled-chunk counts as processing advances.
type ProgressCallback func(ctx context.Context, settled, total int)

// Processor fans chunk transcription out to the remote service under a
// fixed concurrency limit.
type Processor struct {
	client         Client
	concurrency    int
	minSuccessRate float64
}

// NewProcessor builds a Processor.
func NewProcessor(client Client, concurrency int, minSuccessRate float64) *Processor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Processor{
		client:         client,
		concurrency:    concurrency,
		minSuccessRate: minSuccessRate,
	}
}

// ProcessOne transcribes a single chunk, reporting status transitions
// through the callback. Retries happen inside the client; a chunk that
// exhausts them settles as failed without affecting its siblings.
func (p *Processor) ProcessOne(ctx context.Context, jobID int64, chunk *domain.Chunk, onStatus StatusCallback) Result {
	onStatus(ctx, chunk.Ordinal, domain.ChunkStatusProcessing, "", "")

	text, err := p.client.UploadAndTranscribe(ctx, jobID, chunk.FilePath)
	if err != nil {
		onStatus(ctx, chunk.Ordinal, domain.ChunkStatusFailed, "", err.Error())
		return Result{Index: chunk.Ordinal, Err: err}
	}

	onStatus(ctx, chunk.Ordinal, domain.ChunkStatusCompleted, text, "")
	return Result{Index: chunk.Ordinal, Text: text, Success: true}
}

// ProcessAll transcribes every chunk with bounded parallelism: as soon as
// any in-flight chunk settles, the next pending one is admitted, so total
// parallelism never exceeds the limit regardless of chunk count. Results
// are merged back in ordinal order no matter what order chunks finish in.
// After all chunks settle the quality gate runs: below the success-rate
// floor the whole job fails with ErrInsufficientSuccessRate; otherwise the
// outcome carries the successful chunks' text merged in order, flagged
// partial if anything failed.
func (p *Processor) ProcessAll(
	ctx context.Context,
	jobID int64,
	chunks []*domain.Chunk,
	onStatus StatusCallback,
	onProgress ProgressCallback,
) (*Outcome, error) {
	log := logger.FromContext(ctx).With("job_id", jobID)
	total := len(chunks)

	if total == 0 {
		return nil, fmt.Errorf("no chunks to transcribe")
	}

	results := make([]Result, total)
	semaphore := make(chan struct{}, p.concurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	settled := 0

	for i, chunk := range chunks {
		wg.Add(1)
		go func(slot int, chunk *domain.Chunk) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			results[slot] = p.ProcessOne(ctx, jobID, chunk, onStatus)

			mu.Lock()
			settled++
			done := settled
			mu.Unlock()

			if onProgress != nil {
				onProgress(ctx, done, total)
			}
		}(i, chunk)
	}

	wg.Wait()

	succeeded := 0
	var parts []string
	for _, result := range results {
		if result.Success {
			succeeded++
			if trimmed := strings.TrimSpace(result.Text); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
	}

	outcome := &Outcome{
		Results:     results,
		SuccessRate: float64(succeeded) / float64(total),
	}

	if outcome.SuccessRate < p.minSuccessRate {
		log.Warn("chunk success rate below floor",
			"succeeded", succeeded,
			"total", total,
			"floor", p.minSuccessRate)
		return outcome, fmt.Errorf("%w: %d of %d chunks succeeded (floor %.0f%%)",
			ErrInsufficientSuccessRate, succeeded, total, p.minSuccessRate*100)
	}

	outcome.MergedTranscript = strings.Join(parts, "\n\n")
	if succeeded == total {
		outcome.Quality = domain.QualityStatusComplete
	} else {
		outcome.Quality = domain.QualityStatusPartial
	}

	log.Info("chunk transcription settled",
		"succeeded", succeeded,
		"total", total,
		"quality", outcome.Quality)

	return outcome, nil
}
