package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
)

// ChunkFile is one produced audio segment. Offsets are nil when the chunk
// came from the byte-slice fallback.
type ChunkFile struct {
	Ordinal     int
	Path        string
	StartOffset *float64
	EndOffset   *float64
}

// Splitter cuts an audio file into transcription-sized chunks. Splitting
// never raises a fatal error: every failure path degrades to a simpler
// strategy, terminating at the byte-slice fallback which is pure local
// file I/O.
type Splitter struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
	cfg         config.PipelineConfig
}

// NewSplitter constructs the production splitter.
func NewSplitter(cfg config.PipelineConfig) *Splitter {
	return &Splitter{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &execRunner{},
		cfg:         cfg,
	}
}

// Split produces the ordered chunk list for the given input file, writing
// chunk files under the job's work directory.
func (s *Splitter) Split(ctx context.Context, jobID int64, inputPath string) []ChunkFile {
	log := logger.FromContext(ctx).With("job_id", jobID)

	chunkDir := filepath.Join(s.cfg.WorkDir, fmt.Sprintf("job-%d", jobID), "chunks")
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		log.Error("failed to create chunk directory, falling back to byte slicing", "error", err)
		return s.byteSliceFallback(ctx, inputPath, filepath.Dir(inputPath))
	}

	info, err := s.probe(ctx, inputPath)
	if err != nil {
		log.Warn("probe failed, falling back to byte slicing", "error", err)
		return s.byteSliceFallback(ctx, inputPath, chunkDir)
	}

	soft := s.cfg.SoftChunkDuration.Seconds()
	hard := s.cfg.HardChunkDuration.Seconds()

	silences, err := s.detectSilences(ctx, inputPath, info.Duration)
	if err != nil {
		log.Warn("silence detection failed, using fixed-interval splits", "error", err)
		silences = nil
	}

	splits := PlanSplits(PlanParams{
		TotalDuration: info.Duration,
		BytesPerSec:   info.BytesPerSec,
		SoftCapSec:    soft,
		HardCapSec:    hard,
		HardCapBytes:  s.cfg.HardChunkBytes,
	}, silences)

	// No usable silence points in a file longer than the soft cap:
	// fixed-interval time-based splitting.
	if len(splits) == 0 && info.Duration > soft {
		splits = IntervalSplits(info.Duration, soft)
		log.Info("no usable silence points, using fixed-interval splits",
			"split_count", len(splits))
	}

	chunks, err := s.cutSegments(ctx, inputPath, chunkDir, splits, info.Duration)
	if err != nil {
		log.Warn("segment cutting failed, falling back to byte slicing", "error", err)
		return s.byteSliceFallback(ctx, inputPath, chunkDir)
	}

	log.Info("split audio into chunks",
		"chunk_count", len(chunks),
		"duration_sec", info.Duration,
		"silence_count", len(silences))

	return chunks
}

// detectSilences runs ffmpeg silencedetect and parses its event stream.
func (s *Splitter) detectSilences(ctx context.Context, inputPath string, totalDuration float64) ([]Silence, error) {
	filter := fmt.Sprintf("silencedetect=noise=%.1fdB:d=%.3f",
		s.cfg.SilenceThresholdDB, s.cfg.SilenceMinDuration.Seconds())

	result, err := s.runner.Run(ctx, s.ffmpegPath,
		"-hide_banner", "-nostats",
		"-i", inputPath,
		"-af", filter,
		"-f", "null", "-",
	)
	if err != nil {
		return nil, fmt.Errorf("silencedetect failed: %w", err)
	}

	return parseSilences(result.Stderr, totalDuration), nil
}

// cutSegments extracts one chunk file per split interval with stream copy.
func (s *Splitter) cutSegments(ctx context.Context, inputPath, chunkDir string, splits []float64, totalDuration float64) ([]ChunkFile, error) {
	bounds := make([]float64, 0, len(splits)+2)
	bounds = append(bounds, 0)
	bounds = append(bounds, splits...)
	bounds = append(bounds, totalDuration)

	ext := filepath.Ext(inputPath)
	chunks := make([]ChunkFile, 0, len(bounds)-1)

	for i := 0; i < len(bounds)-1; i++ {
		start, end := bounds[i], bounds[i+1]
		outPath := filepath.Join(chunkDir, fmt.Sprintf("chunk-%03d%s", i, ext))

		_, err := s.runner.Run(ctx, s.ffmpegPath,
			"-hide_banner", "-nostats", "-y",
			"-i", inputPath,
			"-ss", fmt.Sprintf("%.3f", start),
			"-to", fmt.Sprintf("%.3f", end),
			"-c", "copy",
			outPath,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to cut segment %d: %w", i, err)
		}

		startCopy, endCopy := start, end
		chunks = append(chunks, ChunkFile{
			Ordinal:     i,
			Path:        outPath,
			StartOffset: &startCopy,
			EndOffset:   &endCopy,
		})
	}

	return chunks, nil
}

// byteSliceFallback cuts the raw file into fixed-size byte ranges with no
// regard for audio boundaries. Transcription quality degrades gracefully
// instead of failing the job. This terminal fallback reports any chunk it
// managed to produce; with an unreadable input it returns the input file
// itself as a single chunk so the pipeline still has something to carry.
func (s *Splitter) byteSliceFallback(ctx context.Context, inputPath, outDir string) []ChunkFile {
	log := logger.FromContext(ctx)

	single := []ChunkFile{{Ordinal: 0, Path: inputPath}}

	in, err := os.Open(inputPath)
	if err != nil {
		log.Error("byte-slice fallback cannot open input", "error", err)
		return single
	}
	defer func() { _ = in.Close() }()

	stat, err := in.Stat()
	if err != nil {
		log.Error("byte-slice fallback cannot stat input", "error", err)
		return single
	}

	sliceSize := int64(float64(s.cfg.HardChunkBytes) * sizeSplitFraction)
	if sliceSize <= 0 || stat.Size() <= sliceSize {
		return single
	}

	ext := filepath.Ext(inputPath)
	var chunks []ChunkFile

	for ordinal := 0; ; ordinal++ {
		outPath := filepath.Join(outDir, fmt.Sprintf("slice-%03d%s", ordinal, ext))
		out, err := os.Create(outPath)
		if err != nil {
			log.Error("byte-slice fallback cannot create slice", "error", err)
			break
		}

		written, err := io.CopyN(out, in, sliceSize)
		_ = out.Close()

		if written > 0 {
			chunks = append(chunks, ChunkFile{Ordinal: ordinal, Path: outPath})
		} else {
			_ = os.Remove(outPath)
		}

		if err != nil {
			// io.EOF marks the final slice.
			break
		}
	}

	if len(chunks) == 0 {
		return single
	}

	log.Info("byte-slice fallback produced chunks", "chunk_count", len(chunks))
	return chunks
}
