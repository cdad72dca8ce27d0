package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/voxnote/voxnote-api/internal/platform/logger"
)

// targetExtension is the container format the transcription service accepts.
const targetExtension = ".mp3"

// Converter transcodes inputs into the pipeline's target audio format.
type Converter struct {
	ffmpegPath string
	runner     commandRunner
	workDir    string
}

// NewConverter constructs the production converter.
func NewConverter(workDir string) *Converter {
	return &Converter{
		ffmpegPath: "ffmpeg",
		runner:     &execRunner{},
		workDir:    workDir,
	}
}

// NeedsConversion reports whether the input requires transcoding before
// the rest of the pipeline can use it.
func (c *Converter) NeedsConversion(inputPath string) bool {
	return !strings.EqualFold(filepath.Ext(inputPath), targetExtension)
}

// Convert transcodes inputPath to the target format under the job's work
// directory. When the input already is the target format it returns the
// input path untouched with converted=false, letting the orchestrator skip
// the step entirely.
func (c *Converter) Convert(ctx context.Context, jobID int64, inputPath string) (outPath string, converted bool, err error) {
	if strings.EqualFold(filepath.Ext(inputPath), targetExtension) {
		return inputPath, false, nil
	}

	jobDir := filepath.Join(c.workDir, fmt.Sprintf("job-%d", jobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create work directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outPath = filepath.Join(jobDir, base+targetExtension)

	result, err := c.runner.Run(ctx, c.ffmpegPath,
		"-hide_banner", "-nostats", "-y",
		"-i", inputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-q:a", "4",
		outPath,
	)
	if err != nil {
		return "", false, fmt.Errorf("format conversion failed (exit %d): %w", result.ExitCode, err)
	}

	logger.FromContext(ctx).Info("converted input to target format",
		"job_id", jobID,
		"source", filepath.Ext(inputPath),
		"output", outPath)

	return outPath, true, nil
}
