package audio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// MediaInfo describes the probed input file.
type MediaInfo struct {
	// Duration of the audio in seconds.
	Duration float64

	// BytesPerSec is the average byte rate derived from the container
	// bitrate. Variable-bitrate files make this a best-effort heuristic,
	// not a guaranteed bound; the splitter uses it only for early-split
	// size estimates.
	BytesPerSec float64
}

// probe reads duration and average bitrate via ffprobe.
func (s *Splitter) probe(ctx context.Context, path string) (MediaInfo, error) {
	result, err := s.runner.Run(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,bit_rate",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe failed: %w", err)
	}

	info, err := parseProbeOutput(result.Stdout)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	return info, nil
}

// parseProbeOutput reads ffprobe key=value lines into MediaInfo.
func parseProbeOutput(out string) (MediaInfo, error) {
	var info MediaInfo

	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(strings.TrimSpace(line), "=")
		if !found {
			continue
		}

		switch key {
		case "duration":
			d, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return MediaInfo{}, fmt.Errorf("invalid duration %q", value)
			}
			info.Duration = d
		case "bit_rate":
			// N/A shows up for containers without a format-level bitrate.
			if value == "N/A" {
				continue
			}
			bits, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return MediaInfo{}, fmt.Errorf("invalid bit rate %q", value)
			}
			info.BytesPerSec = bits / 8
		}
	}

	if info.Duration <= 0 {
		return MediaInfo{}, fmt.Errorf("ffprobe reported no duration")
	}

	return info, nil
}
