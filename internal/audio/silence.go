package audio

import (
	"strconv"
	"strings"
)

// Silence is one detected silence interval.
type Silence struct {
	Start float64
	End   float64
}

// Mid returns the midpoint of the interval, where splits are taken.
func (s Silence) Mid() float64 {
	return (s.Start + s.End) / 2
}

// silenceParser assembles discrete silence start/end events into intervals.
// The splitting decision logic consumes the resulting intervals and never
// sees the underlying tool's text output, so it is testable without ffmpeg.
type silenceParser struct {
	intervals []Silence
	openStart float64
	open      bool
}

// OnStart records a silence-start event.
func (p *silenceParser) OnStart(at float64) {
	p.openStart = at
	p.open = true
}

// OnEnd records a silence-end event, closing the open interval.
// An end without a matching start is dropped.
func (p *silenceParser) OnEnd(at float64) {
	if !p.open {
		return
	}
	p.intervals = append(p.intervals, Silence{Start: p.openStart, End: at})
	p.open = false
}

// Finish closes a trailing unterminated silence at the given end of audio.
func (p *silenceParser) Finish(totalDuration float64) []Silence {
	if p.open && totalDuration > p.openStart {
		p.intervals = append(p.intervals, Silence{Start: p.openStart, End: totalDuration})
		p.open = false
	}
	return p.intervals
}

// feedLine translates one line of ffmpeg silencedetect stderr into parser
// events. Lines that are not silencedetect output are ignored.
func (p *silenceParser) feedLine(line string) {
	if !strings.Contains(line, "silencedetect") {
		return
	}

	if value, ok := extractField(line, "silence_start:"); ok {
		p.OnStart(value)
		return
	}

	if value, ok := extractField(line, "silence_end:"); ok {
		p.OnEnd(value)
	}
}

// extractField pulls the float following the given marker, if present.
func extractField(line, marker string) (float64, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return 0, false
	}

	rest := strings.TrimSpace(line[idx+len(marker):])
	// silence_end lines continue with "| silence_duration: ...".
	if cut := strings.IndexAny(rest, " |"); cut >= 0 {
		rest = rest[:cut]
	}

	value, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}

	return value, true
}

// parseSilences runs the parser over full silencedetect stderr output.
func parseSilences(stderr string, totalDuration float64) []Silence {
	var parser silenceParser
	for _, line := range strings.Split(stderr, "\n") {
		parser.feedLine(line)
	}
	return parser.Finish(totalDuration)
}
