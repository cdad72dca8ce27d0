package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSilenceOutput = `Input #0, mp3, from 'input.mp3':
  Duration: 00:10:00.00, start: 0.000000, bitrate: 128 kb/s
[silencedetect @ 0x55d9c0] silence_start: 62.4
[silencedetect @ 0x55d9c0] silence_end: 63.6 | silence_duration: 1.2
[silencedetect @ 0x55d9c0] silence_start: 180.0
[silencedetect @ 0x55d9c0] silence_end: 181.0 | silence_duration: 1.0
size=N/A time=00:10:00.00 bitrate=N/A speed= 512x
`

func TestParseSilences(t *testing.T) {
	t.Parallel()

	silences := parseSilences(sampleSilenceOutput, 600)
	require.Len(t, silences, 2)

	assert.InDelta(t, 62.4, silences[0].Start, 0.001)
	assert.InDelta(t, 63.6, silences[0].End, 0.001)
	assert.InDelta(t, 63.0, silences[0].Mid(), 0.001)
	assert.InDelta(t, 180.5, silences[1].Mid(), 0.001)
}

func TestParseSilences_TrailingOpenInterval(t *testing.T) {
	t.Parallel()

	// Audio that ends during a silence never emits silence_end.
	out := "[silencedetect @ 0x1] silence_start: 595.0\n"
	silences := parseSilences(out, 600)
	require.Len(t, silences, 1)
	assert.InDelta(t, 595.0, silences[0].Start, 0.001)
	assert.InDelta(t, 600.0, silences[0].End, 0.001)
}

func TestParseSilences_EndWithoutStartDropped(t *testing.T) {
	t.Parallel()

	out := "[silencedetect @ 0x1] silence_end: 10.0 | silence_duration: 1.0\n"
	assert.Empty(t, parseSilences(out, 600))
}

func TestParseSilences_IgnoresUnrelatedLines(t *testing.T) {
	t.Parallel()

	out := "frame=  100 fps=0.0 q=-0.0 size=N/A\nsilence_start: missing prefix\n"
	assert.Empty(t, parseSilences(out, 600))
}

func TestSilenceParserEvents(t *testing.T) {
	t.Parallel()

	var p silenceParser
	p.OnStart(5)
	p.OnEnd(6)
	p.OnEnd(7) // ignored, nothing open
	p.OnStart(20)

	silences := p.Finish(30)
	require.Len(t, silences, 2)
	assert.Equal(t, Silence{Start: 5, End: 6}, silences[0])
	assert.Equal(t, Silence{Start: 20, End: 30}, silences[1])
}
