package audio

// tailGuardSeconds drops split points this close to the end of the file,
// avoiding degenerate trailing micro-chunks.
const tailGuardSeconds = 5.0

// sizeSplitFraction triggers a size-based split at this share of the hard
// byte cap, leaving headroom for the bytes-per-second estimate being a
// heuristic rather than a bound.
const sizeSplitFraction = 0.8

// PlanParams are the inputs to split planning.
type PlanParams struct {
	// TotalDuration is the probed audio length in seconds.
	TotalDuration float64

	// BytesPerSec is the probed average byte rate. Zero disables
	// size-based splitting.
	BytesPerSec float64

	// SoftCapSec is the preferred chunk duration.
	SoftCapSec float64

	// HardCapSec is the chunk duration ceiling.
	HardCapSec float64

	// HardCapBytes is the chunk size ceiling.
	HardCapBytes int64
}

// PlanSplits chooses split points from detected silence intervals.
// Walking silences in order, it splits at a silence midpoint once the
// elapsed time reaches the soft cap or the estimated chunk size reaches
// 80% of the hard byte cap. When the gap to the next silence would push a
// chunk past the hard duration cap, it force-splits at the current silence
// once past half the soft cap, so long silence-free spans cannot produce
// an oversized chunk. Remaining audio past the last silence longer than
// the hard cap gets fixed-interval force-splits. Split points within five
// seconds of the end are dropped.
//
// The returned slice is strictly increasing interior split points; an
// empty result means the file should stay as one chunk (or the caller
// falls back to interval splitting when the file exceeds the soft cap).
func PlanSplits(p PlanParams, silences []Silence) []float64 {
	var splits []float64
	lastSplit := 0.0

	sizeCap := float64(p.HardCapBytes) * sizeSplitFraction

	for i, silence := range silences {
		mid := silence.Mid()
		if mid <= lastSplit {
			continue
		}

		elapsed := mid - lastSplit
		estBytes := elapsed * p.BytesPerSec

		splitHere := false
		switch {
		case elapsed >= p.SoftCapSec:
			splitHere = true
		case p.BytesPerSec > 0 && estBytes >= sizeCap:
			splitHere = true
		default:
			// If waiting for the next silence would blow past the hard
			// duration cap, take this one once past half the soft cap.
			next := p.TotalDuration
			if i+1 < len(silences) {
				next = silences[i+1].Mid()
			}
			if next-lastSplit > p.HardCapSec && elapsed > p.SoftCapSec/2 {
				splitHere = true
			}
		}

		if splitHere {
			splits = append(splits, mid)
			lastSplit = mid
		}
	}

	// Long silence-free tail: force fixed-interval splits.
	if p.TotalDuration-lastSplit > p.HardCapSec {
		for point := lastSplit + p.SoftCapSec; point < p.TotalDuration; point += p.SoftCapSec {
			splits = append(splits, point)
		}
	}

	// Drop degenerate trailing splits.
	trimmed := splits[:0]
	for _, point := range splits {
		if p.TotalDuration-point >= tailGuardSeconds {
			trimmed = append(trimmed, point)
		}
	}

	return trimmed
}

// IntervalSplits produces evenly spaced split points every intervalSec,
// used when silence detection yields nothing usable.
func IntervalSplits(totalDuration, intervalSec float64) []float64 {
	if intervalSec <= 0 || totalDuration <= intervalSec {
		return nil
	}

	var splits []float64
	for point := intervalSec; point < totalDuration; point += intervalSec {
		if totalDuration-point < tailGuardSeconds {
			break
		}
		splits = append(splits, point)
	}

	return splits
}
