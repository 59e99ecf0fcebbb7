// Package progress implements the progress-delta throttle (spec.md §4.2,
// C4) plus the terminal progress UI that renders throttled updates, mirroring
// the teacher's internal/progress package: a Reporter interface with CLI
// and no-op implementations (progress.go), a single-bar CLI renderer backed
// by schollz/progressbar/v3, and a multi-bar batch renderer backed by
// vbauerster/mpb/v8 (batchui.go).
package progress

import "math"

// Throttle decides whether a progress delta is large enough to emit,
// implementing spec.md §4.2 exactly.
type Throttle struct {
	intervalPct float64
	prevCurrent float64
	seenFirst   bool

	// speed estimate (ambient, EMA alpha=0.25, mirrors the teacher's
	// TransferTask.UpdateProgressWithBytes smoothing in
	// internal/transfer/task.go) -- not part of the throttle decision, just
	// carried alongside it for the CLI bars.
	speed          float64
	lastBytes      float64
	lastUpdateUnix float64
	haveSample     bool
}

// NewThrottle creates a throttle with the given progressInterval (percent).
// A zero or negative interval is treated as spec.md's "emit on every byte
// change" mode.
func NewThrottle(progressIntervalPct float64) *Throttle {
	return &Throttle{intervalPct: progressIntervalPct}
}

// ShouldEmit reports whether a didWrite(current, total) callback should
// produce a visible UnitUpdate, per spec.md §4.2:
//
//   - total == 0: skip (avoid divide-by-zero)
//   - progressInterval == 0: emit whenever current != prevCurrent
//   - otherwise: emit iff |floor(current*100/total) - floor(prevCurrent*100/total)| >= progressInterval
//
// The very first call with total > 0 uses beforePct = 0, so an update whose
// currPct is already >= progressInterval fires immediately.
func (t *Throttle) ShouldEmit(current, total float64) bool {
	if total == 0 {
		return false
	}

	if t.intervalPct <= 0 {
		emit := current != t.prevCurrent
		if emit {
			t.prevCurrent = current
		}
		t.seenFirst = true
		return emit
	}

	beforePct := 0.0
	if t.seenFirst {
		beforePct = math.Floor(t.prevCurrent * 100 / total)
	}
	currPct := math.Floor(current * 100 / total)

	emit := math.Abs(currPct-beforePct) >= t.intervalPct
	if emit {
		t.prevCurrent = current
	}
	t.seenFirst = true
	return emit
}

// RecordSample feeds a raw byte-count/timestamp pair into the smoothed
// speed estimator, independent of whether ShouldEmit fired for it.
// nowUnixSeconds lets callers (and tests) supply a deterministic clock.
func (t *Throttle) RecordSample(bytesTransferred float64, nowUnixSeconds float64) {
	const speedSmoothingAlpha = 0.25
	const minSampleInterval = 0.1

	if !t.haveSample {
		t.haveSample = true
		t.lastBytes = bytesTransferred
		t.lastUpdateUnix = nowUnixSeconds
		t.speed = 0
		return
	}

	if bytesTransferred <= t.lastBytes {
		return
	}

	elapsed := nowUnixSeconds - t.lastUpdateUnix
	if elapsed <= minSampleInterval {
		return
	}

	instantRate := (bytesTransferred - t.lastBytes) / elapsed
	if t.speed > 0 {
		t.speed = speedSmoothingAlpha*instantRate + (1-speedSmoothingAlpha)*t.speed
	} else {
		t.speed = instantRate
	}
	t.lastBytes = bytesTransferred
	t.lastUpdateUnix = nowUnixSeconds
}

// Speed returns the current smoothed bytes/sec estimate.
func (t *Throttle) Speed() float64 {
	return t.speed
}
