// Copyright © 2024 loonghao
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package engine

import (
	"sync"
	"time"

	"github.com/loonghao/ferrocp/common"
)

const (
	DefaultSmallFileThreshold = 16 * common.KiB

	microThresholdCeiling = 8 * common.KiB
	microThresholdFloor   = 1 * common.KiB
	smallThresholdCeiling = 32 * common.KiB
)

// Thresholds are the size boundaries that bucket files into engines.
// Ordering invariant: micro < small < zerocopy ≤ parallel, before and
// after any adaptive adjustment.
type Thresholds struct {
	MicroFile int64
	SmallFile int64
	ZeroCopy  int64
	Parallel  int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MicroFile: DefaultMicroFileThreshold,
		SmallFile: DefaultSmallFileThreshold,
		ZeroCopy:  DefaultZeroCopyThreshold,
		Parallel:  DefaultParallelThreshold,
	}
}

// Valid checks the ordering invariant.
func (t Thresholds) Valid() bool {
	return t.MicroFile < t.SmallFile && t.SmallFile < t.ZeroCopy && t.ZeroCopy <= t.Parallel
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// SizeBucket classifies a file size against the current thresholds.
type SizeBucket uint8

const (
	BucketMicro SizeBucket = iota
	BucketSmall
	BucketLarge
)

func (t Thresholds) BucketFor(size int64) SizeBucket {
	switch {
	case size <= t.MicroFile:
		return BucketMicro
	case size <= t.SmallFile:
		return BucketSmall
	default:
		return BucketLarge
	}
}

// BucketHistory holds running averages for one size bucket. Best is a
// high-water mark.
type BucketHistory struct {
	SampleCount       uint64
	AvgThroughputBps  float64
	AvgCopyTimeNs     float64
	BestThroughputBps float64
	LastUpdated       time.Time
}

func (b *BucketHistory) record(bytes uint64, elapsed time.Duration, now time.Time) {
	ns := float64(elapsed.Nanoseconds())
	if ns <= 0 {
		ns = 1
	}
	throughput := float64(bytes) / (ns / float64(time.Second))

	n := float64(b.SampleCount)
	b.AvgThroughputBps = (b.AvgThroughputBps*n + throughput) / (n + 1)
	b.AvgCopyTimeNs = (b.AvgCopyTimeNs*n + ns) / (n + 1)
	if throughput > b.BestThroughputBps {
		b.BestThroughputBps = throughput
	}
	b.SampleCount++
	b.LastUpdated = now
}

// PerformanceHistory accumulates per-bucket measurements under a
// read-write lock. Ingest happens after a copy completes; the selector's
// hot path only reads.
type PerformanceHistory struct {
	mu    sync.RWMutex
	micro BucketHistory
	small BucketHistory
	large BucketHistory
	now   func() time.Time
}

func NewPerformanceHistory() *PerformanceHistory {
	return &PerformanceHistory{now: time.Now}
}

func (h *PerformanceHistory) Record(bucket SizeBucket, bytes uint64, elapsed time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch bucket {
	case BucketMicro:
		h.micro.record(bytes, elapsed, h.now())
	case BucketSmall:
		h.small.record(bytes, elapsed, h.now())
	default:
		h.large.record(bytes, elapsed, h.now())
	}
}

// Snapshot returns copies of all three buckets.
func (h *PerformanceHistory) Snapshot() (micro, small, large BucketHistory) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.micro, h.small, h.large
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// thresholdTuner turns bucket throughput ratios into threshold proposals.
// It remembers the sample counts it last acted on, which makes repeated
// application over unchanged history a no-op.
type thresholdTuner struct {
	minSamples           uint64
	improvementThreshold float64 // relative change below this is rejected

	lastMicroSamples uint64
	lastSmallSamples uint64
	lastLargeSamples uint64
}

func newThresholdTuner(minSamples uint64, improvementThreshold float64) *thresholdTuner {
	if minSamples == 0 {
		minSamples = 100
	}
	if improvementThreshold <= 0 {
		improvementThreshold = 0.05
	}
	return &thresholdTuner{minSamples: minSamples, improvementThreshold: improvementThreshold}
}

// propose computes new thresholds from the history snapshot. Returns the
// (possibly unchanged) thresholds and whether anything was applied.
func (t *thresholdTuner) propose(current Thresholds, micro, small, large BucketHistory) (Thresholds, bool) {
	// Both gating buckets must be warm, and something must have changed
	// since the last adjustment, or the tuner would oscillate forever on
	// stale data.
	if micro.SampleCount < t.minSamples || small.SampleCount < t.minSamples {
		return current, false
	}
	if micro.SampleCount == t.lastMicroSamples &&
		small.SampleCount == t.lastSmallSamples &&
		large.SampleCount == t.lastLargeSamples {
		return current, false
	}

	next := current
	applied := false

	if small.AvgThroughputBps > 0 {
		ratioMicroSmall := micro.AvgThroughputBps / small.AvgThroughputBps
		switch {
		case ratioMicroSmall > 1.25 && micro.SampleCount >= t.minSamples:
			// Micro copies are decisively faster: widen the micro bucket.
			proposed := next.MicroFile * 3 / 2
			ceiling := next.SmallFile / 2
			if ceiling > microThresholdCeiling {
				ceiling = microThresholdCeiling
			}
			if proposed > ceiling {
				proposed = ceiling
			}
			if t.accept(next.MicroFile, proposed) {
				candidate := next
				candidate.MicroFile = proposed
				if candidate.Valid() {
					next = candidate
					applied = true
				}
			}
		case ratioMicroSmall < 0.8 && small.SampleCount >= t.minSamples:
			proposed := next.MicroFile * 3 / 4
			if proposed < microThresholdFloor {
				proposed = microThresholdFloor
			}
			if t.accept(next.MicroFile, proposed) {
				candidate := next
				candidate.MicroFile = proposed
				if candidate.Valid() {
					next = candidate
					applied = true
				}
			}
		}
	}

	if large.AvgThroughputBps > 0 && large.SampleCount > 0 {
		ratioSmallLarge := small.AvgThroughputBps / large.AvgThroughputBps
		switch {
		case ratioSmallLarge > 1.15 && small.SampleCount >= t.minSamples:
			proposed := next.SmallFile * 5 / 4
			if proposed > smallThresholdCeiling {
				proposed = smallThresholdCeiling
			}
			if t.accept(next.SmallFile, proposed) {
				candidate := next
				candidate.SmallFile = proposed
				if candidate.Valid() {
					next = candidate
					applied = true
				}
			}
		case ratioSmallLarge < 0.85 && large.SampleCount >= t.minSamples:
			proposed := next.SmallFile * 3 / 4
			floor := 2 * next.MicroFile
			if proposed < floor {
				proposed = floor
			}
			if t.accept(next.SmallFile, proposed) {
				candidate := next
				candidate.SmallFile = proposed
				if candidate.Valid() {
					next = candidate
					applied = true
				}
			}
		}
	}

	t.lastMicroSamples = micro.SampleCount
	t.lastSmallSamples = small.SampleCount
	t.lastLargeSamples = large.SampleCount
	return next, applied
}

// accept applies the 5% gate: proposals whose relative change is below the
// improvement threshold are rejected.
func (t *thresholdTuner) accept(old, proposed int64) bool {
	if old <= 0 || proposed == old {
		return false
	}
	delta := proposed - old
	if delta < 0 {
		delta = -delta
	}
	return float64(delta)/float64(old) >= t.improvementThreshold
}
