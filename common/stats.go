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

package common

import (
	"sync"
	"time"
)

// CopyStats is the result of one copy operation, or the aggregate of many.
// FilesSkipped is reserved for a future skip-if-newer policy; no copy path
// sets it today.
type CopyStats struct {
	FilesCopied        uint64
	DirectoriesCreated uint64
	BytesCopied        uint64
	FilesSkipped       uint64
	Errors             uint64
	Duration           time.Duration
	ZeroCopyOperations uint64
	ZeroCopyBytes      uint64
}

// Merge folds other into s. Counters add. Duration takes the maximum of the
// two, because merged operations are assumed to have run concurrently; a
// sum would overstate wall-clock time.
func (s *CopyStats) Merge(other CopyStats) {
	s.mergeCounters(other)
	if other.Duration > s.Duration {
		s.Duration = other.Duration
	}
}

// MergeWithTotalDuration folds other into s and overrides the duration with
// an explicitly measured total. Tree copies get the same override through
// StatsAccumulator.Total, which applies the walk's wall-clock time.
func (s *CopyStats) MergeWithTotalDuration(other CopyStats, total time.Duration) {
	s.mergeCounters(other)
	s.Duration = total
}

func (s *CopyStats) mergeCounters(other CopyStats) {
	s.FilesCopied += other.FilesCopied
	s.DirectoriesCreated += other.DirectoriesCreated
	s.BytesCopied += other.BytesCopied
	s.FilesSkipped += other.FilesSkipped
	s.Errors += other.Errors
	s.ZeroCopyOperations += other.ZeroCopyOperations
	s.ZeroCopyBytes += other.ZeroCopyBytes
}

// ThroughputBps reports the average rate of this operation in bytes/second.
func (s CopyStats) ThroughputBps() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.BytesCopied) / s.Duration.Seconds()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// StatsAccumulator merges per-operation CopyStats from many goroutines.
type StatsAccumulator struct {
	mu    sync.Mutex
	total CopyStats
}

func (a *StatsAccumulator) Add(stats CopyStats) {
	a.mu.Lock()
	a.total.Merge(stats)
	a.mu.Unlock()
}

func (a *StatsAccumulator) AddError() {
	a.mu.Lock()
	a.total.Errors++
	a.mu.Unlock()
}

func (a *StatsAccumulator) AddDirectory() {
	a.mu.Lock()
	a.total.DirectoriesCreated++
	a.mu.Unlock()
}

// Total returns the aggregate, with the duration replaced by the supplied
// wall-clock total when it is non-zero.
func (a *StatsAccumulator) Total(wallClock time.Duration) CopyStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.total
	if wallClock > 0 {
		out.Duration = wallClock
	}
	return out
}
