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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsMergeCountersAddDurationMax(t *testing.T) {
	a := assert.New(t)

	left := CopyStats{FilesCopied: 2, BytesCopied: 100, Errors: 1, Duration: 3 * time.Second, ZeroCopyOperations: 1, ZeroCopyBytes: 50}
	right := CopyStats{FilesCopied: 1, BytesCopied: 900, Duration: 5 * time.Second, DirectoriesCreated: 2}

	left.Merge(right)

	a.Equal(uint64(3), left.FilesCopied)
	a.Equal(uint64(1000), left.BytesCopied)
	a.Equal(uint64(1), left.Errors)
	a.Equal(uint64(2), left.DirectoriesCreated)
	a.Equal(uint64(1), left.ZeroCopyOperations)
	a.Equal(uint64(50), left.ZeroCopyBytes)
	// Concurrent operations: duration is the max, never the sum.
	a.Equal(5*time.Second, left.Duration)
}

func TestStatsMergeKeepsLongerExistingDuration(t *testing.T) {
	a := assert.New(t)

	left := CopyStats{Duration: 8 * time.Second}
	left.Merge(CopyStats{Duration: 2 * time.Second})
	a.Equal(8*time.Second, left.Duration)
}

func TestStatsMergeWithExplicitTotal(t *testing.T) {
	a := assert.New(t)

	left := CopyStats{BytesCopied: 10, Duration: time.Second}
	left.MergeWithTotalDuration(CopyStats{BytesCopied: 20, Duration: 9 * time.Second}, 4*time.Second)

	a.Equal(uint64(30), left.BytesCopied)
	a.Equal(4*time.Second, left.Duration)
}

func TestStatsAccumulatorConcurrentMerge(t *testing.T) {
	a := assert.New(t)

	acc := &StatsAccumulator{}
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				acc.Add(CopyStats{FilesCopied: 1, BytesCopied: 10, Duration: time.Millisecond})
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	total := acc.Total(2 * time.Second)
	a.Equal(uint64(800), total.FilesCopied)
	a.Equal(uint64(8000), total.BytesCopied)
	a.Equal(2*time.Second, total.Duration)
}

func TestThroughputBps(t *testing.T) {
	a := assert.New(t)

	s := CopyStats{BytesCopied: 1000, Duration: time.Second}
	a.InDelta(1000.0, s.ThroughputBps(), 0.001)
	a.Zero(CopyStats{BytesCopied: 5}.ThroughputBps())
}
