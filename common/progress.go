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

import "time"

// ProgressEvent is a structured snapshot emitted at most once per
// ProgressInterval while a copy is in flight.
type ProgressEvent struct {
	File           string
	CurrentBytes   uint64
	TotalBytes     uint64
	FilesProcessed uint64
	TotalFiles     uint64
	RateBps        float64
	ETA            time.Duration // zero when the rate is still unknown
}

// ProgressSink receives progress and completion events. Implementations
// must be cheap; they are called from the copy hot path.
type ProgressSink interface {
	OnProgress(event ProgressEvent)
	OnCompletion(stats CopyStats)
}

type nopProgressSink struct{}

func (nopProgressSink) OnProgress(ProgressEvent) {}
func (nopProgressSink) OnCompletion(CopyStats)  {}

func NopProgressSink() ProgressSink { return nopProgressSink{} }

// EstimateETA derives the remaining time from the observed rate.
func EstimateETA(currentBytes, totalBytes uint64, rateBps float64) time.Duration {
	if rateBps <= 0 || totalBytes <= currentBytes {
		return 0
	}
	remaining := float64(totalBytes-currentBytes) / rateBps
	return time.Duration(remaining * float64(time.Second))
}
