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
	"sync/atomic"
	"time"
)

// BytesPerSecond measures a rate by atomic accumulation against a start
// time. Used by progress reporting to compute rate and ETA.
type BytesPerSecond interface {
	Add(delta uint64) uint64
	LatestRate() float64
	Reset()
}

func NewBytesPerSecond() BytesPerSecond {
	b := &bytesPerSecond{}
	b.Reset()
	return b
}

type bytesPerSecond struct {
	start int64 // Unix nanos, allowing atomic update
	count uint64
}

func (b *bytesPerSecond) Add(delta uint64) uint64 {
	return atomic.AddUint64(&b.count, delta)
}

func (b *bytesPerSecond) LatestRate() float64 {
	dur := time.Since(time.Unix(0, atomic.LoadInt64(&b.start)))
	if dur <= 0 {
		dur = time.Nanosecond
	}
	return float64(atomic.LoadUint64(&b.count)) / dur.Seconds()
}

func (b *bytesPerSecond) Reset() {
	atomic.StoreInt64(&b.start, time.Now().UnixNano())
	atomic.StoreUint64(&b.count, 0)
}
