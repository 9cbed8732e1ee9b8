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
	"io"
	"time"

	"github.com/loonghao/ferrocp/common"
)

const (
	maxPrefetchBuffers    = 4
	throughputRingSamples = 10
	adaptationCadence     = time.Second

	// The SSD convergence targets: whenever the hit ratio and measured
	// throughput are healthy, the strategy snaps back to the 512 KiB
	// optimum instead of drifting.
	ssdGoodHitRatio      = 0.70
	ssdGoodThroughputMBs = 300.0
)

// PreReadStats is a snapshot of prefetch behaviour for telemetry.
type PreReadStats struct {
	Hits                uint64
	Misses              uint64
	AdaptiveAdjustments uint64
	CurrentSize         int
}

// PreReadBuffer wraps an AdaptiveBuffer with a bounded FIFO of prefetched
// blocks and a throughput ring that drives strategy adaptation. It is owned
// by one task at a time.
type PreReadBuffer struct {
	buf      *common.AdaptiveBuffer
	strategy common.PreReadStrategy

	queue [][]byte // FIFO of prefetched blocks, ≤ maxPrefetchBuffers

	samples   []float64 // recent throughput in MB/s, ring of ≤ 10
	lastAdapt time.Time

	hits, misses        uint64
	adaptiveAdjustments uint64

	now func() time.Time
}

func NewPreReadBuffer(device common.DeviceClass) *PreReadBuffer {
	return NewPreReadBufferWithStrategy(common.DefaultPreReadStrategy(device))
}

func NewPreReadBufferWithStrategy(strategy common.PreReadStrategy) *PreReadBuffer {
	device := strategy.Device
	return &PreReadBuffer{
		buf:      common.NewAdaptiveBuffer(device),
		strategy: strategy,
		now:      time.Now,
	}
}

func (p *PreReadBuffer) Strategy() common.PreReadStrategy { return p.strategy }

// Fill prefetches blocks of the strategy size from r until the FIFO is full
// or r is exhausted. A short block at EOF is kept; a zero-length read is
// dropped.
func (p *PreReadBuffer) Fill(r io.Reader) error {
	if p.strategy.Disabled {
		return nil
	}
	for len(p.queue) < maxPrefetchBuffers {
		staging := p.buf.Slice(p.strategy.Size)
		n, err := io.ReadFull(r, staging)
		if n > 0 {
			block := make([]byte, n)
			copy(block, staging[:n])
			p.queue = append(p.queue, block)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Next dequeues the oldest prefetched block, counting a hit; an empty queue
// counts a miss.
func (p *PreReadBuffer) Next() ([]byte, bool) {
	if len(p.queue) == 0 {
		p.misses++
		return nil, false
	}
	block := p.queue[0]
	p.queue = p.queue[1:]
	p.hits++
	return block, true
}

// RecordThroughput feeds one observation (MB/s) into the ring.
func (p *PreReadBuffer) RecordThroughput(mbps float64) {
	p.samples = append(p.samples, mbps)
	if len(p.samples) > throughputRingSamples {
		p.samples = p.samples[len(p.samples)-throughputRingSamples:]
	}
}

func (p *PreReadBuffer) HitRatio() float64 {
	total := p.hits + p.misses
	if total == 0 {
		return 0
	}
	return float64(p.hits) / float64(total)
}

func (p *PreReadBuffer) avgThroughput() float64 {
	if len(p.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range p.samples {
		sum += s
	}
	return sum / float64(len(p.samples))
}

// Adapt re-evaluates the strategy size. It runs at most once per second.
//
// SSD encodes a measured optimum: good throughput with a healthy hit ratio
// snaps the size back to 512 KiB rather than letting doubling drift it
// upward without bound. Other classes halve on poor performance and double
// on good performance, clamped to the per-device range.
func (p *PreReadBuffer) Adapt() bool {
	if p.strategy.Disabled {
		return false
	}
	now := p.now()
	if now.Sub(p.lastAdapt) < adaptationCadence {
		return false
	}
	p.lastAdapt = now

	avg := p.avgThroughput()
	hitRatio := p.HitRatio()

	if p.strategy.Device == common.EDeviceClass.SSD() {
		if hitRatio > ssdGoodHitRatio && avg > ssdGoodThroughputMBs {
			if p.strategy.Size != common.SSDPreReadDefault {
				p.strategy.Size = common.SSDPreReadDefault
				p.adaptiveAdjustments++
				return true
			}
			return false
		}
		// Pathological throughput: probe a different size within bounds.
		return p.stepWithinBounds(avg, hitRatio)
	}

	return p.stepWithinBounds(avg, hitRatio)
}

func (p *PreReadBuffer) stepWithinBounds(avg, hitRatio float64) bool {
	min, max := p.strategy.Bounds()
	if min == 0 && max == 0 {
		return false
	}

	proposed := p.strategy.Size
	if hitRatio >= 0.5 && avg > 0 {
		proposed *= 2
	} else {
		proposed /= 2
	}
	if proposed < min {
		proposed = min
	}
	if proposed > max {
		proposed = max
	}
	if proposed == p.strategy.Size {
		return false
	}
	p.strategy.Size = proposed
	p.adaptiveAdjustments++
	return true
}

func (p *PreReadBuffer) Stats() PreReadStats {
	return PreReadStats{
		Hits:                p.hits,
		Misses:              p.misses,
		AdaptiveAdjustments: p.adaptiveAdjustments,
		CurrentSize:         p.strategy.Size,
	}
}
