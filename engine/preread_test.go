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
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loonghao/ferrocp/common"
)

// frozenClock returns a controllable now() and an advance function.
func frozenClock(start time.Time) (func() time.Time, func(d time.Duration)) {
	current := start
	return func() time.Time { return current }, func(d time.Duration) { current = current.Add(d) }
}

func TestPreReadFillAndDrain(t *testing.T) {
	a := assert.New(t)

	strategy := common.PreReadStrategy{Device: common.EDeviceClass.Network(), Size: 8 * common.KiB}
	p := NewPreReadBufferWithStrategy(strategy)

	source := bytes.NewReader(make([]byte, 20*common.KiB))
	a.NoError(p.Fill(source))

	first, ok := p.Next()
	a.True(ok)
	a.Len(first, 8*common.KiB)
	second, ok := p.Next()
	a.True(ok)
	a.Len(second, 8*common.KiB)
	third, ok := p.Next() // short tail block at EOF
	a.True(ok)
	a.Len(third, 4*common.KiB)

	_, ok = p.Next()
	a.False(ok)

	stats := p.Stats()
	a.Equal(uint64(3), stats.Hits)
	a.Equal(uint64(1), stats.Misses)
}

func TestPreReadQueueIsBounded(t *testing.T) {
	a := assert.New(t)

	p := NewPreReadBuffer(common.EDeviceClass.Network())
	source := bytes.NewReader(make([]byte, 10*common.MiB))
	a.NoError(p.Fill(source))
	a.LessOrEqual(len(p.queue), maxPrefetchBuffers)
}

func TestSSDConvergesBackToTunedSize(t *testing.T) {
	a := assert.New(t)

	strategy := common.AggressivePreReadStrategy(common.EDeviceClass.SSD())
	a.Equal(1*common.MiB, strategy.Size)
	p := NewPreReadBufferWithStrategy(strategy)
	now, advance := frozenClock(time.Now())
	p.now = now

	// Healthy behaviour: high hit ratio and fast throughput.
	source := bytes.NewReader(make([]byte, 8*common.MiB))
	a.NoError(p.Fill(source))
	for i := 0; i < 4; i++ {
		p.Next()
	}
	for i := 0; i < 5; i++ {
		p.RecordThroughput(450)
	}

	advance(2 * time.Second)
	a.True(p.Adapt())
	a.Equal(common.SSDPreReadDefault, p.Strategy().Size)
	a.Equal(uint64(1), p.Stats().AdaptiveAdjustments)

	// Convergence is idempotent: stable good throughput changes nothing.
	advance(2 * time.Second)
	a.False(p.Adapt())
	a.Equal(common.SSDPreReadDefault, p.Strategy().Size)
	a.Equal(uint64(1), p.Stats().AdaptiveAdjustments)
}

func TestAdaptationCadenceIsAtMostOncePerSecond(t *testing.T) {
	a := assert.New(t)

	p := NewPreReadBuffer(common.EDeviceClass.HDD())
	now, advance := frozenClock(time.Now())
	p.now = now

	// Poor performance: a change is warranted, but only after the cadence
	// window opens.
	advance(2 * time.Second)
	a.True(p.Adapt())
	sizeAfterFirst := p.Strategy().Size

	advance(200 * time.Millisecond)
	a.False(p.Adapt())
	a.Equal(sizeAfterFirst, p.Strategy().Size)
}

func TestNonSSDHalvesOnPoorPerformance(t *testing.T) {
	a := assert.New(t)

	p := NewPreReadBuffer(common.EDeviceClass.HDD())
	now, advance := frozenClock(time.Now())
	p.now = now

	start := p.Strategy().Size
	advance(2 * time.Second)
	a.True(p.Adapt()) // all misses so far: halve
	a.Equal(start/2, p.Strategy().Size)

	// Never below the device minimum.
	for i := 0; i < 10; i++ {
		advance(2 * time.Second)
		p.Adapt()
	}
	a.GreaterOrEqual(p.Strategy().Size, common.HDDPreReadMin)
}

func TestNonSSDDoublesWithinMaxOnGoodPerformance(t *testing.T) {
	a := assert.New(t)

	p := NewPreReadBuffer(common.EDeviceClass.HDD())
	now, advance := frozenClock(time.Now())
	p.now = now

	for i := 0; i < 16; i++ {
		source := bytes.NewReader(make([]byte, common.MiB))
		a.NoError(p.Fill(source))
		for {
			if _, ok := p.Next(); !ok {
				break
			}
		}
		p.hits++ // cancel the trailing miss so the ratio stays high
		p.misses--
		p.RecordThroughput(200)
		advance(2 * time.Second)
		p.Adapt()
	}
	a.LessOrEqual(p.Strategy().Size, common.HDDPreReadMax)
	a.Greater(p.Strategy().Size, common.HDDPreReadDefault)
}
