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
	"context"
	"time"

	"github.com/loonghao/ferrocp/common"
	"github.com/loonghao/ferrocp/device"
)

// Report is one periodic snapshot of engine health: the three history
// buckets, the live thresholds and the device-cache counters. Telemetry
// reads may lag a just-finished copy by up to the monitor interval.
type Report struct {
	Timestamp            time.Time
	Micro, Small, Large  BucketHistory
	Thresholds           Thresholds
	ThresholdAdjustments uint64
	CacheStats           device.CacheStats
}

// Monitor periodically snapshots the selector and cache. It also drains
// the cache's advisory refresh queue, since it is the natural owner of
// that cadence.
type Monitor struct {
	interval time.Duration
	selector *Selector
	cache    *device.Cache
	logger   common.ILogger
	reports  chan Report
}

func NewMonitor(interval time.Duration, selector *Selector, cache *device.Cache, logger common.ILogger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &Monitor{
		interval: interval,
		selector: selector,
		cache:    cache,
		logger:   logger,
		reports:  make(chan Report, 16),
	}
}

// Reports is the subscription channel. Slow consumers lose snapshots
// rather than stalling the monitor.
func (m *Monitor) Reports() <-chan Report { return m.reports }

// Snapshot builds one report immediately.
func (m *Monitor) Snapshot() Report {
	micro, small, large := m.selector.History().Snapshot()
	r := Report{
		Timestamp:            time.Now(),
		Micro:                micro,
		Small:                small,
		Large:                large,
		Thresholds:           m.selector.Thresholds(),
		ThresholdAdjustments: m.selector.ThresholdAdjustments(),
	}
	if m.cache != nil {
		r.CacheStats = m.cache.Stats()
	}
	return r
}

// Run emits reports until the context is cancelled. Call in a goroutine.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(m.reports)
			return
		case <-ticker.C:
			if m.cache != nil {
				m.cache.DrainRefreshQueue(ctx)
				m.cache.CleanupExpired()
			}
			m.selector.AutoAdjustThresholds()

			select {
			case m.reports <- m.Snapshot():
			default:
			}
		}
	}
}
