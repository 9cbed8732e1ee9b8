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

// Package engine holds the four copy implementations, the selector that
// dispatches between them, and the adaptive feedback loop that retunes the
// selector's thresholds from its own measurements.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loonghao/ferrocp/common"
	"github.com/loonghao/ferrocp/device"
)

// EngineSelection is the selector's verdict for one file. Reasoning is a
// debug artifact only; nothing may branch on it.
type EngineSelection struct {
	EngineType      common.EngineType
	UseSyncMode     bool
	ZeroCopyEnabled bool
	CopyOptions     common.CopyOptions
	Reasoning       string
}

// SelectorConfig switches the selector's optional behaviours.
type SelectorConfig struct {
	Enabled                         bool
	DeviceOptimization              bool
	EnableDynamicThresholds         bool
	PerformanceMonitoring           bool
	MinSamplesForAdjustment         uint64
	PerformanceImprovementThreshold float64
}

func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Enabled:                         true,
		DeviceOptimization:              true,
		EnableDynamicThresholds:         true,
		PerformanceMonitoring:           true,
		MinSamplesForAdjustment:         100,
		PerformanceImprovementThreshold: 0.05,
	}
}

// Selector classifies work by size and device pair and picks the engine.
// Thresholds sit behind a mutex off the critical path; the performance
// history uses its own read-write lock.
type Selector struct {
	cfg SelectorConfig

	mu         sync.Mutex
	thresholds Thresholds
	tuner      *thresholdTuner

	history *PerformanceHistory
	cache   *device.Cache
	logger  common.ILogger

	thresholdAdjustments uint64
	selections           uint64
	selectionLatencyNs   int64
}

func NewSelector(cache *device.Cache, logger common.ILogger, cfg SelectorConfig) *Selector {
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &Selector{
		cfg:        cfg,
		thresholds: DefaultThresholds(),
		tuner:      newThresholdTuner(cfg.MinSamplesForAdjustment, cfg.PerformanceImprovementThreshold),
		history:    NewPerformanceHistory(),
		cache:      cache,
		logger:     logger,
	}
}

func (s *Selector) Thresholds() Thresholds {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.thresholds
}

// SetThresholds replaces the thresholds; invalid orderings are rejected.
func (s *Selector) SetThresholds(t Thresholds) error {
	if !t.Valid() {
		return fmt.Errorf("threshold ordering violated: micro=%d small=%d zerocopy=%d parallel=%d",
			t.MicroFile, t.SmallFile, t.ZeroCopy, t.Parallel)
	}
	s.mu.Lock()
	s.thresholds = t
	s.mu.Unlock()
	return nil
}

func (s *Selector) History() *PerformanceHistory { return s.history }

func (s *Selector) ThresholdAdjustments() uint64 {
	return atomic.LoadUint64(&s.thresholdAdjustments)
}

// SelectOptimalEngine classifies src/dst and returns the engine, the mode
// and the populated options for this copy.
func (s *Selector) SelectOptimalEngine(ctx context.Context, src, dst string) (EngineSelection, error) {
	started := time.Now()

	if !s.cfg.Enabled {
		return EngineSelection{
			EngineType:  common.EEngineType.Buffered(),
			CopyOptions: common.DefaultCopyOptions(),
			Reasoning:   "Intelligent selection disabled",
		}, nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return EngineSelection{}, err
	}
	size := info.Size()

	srcClass := common.EDeviceClass.Unknown()
	dstClass := common.EDeviceClass.Unknown()
	if s.cfg.DeviceOptimization && s.cache != nil {
		srcClass = s.cache.GetOrResolve(ctx, src)
		dstClass = s.cache.GetOrResolve(ctx, dst)
	}

	thresholds := s.Thresholds()
	selection := s.dispatch(size, thresholds, srcClass, dstClass)

	if s.cfg.PerformanceMonitoring {
		atomic.AddUint64(&s.selections, 1)
		atomic.AddInt64(&s.selectionLatencyNs, time.Since(started).Nanoseconds())
	}
	if s.logger.ShouldLog(common.ELogLevel.Debug()) {
		s.logger.Log(common.ELogLevel.Debug(), fmt.Sprintf("selected %s for %s (%d bytes): %s",
			selection.EngineType, src, size, selection.Reasoning))
	}
	return selection, nil
}

func (s *Selector) dispatch(size int64, t Thresholds, srcClass, dstClass common.DeviceClass) EngineSelection {
	opts := common.DefaultCopyOptions()

	switch {
	case size <= t.MicroFile:
		opts.EnableZeroCopy = false
		opts.EnableProgress = false
		return EngineSelection{
			EngineType:  common.EEngineType.MicroFile(),
			UseSyncMode: true,
			CopyOptions: opts,
			Reasoning:   fmt.Sprintf("Micro file (%d bytes ≤ %d): minimal-syscall path", size, t.MicroFile),
		}

	case size <= t.SmallFile:
		opts.EnableZeroCopy = false
		opts.EnableProgress = false
		opts.BufferSize = smallFileBufferSize(srcClass, dstClass)
		return EngineSelection{
			EngineType:  common.EEngineType.Buffered(),
			UseSyncMode: true,
			CopyOptions: opts,
			Reasoning:   fmt.Sprintf("Small file (%d bytes): buffered sync copy, %d byte buffer", size, opts.BufferSize),
		}

	case size >= t.Parallel:
		opts.EnableZeroCopy = false
		opts.BufferSize = parallelChunkOption(srcClass, dstClass)
		return EngineSelection{
			EngineType:  common.EEngineType.Parallel(),
			CopyOptions: opts,
			Reasoning:   fmt.Sprintf("Large file (%d bytes ≥ %d): chunked parallel pipeline", size, t.Parallel),
		}

	case size >= t.ZeroCopy && ShouldAttempt(srcClass, dstClass):
		opts.BufferSize = zeroCopyBufferSize(srcClass, dstClass)
		return EngineSelection{
			EngineType:      common.EEngineType.ZeroCopy(),
			ZeroCopyEnabled: true,
			CopyOptions:     opts,
			Reasoning:       fmt.Sprintf("Mid file (%d bytes) on %s→%s: platform offload preferred", size, srcClass, dstClass),
		}

	default:
		opts.BufferSize = largeFileBufferSize(srcClass, dstClass)
		opts.EnablePreRead = true
		return EngineSelection{
			EngineType:  common.EEngineType.Buffered(),
			CopyOptions: opts,
			Reasoning:   fmt.Sprintf("Mid file (%d bytes) on %s→%s: buffered async copy with pre-read", size, srcClass, dstClass),
		}
	}
}

// RecordCopy ingests one completed copy into the bucketed history. Runs
// off the selection hot path.
func (s *Selector) RecordCopy(size int64, bytesCopied uint64, elapsed time.Duration) {
	if !s.cfg.PerformanceMonitoring {
		return
	}
	bucket := s.Thresholds().BucketFor(size)
	s.history.Record(bucket, bytesCopied, elapsed)
}

// AutoAdjustThresholds re-derives the size thresholds from the bucketed
// history. Returns whether anything changed; calling again over unchanged
// history is a no-op.
func (s *Selector) AutoAdjustThresholds() bool {
	if !s.cfg.EnableDynamicThresholds {
		return false
	}
	micro, small, large := s.history.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	next, applied := s.tuner.propose(s.thresholds, micro, small, large)
	if !applied {
		return false
	}
	if !next.Valid() {
		return false
	}
	s.thresholds = next
	atomic.AddUint64(&s.thresholdAdjustments, 1)
	if s.logger.ShouldLog(common.ELogLevel.Info()) {
		s.logger.Log(common.ELogLevel.Info(), fmt.Sprintf(
			"thresholds adjusted: micro=%d small=%d", next.MicroFile, next.SmallFile))
	}
	return true
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////
// Device-pair buffer tables.

func smallFileBufferSize(a, b common.DeviceClass) int {
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	switch {
	case a == ssd && b == ssd:
		return 16 * common.KiB
	case a == ram || b == ram:
		return 32 * common.KiB
	default:
		return 8 * common.KiB
	}
}

func largeFileBufferSize(a, b common.DeviceClass) int {
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	hdd := common.EDeviceClass.HDD()
	network := common.EDeviceClass.Network()
	switch {
	case a == ssd && b == ssd:
		return 1 * common.MiB
	case a == ram && b == ram:
		return 4 * common.MiB
	case a == hdd || b == hdd:
		return 256 * common.KiB
	case a == network || b == network:
		return 128 * common.KiB
	default:
		return 512 * common.KiB
	}
}

func zeroCopyBufferSize(a, b common.DeviceClass) int {
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	switch {
	case a == ssd && b == ssd:
		return 2 * common.MiB
	case a == ram && b == ram:
		return 8 * common.MiB
	default:
		return 1 * common.MiB
	}
}

func parallelChunkOption(a, b common.DeviceClass) int {
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	hdd := common.EDeviceClass.HDD()
	network := common.EDeviceClass.Network()
	switch {
	case a == ssd && b == ssd:
		return 1 * common.MiB
	case a == ram && b == ram:
		return 2 * common.MiB
	case a == hdd || b == hdd:
		return 512 * common.KiB
	case a == network || b == network:
		return 256 * common.KiB
	default:
		return 1 * common.MiB
	}
}
