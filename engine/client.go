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
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/loonghao/ferrocp/common"
	"github.com/loonghao/ferrocp/device"
	"github.com/loonghao/ferrocp/traverser"
)

// Client is the high-level copy surface. It owns the selector, the device
// cache and the four engines; the engines are shared singletons, safe for
// concurrent use because their per-copy state lives on the stack.
type Client struct {
	selector *Selector
	micro    *MicroEngine
	buffered *BufferedEngine
	parallel *ParallelEngine
	zero     *ZeroCopyEngine

	cache  *device.Cache
	logger common.ILogger
	sink   common.ProgressSink

	symlinkPolicy common.SymlinkPolicy
	parallelism   int

	jobID common.JobID
}

type ClientOption func(*clientConfig)

type clientConfig struct {
	oracle        device.Oracle
	logger        common.ILogger
	sink          common.ProgressSink
	selectorCfg   SelectorConfig
	symlinkPolicy common.SymlinkPolicy
	parallelism   int
	processor     ChunkProcessor
}

func WithOracle(oracle device.Oracle) ClientOption {
	return func(c *clientConfig) { c.oracle = oracle }
}

func WithLogger(logger common.ILogger) ClientOption {
	return func(c *clientConfig) { c.logger = logger }
}

func WithProgressSink(sink common.ProgressSink) ClientOption {
	return func(c *clientConfig) { c.sink = sink }
}

func WithSelectorConfig(cfg SelectorConfig) ClientOption {
	return func(c *clientConfig) { c.selectorCfg = cfg }
}

func WithSymlinkPolicy(policy common.SymlinkPolicy) ClientOption {
	return func(c *clientConfig) { c.symlinkPolicy = policy }
}

func WithParallelism(n int) ClientOption {
	return func(c *clientConfig) { c.parallelism = n }
}

func WithChunkProcessor(p ChunkProcessor) ClientOption {
	return func(c *clientConfig) { c.processor = p }
}

func NewClient(opts ...ClientOption) *Client {
	cfg := &clientConfig{
		logger:        common.NewNopLogger(),
		sink:          common.NopProgressSink(),
		selectorCfg:   DefaultSelectorConfig(),
		symlinkPolicy: common.ESymlinkPolicy.Preserve(),
		parallelism:   runtime.NumCPU(),
		processor:     PassthroughProcessor(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.oracle == nil {
		cfg.oracle = device.NewSystemOracle(cfg.logger)
	}
	if cfg.parallelism < 1 {
		cfg.parallelism = 1
	}

	cache := device.NewCache(cfg.oracle, cfg.logger)
	selector := NewSelector(cache, cfg.logger, cfg.selectorCfg)
	thresholds := selector.Thresholds()

	return &Client{
		selector:      selector,
		micro:         NewMicroEngine(thresholds.MicroFile, cfg.logger),
		buffered:      NewBufferedEngine(cfg.logger, cfg.sink),
		parallel:      NewParallelEngine(cfg.logger, WithProcessor(cfg.processor)),
		zero:          NewZeroCopyEngine(thresholds.ZeroCopy, cfg.logger),
		cache:         cache,
		logger:        cfg.logger,
		sink:          cfg.sink,
		symlinkPolicy: cfg.symlinkPolicy,
		parallelism:   cfg.parallelism,
		jobID:         common.NewJobID(),
	}
}

func (c *Client) Selector() *Selector  { return c.selector }
func (c *Client) Cache() *device.Cache { return c.cache }
func (c *Client) JobID() common.JobID  { return c.jobID }

// Copy copies one file, routing through the selected engine. The returned
// stats always reflect what actually happened; the selection latency and
// throughput feed back into the selector's history.
func (c *Client) Copy(ctx context.Context, src, dst string, override *common.CopyOptions) (common.CopyStats, error) {
	selection, err := c.selector.SelectOptimalEngine(ctx, src, dst)
	if err != nil {
		return common.CopyStats{}, err
	}
	opts := selection.CopyOptions
	if override != nil {
		opts = mergeOptions(opts, *override)
	}

	start := time.Now()
	stats, err := c.dispatch(ctx, selection, src, dst, opts)
	if err != nil {
		return stats, err
	}

	if opts.VerifyCopy {
		if verr := verifyEqual(src, dst); verr != nil {
			stats.Errors++
			return stats, verr
		}
	}

	srcSize := int64(stats.BytesCopied)
	c.selector.RecordCopy(srcSize, stats.BytesCopied, time.Since(start))
	c.sink.OnCompletion(stats)
	return stats, nil
}

func (c *Client) dispatch(ctx context.Context, selection EngineSelection,
	src, dst string, opts common.CopyOptions) (common.CopyStats, error) {

	srcClass := common.EDeviceClass.Unknown()
	dstClass := common.EDeviceClass.Unknown()
	if c.cache != nil {
		srcClass = c.cache.GetOrResolve(ctx, src)
		dstClass = c.cache.GetOrResolve(ctx, dst)
	}

	switch selection.EngineType {
	case common.EEngineType.MicroFile():
		micro := c.micro
		// Threshold tuning can move the selector's micro cutoff after
		// construction; the engine's size check follows it.
		if t := c.selector.Thresholds().MicroFile; t != micro.Threshold() {
			micro = NewMicroEngine(t, c.logger)
		}
		return micro.CopyFile(ctx, src, dst, opts)

	case common.EEngineType.Parallel():
		return c.parallel.CopyFile(ctx, src, dst, srcClass, dstClass, opts)

	case common.EEngineType.ZeroCopy():
		if opts.EnableZeroCopy {
			stats, done, err := c.tryZeroCopy(ctx, src, dst, opts)
			if done {
				return stats, err
			}
		}
		// Offload declined or disabled: one buffered recovery with the
		// same options minus zero-copy.
		opts.EnableZeroCopy = false
		return c.buffered.CopyFile(ctx, src, dst, srcClass, dstClass, opts)

	default:
		return c.buffered.CopyFile(ctx, src, dst, srcClass, dstClass, opts)
	}
}

// tryZeroCopy runs the offload attempt. done=false means the caller should
// fall back to the buffered engine; that covers both a clean
// ZeroCopyUsed=false result and a recoverable zero-copy error.
func (c *Client) tryZeroCopy(ctx context.Context, src, dst string, opts common.CopyOptions) (common.CopyStats, bool, error) {
	info, err := os.Stat(src)
	if err != nil {
		return common.CopyStats{}, true, err
	}

	start := time.Now()
	result, err := c.zero.TryCopy(ctx, src, dst, info.Size())
	if err != nil {
		if common.IsZeroCopyRecoverable(err) {
			return common.CopyStats{}, false, nil
		}
		return common.CopyStats{}, true, err
	}
	if !result.ZeroCopyUsed {
		return common.CopyStats{}, false, nil
	}

	if opts.PreserveMetadata {
		preserveMetadata(dst, info, c.logger)
	}
	stats := common.CopyStats{
		FilesCopied:        1,
		BytesCopied:        result.BytesCopied,
		ZeroCopyOperations: 1,
		ZeroCopyBytes:      result.BytesCopied,
		Duration:           time.Since(start),
	}
	return stats, true, nil
}

// CopyTree enumerates src, recreates the directory structure under dst and
// submits every file through the per-file path, fanning out across the
// client's parallelism bound. Per-file failures increment Errors and the
// walk continues; the first error is retained and returned alongside the
// aggregate stats.
func (c *Client) CopyTree(ctx context.Context, src, dst string, override *common.CopyOptions) (common.CopyStats, error) {
	start := time.Now()
	acc := &common.StatsAccumulator{}

	var firstErr error
	var firstErrMu sync.Mutex
	keepFirst := func(err error) {
		firstErrMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		firstErrMu.Unlock()
	}

	walker := traverser.NewLocalTraverser(src, c.symlinkPolicy, c.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	walkErr := walker.Traverse(gctx, func(entry traverser.Entry) error {
		target := filepath.Join(dst, entry.RelPath)

		switch {
		case entry.IsDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				acc.AddError()
				keepFirst(err)
				return nil
			}
			acc.AddDirectory()

		case entry.IsSymlink && c.symlinkPolicy == common.ESymlinkPolicy.Preserve():
			linkTarget, err := os.Readlink(entry.Path)
			if err != nil {
				acc.AddError()
				keepFirst(err)
				return nil
			}
			_ = os.Remove(target)
			if err := os.Symlink(linkTarget, target); err != nil {
				acc.AddError()
				keepFirst(err)
			}

		default:
			path := entry.Path
			g.Go(func() error {
				stats, err := c.Copy(gctx, path, target, override)
				acc.Add(stats)
				if err != nil {
					if common.IsBenignTermination(err) {
						return err // cancellation stops the walk
					}
					acc.AddError()
					keepFirst(err)
				}
				return nil
			})
		}
		return nil
	})

	gErr := g.Wait()

	stats := acc.Total(time.Since(start))
	switch {
	case walkErr != nil && firstErr == nil:
		return stats, walkErr
	case gErr != nil && firstErr == nil:
		return stats, gErr
	default:
		return stats, firstErr
	}
}

func mergeOptions(base, override common.CopyOptions) common.CopyOptions {
	merged := override
	if merged.BufferSize == 0 {
		merged.BufferSize = base.BufferSize
	}
	if merged.ProgressInterval == 0 {
		merged.ProgressInterval = base.ProgressInterval
	}
	if merged.PreReadStrategy == nil {
		merged.PreReadStrategy = base.PreReadStrategy
	}
	return merged
}

// verifyEqual compares source and destination byte-for-byte. Advisory: the
// selector never enables it, callers opt in.
func verifyEqual(src, dst string) error {
	srcData, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrap(err, "verify: reading source")
	}
	dstData, err := os.ReadFile(dst)
	if err != nil {
		return errors.Wrap(err, "verify: reading destination")
	}
	if !bytes.Equal(srcData, dstData) {
		return errors.Errorf("verify: %s and %s differ", src, dst)
	}
	return nil
}
