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
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/loonghao/ferrocp/common"
)

const (
	DefaultParallelThreshold = 50 * common.MiB

	defaultPipelineDepth       = 8
	defaultMaxConcurrent       = 4
	defaultMaxMemoryUsage      = 64 * common.MiB
	defaultMinParallelFileSize = 10 * common.MiB
	defaultReadAheadMultiplier = 2

	minChunkSize = 64 * common.KiB
	maxChunkSize = 8 * common.MiB
)

// DataChunk is one slice of the source file traveling through the
// pipeline. Sequence is monotonic per source, starting at 0; each chunk is
// owned by exactly one stage at a time and is destroyed after the writer
// commits it.
type DataChunk struct {
	Sequence uint64
	Data     []byte
	Size     int
	IsLast   bool
}

// ChunkProcessor is the middle pipeline stage. The core uses a
// pass-through; a compression or encryption stage plugs in with the same
// contract: sequence preserved, IsLast forwarded. The engine closes out
// after Process returns; implementations must not close it.
type ChunkProcessor interface {
	Process(ctx context.Context, in <-chan DataChunk, out chan<- DataChunk) error
}

type passthroughProcessor struct{}

func (passthroughProcessor) Process(ctx context.Context, in <-chan DataChunk, out chan<- DataChunk) error {
	for chunk := range in {
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// PassthroughProcessor returns the identity middle stage.
func PassthroughProcessor() ChunkProcessor { return passthroughProcessor{} }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// memoryBudget bounds the bytes buffered across the pipeline. Adding past
// the limit immediately backs the addition out; waiters poll with a short
// sleep so the reader stalls instead of ballooning RAM.
type memoryBudget struct {
	value int64
	limit int64
}

func (m *memoryBudget) tryAdd(n int64) bool {
	if atomic.AddInt64(&m.value, n) <= m.limit {
		return true
	}
	atomic.AddInt64(&m.value, -n)
	return false
}

func (m *memoryBudget) waitUntilAdd(ctx context.Context, n int64) error {
	for {
		if m.tryAdd(n) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (m *memoryBudget) remove(n int64) {
	atomic.AddInt64(&m.value, -n)
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// ParallelEngine copies very large files through a reader → processor →
// writer pipeline over bounded channels. The writer restores strict
// sequence order; the memory budget and the reader semaphore provide
// backpressure.
type ParallelEngine struct {
	pipelineDepth       int
	maxConcurrent       int64
	maxMemoryUsage      int64
	minFileSize         int64
	readAheadMultiplier int

	processor ChunkProcessor
	logger    common.ILogger
}

type ParallelOption func(*ParallelEngine)

func WithPipelineDepth(depth int) ParallelOption {
	return func(e *ParallelEngine) { e.pipelineDepth = depth }
}

func WithMaxConcurrent(n int64) ParallelOption {
	return func(e *ParallelEngine) { e.maxConcurrent = n }
}

func WithMaxMemoryUsage(bytes int64) ParallelOption {
	return func(e *ParallelEngine) { e.maxMemoryUsage = bytes }
}

func WithMinFileSize(bytes int64) ParallelOption {
	return func(e *ParallelEngine) { e.minFileSize = bytes }
}

func WithProcessor(p ChunkProcessor) ParallelOption {
	return func(e *ParallelEngine) { e.processor = p }
}

func NewParallelEngine(logger common.ILogger, opts ...ParallelOption) *ParallelEngine {
	if logger == nil {
		logger = common.NewNopLogger()
	}
	e := &ParallelEngine{
		pipelineDepth:       defaultPipelineDepth,
		maxConcurrent:       defaultMaxConcurrent,
		maxMemoryUsage:      defaultMaxMemoryUsage,
		minFileSize:         defaultMinParallelFileSize,
		readAheadMultiplier: defaultReadAheadMultiplier,
		processor:           passthroughProcessor{},
		logger:              logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ChunkSizeFor picks the chunk size from the device pair, then scales for
// very large files and clamps to [64 KiB, 8 MiB].
func ChunkSizeFor(srcClass, dstClass common.DeviceClass, fileSize int64) int {
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	hdd := common.EDeviceClass.HDD()
	network := common.EDeviceClass.Network()

	var size int
	switch {
	case srcClass == ram && dstClass == ram:
		size = 4 * common.MiB
	case srcClass == ssd && dstClass == ssd:
		size = 2 * common.MiB
	case srcClass == hdd || dstClass == hdd:
		size = 512 * common.KiB
	case srcClass == network || dstClass == network:
		size = 256 * common.KiB
	default:
		size = 1 * common.MiB
	}

	if fileSize > 1*common.GiB {
		size *= 2
	} else if fileSize > 100*common.MiB {
		size = size * 3 / 2
	}

	if size < minChunkSize {
		size = minChunkSize
	}
	if size > maxChunkSize {
		size = maxChunkSize
	}
	return size
}

// CopyFile runs the pipeline. Files below the engine's own minimum size
// delegate to a plain sequential copy. The returned stats reflect bytes
// committed by the writer, not bytes read.
func (e *ParallelEngine) CopyFile(ctx context.Context, src, dst string,
	srcClass, dstClass common.DeviceClass, opts common.CopyOptions) (common.CopyStats, error) {

	start := time.Now()
	stats := common.CopyStats{}

	srcFile, err := os.Open(src)
	if err != nil {
		return stats, err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return stats, err
	}

	if srcInfo.Size() < e.minFileSize {
		return e.sequentialFallback(ctx, srcFile, srcInfo, dst, opts, start)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return stats, errors.Wrap(err, "creating destination directory")
	}
	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return stats, err
	}
	defer dstFile.Close()

	chunkSize := ChunkSizeFor(srcClass, dstClass, srcInfo.Size())
	budget := &memoryBudget{limit: e.maxMemoryUsage}
	permits := semaphore.NewWeighted(e.maxConcurrent)

	readerOut := make(chan DataChunk, e.pipelineDepth)
	processorOut := make(chan DataChunk, e.pipelineDepth)

	var written uint64

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(readerOut)
		return e.readStage(gctx, srcFile, chunkSize, budget, permits, readerOut)
	})

	g.Go(func() error {
		defer close(processorOut)
		return e.processor.Process(gctx, readerOut, processorOut)
	})

	g.Go(func() error {
		n, err := e.writeStage(gctx, dstFile, processorOut, budget, permits)
		atomic.StoreUint64(&written, n)
		return err
	})

	if err := g.Wait(); err != nil {
		stats.BytesCopied = atomic.LoadUint64(&written)
		stats.Duration = time.Since(start)
		return stats, err
	}

	if err := dstFile.Sync(); err != nil {
		return stats, err
	}
	if opts.PreserveMetadata {
		preserveMetadata(dst, srcInfo, e.logger)
	}

	stats.FilesCopied = 1
	stats.BytesCopied = atomic.LoadUint64(&written)
	stats.Duration = time.Since(start)
	return stats, nil
}

// readStage reads sequentially, tagging chunks with a monotone sequence and
// marking IsLast on exhaustion. When the memory budget has headroom it
// reads readAheadMultiplier chunks in one syscall and splits the slab.
func (e *ParallelEngine) readStage(ctx context.Context, srcFile *os.File, chunkSize int,
	budget *memoryBudget, permits *semaphore.Weighted, out chan<- DataChunk) error {

	sequence := uint64(0)
	eof := false

	for !eof {
		readSize := chunkSize
		if e.readAheadMultiplier > 1 && budget.tryAdd(int64(chunkSize*(e.readAheadMultiplier-1))) {
			// Headroom for the extra chunks is only probed here and
			// released again; waitUntilAdd below claims the whole slab.
			readSize = chunkSize * e.readAheadMultiplier
			budget.remove(int64(chunkSize * (e.readAheadMultiplier - 1)))
		}

		if err := budget.waitUntilAdd(ctx, int64(readSize)); err != nil {
			return err
		}

		slab := make([]byte, readSize)
		n, err := io.ReadFull(srcFile, slab)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			eof = true
		} else if err != nil {
			budget.remove(int64(readSize))
			return err
		}
		if n < readSize {
			budget.remove(int64(readSize - n))
		}
		if n == 0 && !eof {
			continue
		}

		slab = slab[:n]
		for len(slab) > 0 || (eof && n == 0 && sequence == 0) {
			take := chunkSize
			if take > len(slab) {
				take = len(slab)
			}
			chunk := DataChunk{
				Sequence: sequence,
				Data:     slab[:take],
				Size:     take,
				IsLast:   eof && take == len(slab),
			}
			slab = slab[take:]
			sequence++

			if err := permits.Acquire(ctx, 1); err != nil {
				budget.remove(int64(len(chunk.Data)) + int64(len(slab)))
				return err
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				permits.Release(1)
				budget.remove(int64(len(chunk.Data)) + int64(len(slab)))
				return ctx.Err()
			}

			if chunk.IsLast {
				return nil
			}
			if eof && len(slab) == 0 {
				return nil
			}
		}
	}
	return nil
}

// writeStage commits chunks in strict sequence order, buffering
// out-of-order arrivals in a map keyed by sequence and draining the
// contiguous suffix whenever the next expected chunk shows up.
func (e *ParallelEngine) writeStage(ctx context.Context, dstFile *os.File,
	in <-chan DataChunk, budget *memoryBudget, permits *semaphore.Weighted) (uint64, error) {

	nextSequence := uint64(0)
	pending := make(map[uint64]DataChunk)
	var written uint64
	sawLast := false

	commit := func(chunk DataChunk) error {
		_, err := dstFile.Write(chunk.Data)
		budget.remove(int64(len(chunk.Data)))
		permits.Release(1)
		if err != nil {
			return err
		}
		written += uint64(len(chunk.Data))
		if chunk.IsLast {
			sawLast = true
		}
		nextSequence++
		return nil
	}

	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				if len(pending) != 0 {
					return written, errors.Errorf("pipeline closed with %d chunks stranded before sequence %d", len(pending), nextSequence)
				}
				if !sawLast && nextSequence > 0 {
					// Reader finished exactly on a chunk boundary without a
					// short read; the channel close is the end marker.
					return written, nil
				}
				return written, nil
			}
			pending[chunk.Sequence] = chunk
			for {
				next, ok := pending[nextSequence]
				if !ok {
					break
				}
				delete(pending, nextSequence)
				if err := commit(next); err != nil {
					return written, err
				}
			}
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
}

// sequentialFallback is the plain OS-level copy used when the file is too
// small for the pipeline to pay for itself.
func (e *ParallelEngine) sequentialFallback(ctx context.Context, srcFile *os.File,
	srcInfo os.FileInfo, dst string, opts common.CopyOptions, start time.Time) (common.CopyStats, error) {

	stats := common.CopyStats{}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return stats, errors.Wrap(err, "creating destination directory")
	}
	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return stats, err
	}
	defer dstFile.Close()

	written, err := io.Copy(dstFile, srcFile)
	if err != nil {
		return stats, err
	}
	if err := dstFile.Sync(); err != nil {
		return stats, err
	}
	if opts.PreserveMetadata {
		preserveMetadata(dst, srcInfo, e.logger)
	}

	stats.FilesCopied = 1
	stats.BytesCopied = uint64(written)
	stats.Duration = time.Since(start)
	return stats, nil
}
