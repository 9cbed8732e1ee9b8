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
	"time"

	"github.com/pkg/errors"

	"github.com/loonghao/ferrocp/common"
)

// BufferedEngine is the general-purpose streamed copy: read a chunk into an
// AdaptiveBuffer (preferring a prefetched block when pre-read is on), write
// it, repeat. Transient read/write failures are retried with the same
// buffer up to MaxRetries; partial destinations are left in place for the
// caller to clean up.
type BufferedEngine struct {
	logger common.ILogger
	sink   common.ProgressSink
}

func NewBufferedEngine(logger common.ILogger, sink common.ProgressSink) *BufferedEngine {
	if logger == nil {
		logger = common.NewNopLogger()
	}
	if sink == nil {
		sink = common.NopProgressSink()
	}
	return &BufferedEngine{logger: logger, sink: sink}
}

// CopyFile streams src to dst. srcClass/dstClass size the buffer when the
// options carry no explicit override.
func (e *BufferedEngine) CopyFile(ctx context.Context, src, dst string,
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

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return stats, errors.Wrap(err, "creating destination directory")
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return stats, err
	}
	defer dstFile.Close()

	bufferSize := opts.EffectiveBufferSize(largeFileBufferSize(srcClass, dstClass))
	buffer := common.GetPooledBuffer(dstClass)
	defer common.PutPooledBuffer(buffer)

	var preread *PreReadBuffer
	if opts.EnablePreRead {
		if opts.PreReadStrategy != nil {
			preread = NewPreReadBufferWithStrategy(opts.PreReadStrategy.Clamp())
		} else {
			preread = NewPreReadBuffer(srcClass)
		}
		if err := preread.Fill(srcFile); err != nil && err != io.EOF {
			return stats, err
		}
	}

	written, err := e.copyLoop(ctx, srcFile, dstFile, buffer, bufferSize, preread, src, uint64(srcInfo.Size()), opts)
	stats.BytesCopied = written
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	if err := dstFile.Sync(); err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	if opts.PreserveMetadata {
		preserveMetadata(dst, srcInfo, e.logger)
	}

	stats.FilesCopied = 1
	stats.Duration = time.Since(start)
	return stats, nil
}

func (e *BufferedEngine) copyLoop(ctx context.Context, srcFile *os.File, dstFile *os.File,
	buffer *common.AdaptiveBuffer, bufferSize int, preread *PreReadBuffer,
	srcPath string, totalBytes uint64, opts common.CopyOptions) (uint64, error) {

	var written uint64
	rate := common.NewBytesPerSecond()
	lastProgress := time.Time{}

	for {
		// Cancellation is honored between chunks.
		select {
		case <-ctx.Done():
			return written, common.NewCopyError(classifyContextErr(ctx), srcPath, ctx.Err())
		default:
		}

		var chunk []byte
		if preread != nil {
			if block, ok := preread.Next(); ok {
				chunk = block
			}
		}

		if chunk == nil {
			buf := buffer.Slice(bufferSize)
			n, err := e.readWithRetry(srcFile, buf, opts.MaxRetries)
			if n == 0 && err == io.EOF {
				return written, nil
			}
			if err != nil && err != io.EOF {
				return written, err
			}
			chunk = buf[:n]
		}

		if err := e.writeWithRetry(dstFile, chunk, opts.MaxRetries); err != nil {
			return written, err
		}
		written += uint64(len(chunk))
		rate.Add(uint64(len(chunk)))

		if preread != nil {
			preread.RecordThroughput(rate.LatestRate() / float64(common.MiB))
			preread.Adapt()
			if err := preread.Fill(srcFile); err != nil && err != io.EOF {
				return written, err
			}
		}

		if opts.EnableProgress && time.Since(lastProgress) >= opts.ProgressInterval {
			lastProgress = time.Now()
			r := rate.LatestRate()
			e.sink.OnProgress(common.ProgressEvent{
				File:         srcPath,
				CurrentBytes: written,
				TotalBytes:   totalBytes,
				RateBps:      r,
				ETA:          common.EstimateETA(written, totalBytes, r),
			})
		}
	}
}

// readWithRetry retries transient read failures with the same buffer;
// exhausting the budget surfaces the last error.
func (e *BufferedEngine) readWithRetry(f *os.File, buf []byte, maxRetries int) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		n, err := f.Read(buf)
		if err == nil || err == io.EOF {
			return n, err
		}
		if !common.IsRetryable(err) {
			return n, err
		}
		lastErr = err
	}
	return 0, lastErr
}

// writeWithRetry retries transient write failures, resuming after any bytes
// the failed call did manage to commit.
func (e *BufferedEngine) writeWithRetry(f *os.File, chunk []byte, maxRetries int) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		n, err := f.Write(chunk)
		if err == nil {
			return nil
		}
		chunk = chunk[n:]
		if len(chunk) == 0 {
			return nil
		}
		if !common.IsRetryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func classifyContextErr(ctx context.Context) common.ErrorKind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return common.EErrorKind.Timeout()
	}
	return common.EErrorKind.Cancelled()
}
