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
	"time"

	"github.com/pkg/errors"

	"github.com/loonghao/ferrocp/common"
)

const DefaultMicroFileThreshold = 4 * common.KiB

// stackBufferSize is the minimum capacity of the read buffer that
// readWhole allocates for each file.
const stackBufferSize = 1 * common.KiB

// MicroEngine copies files at or below the micro threshold in the minimum
// number of syscalls: one whole-file read, one whole-file write. No
// progress, no retries, no verification.
type MicroEngine struct {
	threshold int64
	logger    common.ILogger
}

func NewMicroEngine(threshold int64, logger common.ILogger) *MicroEngine {
	if threshold <= 0 {
		threshold = DefaultMicroFileThreshold
	}
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &MicroEngine{threshold: threshold, logger: logger}
}

// CopyFile performs the micro copy. A source larger than the threshold
// fails with ErrOversizedForMicroEngine; all other failures surface
// unmodified.
func (e *MicroEngine) CopyFile(ctx context.Context, src, dst string, opts common.CopyOptions) (common.CopyStats, error) {
	start := time.Now()
	stats := common.CopyStats{}

	if err := ctx.Err(); err != nil {
		return stats, common.NewCopyError(common.EErrorKind.Cancelled(), src, err)
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return stats, err
	}
	if srcInfo.Size() > e.threshold {
		return stats, errors.Wrapf(common.ErrOversizedForMicroEngine, "%s is %d bytes", src, srcInfo.Size())
	}

	data, err := e.readWhole(src, srcInfo.Size())
	if err != nil {
		return stats, err
	}

	if err := os.WriteFile(dst, data, common.DEFAULT_FILE_PERM); err != nil {
		return stats, err
	}

	if opts.PreserveMetadata {
		preserveMetadata(dst, srcInfo, e.logger)
	}

	stats.FilesCopied = 1
	stats.BytesCopied = uint64(len(data))
	stats.Duration = time.Since(start)
	return stats, nil
}

// readWhole reads the full file contents into one buffer allocated per
// call, sized to the stat result (at least stackBufferSize). If the file
// grew between stat and read, the buffer grows and reading continues to EOF.
func (e *MicroEngine) readWhole(src string, statSize int64) ([]byte, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	capacity := statSize
	if capacity < stackBufferSize {
		capacity = stackBufferSize
	}
	buf := make([]byte, 0, capacity+1)
	for {
		if len(buf) == cap(buf) {
			buf = append(buf, 0)[:len(buf)]
		}
		n, err := f.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (e *MicroEngine) Threshold() int64 { return e.threshold }
