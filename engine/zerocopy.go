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
	"os"

	"github.com/loonghao/ferrocp/common"
)

const DefaultZeroCopyThreshold = 64 * common.KiB

// ZeroCopyResult reports what the offload attempt actually did. When
// ZeroCopyUsed is false the caller performs a normal buffered copy.
type ZeroCopyResult struct {
	BytesCopied  uint64
	ZeroCopyUsed bool
	Method       common.ZeroCopyMethod
}

// zeroCopyMethod is one platform attempt. A failed attempt must leave dst
// absent or empty so the next attempt, or the caller's fallback, can
// proceed without cleanup plumbing.
type zeroCopyMethod struct {
	method common.ZeroCopyMethod
	run    func(src, dst string, size int64) error
}

// ZeroCopyEngine hands the copy to the kernel or filesystem when the
// platform offers an offload primitive.
type ZeroCopyEngine struct {
	threshold int64
	logger    common.ILogger
}

func NewZeroCopyEngine(threshold int64, logger common.ILogger) *ZeroCopyEngine {
	if threshold <= 0 {
		threshold = DefaultZeroCopyThreshold
	}
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &ZeroCopyEngine{threshold: threshold, logger: logger}
}

func (e *ZeroCopyEngine) Threshold() int64 { return e.threshold }

// ShouldAttempt is the device-pair heuristic: a network mount on either
// side rules offload out; every local pair is worth an attempt (same-class
// fast pairs are where it pays the most).
func ShouldAttempt(srcClass, dstClass common.DeviceClass) bool {
	network := common.EDeviceClass.Network()
	return srcClass != network && dstClass != network
}

// TryCopy attempts the platform methods in priority order until one
// succeeds. Exhausting them is not an error: the result simply reports
// ZeroCopyUsed false with the Fallback method and the caller copies
// through buffers.
func (e *ZeroCopyEngine) TryCopy(ctx context.Context, src, dst string, size int64) (ZeroCopyResult, error) {
	if err := ctx.Err(); err != nil {
		return ZeroCopyResult{Method: common.EZeroCopyMethod.None()}, err
	}

	methods := platformZeroCopyMethods()
	if len(methods) == 0 {
		return ZeroCopyResult{ZeroCopyUsed: false, Method: common.EZeroCopyMethod.Fallback()}, nil
	}

	for _, m := range methods {
		err := m.run(src, dst, size)
		if err == nil {
			return ZeroCopyResult{
				BytesCopied:  uint64(size),
				ZeroCopyUsed: true,
				Method:       m.method,
			}, nil
		}
		if e.logger.ShouldLog(common.ELogLevel.Debug()) {
			e.logger.Log(common.ELogLevel.Debug(), m.method.String()+" declined for "+src+": "+err.Error())
		}
		resetDestination(dst)
	}

	return ZeroCopyResult{ZeroCopyUsed: false, Method: common.EZeroCopyMethod.Fallback()}, nil
}

// resetDestination restores the post-attempt invariant: dst absent or
// empty.
func resetDestination(dst string) {
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		// Removal can fail while a handle is still settling; an explicit
		// truncate keeps the invariant.
		_ = os.Truncate(dst, 0)
	}
}
