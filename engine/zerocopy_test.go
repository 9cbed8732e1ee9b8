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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loonghao/ferrocp/common"
)

func TestShouldAttemptHeuristic(t *testing.T) {
	a := assert.New(t)
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	hdd := common.EDeviceClass.HDD()
	network := common.EDeviceClass.Network()
	unknown := common.EDeviceClass.Unknown()

	a.True(ShouldAttempt(ssd, ssd))
	a.True(ShouldAttempt(ram, ram))
	a.True(ShouldAttempt(hdd, hdd))
	a.True(ShouldAttempt(unknown, ssd))
	a.False(ShouldAttempt(network, ssd))
	a.False(ShouldAttempt(ssd, network))
}

func TestTryCopyProducesCorrectBytesOrCleanFallback(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 200*common.KiB)
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	e := NewZeroCopyEngine(0, nil)
	result, err := e.TryCopy(context.Background(), src, dst, int64(len(content)))
	a.NoError(err)

	if result.ZeroCopyUsed {
		a.NotEqual(common.EZeroCopyMethod.None(), result.Method)
		a.Equal(uint64(len(content)), result.BytesCopied)
		got, err := os.ReadFile(dst)
		a.NoError(err)
		a.Equal(content, got)
	} else {
		// The invariant after a declined offload: dst absent or empty, so
		// the buffered fallback can proceed without cleanup.
		a.Equal(common.EZeroCopyMethod.Fallback(), result.Method)
		info, err := os.Stat(dst)
		if err == nil {
			a.Zero(info.Size())
		} else {
			a.True(os.IsNotExist(err))
		}
	}
}

func TestTryCopyCancelledContext(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.bin")
	a.NoError(os.WriteFile(src, []byte("data"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewZeroCopyEngine(0, nil)
	_, err := e.TryCopy(ctx, src, filepath.Join(dir, "dst.bin"), 4)
	a.Error(err)
}

func TestResetDestinationRemovesPartialFile(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	dst := filepath.Join(dir, "partial")
	a.NoError(os.WriteFile(dst, []byte("leftover"), 0644))

	resetDestination(dst)

	info, err := os.Stat(dst)
	if err == nil {
		a.Zero(info.Size())
	} else {
		a.True(os.IsNotExist(err))
	}
}
