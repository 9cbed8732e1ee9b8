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
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loonghao/ferrocp/common"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	rng := rand.New(rand.NewSource(int64(n)))
	rng.Read(data)
	return data
}

func TestBufferedCopyProducesIdenticalBytes(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 300*common.KiB)
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	e := NewBufferedEngine(nil, nil)
	stats, err := e.CopyFile(context.Background(), src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.NoError(err)
	a.Equal(uint64(1), stats.FilesCopied)
	a.Equal(uint64(len(content)), stats.BytesCopied)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal(content, got)
}

func TestBufferedCopyCreatesParentDirectories(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "deep", "nested", "dst.bin")
	a.NoError(os.WriteFile(src, []byte("payload"), 0644))

	e := NewBufferedEngine(nil, nil)
	_, err := e.CopyFile(context.Background(), src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.NoError(err)
	a.FileExists(dst)
}

func TestBufferedCopyWithPreRead(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 600*common.KiB)
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	opts := common.DefaultCopyOptions()
	opts.EnablePreRead = true
	strategy := common.DefaultPreReadStrategy(common.EDeviceClass.HDD())
	opts.PreReadStrategy = &strategy

	e := NewBufferedEngine(nil, nil)
	stats, err := e.CopyFile(context.Background(), src, dst,
		common.EDeviceClass.HDD(), common.EDeviceClass.HDD(), opts)
	a.NoError(err)
	a.Equal(uint64(len(content)), stats.BytesCopied)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal(content, got)
}

func TestBufferedCopyHonorsCancellation(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, randomBytes(t, 64*common.KiB), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewBufferedEngine(nil, nil)
	_, err := e.CopyFile(ctx, src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.Error(err)
	a.Equal(common.EErrorKind.Cancelled(), common.ClassifyError(err))
}

type recordingSink struct {
	mu     sync.Mutex
	events []common.ProgressEvent
}

func (r *recordingSink) OnProgress(e common.ProgressEvent) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingSink) OnCompletion(common.CopyStats) {}

func TestBufferedCopyEmitsProgress(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 256*common.KiB)
	src := filepath.Join(dir, "src.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	sink := &recordingSink{}
	opts := common.DefaultCopyOptions()
	opts.EnableProgress = true
	opts.ProgressInterval = 0 // every chunk
	opts.BufferSize = 16 * common.KiB

	e := NewBufferedEngine(nil, sink)
	_, err := e.CopyFile(context.Background(), src, filepath.Join(dir, "dst.bin"),
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), opts)
	a.NoError(err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	a.NotEmpty(sink.events)
	last := sink.events[len(sink.events)-1]
	a.Equal(uint64(len(content)), last.TotalBytes)
	a.LessOrEqual(last.CurrentBytes, last.TotalBytes)
}
