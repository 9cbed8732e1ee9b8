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

func TestChunkSizeForDevicePairs(t *testing.T) {
	a := assert.New(t)
	ssd := common.EDeviceClass.SSD()
	ram := common.EDeviceClass.RamDisk()
	hdd := common.EDeviceClass.HDD()
	network := common.EDeviceClass.Network()
	unknown := common.EDeviceClass.Unknown()

	small := int64(20 * common.MiB)
	a.Equal(2*common.MiB, ChunkSizeFor(ssd, ssd, small))
	a.Equal(4*common.MiB, ChunkSizeFor(ram, ram, small))
	a.Equal(512*common.KiB, ChunkSizeFor(ssd, hdd, small))
	a.Equal(256*common.KiB, ChunkSizeFor(network, ssd, small))
	a.Equal(1*common.MiB, ChunkSizeFor(unknown, unknown, small))

	// Size multipliers, then the [64 KiB, 8 MiB] clamp.
	a.Equal(3*common.MiB, ChunkSizeFor(ssd, ssd, 200*common.MiB))
	a.Equal(4*common.MiB, ChunkSizeFor(ssd, ssd, 2*common.GiB))
	a.Equal(8*common.MiB, ChunkSizeFor(ram, ram, 2*common.GiB))
}

func TestParallelCopyIdenticalBytes(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 3*common.MiB+12345) // deliberately not chunk-aligned
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	e := NewParallelEngine(nil,
		WithMinFileSize(1),
		WithMaxMemoryUsage(8*common.MiB),
		WithPipelineDepth(4))
	stats, err := e.CopyFile(context.Background(), src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.NoError(err)
	a.Equal(uint64(len(content)), stats.BytesCopied)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal(content, got)
}

// reorderingProcessor deliberately swaps adjacent chunks to prove the
// writer restores sequence order.
type reorderingProcessor struct{}

func (reorderingProcessor) Process(ctx context.Context, in <-chan DataChunk, out chan<- DataChunk) error {
	var held *DataChunk
	send := func(c DataChunk) error {
		select {
		case out <- c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for chunk := range in {
		if chunk.IsLast {
			// Never hold the terminal chunk hostage.
			if held != nil {
				if err := send(*held); err != nil {
					return err
				}
				held = nil
			}
			if err := send(chunk); err != nil {
				return err
			}
			continue
		}
		if held == nil {
			c := chunk
			held = &c
			continue
		}
		if err := send(chunk); err != nil { // later chunk first
			return err
		}
		if err := send(*held); err != nil {
			return err
		}
		held = nil
	}
	if held != nil {
		return send(*held)
	}
	return nil
}

func TestParallelWriterRestoresSequenceOrder(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 2*common.MiB)
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	e := NewParallelEngine(nil,
		WithMinFileSize(1),
		WithMaxMemoryUsage(16*common.MiB),
		WithProcessor(reorderingProcessor{}))
	stats, err := e.CopyFile(context.Background(), src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.NoError(err)
	a.Equal(uint64(len(content)), stats.BytesCopied)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal(content, got)
}

func TestParallelSmallFileTakesSequentialFallback(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := randomBytes(t, 32*common.KiB)
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, content, 0644))

	e := NewParallelEngine(nil) // default minimum is 10 MiB
	stats, err := e.CopyFile(context.Background(), src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.NoError(err)
	a.Equal(uint64(len(content)), stats.BytesCopied)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal(content, got)
}

func TestParallelCopyCancellation(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	a.NoError(os.WriteFile(src, randomBytes(t, 2*common.MiB), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewParallelEngine(nil, WithMinFileSize(1))
	_, err := e.CopyFile(ctx, src, dst,
		common.EDeviceClass.Unknown(), common.EDeviceClass.Unknown(), common.DefaultCopyOptions())
	a.Error(err)
}

func TestMemoryBudgetBacksOutOverLimit(t *testing.T) {
	a := assert.New(t)

	b := &memoryBudget{limit: 100}
	a.True(b.tryAdd(60))
	a.True(b.tryAdd(40))
	a.False(b.tryAdd(1))
	b.remove(40)
	a.True(b.tryAdd(30))
}
