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
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/loonghao/ferrocp/common"
)

func TestMicroCopySmallFile(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	content := []byte(strings.Repeat("X", 100))
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	a.NoError(os.WriteFile(src, content, 0644))

	e := NewMicroEngine(0, nil)
	stats, err := e.CopyFile(context.Background(), src, dst, common.DefaultCopyOptions())
	a.NoError(err)
	a.Equal(uint64(1), stats.FilesCopied)
	a.Equal(uint64(100), stats.BytesCopied)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal(content, got)
}

func TestMicroCopyEmptyFile(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "empty")
	dst := filepath.Join(dir, "empty.out")
	a.NoError(os.WriteFile(src, nil, 0644))

	e := NewMicroEngine(0, nil)
	stats, err := e.CopyFile(context.Background(), src, dst, common.DefaultCopyOptions())
	a.NoError(err)
	a.Equal(uint64(1), stats.FilesCopied)
	a.Zero(stats.BytesCopied)

	info, err := os.Stat(dst)
	a.NoError(err)
	a.Zero(info.Size())
}

func TestMicroCopyRejectsOversizedFile(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "big.bin")
	a.NoError(os.WriteFile(src, make([]byte, DefaultMicroFileThreshold+1), 0644))

	e := NewMicroEngine(0, nil)
	_, err := e.CopyFile(context.Background(), src, filepath.Join(dir, "out"), common.DefaultCopyOptions())
	a.True(errors.Is(err, common.ErrOversizedForMicroEngine))
}

func TestMicroCopyMissingSourceSurfacesError(t *testing.T) {
	a := assert.New(t)

	e := NewMicroEngine(0, nil)
	_, err := e.CopyFile(context.Background(), filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "out"), common.DefaultCopyOptions())
	a.True(os.IsNotExist(err))
}

func TestMicroCopyOverwritesExistingDestination(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	a.NoError(os.WriteFile(src, []byte("short"), 0644))
	a.NoError(os.WriteFile(dst, []byte("a much longer pre-existing destination"), 0644))

	e := NewMicroEngine(0, nil)
	_, err := e.CopyFile(context.Background(), src, dst, common.DefaultCopyOptions())
	a.NoError(err)

	got, err := os.ReadFile(dst)
	a.NoError(err)
	a.Equal([]byte("short"), got)
}

func TestMicroCopyPreservesMtime(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	a.NoError(os.WriteFile(src, []byte("data"), 0644))
	stamp := time.Now().Add(-48 * time.Hour).Truncate(time.Second)
	a.NoError(os.Chtimes(src, stamp, stamp))

	e := NewMicroEngine(0, nil)
	opts := common.DefaultCopyOptions()
	_, err := e.CopyFile(context.Background(), src, dst, opts)
	a.NoError(err)

	info, err := os.Stat(dst)
	a.NoError(err)
	a.WithinDuration(stamp, info.ModTime(), time.Second)
}
