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

package traverser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loonghao/ferrocp/common"
)

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	assert.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0755))
	assert.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("1"), 0644))
	assert.NoError(t, os.WriteFile(filepath.Join(root, "a", "mid.txt"), []byte("22"), 0644))
	assert.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "leaf.txt"), []byte("333"), 0644))
	return root
}

func collect(t *testing.T, root string, policy common.SymlinkPolicy) map[string]Entry {
	t.Helper()
	walker := NewLocalTraverser(root, policy, nil)
	entries := map[string]Entry{}
	err := walker.Traverse(context.Background(), func(e Entry) error {
		entries[e.RelPath] = e
		return nil
	})
	assert.NoError(t, err)
	return entries
}

func TestTraverseEnumeratesWithRelativePaths(t *testing.T) {
	a := assert.New(t)
	root := buildTree(t)

	entries := collect(t, root, common.ESymlinkPolicy.Skip())

	a.Len(entries, 5)
	a.True(entries["a"].IsDir)
	a.True(entries[filepath.Join("a", "b")].IsDir)
	a.False(entries["top.txt"].IsDir)
	a.Equal(int64(2), entries[filepath.Join("a", "mid.txt")].Info.Size())
	a.Equal(int64(3), entries[filepath.Join("a", "b", "leaf.txt")].Info.Size())
}

func TestTraverseRootItselfIsNotEmitted(t *testing.T) {
	a := assert.New(t)
	root := buildTree(t)

	entries := collect(t, root, common.ESymlinkPolicy.Skip())
	_, ok := entries["."]
	a.False(ok)
}

func TestTraverseSkipPolicyDropsSymlinks(t *testing.T) {
	a := assert.New(t)
	root := buildTree(t)
	a.NoError(os.Symlink("top.txt", filepath.Join(root, "link")))

	entries := collect(t, root, common.ESymlinkPolicy.Skip())
	_, ok := entries["link"]
	a.False(ok)
}

func TestTraversePreservePolicyEmitsSymlinkEntries(t *testing.T) {
	a := assert.New(t)
	root := buildTree(t)
	a.NoError(os.Symlink("top.txt", filepath.Join(root, "link")))

	entries := collect(t, root, common.ESymlinkPolicy.Preserve())
	link, ok := entries["link"]
	a.True(ok)
	a.True(link.IsSymlink)
	a.False(link.IsDir)
}

func TestTraverseFollowPolicyResolvesSymlinks(t *testing.T) {
	a := assert.New(t)
	root := buildTree(t)
	a.NoError(os.Symlink(filepath.Join(root, "top.txt"), filepath.Join(root, "link")))

	entries := collect(t, root, common.ESymlinkPolicy.Follow())
	link, ok := entries["link"]
	a.True(ok)
	a.False(link.IsSymlink)
	a.Equal(int64(1), link.Info.Size())
}

func TestTraverseHonorsCancellation(t *testing.T) {
	a := assert.New(t)
	root := buildTree(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	walker := NewLocalTraverser(root, common.ESymlinkPolicy.Skip(), nil)
	err := walker.Traverse(ctx, func(Entry) error { return nil })
	a.Error(err)
}
