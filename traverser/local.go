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

// Package traverser enumerates local directory trees for the copy engine.
package traverser

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/loonghao/ferrocp/common"
)

// Entry is one enumerated object, with its path relative to the traversal
// root preserved so the destination structure can mirror the source.
type Entry struct {
	Path      string
	RelPath   string
	Info      fs.FileInfo
	IsDir     bool
	IsSymlink bool
}

// EntryProcessor handles one entry. Returning an error aborts the walk.
type EntryProcessor func(entry Entry) error

// LocalTraverser walks a directory tree, applying the symlink policy:
// Skip drops links, Preserve emits them for re-creation as links, Follow
// resolves them and emits the target's metadata.
type LocalTraverser struct {
	root   string
	policy common.SymlinkPolicy
	logger common.ILogger
}

func NewLocalTraverser(root string, policy common.SymlinkPolicy, logger common.ILogger) *LocalTraverser {
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &LocalTraverser{root: root, policy: policy, logger: logger}
}

// Traverse walks the root depth-first, parents before children, calling
// processor for every directory and file below the root (the root directory
// itself is not emitted). Cancellation is checked between entries.
func (t *LocalTraverser) Traverse(ctx context.Context, processor EntryProcessor) error {
	return filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			if d.IsDir() {
				return nil // the caller creates the destination root itself
			}
			rel = filepath.Base(path)
		}

		isSymlink := d.Type()&fs.ModeSymlink != 0
		if isSymlink {
			switch t.policy {
			case common.ESymlinkPolicy.Skip():
				if t.logger.ShouldLog(common.ELogLevel.Debug()) {
					t.logger.Log(common.ELogLevel.Debug(), "skipping symlink "+path)
				}
				return nil
			case common.ESymlinkPolicy.Follow():
				resolved, err := filepath.EvalSymlinks(path)
				if err != nil {
					return err
				}
				info, err := os.Stat(resolved)
				if err != nil {
					return err
				}
				return processor(Entry{Path: resolved, RelPath: rel, Info: info, IsDir: info.IsDir()})
			default:
				info, err := d.Info()
				if err != nil {
					return err
				}
				return processor(Entry{Path: path, RelPath: rel, Info: info, IsSymlink: true})
			}
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return processor(Entry{Path: path, RelPath: rel, Info: info, IsDir: d.IsDir()})
	})
}

