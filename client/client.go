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

// Package client is the embedding surface: one-call file and tree copies
// over a lazily shared engine client. CLI and programmatic callers that
// need configuration use engine.NewClient directly.
package client

import (
	"context"
	"sync"

	"github.com/loonghao/ferrocp/common"
	"github.com/loonghao/ferrocp/engine"
)

var (
	defaultClientOnce sync.Once
	defaultClient     *engine.Client
)

func sharedClient() *engine.Client {
	defaultClientOnce.Do(func() {
		defaultClient = engine.NewClient()
	})
	return defaultClient
}

// CopyFile copies one file with default options.
func CopyFile(ctx context.Context, src, dst string) (common.CopyStats, error) {
	return sharedClient().Copy(ctx, src, dst, nil)
}

// CopyFileWithOptions copies one file with explicit options.
func CopyFileWithOptions(ctx context.Context, src, dst string, opts common.CopyOptions) (common.CopyStats, error) {
	return sharedClient().Copy(ctx, src, dst, &opts)
}

// CopyTree copies a directory tree with default options.
func CopyTree(ctx context.Context, src, dst string) (common.CopyStats, error) {
	return sharedClient().CopyTree(ctx, src, dst, nil)
}

// CopyTreeWithOptions copies a directory tree with explicit options.
func CopyTreeWithOptions(ctx context.Context, src, dst string, opts common.CopyOptions) (common.CopyStats, error) {
	return sharedClient().CopyTree(ctx, src, dst, &opts)
}
