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

package common

import "time"

const (
	MinBufferSize = 4 * KiB
	MaxBufferSize = 64 * MiB
)

// CopyOptions carries the per-operation settings for one copy.
// A zero BufferSize means "derive from the device pair".
// EnableCompression and CompressionLevel are reserved for the external
// compression collaborator and have no effect on plain local copies.
type CopyOptions struct {
	BufferSize        int
	EnableProgress    bool
	ProgressInterval  time.Duration
	VerifyCopy        bool
	PreserveMetadata  bool
	EnableZeroCopy    bool
	MaxRetries        int
	EnablePreRead     bool
	PreReadStrategy   *PreReadStrategy
	EnableCompression bool
	CompressionLevel  int
}

func DefaultCopyOptions() CopyOptions {
	return CopyOptions{
		ProgressInterval: 100 * time.Millisecond,
		PreserveMetadata: true,
		EnableZeroCopy:   true,
		MaxRetries:       3,
	}
}

// EffectiveBufferSize resolves the buffer for this operation: an explicit
// override wins (clamped to [4 KiB, 64 MiB]), otherwise the supplied
// device-derived size is used.
func (o CopyOptions) EffectiveBufferSize(deviceDerived int) int {
	if o.BufferSize == 0 {
		return deviceDerived
	}
	return ClampBufferSize(o.BufferSize)
}

func ClampBufferSize(size int) int {
	if size < MinBufferSize {
		return MinBufferSize
	}
	if size > MaxBufferSize {
		return MaxBufferSize
	}
	return size
}
