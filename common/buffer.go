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

import "sync"

// AdaptiveBuffer is a reusable byte buffer whose starting capacity is a
// function of the device class it will stream to or from. It is owned by
// exactly one task at a time and is never shared.
type AdaptiveBuffer struct {
	data   []byte
	device DeviceClass
}

func NewAdaptiveBuffer(device DeviceClass) *AdaptiveBuffer {
	return NewAdaptiveBufferSize(device, device.DefaultBufferSize())
}

func NewAdaptiveBufferSize(device DeviceClass, size int) *AdaptiveBuffer {
	if size <= 0 {
		size = device.DefaultBufferSize()
	}
	return &AdaptiveBuffer{data: make([]byte, size), device: device}
}

// Slice returns a window of exactly n bytes, growing the backing array if
// needed. Capacity ≥ requested size is the buffer's only invariant.
func (b *AdaptiveBuffer) Slice(n int) []byte {
	if n > len(b.data) {
		b.data = make([]byte, n)
	}
	return b.data[:n]
}

func (b *AdaptiveBuffer) Capacity() int { return len(b.data) }

func (b *AdaptiveBuffer) Device() DeviceClass { return b.device }

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// bufferPool recycles AdaptiveBuffers per device class to avoid constant GC
// on the per-file hot path.
type bufferPool struct {
	pools [5]sync.Pool // indexed by DeviceClass
}

var sharedBufferPool = &bufferPool{}

// GetPooledBuffer returns a buffer for the device class; pair with
// PutPooledBuffer when the copy completes.
func GetPooledBuffer(device DeviceClass) *AdaptiveBuffer {
	p := &sharedBufferPool.pools[int(device)%len(sharedBufferPool.pools)]
	if v := p.Get(); v != nil {
		return v.(*AdaptiveBuffer)
	}
	return NewAdaptiveBuffer(device)
}

func PutPooledBuffer(b *AdaptiveBuffer) {
	if b == nil {
		return
	}
	p := &sharedBufferPool.pools[int(b.device)%len(sharedBufferPool.pools)]
	p.Put(b)
}
