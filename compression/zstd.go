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

// Package compression is the zstd collaborator: a streaming codec for the
// transfer surfaces and a chunk-processor stage for the parallel pipeline.
package compression

import (
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/loonghao/ferrocp/common"
)

// AdaptiveLevel picks an encoder level from the destination device class
// and payload size: fast local media favor speed, network mounts favor
// ratio, and tiny payloads never pay for an expensive level.
func AdaptiveLevel(device common.DeviceClass, dataSize int64) zstd.EncoderLevel {
	if dataSize < 4*common.KiB {
		return zstd.SpeedFastest
	}
	switch device {
	case common.EDeviceClass.Network():
		return zstd.SpeedBetterCompression
	case common.EDeviceClass.HDD():
		return zstd.SpeedDefault
	default:
		return zstd.SpeedFastest
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	atomic.AddInt64(&c.n, int64(n))
	return n, err
}

// StreamingCompressor writes a single zstd stream to an underlying writer.
// Finish flushes and finalizes the live encoder; the stream is invalid
// until Finish returns.
type StreamingCompressor struct {
	enc      *zstd.Encoder
	counter  *countingWriter
	bytesIn  int64
	finished bool
}

var _ common.Compressor = (*StreamingCompressor)(nil)

func NewStreamingCompressor(w io.Writer, level zstd.EncoderLevel) (*StreamingCompressor, error) {
	counter := &countingWriter{w: w}
	enc, err := zstd.NewWriter(counter, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	return &StreamingCompressor{enc: enc, counter: counter}, nil
}

func (c *StreamingCompressor) Write(p []byte) (int, error) {
	if c.finished {
		return 0, errors.New("write after Finish")
	}
	n, err := c.enc.Write(p)
	c.bytesIn += int64(n)
	return n, err
}

// Finish closes the live encoder, emitting the frame epilogue into the
// underlying writer. Calls after the first are no-ops.
func (c *StreamingCompressor) Finish() error {
	if c.finished {
		return nil
	}
	c.finished = true
	return c.enc.Close()
}

// Ratio reports compressed/uncompressed after Finish; 0 until then.
func (c *StreamingCompressor) Ratio() float64 {
	if !c.finished || c.bytesIn == 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&c.counter.n)) / float64(c.bytesIn)
}

// StreamingDecompressor reads one zstd stream.
type StreamingDecompressor struct {
	dec *zstd.Decoder
}

func NewStreamingDecompressor(r io.Reader) (*StreamingDecompressor, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	return &StreamingDecompressor{dec: dec}, nil
}

func (d *StreamingDecompressor) Read(p []byte) (int, error) {
	return d.dec.Read(p)
}

func (d *StreamingDecompressor) Close() {
	d.dec.Close()
}
