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

package compression

import (
	"context"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/loonghao/ferrocp/engine"
)

// ChunkCompressor is a drop-in middle stage for the parallel pipeline:
// each chunk's payload becomes an independent zstd frame. The chunk
// contract holds — sequence preserved, IsLast forwarded — so the writer's
// ordering logic is untouched. The matching ChunkDecompressor restores the
// original payloads.
type ChunkCompressor struct {
	enc *zstd.Encoder
}

func NewChunkCompressor(level zstd.EncoderLevel) (*ChunkCompressor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, errors.Wrap(err, "creating chunk encoder")
	}
	return &ChunkCompressor{enc: enc}, nil
}

func (c *ChunkCompressor) Process(ctx context.Context, in <-chan engine.DataChunk, out chan<- engine.DataChunk) error {
	for chunk := range in {
		compressed := c.enc.EncodeAll(chunk.Data, nil)
		next := engine.DataChunk{
			Sequence: chunk.Sequence,
			Data:     compressed,
			Size:     len(compressed),
			IsLast:   chunk.IsLast,
		}
		select {
		case out <- next:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ChunkDecompressor reverses ChunkCompressor frame-for-frame.
type ChunkDecompressor struct {
	dec *zstd.Decoder
}

func NewChunkDecompressor() (*ChunkDecompressor, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating chunk decoder")
	}
	return &ChunkDecompressor{dec: dec}, nil
}

func (d *ChunkDecompressor) Process(ctx context.Context, in <-chan engine.DataChunk, out chan<- engine.DataChunk) error {
	for chunk := range in {
		plain, err := d.dec.DecodeAll(chunk.Data, nil)
		if err != nil {
			return errors.Wrapf(err, "decompressing chunk %d", chunk.Sequence)
		}
		next := engine.DataChunk{
			Sequence: chunk.Sequence,
			Data:     plain,
			Size:     len(plain),
			IsLast:   chunk.IsLast,
		}
		select {
		case out <- next:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
