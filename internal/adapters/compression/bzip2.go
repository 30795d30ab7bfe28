package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/pkg/pool"
)

// BZip2Codec wraps each block in a complete bzip2 stream.
type BZip2Codec struct {
	level   int
	buffers *pool.BufferPool
}

// NewBZip2Codec clamps level to 1..9; the default sentinel selects 9.
func NewBZip2Codec(level int, buffers *pool.BufferPool) *BZip2Codec {
	switch {
	case level == domain.DefaultCompressionLevel || level > 9:
		level = 9
	case level < 1:
		level = 1
	}
	return &BZip2Codec{level: level, buffers: buffers}
}

func (b *BZip2Codec) Type() domain.CompressionType {
	return domain.BZip2Compression
}

// Compress writes data as a complete bzip2 stream into a pooled buffer and
// returns a copy the caller owns. Each call builds its own writer, so the
// codec is safe for concurrent use.
func (b *BZip2Codec) Compress(data []byte) ([]byte, error) {
	buf := b.buffers.Get()
	defer b.buffers.Put(buf)

	bw, err := bzip2.NewWriter(buf, &bzip2.WriterConfig{Level: b.level})
	if err != nil {
		return nil, fmt.Errorf("failed to create bzip2 writer: %w", err)
	}
	if _, err := bw.Write(data); err != nil {
		bw.Close()
		return nil, fmt.Errorf("bzip2 compression failed: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("bzip2 compression failed: %w", err)
	}

	return b.buffers.Copy(buf), nil
}

func (b *BZip2Codec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	out, err := b.Compress(data)
	return bounded(out, err, maxLen)
}

// Decompress inflates a bzip2 stream.
//
// Returns an error if:
// - The stream header or a block CRC is invalid
// - The stream does not hold exactly expectedLen bytes
func (b *BZip2Codec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	br, err := bzip2.NewReader(bytes.NewReader(data), &bzip2.ReaderConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create bzip2 reader: %w", err)
	}
	defer br.Close()

	return readExactly(br, expectedLen)
}

// readExactly drains r, failing if it yields anything but expectedLen bytes.
// The buffer grows with the decoded data instead of trusting expectedLen.
func readExactly(r io.Reader, expectedLen int) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, preallocLen(expectedLen)))

	// One byte of slack tells an oversized stream apart, and reading on to EOF
	// makes stream codecs verify their trailers.
	if _, err := out.ReadFrom(io.LimitReader(r, int64(expectedLen)+1)); err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	if out.Len() > expectedLen {
		return nil, fmt.Errorf("decompressed data exceeds expected %d bytes", expectedLen)
	}
	return checkLen(out.Bytes(), expectedLen)
}
