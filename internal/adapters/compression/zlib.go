package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/pool"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Every zlib payload starts with one byte naming its wrapper so blocks can be
// read back without knowing the window_bits they were written with.
const (
	zlibFormatRaw  byte = 0
	zlibFormatZlib byte = 1
	zlibFormatGzip byte = 2
)

// zlibHuffmanOnly is the Z_HUFFMAN_ONLY strategy value.
const zlibHuffmanOnly = 2

type ZlibOptions struct {
	Level      int
	WindowBits int
	Strategy   int
	Dictionary *domain.Dictionary
}

// ZlibCodec implements Zlib with klauspost's deflate. Negative window bits
// produce raw deflate, 8..15 a zlib stream and larger values gzip. The
// deflater always uses a 32KB window.
type ZlibCodec struct {
	opts    ZlibOptions
	level   int
	format  byte
	dict    []byte
	buffers *pool.BufferPool
}

func validateZlibLevel(level int) error {
	if level == domain.DefaultCompressionLevel {
		return nil
	}
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return pkgerrors.NewValidationError(
			"level", level,
			fmt.Errorf("zlib level must be between %d and %d", flate.HuffmanOnly, flate.BestCompression),
		)
	}
	return nil
}

// NewZlibCodec builds a codec from opts. The wrapper is chosen from
// WindowBits and Strategy 2 forces Huffman-only encoding. Levels are checked
// by validateZlibLevel before a codec is requested.
func NewZlibCodec(opts ZlibOptions, buffers *pool.BufferPool) *ZlibCodec {
	level := opts.Level
	if level == domain.DefaultCompressionLevel {
		level = flate.DefaultCompression
	}
	if opts.Strategy == zlibHuffmanOnly {
		level = flate.HuffmanOnly
	}

	format := zlibFormatRaw
	switch {
	case opts.WindowBits > 15:
		format = zlibFormatGzip
	case opts.WindowBits > 0:
		format = zlibFormatZlib
	}

	c := &ZlibCodec{opts: opts, level: level, format: format, buffers: buffers}
	if !opts.Dictionary.Empty() && format != zlibFormatGzip {
		c.dict = opts.Dictionary.Data
	}
	return c
}

func (z *ZlibCodec) Type() domain.CompressionType {
	return domain.ZlibCompression
}

// Compress deflates data behind the wrapper byte. The operation is
// thread-safe: every call uses its own deflater and a pooled buffer.
func (z *ZlibCodec) Compress(data []byte) ([]byte, error) {
	buf := z.buffers.Get()
	defer z.buffers.Put(buf)

	buf.WriteByte(z.format)

	var (
		w   io.WriteCloser
		err error
	)
	switch z.format {
	case zlibFormatZlib:
		w, err = zlib.NewWriterLevelDict(buf, z.level, z.dict)
	case zlibFormatGzip:
		w, err = gzip.NewWriterLevel(buf, z.level)
	default:
		w, err = flate.NewWriterDict(buf, z.level, z.dict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create deflate writer: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("zlib compression failed: %w", err)
	}

	return z.buffers.Copy(buf), nil
}

func (z *ZlibCodec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	out, err := z.Compress(data)
	return bounded(out, err, maxLen)
}

// Decompress reads the wrapper byte and inflates with the codec's
// dictionary, if any.
func (z *ZlibCodec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty zlib payload")
	}

	body := bytes.NewReader(data[1:])

	var (
		r   io.ReadCloser
		err error
	)
	switch data[0] {
	case zlibFormatRaw:
		r = flate.NewReaderDict(body, z.dict)
	case zlibFormatZlib:
		r, err = zlib.NewReaderDict(body, z.dict)
	case zlibFormatGzip:
		r, err = gzip.NewReader(body)
	default:
		return nil, fmt.Errorf("unknown zlib wrapper %d", data[0])
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create inflater: %w", err)
	}
	defer r.Close()

	return readExactly(r, expectedLen)
}

// WithDictionary returns a codec with the same settings using dict as the
// deflate preset dictionary. Gzip output ignores dictionaries.
func (z *ZlibCodec) WithDictionary(dict *domain.Dictionary) (ports.Codec, error) {
	opts := z.opts
	opts.Dictionary = dict
	return NewZlibCodec(opts, z.buffers), nil
}
