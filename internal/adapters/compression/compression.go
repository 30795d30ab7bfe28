// Package compression implements the builtin codecs (Snappy, Zlib, BZip2,
// LZ4, LZ4HC, ZSTD) and the manager that owns their type tags.
package compression

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/pool"
	"go.uber.org/multierr"
)

// BuiltinManagerName identifies the builtin manager in errors and logs.
const BuiltinManagerName = "builtin"

// ErrXpressUnavailable is returned for the Xpress tag, which is claimed so it
// is never mistaken for a foreign tag but has no implementation here.
var ErrXpressUnavailable = errors.New("xpress is only available on windows builds of the storage engine")

// Options configures the builtin manager.
type Options struct {
	// DecoderConcurrency bounds concurrent zstd decodes.
	// Default is GOMAXPROCS if set to 0.
	DecoderConcurrency int

	// BufferSize is the initial capacity of pooled stream buffers.
	// Default: 64KB
	BufferSize int
}

// Returns Options initialized with recommended defaults.
func DefaultOptions() *Options {
	return &Options{
		DecoderConcurrency: runtime.GOMAXPROCS(0),
		BufferSize:         64 << 10,
	}
}

func Validate(input *Options) error {
	if input.DecoderConcurrency < 0 {
		return pkgerrors.NewValidationError(
			"decoder_concurrency", input.DecoderConcurrency, errors.New("must not be negative"),
		)
	}
	if input.BufferSize < 0 {
		return pkgerrors.NewValidationError("buffer_size", input.BufferSize, errors.New("must not be negative"))
	}
	return nil
}

// BuiltinManager owns tags 0x01 through 0x07. Every decompressor is built at
// construction and the claimed set never changes, so all lookups are
// lock free.
type BuiltinManager struct {
	buffers     *pool.BufferPool
	concurrency int
	decoders    [domain.LastBuiltinCompression + 1]ports.Codec
	closeOnce   sync.Once
}

// NewBuiltinManager builds the builtin manager. A nil opts uses DefaultOptions.
func NewBuiltinManager(opts *Options) (*BuiltinManager, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if err := Validate(opts); err != nil {
		return nil, err
	}
	if opts.DecoderConcurrency == 0 {
		opts.DecoderConcurrency = runtime.GOMAXPROCS(0)
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}

	m := &BuiltinManager{
		buffers:     pool.NewBufferPool(opts.BufferSize),
		concurrency: opts.DecoderConcurrency,
	}

	zstdDecoder, err := NewZstdCodec(ZstdOptions{Level: domain.DefaultCompressionLevel, Concurrency: opts.DecoderConcurrency})
	if err != nil {
		return nil, err
	}

	m.decoders[domain.SnappyCompression] = NewSnappyCodec()
	m.decoders[domain.ZlibCompression] = NewZlibCodec(ZlibOptions{Level: domain.DefaultCompressionLevel}, m.buffers)
	m.decoders[domain.BZip2Compression] = NewBZip2Codec(domain.DefaultCompressionLevel, m.buffers)
	m.decoders[domain.LZ4Compression] = NewLZ4Codec(domain.DefaultCompressionLevel)
	m.decoders[domain.LZ4HCCompression] = NewLZ4HCCodec(domain.DefaultCompressionLevel)
	m.decoders[domain.ZSTDCompression] = zstdDecoder
	return m, nil
}

func (m *BuiltinManager) Name() string {
	return BuiltinManagerName
}

func (m *BuiltinManager) Types() []domain.CompressionType {
	types := make([]domain.CompressionType, 0, domain.LastBuiltinCompression)
	for t := domain.FirstBuiltinCompression; t <= domain.LastBuiltinCompression; t++ {
		types = append(types, t)
	}
	return types
}

func (m *BuiltinManager) Claims(t domain.CompressionType) bool {
	return t.IsBuiltin()
}

// Compressor returns a new codec for t configured from opts. The caller owns
// it and closes it when it implements io.Closer.
func (m *BuiltinManager) Compressor(t domain.CompressionType, opts domain.CompressionOptions) (ports.Codec, error) {
	switch t {
	case domain.SnappyCompression:
		return NewSnappyCodec(), nil
	case domain.ZlibCompression:
		if err := validateZlibLevel(opts.Level); err != nil {
			return nil, err
		}
		return NewZlibCodec(
			ZlibOptions{Level: opts.Level, WindowBits: opts.WindowBits, Strategy: opts.Strategy}, m.buffers,
		), nil
	case domain.BZip2Compression:
		return NewBZip2Codec(opts.Level, m.buffers), nil
	case domain.LZ4Compression:
		return NewLZ4Codec(opts.Level), nil
	case domain.LZ4HCCompression:
		return NewLZ4HCCodec(opts.Level), nil
	case domain.ZSTDCompression:
		return NewZstdCodec(ZstdOptions{
			Level:       opts.Level,
			Checksum:    opts.Checksum,
			Concurrency: int(opts.ParallelThreads),
		})
	case domain.XpressCompression:
		return nil, pkgerrors.NewUnsupportedError("compressor", uint8(t), ErrXpressUnavailable)
	default:
		return nil, pkgerrors.NewUnsupportedError("compressor", uint8(t), nil)
	}
}

// Decompressor returns the shared decoder for t.
func (m *BuiltinManager) Decompressor(t domain.CompressionType) (ports.Codec, error) {
	if t == domain.XpressCompression {
		return nil, pkgerrors.NewUnsupportedError("decompressor", uint8(t), ErrXpressUnavailable)
	}
	if !t.IsBuiltin() || m.decoders[t] == nil {
		return nil, pkgerrors.NewUnsupportedError("decompressor", uint8(t), nil)
	}
	return m.decoders[t], nil
}

func (m *BuiltinManager) SupportsDictionary(t domain.CompressionType) bool {
	return t == domain.ZlibCompression || t == domain.ZSTDCompression
}

func (m *BuiltinManager) Trainer(t domain.CompressionType) (ports.DictionaryTrainer, bool) {
	switch t {
	case domain.ZSTDCompression:
		return ZstdTrainer{}, true
	case domain.ZlibCompression:
		return RawTrainer{}, true
	default:
		return nil, false
	}
}

// Close releases the shared decoders. It is safe to call more than once.
func (m *BuiltinManager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		if c, ok := m.decoders[domain.ZSTDCompression].(*ZstdCodec); ok {
			err = multierr.Append(err, c.Close())
		}
	})
	return err
}

// bounded enforces the CompressBounded contract for codecs that cannot stop
// early.
func bounded(out []byte, err error, maxLen int) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if len(out) > maxLen {
		return nil, ports.ErrBufferTooSmall
	}
	return out, nil
}

// maxPrealloc caps the output reserved up front from a declared length.
// Anything beyond it is only allocated as the codec actually produces bytes,
// so a corrupt length cannot force a huge allocation on its own.
const maxPrealloc = 4 << 20

func preallocLen(expectedLen int) int {
	return min(max(expectedLen, 0), maxPrealloc)
}

// checkLen verifies that a codec produced exactly the declared length.
func checkLen(out []byte, expectedLen int) ([]byte, error) {
	if len(out) != expectedLen {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", len(out), expectedLen)
	}
	return out, nil
}
