package ports

import (
	"errors"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
)

// ErrBufferTooSmall is returned by CompressBounded when the compressed form
// would not fit in the allowed output size. Callers treat it as a ratio miss.
var ErrBufferTooSmall = errors.New("compressed output exceeds bound")

// IsBufferTooSmall reports whether err is a bounded-compression miss.
func IsBufferTooSmall(err error) bool {
	return errors.Is(err, ErrBufferTooSmall)
}

// Codec is one configured algorithm. Implementations are safe for
// concurrent use by multiple goroutines.
type Codec interface {
	// Type is the tag written in front of blocks this codec produced.
	Type() domain.CompressionType

	// Compress returns the compressed form of src.
	Compress(src []byte) ([]byte, error)

	// CompressBounded is Compress that fails with ErrBufferTooSmall instead
	// of producing more than maxLen bytes.
	CompressBounded(src []byte, maxLen int) ([]byte, error)

	// Decompress restores src. expectedLen is the declared uncompressed size;
	// codecs may use it to size buffers, callers verify it.
	Decompress(src []byte, expectedLen int) ([]byte, error)
}

// SizeProber is implemented by codecs whose frames record the uncompressed
// size.
type SizeProber interface {
	// DecompressedSize reports the uncompressed length of src, or false when
	// it cannot be determined without decoding.
	DecompressedSize(src []byte) (int, bool)
}

// ChecksumCapable is implemented by codecs that support a per-frame checksum.
type ChecksumCapable interface {
	SupportsChecksum() bool
}

// DictionaryCodec is implemented by codecs that can be primed with a
// dictionary. WithDictionary returns a new codec bound to dict; the
// receiver is left unchanged. An empty dictionary yields a codec equivalent
// to the receiver.
type DictionaryCodec interface {
	Codec
	WithDictionary(dict *domain.Dictionary) (Codec, error)
}

// DictionaryTrainer builds dictionaries from samples for one algorithm.
type DictionaryTrainer interface {
	// TrainDictionary runs the algorithm's trainer over samples and returns a
	// dictionary of at most maxBytes.
	TrainDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error)

	// FinalizeDictionary builds a dictionary of at most maxBytes directly
	// from the raw samples without training.
	FinalizeDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error)
}

// CompressionManager resolves type tags to codecs. The set of claimed types
// is fixed when the manager is constructed, so lookups need no locking.
type CompressionManager interface {
	// Name identifies the manager in configuration errors and logs.
	Name() string

	// Types lists every tag the manager claims.
	Types() []domain.CompressionType

	// Claims reports whether the manager owns t.
	Claims(t domain.CompressionType) bool

	// Compressor returns a new codec configured with opts for writing blocks
	// of type t. The caller owns it and closes it if it implements io.Closer.
	Compressor(t domain.CompressionType, opts domain.CompressionOptions) (Codec, error)

	// Decompressor returns a codec able to read blocks of type t. It is
	// shared and owned by the manager.
	Decompressor(t domain.CompressionType) (Codec, error)

	// SupportsDictionary reports whether codecs of type t accept a dictionary.
	SupportsDictionary(t domain.CompressionType) bool

	// Trainer returns the dictionary trainer for t, if it has one.
	Trainer(t domain.CompressionType) (DictionaryTrainer, bool)

	Close() error
}
