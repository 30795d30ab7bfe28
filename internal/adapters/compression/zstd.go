package compression

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/klauspost/compress/zstd"
)

// zstdDictMagic starts every trained (non raw-content) zstd dictionary.
var zstdDictMagic = [4]byte{0x37, 0xA4, 0x30, 0xEC}

// minRawDictSize is the smallest raw-content dictionary worth registering.
const minRawDictSize = 8

type ZstdOptions struct {
	// Level is a zstd level (1-22) or domain.DefaultCompressionLevel.
	Level int

	// Checksum adds the xxhash content checksum to every frame.
	Checksum bool

	// Concurrency bounds concurrent EncodeAll and DecodeAll calls.
	// Default is GOMAXPROCS if set to 0.
	Concurrency int

	// Dictionary primes both directions when not empty.
	Dictionary *domain.Dictionary
}

// ZstdCodec implements ports.Codec using the zstd compression algorithm.
// It provides thread-safe compression and decompression operations with
// configurable levels, optional frame checksums and dictionary priming.
type ZstdCodec struct {
	opts    ZstdOptions   // Options the codec was built with, reused by WithDictionary
	mu      sync.RWMutex  // Protects concurrent access to encoder and decoder against Close
	decoder *zstd.Decoder // Thread-safe decoder instance for decompression
	encoder *zstd.Encoder // Thread-safe encoder instance for compression
}

// ZstdEncoderLevel maps a numeric level to the closest encoder speed.
// The default sentinel selects zstd.SpeedDefault.
func ZstdEncoderLevel(level int) zstd.EncoderLevel {
	if level == domain.DefaultCompressionLevel {
		return zstd.SpeedDefault
	}
	return zstd.EncoderLevelFromZstd(level)
}

// NewZstdCodec creates a new zstd codec.
//
// Returns an error if:
// - The dictionary is trained but malformed
// - The encoder or decoder initialization fails
func NewZstdCodec(opts ZstdOptions) (*ZstdCodec, error) {
	encoderOpts := []zstd.EOption{
		zstd.WithEncoderLevel(ZstdEncoderLevel(opts.Level)),
		zstd.WithEncoderCRC(opts.Checksum),
	}
	decoderOpts := []zstd.DOption{}

	if opts.Concurrency > 0 {
		encoderOpts = append(encoderOpts, zstd.WithEncoderConcurrency(opts.Concurrency))
		decoderOpts = append(decoderOpts, zstd.WithDecoderConcurrency(opts.Concurrency))
	}

	if dict := opts.Dictionary; !dict.Empty() {
		if IsZstdTrainedDictionary(dict.Data) {
			encoderOpts = append(encoderOpts, zstd.WithEncoderDict(dict.Data))
			decoderOpts = append(decoderOpts, zstd.WithDecoderDicts(dict.Data))
		} else if len(dict.Data) >= minRawDictSize {
			id := dict.ID
			if id == 0 {
				id = RawDictionaryID(dict.Data)
			}
			encoderOpts = append(encoderOpts, zstd.WithEncoderDictRaw(id, dict.Data))
			decoderOpts = append(decoderOpts, zstd.WithDecoderDictRaw(id, dict.Data))
		}
	}

	encoder, err := zstd.NewWriter(nil, encoderOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil, decoderOpts...)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &ZstdCodec{opts: opts, encoder: encoder, decoder: decoder}, nil
}

func (z *ZstdCodec) Type() domain.CompressionType {
	return domain.ZSTDCompression
}

// Compress encodes data as a single zstd frame.
// The operation is thread-safe and can be called concurrently.
func (z *ZstdCodec) Compress(data []byte) ([]byte, error) {
	z.mu.RLock()
	defer z.mu.RUnlock()

	return z.encoder.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
}

func (z *ZstdCodec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	out, err := z.Compress(data)
	return bounded(out, err, maxLen)
}

// Decompress restores the original data from its compressed form.
// The operation is thread-safe and can be called concurrently.
//
// Returns an error if:
// - The input data is not valid zstd compressed data
// - The frame references a dictionary this codec was not built with
// - The frame checksum does not match
// - The output length differs from expectedLen
func (z *ZstdCodec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	if n, ok := z.DecompressedSize(data); ok && n != expectedLen {
		return nil, fmt.Errorf("zstd frame holds %d bytes, expected %d", n, expectedLen)
	}

	z.mu.RLock()
	defer z.mu.RUnlock()

	decompressed, err := z.decoder.DecodeAll(data, make([]byte, 0, preallocLen(expectedLen)))
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	return checkLen(decompressed, expectedLen)
}

// DecompressedSize reads the frame content size from the frame header.
func (z *ZstdCodec) DecompressedSize(data []byte) (int, bool) {
	var header zstd.Header
	if err := header.Decode(data); err != nil || !header.HasFCS {
		return 0, false
	}
	return int(header.FrameContentSize), true
}

func (z *ZstdCodec) SupportsChecksum() bool {
	return true
}

// WithDictionary returns a new codec with the same settings primed with dict.
func (z *ZstdCodec) WithDictionary(dict *domain.Dictionary) (ports.Codec, error) {
	opts := z.opts
	opts.Dictionary = dict
	return NewZstdCodec(opts)
}

// Level returns the configured compression level.
func (z *ZstdCodec) Level() int {
	return z.opts.Level
}

// Close releases all resources used by the codec.
// After closing, the codec cannot be used for compression or decompression.
func (z *ZstdCodec) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if err := z.encoder.Close(); err != nil {
		return fmt.Errorf("error closing encoder : %w", err)
	}

	z.decoder.Close()
	return nil
}

// IsZstdTrainedDictionary reports whether data carries the zstd dictionary
// magic. Anything else is used as raw content.
func IsZstdTrainedDictionary(data []byte) bool {
	return len(data) >= 8 && [4]byte(data[:4]) == zstdDictMagic
}

// ZstdDictionaryID returns the id stored in a trained dictionary header.
func ZstdDictionaryID(data []byte) uint32 {
	if !IsZstdTrainedDictionary(data) {
		return 0
	}
	return binary.LittleEndian.Uint32(data[4:8])
}

// RawDictionaryID derives a non-zero frame dictionary id from raw content.
func RawDictionaryID(data []byte) uint32 {
	id := uint32(xxhash.Sum64(data))
	if id == 0 {
		id = 1
	}
	return id
}
