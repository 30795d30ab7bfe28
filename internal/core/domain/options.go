package domain

import (
	"errors"
	"fmt"
	"math"

	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
)

const (
	// DefaultCompressionLevel asks the codec to use its own default level.
	DefaultCompressionLevel = 32767

	DefaultWindowBits              = -14
	DefaultMaxCompressedBytesPerKb = 1024 * 7 / 8
	MinMaxCompressedBytesPerKb     = 1
	MaxMaxCompressedBytesPerKb     = 1024
)

// CompressionOptions configures one compression use-site (the regular tier,
// the bottommost tier, ...). A value is immutable for the lifetime of one
// output file build. Codec-specific fields are interpreted by the codec;
// fields it does not understand are ignored.
type CompressionOptions struct {
	// WindowBits is codec specific. For zlib a negative value selects a raw
	// deflate stream, 8..15 a zlib stream and values above 15 a gzip stream.
	//
	// Default: -14
	WindowBits int

	// Level is the codec compression level. DefaultCompressionLevel lets the
	// codec pick its own default. Otherwise larger means more compression and
	// more CPU, except where a codec documents differently (LZ4 treats
	// negative levels as acceleration factors).
	//
	// Default: DefaultCompressionLevel
	Level int

	// Strategy is codec specific. zlib maps 2 (Z_HUFFMAN_ONLY) to Huffman-only
	// encoding and ignores the other values.
	//
	// Default: 0
	Strategy int

	// MaxDictBytes caps the size of the per-file dictionary.
	// Zero disables dictionary compression entirely.
	//
	// Default: 0
	MaxDictBytes uint32

	// ZstdMaxTrainBytes bounds how many buffered sample bytes are handed to the
	// dictionary trainer. Zero skips training and finalizes the dictionary
	// straight from the raw samples.
	//
	// Default: 0
	ZstdMaxTrainBytes uint32

	// Enabled records that the options were supplied explicitly. It only
	// decides whether a bottommost-tier value replaces the top-level options;
	// a top-level value compresses regardless of Enabled.
	//
	// Default: false
	Enabled bool

	// MaxDictBufferBytes limits how many uncompressed bytes are buffered as
	// dictionary samples. Zero means the limit comes from the target size of
	// the file being built.
	//
	// Default: 0
	MaxDictBufferBytes uint64

	// UseZstdDictTrainer selects the trainer path when ZstdMaxTrainBytes is
	// non zero. When false, the dictionary is finalized from the raw samples.
	//
	// Default: true
	UseZstdDictTrainer bool

	// ParallelThreads is the number of workers compressing blocks of one
	// file. One disables the parallel scheduler.
	//
	// Default: 1
	ParallelThreads uint32

	// MaxCompressedBytesPerKb is the largest compressed size accepted per
	// 1024 input bytes. A block whose compressed form is larger is stored
	// uncompressed. Must be within [1, 1024].
	//
	// Default: 896 (a minimum ratio of 8/7)
	MaxCompressedBytesPerKb int

	// Checksum requests a per-frame checksum from codecs that support one.
	//
	// Default: false
	Checksum bool
}

// DefaultCompressionOptions returns the documented defaults.
func DefaultCompressionOptions() CompressionOptions {
	return CompressionOptions{
		WindowBits:              DefaultWindowBits,
		Level:                   DefaultCompressionLevel,
		UseZstdDictTrainer:      true,
		ParallelThreads:         1,
		MaxCompressedBytesPerKb: DefaultMaxCompressedBytesPerKb,
	}
}

// SetMinRatio sets MaxCompressedBytesPerKb so that a block must shrink by at
// least a factor of ratio to be stored compressed. The result is
// round(1024/ratio); Validate rejects ratios that land outside [1, 1024].
func (o *CompressionOptions) SetMinRatio(ratio float64) {
	if ratio <= 0 || math.IsNaN(ratio) {
		o.MaxCompressedBytesPerKb = 0
		return
	}
	v := 1024.0/ratio + 0.5
	if v > math.MaxInt32 {
		v = math.MaxInt32
	}
	o.MaxCompressedBytesPerKb = int(v)
}

// MinRatio reports the minimum compression ratio implied by
// MaxCompressedBytesPerKb.
func (o CompressionOptions) MinRatio() float64 {
	if o.MaxCompressedBytesPerKb <= 0 {
		return 0
	}
	return 1024.0 / float64(o.MaxCompressedBytesPerKb)
}

// Accepts applies the ratio gate: a compressed form of compressedLen bytes is
// kept for an input of rawLen bytes iff compressedLen*1024 <= rawLen*R.
func (o CompressionOptions) Accepts(rawLen, compressedLen int) bool {
	return uint64(compressedLen)*1024 <= uint64(rawLen)*uint64(o.MaxCompressedBytesPerKb)
}

// MaxAcceptedLen is the largest compressed length the ratio gate accepts
// for an input of rawLen bytes.
func (o CompressionOptions) MaxAcceptedLen(rawLen int) int {
	return int(uint64(rawLen) * uint64(o.MaxCompressedBytesPerKb) / 1024)
}

// DictionaryEnabled reports whether output files built with these options
// collect samples and train a dictionary.
func (o CompressionOptions) DictionaryEnabled() bool {
	return o.MaxDictBytes > 0
}

// Validate checks the range-constrained fields. Every failure is a
// *pkgerrors.ValidationError, which matches pkgerrors.ErrConfiguration.
func (o CompressionOptions) Validate() error {
	if o.MaxCompressedBytesPerKb < MinMaxCompressedBytesPerKb || o.MaxCompressedBytesPerKb > MaxMaxCompressedBytesPerKb {
		return pkgerrors.NewValidationError(
			"max_compressed_bytes_per_kb",
			o.MaxCompressedBytesPerKb,
			fmt.Errorf(
				"must be between %d and %d, got %d",
				MinMaxCompressedBytesPerKb, MaxMaxCompressedBytesPerKb, o.MaxCompressedBytesPerKb,
			),
		)
	}

	if o.ParallelThreads < 1 {
		return pkgerrors.NewValidationError(
			"parallel_threads", o.ParallelThreads, errors.New("must be at least 1"),
		)
	}

	return nil
}

// Tier pairs a compression type with the options it is used with.
type Tier struct {
	Type    CompressionType
	Options CompressionOptions
}

// ResolveTier picks the compression settings for one output file.
//
// Non-bottommost files always use top. A bottommost file uses the bottommost
// type unless it is DisableCompressionOption, and uses the bottommost options
// only when they were explicitly enabled; otherwise it falls back to the
// top-level options. Enabled on the top-level options never disables
// compression.
func ResolveTier(top, bottommost Tier, isBottommost bool) Tier {
	if !isBottommost {
		return top
	}

	resolved := top
	if bottommost.Type != DisableCompressionOption {
		resolved.Type = bottommost.Type
	}
	if bottommost.Options.Enabled {
		resolved.Options = bottommost.Options
	}
	return resolved
}
