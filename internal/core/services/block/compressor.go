// Package block turns raw blocks into stored blocks and back. Compression
// never fails a write: any codec problem or insufficient saving stores the
// block raw. Decompression never hides a problem: every failure surfaces.
package block

import (
	"errors"
	"io"
	"sync/atomic"

	"github.com/iamNilotpal/blockcomp/internal/adapters/checksum"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Options struct {
	// Picker chooses the type of each block. Required.
	Picker Picker

	// Compression configures every codec and the ratio gate.
	Compression domain.CompressionOptions

	// Manager resolves codecs for the picked types. Required unless the
	// picker only yields NoCompression.
	Manager ports.CompressionManager

	// Dictionary primes codecs that support one. Nil or empty compresses
	// without a dictionary.
	Dictionary *domain.Dictionary

	// Checksum computes frame checksums when Compression.Checksum is set.
	// Nil selects xxhash32.
	Checksum ports.ChecksumPort

	Logger *zap.SugaredLogger
}

// Stats counts what a Compressor did. Misses are ratio-gate rejections and
// Failures are codec errors absorbed by raw storage.
type Stats struct {
	Blocks      uint64
	Compressed  uint64
	Misses      uint64
	Failures    uint64
	RawBytes    uint64
	StoredBytes uint64
}

// Compressor is safe for concurrent use; its codecs are fixed at
// construction.
type Compressor struct {
	picker    Picker
	opts      domain.CompressionOptions
	codecs    map[domain.CompressionType]ports.Codec
	checksums map[domain.CompressionType]bool
	checksum  ports.ChecksumPort
	log       *zap.SugaredLogger

	seq         atomic.Uint64
	blocks      atomic.Uint64
	compressed  atomic.Uint64
	misses      atomic.Uint64
	failures    atomic.Uint64
	rawBytes    atomic.Uint64
	storedBytes atomic.Uint64
}

// NewCompressor resolves a codec for every candidate type.
//
// Returns an error if:
// - the compression options fail validation (configuration error)
// - a candidate type is not claimed by the manager (unsupported)
// - the manager rejects the options for a codec
func NewCompressor(opts Options) (*Compressor, error) {
	if opts.Picker == nil {
		return nil, pkgerrors.NewConfigurationError("new compressor", errors.New("picker is required"))
	}
	if err := opts.Compression.Validate(); err != nil {
		return nil, err
	}

	c := &Compressor{
		picker:    opts.Picker,
		opts:      opts.Compression,
		codecs:    make(map[domain.CompressionType]ports.Codec),
		checksums: make(map[domain.CompressionType]bool),
		checksum:  opts.Checksum,
		log:       logger.OrNop(opts.Logger),
	}
	if c.checksum == nil {
		c.checksum = checksum.NewXXHash32()
	}

	for _, t := range opts.Picker.Candidates() {
		if t == domain.NoCompression || t == domain.DisableCompressionOption {
			continue
		}
		if _, ok := c.codecs[t]; ok {
			continue
		}
		if opts.Manager == nil {
			c.Close()
			return nil, pkgerrors.NewConfigurationError("new compressor", errors.New("manager is required"))
		}

		codec, err := opts.Manager.Compressor(t, opts.Compression)
		if err != nil {
			c.Close()
			return nil, err
		}

		if !opts.Dictionary.Empty() && opts.Manager.SupportsDictionary(t) {
			if dc, ok := codec.(ports.DictionaryCodec); ok {
				primed, err := dc.WithDictionary(opts.Dictionary)
				closeCodec(codec)
				if err != nil {
					c.Close()
					return nil, pkgerrors.NewConfigurationError("prime dictionary", err)
				}
				codec = primed
			}
		}

		c.codecs[t] = codec
		if cc, ok := codec.(ports.ChecksumCapable); ok && opts.Compression.Checksum && cc.SupportsChecksum() {
			c.checksums[t] = true
		}
	}

	return c, nil
}

// Compress stores raw using the next internal sequence number for picking.
func (c *Compressor) Compress(raw []byte) *domain.CompressedBlock {
	return c.CompressAt(c.seq.Add(1)-1, raw)
}

// CompressAt stores raw as block number seq of its file. The result never
// reports an error: a missing saving or a codec failure yields a raw block
// tagged NoCompression. A raw payload aliases raw, so callers must not
// modify raw afterwards.
func (c *Compressor) CompressAt(seq uint64, raw []byte) *domain.CompressedBlock {
	c.blocks.Add(1)
	c.rawBytes.Add(uint64(len(raw)))

	blk := c.compress(seq, raw)

	c.storedBytes.Add(uint64(blk.StoredLen()))
	if blk.Compressed() {
		c.compressed.Add(1)
	}
	return blk
}

func (c *Compressor) compress(seq uint64, raw []byte) *domain.CompressedBlock {
	t := c.picker.Pick(seq, raw)
	codec, ok := c.codecs[t]
	if !ok || len(raw) == 0 {
		return rawBlock(raw)
	}

	out, err := codec.CompressBounded(raw, c.opts.MaxAcceptedLen(len(raw)))
	switch {
	case ports.IsBufferTooSmall(err):
		c.misses.Add(1)
		return rawBlock(raw)
	case err != nil:
		c.failures.Add(1)
		c.log.Warnw("compression failed, storing block raw", "type", t.String(), "seq", seq, "error", err)
		return rawBlock(raw)
	case !c.opts.Accepts(len(raw), len(out)):
		c.misses.Add(1)
		return rawBlock(raw)
	}

	blk := &domain.CompressedBlock{Type: t, Payload: out, RawLen: len(raw)}
	if c.checksums[t] {
		blk.Checksum = c.checksum.Calculate(raw)
		blk.HasChecksum = true
	}
	return blk
}

func rawBlock(raw []byte) *domain.CompressedBlock {
	return &domain.CompressedBlock{Type: domain.NoCompression, Payload: raw, RawLen: len(raw)}
}

// Stats returns a snapshot of the counters.
func (c *Compressor) Stats() Stats {
	return Stats{
		Blocks:      c.blocks.Load(),
		Compressed:  c.compressed.Load(),
		Misses:      c.misses.Load(),
		Failures:    c.failures.Load(),
		RawBytes:    c.rawBytes.Load(),
		StoredBytes: c.storedBytes.Load(),
	}
}

// Close releases codecs that hold resources.
func (c *Compressor) Close() error {
	var err error
	for _, codec := range c.codecs {
		err = multierr.Append(err, closeCodec(codec))
	}
	return err
}

func closeCodec(codec ports.Codec) error {
	if closer, ok := codec.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
