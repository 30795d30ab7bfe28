package block

import (
	"errors"
	"fmt"
	"sync"

	"github.com/iamNilotpal/blockcomp/internal/adapters/checksum"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"go.uber.org/multierr"
)

var (
	ErrLengthMismatch   = errors.New("decompressed length mismatch")
	ErrChecksumMismatch = errors.New("block checksum mismatch")
)

type DecompressorOptions struct {
	// Manager resolves the codec of every stored tag. Required.
	Manager ports.CompressionManager

	// Dictionary is the dictionary the file was written with, if any.
	Dictionary *domain.Dictionary

	// Checksum verifies stored checksums. Nil selects xxhash32.
	Checksum ports.ChecksumPort

	// SkipVerify disables checksum verification.
	SkipVerify bool
}

// Decompressor restores the blocks of one file. It is safe for concurrent
// use.
type Decompressor struct {
	manager  ports.CompressionManager
	dict     *domain.Dictionary
	checksum ports.ChecksumPort
	verify   bool

	mu     sync.Mutex
	primed map[domain.CompressionType]ports.Codec
}

// NewDecompressor returns a Decompressor for one file. Codecs primed with
// the file dictionary are built lazily and cached per type.
func NewDecompressor(opts DecompressorOptions) (*Decompressor, error) {
	if opts.Manager == nil {
		return nil, pkgerrors.NewConfigurationError("new decompressor", errors.New("manager is required"))
	}
	d := &Decompressor{
		manager:  opts.Manager,
		dict:     opts.Dictionary,
		checksum: opts.Checksum,
		verify:   !opts.SkipVerify,
		primed:   make(map[domain.CompressionType]ports.Codec),
	}
	if d.checksum == nil {
		d.checksum = checksum.NewXXHash32()
	}
	return d, nil
}

// Decompress returns exactly blk.RawLen bytes or an error. A tag no manager
// claims is Unsupported; every other failure is Corruption.
func (d *Decompressor) Decompress(blk *domain.CompressedBlock) ([]byte, error) {
	t := blk.Type
	if blk.RawLen < 0 || blk.RawLen > domain.MaxBlockSize {
		return nil, pkgerrors.NewCorruptionError("decompress", uint8(t), fmt.Errorf("length %d out of range", blk.RawLen))
	}

	var out []byte
	if t == domain.NoCompression {
		if len(blk.Payload) != blk.RawLen {
			return nil, pkgerrors.NewCorruptionError(
				"decompress", uint8(t),
				fmt.Errorf("%w: raw payload holds %d bytes, expected %d", ErrLengthMismatch, len(blk.Payload), blk.RawLen),
			)
		}
		out = blk.Payload
	} else {
		codec, err := d.codec(t)
		if err != nil {
			return nil, err
		}

		out, err = codec.Decompress(blk.Payload, blk.RawLen)
		if err != nil {
			return nil, pkgerrors.NewCorruptionError("decompress", uint8(t), err)
		}
		if len(out) != blk.RawLen {
			return nil, pkgerrors.NewCorruptionError(
				"decompress", uint8(t),
				fmt.Errorf("%w: got %d bytes, expected %d", ErrLengthMismatch, len(out), blk.RawLen),
			)
		}
	}

	if blk.HasChecksum && d.verify && !d.checksum.Verify(out, blk.Checksum) {
		return nil, pkgerrors.NewCorruptionError("verify checksum", uint8(t), ErrChecksumMismatch)
	}
	return out, nil
}

// codec resolves t, priming it with the file dictionary when supported.
func (d *Decompressor) codec(t domain.CompressionType) (ports.Codec, error) {
	if !t.IsValid() {
		return nil, pkgerrors.NewUnsupportedError("decompress", uint8(t), nil)
	}

	base, err := d.manager.Decompressor(t)
	if err != nil {
		return nil, err
	}
	if d.dict.Empty() || !d.manager.SupportsDictionary(t) {
		return base, nil
	}
	dc, ok := base.(ports.DictionaryCodec)
	if !ok {
		return base, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if codec, ok := d.primed[t]; ok {
		return codec, nil
	}
	codec, err := dc.WithDictionary(d.dict)
	if err != nil {
		return nil, pkgerrors.NewCorruptionError("load dictionary", uint8(t), err)
	}
	d.primed[t] = codec
	return codec, nil
}

// Close releases codecs primed with the dictionary.
func (d *Decompressor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	for t, codec := range d.primed {
		err = multierr.Append(err, closeCodec(codec))
		delete(d.primed, t)
	}
	return err
}
