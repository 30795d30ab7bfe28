package compression

import (
	"fmt"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/pierrec/lz4/v4"
)

// lz4MaxExpansion is the most output a single byte of a raw LZ4 block can
// decode to.
const lz4MaxExpansion = 255

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Fast, lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4,
	lz4.Level5, lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// lz4HCLevel maps a numeric level to an HC level. The default sentinel and
// anything above 9 select Level9; zero and negative levels select Fast.
func lz4HCLevel(level int) lz4.CompressionLevel {
	switch {
	case level == domain.DefaultCompressionLevel || level >= len(lz4Levels):
		return lz4.Level9
	case level <= 0:
		return lz4.Fast
	default:
		return lz4Levels[level]
	}
}

// LZ4Codec produces raw LZ4 blocks. With hc set it runs the high compression
// matcher at the configured level.
type LZ4Codec struct {
	typ   domain.CompressionType
	hc    bool
	level lz4.CompressionLevel
}

// NewLZ4Codec returns the fast LZ4 codec. Acceleration levels are not
// exposed by the block API, so level is accepted and ignored.
func NewLZ4Codec(level int) *LZ4Codec {
	return &LZ4Codec{typ: domain.LZ4Compression, level: lz4.Fast}
}

// NewLZ4HCCodec returns the high compression LZ4 codec at level.
func NewLZ4HCCodec(level int) *LZ4Codec {
	return &LZ4Codec{typ: domain.LZ4HCCompression, hc: true, level: lz4HCLevel(level)}
}

func (l *LZ4Codec) Type() domain.CompressionType {
	return l.typ
}

// Compress encodes data as one raw LZ4 block, without the frame format.
// The block encoder reports incompressible input by writing nothing, which
// is returned as an error.
func (l *LZ4Codec) Compress(data []byte) ([]byte, error) {
	out, err := l.compressInto(data, make([]byte, lz4.CompressBlockBound(len(data))))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 && len(data) > 0 {
		return nil, fmt.Errorf("lz4 produced no output for %d bytes", len(data))
	}
	return out, nil
}

// CompressBounded compresses straight into a maxLen buffer; the block
// encoder gives up instead of overflowing it.
func (l *LZ4Codec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		return nil, ports.ErrBufferTooSmall
	}
	out, err := l.compressInto(data, make([]byte, maxLen))
	if err != nil || (len(out) == 0 && len(data) > 0) {
		return nil, ports.ErrBufferTooSmall
	}
	return out, nil
}

func (l *LZ4Codec) compressInto(data, dst []byte) ([]byte, error) {
	var (
		n   int
		err error
	)
	if l.hc {
		c := lz4.CompressorHC{Level: l.level}
		n, err = c.CompressBlock(data, dst)
	} else {
		var c lz4.Compressor
		n, err = c.CompressBlock(data, dst)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compression failed: %w", err)
	}
	return dst[:n], nil
}

// Decompress needs expectedLen: raw LZ4 blocks do not record their size.
// A length the payload cannot possibly expand to is rejected before any
// output is allocated.
func (l *LZ4Codec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	if expectedLen < 0 || expectedLen > lz4MaxExpansion*len(data)+16 {
		return nil, fmt.Errorf("lz4 block of %d bytes cannot hold %d bytes", len(data), expectedLen)
	}
	out := make([]byte, expectedLen)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return checkLen(out[:n], expectedLen)
}
