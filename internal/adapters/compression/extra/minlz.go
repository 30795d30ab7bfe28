package extra

import (
	"fmt"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/minio/minlz"
)

// MinLZCodec maps levels 1, 2 and 3+ to the fastest, balanced and smallest
// encoders. The default sentinel selects balanced.
type MinLZCodec struct {
	typ   domain.CompressionType
	level int
}

func NewMinLZCodec(typ domain.CompressionType, level int) *MinLZCodec {
	switch {
	case level == domain.DefaultCompressionLevel:
		level = minlz.LevelBalanced
	case level <= 1:
		level = minlz.LevelFastest
	case level == 2:
		level = minlz.LevelBalanced
	default:
		level = minlz.LevelSmallest
	}
	return &MinLZCodec{typ: typ, level: level}
}

func (c *MinLZCodec) Type() domain.CompressionType {
	return c.typ
}

// Compress encodes data as one MinLZ block at the codec level.
func (c *MinLZCodec) Compress(data []byte) ([]byte, error) {
	out, err := minlz.Encode(make([]byte, 0, minlz.MaxEncodedLen(len(data))), data, c.level)
	if err != nil {
		return nil, fmt.Errorf("minlz compression failed: %w", err)
	}
	return out, nil
}

func (c *MinLZCodec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	out, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	if len(out) > maxLen {
		return nil, ports.ErrBufferTooSmall
	}
	return out, nil
}

// Decompress validates the block header length before allocating.
func (c *MinLZCodec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	n, err := minlz.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("minlz header: %w", err)
	}
	if n != expectedLen {
		return nil, fmt.Errorf("minlz block holds %d bytes, expected %d", n, expectedLen)
	}

	out, err := minlz.Decode(make([]byte, n), data)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return out, nil
}

func (c *MinLZCodec) DecompressedSize(data []byte) (int, bool) {
	n, err := minlz.DecodedLen(data)
	return n, err == nil
}
