package extra

import (
	"fmt"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/klauspost/compress/s2"
)

const maxS2DictSize = 64 << 10

// S2Codec encodes S2 blocks. Levels above 1 select EncodeBetter and levels
// above 3 EncodeBest; the default sentinel uses the plain encoder.
type S2Codec struct {
	typ   domain.CompressionType
	level int
	dict  *s2.Dict
}

func NewS2Codec(typ domain.CompressionType, level int, dict *domain.Dictionary) *S2Codec {
	c := &S2Codec{typ: typ, level: level}
	if !dict.Empty() {
		data := dict.Data
		if len(data) > maxS2DictSize {
			data = data[len(data)-maxS2DictSize:]
		}
		// MakeDict returns nil for content too short to be useful.
		c.dict = s2.MakeDict(data, nil)
	}
	return c
}

func (c *S2Codec) Type() domain.CompressionType {
	return c.typ
}

// Compress encodes data as one S2 block. Levels above 3 use the best
// encoder, 2 and 3 the better one, anything else the default. With a
// dictionary the same tiers run against it.
func (c *S2Codec) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, s2.MaxEncodedLen(len(data)))
	if c.dict != nil {
		switch {
		case c.level != domain.DefaultCompressionLevel && c.level > 3:
			return c.dict.EncodeBest(dst, data), nil
		case c.level != domain.DefaultCompressionLevel && c.level > 1:
			return c.dict.EncodeBetter(dst, data), nil
		default:
			return c.dict.Encode(dst, data), nil
		}
	}

	switch {
	case c.level != domain.DefaultCompressionLevel && c.level > 3:
		return s2.EncodeBest(dst, data), nil
	case c.level != domain.DefaultCompressionLevel && c.level > 1:
		return s2.EncodeBetter(dst, data), nil
	default:
		return s2.Encode(dst, data), nil
	}
}

func (c *S2Codec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	out, err := c.Compress(data)
	if err != nil {
		return nil, err
	}
	if len(out) > maxLen {
		return nil, ports.ErrBufferTooSmall
	}
	return out, nil
}

// Decompress checks the declared length against expectedLen before
// allocating, then decodes with the dictionary the codec was built with.
func (c *S2Codec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("s2 header: %w", err)
	}
	if n != expectedLen {
		return nil, fmt.Errorf("s2 block holds %d bytes, expected %d", n, expectedLen)
	}

	var out []byte
	if c.dict != nil {
		out, err = c.dict.Decode(make([]byte, n), data)
	} else {
		out, err = s2.Decode(make([]byte, n), data)
	}
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	if len(out) != expectedLen {
		return nil, fmt.Errorf("decompressed %d bytes, expected %d", len(out), expectedLen)
	}
	return out, nil
}

func (c *S2Codec) DecompressedSize(data []byte) (int, bool) {
	n, err := s2.DecodedLen(data)
	return n, err == nil
}

func (c *S2Codec) WithDictionary(dict *domain.Dictionary) (ports.Codec, error) {
	return NewS2Codec(c.typ, c.level, dict), nil
}
