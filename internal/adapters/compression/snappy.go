package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
)

// SnappyCodec is stateless; level, strategy and dictionaries do not apply.
type SnappyCodec struct{}

// NewSnappyCodec returns the Snappy codec. It holds no state, so one value
// can be shared by every goroutine.
func NewSnappyCodec() *SnappyCodec {
	return &SnappyCodec{}
}

func (s *SnappyCodec) Type() domain.CompressionType {
	return domain.SnappyCompression
}

// Compress encodes data as a single Snappy block. Snappy never fails on
// valid input; the error is always nil.
func (s *SnappyCodec) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(make([]byte, snappy.MaxEncodedLen(len(data))), data), nil
}

func (s *SnappyCodec) CompressBounded(data []byte, maxLen int) ([]byte, error) {
	out, err := s.Compress(data)
	return bounded(out, err, maxLen)
}

// Decompress restores a Snappy block.
//
// Returns an error if:
// - The block header is malformed
// - The header declares a length other than expectedLen
// - The block body is not valid Snappy data
func (s *SnappyCodec) Decompress(data []byte, expectedLen int) ([]byte, error) {
	n, err := snappy.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("snappy header: %w", err)
	}
	if n != expectedLen {
		return nil, fmt.Errorf("snappy block holds %d bytes, expected %d", n, expectedLen)
	}

	out, err := snappy.Decode(make([]byte, n), data)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	return checkLen(out, expectedLen)
}

// DecompressedSize reads the uncompressed length from the block header.
func (s *SnappyCodec) DecompressedSize(data []byte) (int, bool) {
	n, err := snappy.DecodedLen(data)
	return n, err == nil
}
