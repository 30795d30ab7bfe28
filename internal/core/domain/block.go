package domain

// MaxBlockSize is the largest uncompressed length a block may declare.
// Decoders reserve output from the declared length, so anything larger is
// treated as corruption rather than trusted.
const MaxBlockSize = 1 << 30

// CompressedBlock is the stored form of one block: the persisted type tag,
// the payload that follows it and, optionally, a frame checksum covering the
// uncompressed bytes.
type CompressedBlock struct {
	// Type is the tag actually written. It is NoCompression whenever the
	// ratio gate or a codec failure forced raw storage, whatever type was
	// requested.
	Type CompressionType

	// Payload holds the compressed bytes, or the raw block for NoCompression.
	Payload []byte

	// RawLen is the uncompressed length. Decompression must reproduce exactly
	// this many bytes.
	RawLen int

	// Checksum is valid only when HasChecksum is set.
	Checksum    uint32
	HasChecksum bool
}

// Compressed reports whether the payload went through a codec.
func (b *CompressedBlock) Compressed() bool {
	return b.Type != NoCompression
}

// StoredLen is the number of bytes the block occupies, excluding framing.
func (b *CompressedBlock) StoredLen() int {
	n := len(b.Payload)
	if b.HasChecksum {
		n += 4
	}
	return n
}
