package ports

// ChecksumPort calculates and verifies frame checksums over uncompressed
// block bytes. Stored checksums are 32 bits wide; wider algorithms keep their
// low 32 bits.
type ChecksumPort interface {
	Calculate(data []byte) uint32
	Verify(data []byte, expected uint32) bool
	Name() string
}
