package domain

// ChecksumAlgorithm names the function used for per-frame checksums.
type ChecksumAlgorithm string

// ChecksumOptions selects how frame checksums are produced and checked.
type ChecksumOptions struct {
	// Algorithm specifies which checksum algorithm to use.
	// Defaults to xxhash32 if not specified.
	Algorithm ChecksumAlgorithm

	// VerifyOnRead determines if stored checksums are verified before a
	// decompressed block is returned. Disabling it trades corruption
	// detection for speed.
	//
	// Default: true
	VerifyOnRead bool
}
