// Package checksum provides the frame checksum algorithms stored next to
// compressed blocks.
package checksum

import (
	"fmt"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
)

const (
	// XXHash32 keeps the low 32 bits of XXH64, which is exactly the content
	// checksum zstd writes at the end of its frames.
	XXHash32 domain.ChecksumAlgorithm = "xxhash32"

	// CRC32IEEE uses the IEEE polynomial for CRC32 checksums
	CRC32IEEE domain.ChecksumAlgorithm = "crc32-ieee"

	// CRC64ISO uses the ISO polynomial, truncated to 32 bits
	CRC64ISO domain.ChecksumAlgorithm = "crc64-iso"

	// CRC64ECMA uses the ECMA polynomial, truncated to 32 bits
	CRC64ECMA domain.ChecksumAlgorithm = "crc64-ecma"
)

// Returns recommended checksum settings.
func DefaultOptions() *domain.ChecksumOptions {
	return &domain.ChecksumOptions{
		Algorithm:    XXHash32,
		VerifyOnRead: true,
	}
}

func Validate(input *domain.ChecksumOptions) error {
	switch input.Algorithm {
	case "", XXHash32, CRC32IEEE, CRC64ISO, CRC64ECMA:
		return nil
	default:
		return pkgerrors.NewValidationError(
			"checksum_algorithm", input.Algorithm, fmt.Errorf("unsupported checksum algorithm: %s", input.Algorithm),
		)
	}
}

// NewCheckSummer returns the implementation of algorithm. An empty name
// selects XXHash32.
func NewCheckSummer(algorithm domain.ChecksumAlgorithm) (ports.ChecksumPort, error) {
	switch algorithm {
	case "", XXHash32:
		return NewXXHash32(), nil
	case CRC32IEEE:
		return NewCRC32IEEE(), nil
	case CRC64ISO:
		return NewCRC64ISO(), nil
	case CRC64ECMA:
		return NewCRC64ECMA(), nil
	default:
		return nil, Validate(&domain.ChecksumOptions{Algorithm: algorithm})
	}
}
