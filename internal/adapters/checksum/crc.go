package checksum

import (
	"hash/crc32"
	"hash/crc64"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
)

var (
	ieeeTable = crc32.MakeTable(crc32.IEEE)
	isoTable  = crc64.MakeTable(crc64.ISO)
	ecmaTable = crc64.MakeTable(crc64.ECMA)
)

// crcSum is a table driven CRC folded into the 32-bit field stored with
// every block. The 64-bit polynomials keep their low half.
type crcSum struct {
	algorithm domain.ChecksumAlgorithm
	sum       func([]byte) uint32
}

func NewCRC32IEEE() *crcSum {
	return &crcSum{algorithm: CRC32IEEE, sum: func(b []byte) uint32 { return crc32.Checksum(b, ieeeTable) }}
}

func NewCRC64ISO() *crcSum {
	return &crcSum{algorithm: CRC64ISO, sum: func(b []byte) uint32 { return uint32(crc64.Checksum(b, isoTable)) }}
}

func NewCRC64ECMA() *crcSum {
	return &crcSum{algorithm: CRC64ECMA, sum: func(b []byte) uint32 { return uint32(crc64.Checksum(b, ecmaTable)) }}
}

func (c *crcSum) Calculate(data []byte) uint32 { return c.sum(data) }

func (c *crcSum) Verify(data []byte, expected uint32) bool { return c.sum(data) == expected }

func (c *crcSum) Name() string { return string(c.algorithm) }
