package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// CompressionType is the one-byte tag persisted in front of every stored
// block. Assigned values are permanent: they are never renumbered or reused.
type CompressionType uint8

const (
	NoCompression     CompressionType = 0x00
	SnappyCompression CompressionType = 0x01
	ZlibCompression   CompressionType = 0x02
	BZip2Compression  CompressionType = 0x03
	LZ4Compression    CompressionType = 0x04
	LZ4HCCompression  CompressionType = 0x05
	XpressCompression CompressionType = 0x06
	ZSTDCompression   CompressionType = 0x07

	// DisableCompressionOption marks an unset per-level option. It is never
	// written to disk and can never be claimed by a codec.
	DisableCompressionOption CompressionType = 0xFF
)

// Reserved ranges of the tag space. Membership is decided by range checks so
// new builtins only have to move LastBuiltinCompression.
const (
	FirstBuiltinCompression = SnappyCompression
	LastBuiltinCompression  = ZSTDCompression

	FirstReservedCompression CompressionType = 0x08
	LastReservedCompression  CompressionType = 0x7F

	FirstCustomCompression CompressionType = 0x80
	LastCustomCompression  CompressionType = 0xFE
)

var builtinNames = [...]string{
	NoCompression:     "NoCompression",
	SnappyCompression: "Snappy",
	ZlibCompression:   "Zlib",
	BZip2Compression:  "BZip2",
	LZ4Compression:    "LZ4",
	LZ4HCCompression:  "LZ4HC",
	XpressCompression: "Xpress",
	ZSTDCompression:   "ZSTD",
}

func (t CompressionType) String() string {
	switch {
	case t <= LastBuiltinCompression:
		return builtinNames[t]
	case t.IsCustom():
		return fmt.Sprintf("Custom%02X", uint8(t))
	case t == DisableCompressionOption:
		return "DisableOption"
	default:
		return fmt.Sprintf("Reserved(0x%02X)", uint8(t))
	}
}

// IsBuiltin reports whether t is one of the engine-shipped algorithms.
// NoCompression is not an algorithm and is excluded.
func (t CompressionType) IsBuiltin() bool {
	return t >= FirstBuiltinCompression && t <= LastBuiltinCompression
}

// IsCustom reports whether t lies in the user-assignable range.
func (t CompressionType) IsCustom() bool {
	return t >= FirstCustomCompression && t <= LastCustomCompression
}

// IsReserved reports whether t lies in the gap kept for future builtins.
func (t CompressionType) IsReserved() bool {
	return t >= FirstReservedCompression && t <= LastReservedCompression
}

// IsValid reports whether t may appear as a persisted block tag.
func (t CompressionType) IsValid() bool {
	return t == NoCompression || t.IsBuiltin() || t.IsCustom()
}

// ParseCompressionType accepts a type name ("zstd", "kZSTD",
// "kZSTDCompression", "custom90", "none") or a decimal/hex number ("7",
// "0x90").
func ParseCompressionType(text string) (CompressionType, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return NoCompression, fmt.Errorf("empty compression type")
	}

	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return CompressionType(n), nil
	}

	name := strings.ToLower(s)
	if len(name) > 1 && name[0] == 'k' && s[1] >= 'A' && s[1] <= 'Z' {
		name = name[1:]
	}
	if name != "nocompression" {
		name = strings.TrimSuffix(name, "compression")
	}

	switch name {
	case "", "no", "none", "nocompression":
		return NoCompression, nil
	case "disable", "disableoption", "disablecompressionoption":
		return DisableCompressionOption, nil
	}

	for i, builtin := range builtinNames {
		if strings.ToLower(builtin) == name {
			return CompressionType(i), nil
		}
	}

	if hex, ok := strings.CutPrefix(name, "custom"); ok {
		if n, err := strconv.ParseUint(hex, 16, 8); err == nil && CompressionType(n).IsCustom() {
			return CompressionType(n), nil
		}
	}

	return NoCompression, fmt.Errorf("unknown compression type %q", text)
}
