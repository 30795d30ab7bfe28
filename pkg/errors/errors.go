package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies the failures the compression layer can surface.
// Budget exhaustion and ratio-gate misses are absorbed internally and
// never reach callers, so they have no category here.
type ErrorCategory int

const (
	// ErrorConfiguration indicates a construction-time failure such as two
	// managers claiming the same type identifier or an option outside its
	// documented range.
	ErrorConfiguration ErrorCategory = iota + 1

	// ErrorUnsupported indicates a type tag that no loaded manager claims,
	// or a claimed algorithm whose codec is unavailable in this process.
	ErrorUnsupported

	// ErrorCorruption indicates stored bytes that cannot be restored:
	// codec failures, length mismatches and checksum mismatches.
	ErrorCorruption
)

var (
	ErrConfiguration = errors.New("invalid compression configuration")
	ErrUnsupported   = errors.New("unsupported compression type")
	ErrCorruption    = errors.New("corrupted compressed block")
)

// String returns the string representation of the error category.
// This is useful for logging and error reporting.
func (c ErrorCategory) String() string {
	switch c {
	case ErrorConfiguration:
		return "configuration"
	case ErrorUnsupported:
		return "unsupported"
	case ErrorCorruption:
		return "corruption"
	default:
		return "unknown"
	}
}

func (c ErrorCategory) sentinel() error {
	switch c {
	case ErrorConfiguration:
		return ErrConfiguration
	case ErrorUnsupported:
		return ErrUnsupported
	case ErrorCorruption:
		return ErrCorruption
	default:
		return nil
	}
}

// CompressionError carries the category, the failing operation and, when
// known, the one-byte compression type involved.
type CompressionError struct {
	Err       error
	Operation string
	Type      uint8
	HasType   bool
	Category  ErrorCategory
}

func (e *CompressionError) Error() string {
	if e.HasType {
		return fmt.Sprintf("[%v] %s (type 0x%02X): %v", e.Category, e.Operation, e.Type, e.Err)
	}
	return fmt.Sprintf("[%v] %s: %v", e.Category, e.Operation, e.Err)
}

func (e *CompressionError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the category sentinels (ErrCorruption and friends).
func (e *CompressionError) Is(target error) bool {
	s := e.Category.sentinel()
	return s != nil && target == s
}

// IsRetryAble returns whether errors of this category can be retried.
// This helps callers decide whether to retry failed operations.
func (e *CompressionError) IsRetryAble() bool {
	switch e.Category {
	case ErrorUnsupported:
		// Reopening with a different set of managers may succeed.
		return true
	case ErrorConfiguration:
		return false
	case ErrorCorruption:
		// The stored bytes will not change on their own.
		return false
	default:
		return false
	}
}

// NewConfigurationError wraps err as a configuration failure of operation.
func NewConfigurationError(operation string, err error) *CompressionError {
	return &CompressionError{Err: err, Operation: operation, Category: ErrorConfiguration}
}

// NewUnsupportedError reports that type t cannot be served.
func NewUnsupportedError(operation string, t uint8, err error) *CompressionError {
	if err == nil {
		err = ErrUnsupported
	}
	return &CompressionError{Err: err, Operation: operation, Type: t, HasType: true, Category: ErrorUnsupported}
}

// NewCorruptionError reports that a block of type t could not be restored.
func NewCorruptionError(operation string, t uint8, err error) *CompressionError {
	if err == nil {
		err = ErrCorruption
	}
	return &CompressionError{Err: err, Operation: operation, Type: t, HasType: true, Category: ErrorCorruption}
}

// IsConfigurationError reports whether err, or anything it wraps, is a
// configuration failure. Validation errors count as configuration failures.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsUnsupportedError(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

func IsCorruptionError(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// AsCompressionError attempts to extract a CompressionError from a given error.
func AsCompressionError(err error) *CompressionError {
	var ce *CompressionError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}
