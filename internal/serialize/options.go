package serialize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
)

// Keys of the structured form, in the order FormatCompressionOptions
// writes them.
const (
	keyWindowBits         = "window_bits"
	keyLevel              = "level"
	keyStrategy           = "strategy"
	keyMaxDictBytes       = "max_dict_bytes"
	keyZstdMaxTrainBytes  = "zstd_max_train_bytes"
	keyParallelThreads    = "parallel_threads"
	keyEnabled            = "enabled"
	keyMaxDictBufferBytes = "max_dict_buffer_bytes"
	keyUseZstdDictTrainer = "use_zstd_dict_trainer"
	keyMaxCompressedPerKb = "max_compressed_bytes_per_kb"
	keyChecksum           = "checksum"
)

var (
	ErrEmptyOptions = errors.New("empty compression options string")
	ErrUnknownKey   = errors.New("unknown compression option")
	ErrDuplicateKey = errors.New("duplicate compression option")
	ErrFieldCount   = errors.New("legacy compression options need 3 to 8 fields")
)

// legacyFields is the positional order of the colon-separated form.
var legacyFields = []string{
	keyLevel,
	keyWindowBits,
	keyStrategy,
	keyMaxDictBytes,
	keyZstdMaxTrainBytes,
	keyEnabled,
	keyMaxDictBufferBytes,
	keyUseZstdDictTrainer,
}

type setter func(o *domain.CompressionOptions, value string) error

var setters = map[string]setter{
	keyWindowBits: intField(func(o *domain.CompressionOptions, v int) { o.WindowBits = v }),
	keyLevel:      intField(func(o *domain.CompressionOptions, v int) { o.Level = v }),
	keyStrategy:   intField(func(o *domain.CompressionOptions, v int) { o.Strategy = v }),
	keyMaxDictBytes: uintField(32, func(o *domain.CompressionOptions, v uint64) {
		o.MaxDictBytes = uint32(v)
	}),
	keyZstdMaxTrainBytes: uintField(32, func(o *domain.CompressionOptions, v uint64) {
		o.ZstdMaxTrainBytes = uint32(v)
	}),
	keyParallelThreads: uintField(32, func(o *domain.CompressionOptions, v uint64) {
		o.ParallelThreads = uint32(v)
	}),
	keyEnabled: boolField(func(o *domain.CompressionOptions, v bool) { o.Enabled = v }),
	keyMaxDictBufferBytes: uintField(64, func(o *domain.CompressionOptions, v uint64) {
		o.MaxDictBufferBytes = v
	}),
	keyUseZstdDictTrainer: boolField(func(o *domain.CompressionOptions, v bool) { o.UseZstdDictTrainer = v }),
	keyMaxCompressedPerKb: intField(func(o *domain.CompressionOptions, v int) { o.MaxCompressedBytesPerKb = v }),
	keyChecksum:           boolField(func(o *domain.CompressionOptions, v bool) { o.Checksum = v }),
}

// ParseCompressionOptions accepts either textual form. Input containing '='
// is parsed as the structured form, anything else as the legacy form.
func ParseCompressionOptions(text string) (domain.CompressionOptions, error) {
	if strings.Contains(text, "=") {
		return ParseStructuredCompressionOptions(text)
	}
	return ParseLegacyCompressionOptions(text)
}

// ParseLegacyCompressionOptions parses
// level:window_bits:strategy[:max_dict_bytes[:zstd_max_train_bytes[:enabled[:max_dict_buffer_bytes[:use_zstd_dict_trainer]]]]].
// Omitted trailing fields keep their defaults.
func ParseLegacyCompressionOptions(text string) (domain.CompressionOptions, error) {
	opts := domain.DefaultCompressionOptions()

	text = strings.TrimSpace(text)
	if text == "" {
		return opts, pkgerrors.NewValidationError("compression_opts", text, ErrEmptyOptions)
	}

	parts := strings.Split(text, ":")
	if len(parts) < 3 || len(parts) > len(legacyFields) {
		return opts, pkgerrors.NewValidationError("compression_opts", text, ErrFieldCount)
	}

	for i, part := range parts {
		key := legacyFields[i]
		if err := setters[key](&opts, strings.TrimSpace(part)); err != nil {
			return opts, pkgerrors.NewValidationError(key, part, err)
		}
	}

	return opts, opts.Validate()
}

// ParseStructuredCompressionOptions parses {key=value;key=value;...}. The
// braces are optional, keys may come in any order, empty segments are
// skipped and unknown or repeated keys are rejected.
func ParseStructuredCompressionOptions(text string) (domain.CompressionOptions, error) {
	opts := domain.DefaultCompressionOptions()

	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "{") {
		if !strings.HasSuffix(body, "}") {
			return opts, pkgerrors.NewValidationError("compression_opts", text, errors.New("unbalanced braces"))
		}
		body = body[1 : len(body)-1]
	}
	if strings.TrimSpace(body) == "" {
		return opts, pkgerrors.NewValidationError("compression_opts", text, ErrEmptyOptions)
	}

	seen := make(map[string]bool, len(setters))
	for _, segment := range strings.Split(body, ";") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		key, value, ok := strings.Cut(segment, "=")
		key = strings.TrimSpace(key)
		if !ok {
			return opts, pkgerrors.NewValidationError(key, segment, errors.New("expected key=value"))
		}

		set, known := setters[key]
		if !known {
			return opts, pkgerrors.NewValidationError(key, value, ErrUnknownKey)
		}
		if seen[key] {
			return opts, pkgerrors.NewValidationError(key, value, ErrDuplicateKey)
		}
		seen[key] = true

		if err := set(&opts, strings.TrimSpace(value)); err != nil {
			return opts, pkgerrors.NewValidationError(key, value, err)
		}
	}

	return opts, opts.Validate()
}

// FormatCompressionOptions renders every field in the structured form.
// Parsing the result yields o again.
func FormatCompressionOptions(o domain.CompressionOptions) string {
	var b strings.Builder
	b.WriteByte('{')
	write := func(key, value string) {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte(';')
	}

	write(keyWindowBits, strconv.Itoa(o.WindowBits))
	write(keyLevel, strconv.Itoa(o.Level))
	write(keyStrategy, strconv.Itoa(o.Strategy))
	write(keyMaxDictBytes, strconv.FormatUint(uint64(o.MaxDictBytes), 10))
	write(keyZstdMaxTrainBytes, strconv.FormatUint(uint64(o.ZstdMaxTrainBytes), 10))
	write(keyParallelThreads, strconv.FormatUint(uint64(o.ParallelThreads), 10))
	write(keyEnabled, strconv.FormatBool(o.Enabled))
	write(keyMaxDictBufferBytes, strconv.FormatUint(o.MaxDictBufferBytes, 10))
	write(keyUseZstdDictTrainer, strconv.FormatBool(o.UseZstdDictTrainer))
	write(keyMaxCompressedPerKb, strconv.Itoa(o.MaxCompressedBytesPerKb))
	write(keyChecksum, strconv.FormatBool(o.Checksum))

	b.WriteByte('}')
	return b.String()
}

func intField(apply func(*domain.CompressionOptions, int)) setter {
	return func(o *domain.CompressionOptions, value string) error {
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid integer %q", value)
		}
		apply(o, int(v))
		return nil
	}
}

func uintField(bits int, apply func(*domain.CompressionOptions, uint64)) setter {
	return func(o *domain.CompressionOptions, value string) error {
		v, err := strconv.ParseUint(value, 10, bits)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", value)
		}
		apply(o, v)
		return nil
	}
}

// boolField accepts only the literals true and false.
func boolField(apply func(*domain.CompressionOptions, bool)) setter {
	return func(o *domain.CompressionOptions, value string) error {
		switch value {
		case "true":
			apply(o, true)
		case "false":
			apply(o, false)
		default:
			return fmt.Errorf("invalid boolean %q", value)
		}
		return nil
	}
}
