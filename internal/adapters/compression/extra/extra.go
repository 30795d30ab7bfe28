// Package extra provides a custom compression manager with codecs that are
// not part of the builtin set: S2 and MinLZ. Their tags live in the custom
// range starting at a configurable base.
package extra

import (
	"errors"
	"fmt"

	"github.com/iamNilotpal/blockcomp/internal/adapters/compression"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
)

const (
	ManagerName = "extra"

	// DefaultBase is the first tag claimed: S2 at 0x80, MinLZ at 0x81.
	DefaultBase domain.CompressionType = 0x80
)

// Manager claims Base (S2) and Base+1 (MinLZ).
type Manager struct {
	name     string
	s2Type   domain.CompressionType
	minlzTyp domain.CompressionType
	s2       *S2Codec
	minlz    *MinLZCodec
}

// NewManager returns a manager claiming base and base+1. Both must lie in the
// custom range.
func NewManager(base domain.CompressionType) (*Manager, error) {
	if !base.IsCustom() || !(base + 1).IsCustom() {
		return nil, pkgerrors.NewValidationError(
			"custom_codec_base", fmt.Sprintf("0x%02X", uint8(base)),
			errors.New("base and base+1 must lie in the custom range 0x80-0xFE"),
		)
	}

	return &Manager{
		name:     ManagerName,
		s2Type:   base,
		minlzTyp: base + 1,
		s2:       NewS2Codec(base, domain.DefaultCompressionLevel, nil),
		minlz:    NewMinLZCodec(base+1, domain.DefaultCompressionLevel),
	}, nil
}

func (m *Manager) Name() string {
	return m.name
}

func (m *Manager) Types() []domain.CompressionType {
	return []domain.CompressionType{m.s2Type, m.minlzTyp}
}

func (m *Manager) Claims(t domain.CompressionType) bool {
	return t == m.s2Type || t == m.minlzTyp
}

// Compressor returns a new codec for t at opts.Level. Other option fields do
// not apply to S2 or MinLZ and are ignored.
func (m *Manager) Compressor(t domain.CompressionType, opts domain.CompressionOptions) (ports.Codec, error) {
	switch t {
	case m.s2Type:
		return NewS2Codec(t, opts.Level, nil), nil
	case m.minlzTyp:
		return NewMinLZCodec(t, opts.Level), nil
	default:
		return nil, pkgerrors.NewUnsupportedError("compressor", uint8(t), nil)
	}
}

// Decompressor returns the shared decoder for t. Both decoders are
// stateless and safe for concurrent use.
func (m *Manager) Decompressor(t domain.CompressionType) (ports.Codec, error) {
	switch t {
	case m.s2Type:
		return m.s2, nil
	case m.minlzTyp:
		return m.minlz, nil
	default:
		return nil, pkgerrors.NewUnsupportedError("decompressor", uint8(t), nil)
	}
}

func (m *Manager) SupportsDictionary(t domain.CompressionType) bool {
	return t == m.s2Type
}

func (m *Manager) Trainer(t domain.CompressionType) (ports.DictionaryTrainer, bool) {
	if t == m.s2Type {
		return s2Trainer{}, true
	}
	return nil, false
}

func (m *Manager) Close() error {
	return nil
}

// s2Trainer caps raw dictionaries at the S2 dictionary limit.
type s2Trainer struct{}

func (s2Trainer) TrainDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error) {
	return s2Trainer{}.FinalizeDictionary(samples, maxBytes)
}

func (s2Trainer) FinalizeDictionary(samples [][]byte, maxBytes int) (*domain.Dictionary, error) {
	return compression.RawTrainer{}.FinalizeDictionary(samples, min(maxBytes, maxS2DictSize))
}
