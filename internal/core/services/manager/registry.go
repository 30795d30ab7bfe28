// Package manager composes compression managers into the registry that
// resolves every persisted type tag.
package manager

import (
	"fmt"
	"strings"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const RegistryName = "registry"

// Registry routes each type tag to the single manager that claims it. It owns
// NoCompression itself. Ownership is fixed by NewRegistry and never changes,
// so lookups are safe from any goroutine without locking.
type Registry struct {
	managers []ports.CompressionManager
	owners   [256]ports.CompressionManager
	raw      rawCodec
	log      *zap.SugaredLogger
}

// NewRegistry composes builtin (which may be nil) and custom managers.
//
// Returns a configuration error if:
// - builtin claims anything outside 0x01-0x07
// - a custom manager claims anything outside 0x80-0xFE
// - two managers claim the same tag
func NewRegistry(log *zap.SugaredLogger, builtin ports.CompressionManager, custom ...ports.CompressionManager) (*Registry, error) {
	r := &Registry{log: logger.OrNop(log)}

	if builtin != nil {
		if err := r.register(builtin, true); err != nil {
			return nil, err
		}
	}
	for _, m := range custom {
		if m == nil {
			continue
		}
		if err := r.register(m, false); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(r.managers))
	for _, m := range r.managers {
		names = append(names, m.Name())
	}
	r.log.Infow("compression managers registered", "managers", strings.Join(names, ","), "types", len(r.Types()))

	return r, nil
}

func (r *Registry) register(m ports.CompressionManager, builtin bool) error {
	for v := 0; v < 256; v++ {
		t := domain.CompressionType(v)
		if !m.Claims(t) {
			continue
		}

		switch {
		case t == domain.NoCompression:
			return pkgerrors.NewConfigurationError(
				"register manager", fmt.Errorf("manager %q claims 0x00, which is reserved for uncompressed blocks", m.Name()),
			)
		case builtin && !t.IsBuiltin():
			return pkgerrors.NewConfigurationError(
				"register manager", fmt.Errorf("builtin manager %q claims 0x%02X outside 0x01-0x07", m.Name(), v),
			)
		case !builtin && !t.IsCustom():
			return pkgerrors.NewConfigurationError(
				"register manager", fmt.Errorf("custom manager %q claims 0x%02X outside 0x80-0xFE", m.Name(), v),
			)
		}

		if owner := r.owners[t]; owner != nil {
			return pkgerrors.NewConfigurationError(
				"register manager",
				fmt.Errorf("type 0x%02X claimed by both %q and %q", v, owner.Name(), m.Name()),
			)
		}
	}

	for v := 0; v < 256; v++ {
		if m.Claims(domain.CompressionType(v)) {
			r.owners[v] = m
		}
	}
	r.managers = append(r.managers, m)
	return nil
}

func (r *Registry) Name() string {
	return RegistryName
}

// Types lists every resolvable tag in ascending order, NoCompression first.
func (r *Registry) Types() []domain.CompressionType {
	types := []domain.CompressionType{domain.NoCompression}
	for v := 1; v < 256; v++ {
		if r.owners[v] != nil {
			types = append(types, domain.CompressionType(v))
		}
	}
	return types
}

// Claims reports whether t resolves to a codec. NoCompression always does.
func (r *Registry) Claims(t domain.CompressionType) bool {
	return t == domain.NoCompression || r.owners[t] != nil
}

// Owner returns the manager that claims t, or nil.
func (r *Registry) Owner(t domain.CompressionType) ports.CompressionManager {
	return r.owners[t]
}

// Lookup finds a registered manager by name.
func (r *Registry) Lookup(name string) (ports.CompressionManager, bool) {
	for _, m := range r.managers {
		if m.Name() == name {
			return m, true
		}
	}
	return nil, false
}

// Compressor routes t to the manager that claims it. NoCompression resolves
// to the pass-through codec owned by the registry.
//
// Returns an Unsupported error if no registered manager claims t. Errors
// from the owning manager are returned unchanged.
func (r *Registry) Compressor(t domain.CompressionType, opts domain.CompressionOptions) (ports.Codec, error) {
	if t == domain.NoCompression {
		return r.raw, nil
	}
	owner := r.owners[t]
	if owner == nil {
		return nil, pkgerrors.NewUnsupportedError("compressor", uint8(t), nil)
	}
	return owner.Compressor(t, opts)
}

// Decompressor resolves the codec for a tag read from disk. Tags nobody
// claims, reserved tags included, are Unsupported rather than corrupt:
// another process may have the manager that wrote them.
func (r *Registry) Decompressor(t domain.CompressionType) (ports.Codec, error) {
	if t == domain.NoCompression {
		return r.raw, nil
	}
	owner := r.owners[t]
	if owner == nil {
		return nil, pkgerrors.NewUnsupportedError("decompressor", uint8(t), nil)
	}
	return owner.Decompressor(t)
}

// SupportsDictionary asks the owner of t. Unclaimed tags never do.
func (r *Registry) SupportsDictionary(t domain.CompressionType) bool {
	owner := r.owners[t]
	return owner != nil && owner.SupportsDictionary(t)
}

// Trainer returns the dictionary trainer of t's owner, if it has one.
func (r *Registry) Trainer(t domain.CompressionType) (ports.DictionaryTrainer, bool) {
	owner := r.owners[t]
	if owner == nil {
		return nil, false
	}
	return owner.Trainer(t)
}

// Close closes every registered manager and combines their errors.
func (r *Registry) Close() error {
	var err error
	for _, m := range r.managers {
		err = multierr.Append(err, m.Close())
	}
	return err
}

// rawCodec stores blocks verbatim under NoCompression.
type rawCodec struct{}

func (rawCodec) Type() domain.CompressionType { return domain.NoCompression }

func (rawCodec) Compress(src []byte) ([]byte, error) { return src, nil }

func (rawCodec) CompressBounded(src []byte, maxLen int) ([]byte, error) {
	if len(src) > maxLen {
		return nil, ports.ErrBufferTooSmall
	}
	return src, nil
}

func (rawCodec) Decompress(src []byte, expectedLen int) ([]byte, error) {
	if len(src) != expectedLen {
		return nil, fmt.Errorf("raw block holds %d bytes, expected %d", len(src), expectedLen)
	}
	return src, nil
}
