// Package mixed provides pickers that spread the blocks of one file over
// several compression types. Each block is tagged with the type actually
// used, so files written this way read back like any other.
package mixed

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
)

const (
	RoundRobinName = "round_robin"
	RandomName     = "random"
)

var ErrNoCandidates = errors.New("mixed picker needs at least one compression type")

func validate(types []domain.CompressionType) error {
	if len(types) == 0 {
		return pkgerrors.NewValidationError("mixed_types", types, ErrNoCandidates)
	}
	for _, t := range types {
		if !t.IsValid() {
			return pkgerrors.NewValidationError(
				"mixed_types", t.String(), fmt.Errorf("0x%02X is not a storable compression type", uint8(t)),
			)
		}
	}
	return nil
}

// RoundRobin cycles through types by block sequence number.
type RoundRobin struct {
	types []domain.CompressionType
}

// NewRoundRobin returns a picker cycling through types in the given order.
// Every type must be a builtin or custom compression type.
func NewRoundRobin(types ...domain.CompressionType) (*RoundRobin, error) {
	if err := validate(types); err != nil {
		return nil, err
	}
	return &RoundRobin{types: append([]domain.CompressionType(nil), types...)}, nil
}

func (r *RoundRobin) Pick(seq uint64, _ []byte) domain.CompressionType {
	return r.types[seq%uint64(len(r.types))]
}

func (r *RoundRobin) Candidates() []domain.CompressionType { return r.types }

func (r *RoundRobin) Name() string { return RoundRobinName }

// Random picks a uniformly distributed type per block. The choice is a pure
// function of seed and sequence number.
type Random struct {
	seed  uint64
	types []domain.CompressionType
}

// NewRandom returns a picker choosing among types from seed and the block
// sequence number. Two pickers with the same seed agree on every block.
func NewRandom(seed uint64, types ...domain.CompressionType) (*Random, error) {
	if err := validate(types); err != nil {
		return nil, err
	}
	return &Random{seed: seed, types: append([]domain.CompressionType(nil), types...)}, nil
}

func (r *Random) Pick(seq uint64, _ []byte) domain.CompressionType {
	rng := rand.New(rand.NewPCG(r.seed, seq))
	return r.types[rng.IntN(len(r.types))]
}

func (r *Random) Candidates() []domain.CompressionType { return r.types }

func (r *Random) Name() string { return RandomName }
