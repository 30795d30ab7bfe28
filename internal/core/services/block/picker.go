package block

import "github.com/iamNilotpal/blockcomp/internal/core/domain"

// Picker chooses the compression type of each block. Pick must depend only on
// its arguments so that output is identical for any number of workers.
type Picker interface {
	Pick(seq uint64, raw []byte) domain.CompressionType

	// Candidates lists every type Pick can return.
	Candidates() []domain.CompressionType

	Name() string
}

// Fixed returns a Picker that always chooses t.
func Fixed(t domain.CompressionType) Picker {
	return fixed{t: t}
}

type fixed struct {
	t domain.CompressionType
}

func (f fixed) Pick(uint64, []byte) domain.CompressionType { return f.t }

func (f fixed) Candidates() []domain.CompressionType { return []domain.CompressionType{f.t} }

func (f fixed) Name() string { return "fixed" }
