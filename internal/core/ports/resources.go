package ports

import "github.com/iamNilotpal/blockcomp/internal/core/domain"

// MemoryCharger is the shared accounting budget that dictionary sample
// buffers are charged against. Implementations must be safe for concurrent
// use and must never block.
type MemoryCharger interface {
	// TryCharge reserves n bytes or fails without reserving anything.
	TryCharge(n uint64) error

	// Release returns n previously charged bytes.
	Release(n uint64)
}

// FileSizeTarget supplies the target size of the output file being built.
type FileSizeTarget interface {
	TargetFileSize() uint64
}

// FileSizeTargetFunc adapts a function to FileSizeTarget.
type FileSizeTargetFunc func() uint64

func (f FileSizeTargetFunc) TargetFileSize() uint64 { return f() }

// BlockSink receives the blocks of one output file in order.
type BlockSink interface {
	// Begin is called once before the first block with the file's final
	// dictionary, which is nil when dictionary compression is disabled.
	Begin(dict *domain.Dictionary) error

	// WriteBlock appends one stored block.
	WriteBlock(block *domain.CompressedBlock) error
}
