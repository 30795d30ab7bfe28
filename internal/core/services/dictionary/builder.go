// Package dictionary implements the per-file dictionary builder: it buffers
// the first blocks of an output file as samples, charges them against the
// shared memory budget and turns them into a frozen dictionary.
package dictionary

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/iamNilotpal/blockcomp/pkg/logger"
	"github.com/iamNilotpal/blockcomp/pkg/system"
	"go.uber.org/zap"
)

// ErrNotCollecting is returned by Finalize once the builder is Ready or
// Disabled.
var ErrNotCollecting = errors.New("dictionary builder is not collecting")

type Options struct {
	// Type is the compression type of the file being built.
	Type domain.CompressionType

	// Compression supplies max_dict_bytes, zstd_max_train_bytes,
	// max_dict_buffer_bytes and use_zstd_dict_trainer.
	Compression domain.CompressionOptions

	// Manager resolves the trainer for Type.
	Manager ports.CompressionManager

	// Budget is charged for every buffered byte. Nil means unlimited.
	Budget ports.MemoryCharger

	// Target caps buffering when max_dict_buffer_bytes is zero.
	// Nil uses DefaultTargetFileSize.
	Target ports.FileSizeTarget

	Logger *zap.SugaredLogger
}

// Builder is owned by exactly one output file writer and is not safe for
// concurrent use.
type Builder struct {
	opts    Options
	log     *zap.SugaredLogger
	state   domain.DictionaryState
	trainer ports.DictionaryTrainer

	blocks   [][]byte // Buffered blocks in arrival order
	buffered uint64   // Sum of len(blocks)
	charged  uint64   // Bytes currently charged to the budget
	limit    uint64   // Buffering cap for this file

	dict         *domain.Dictionary
	sampledBytes int
	earlyReason  string
}

// NewBuilder starts in Collecting, or in Disabled when max_dict_bytes is zero
// or the type has no dictionary support.
func NewBuilder(opts Options) *Builder {
	b := &Builder{opts: opts, log: logger.OrNop(opts.Logger), state: domain.DictionaryDisabled}

	if !opts.Compression.DictionaryEnabled() || opts.Type == domain.NoCompression || opts.Manager == nil {
		return b
	}
	if !opts.Manager.SupportsDictionary(opts.Type) {
		b.log.Debugw("dictionary disabled", "type", opts.Type.String(), "reason", "unsupported by codec")
		return b
	}
	trainer, ok := opts.Manager.Trainer(opts.Type)
	if !ok {
		b.log.Debugw("dictionary disabled", "type", opts.Type.String(), "reason", "no trainer")
		return b
	}

	b.trainer = trainer
	b.limit = bufferLimit(opts)
	b.state = domain.DictionaryCollecting
	return b
}

// bufferLimit is max_dict_buffer_bytes capped by the file's target size.
func bufferLimit(opts Options) uint64 {
	limit := uint64(DefaultTargetFileSize)
	if opts.Target != nil {
		if target := opts.Target.TargetFileSize(); target > 0 {
			limit = target
		}
	}
	if n := opts.Compression.MaxDictBufferBytes; n > 0 && n < limit {
		limit = n
	}
	return limit
}

func (b *Builder) State() domain.DictionaryState {
	return b.state
}

// Dictionary returns the frozen dictionary once Ready. It is nil otherwise
// and may be empty if there was nothing to sample.
func (b *Builder) Dictionary() *domain.Dictionary {
	return b.dict
}

// Buffered reports how many sample bytes are held.
func (b *Builder) Buffered() uint64 {
	return b.buffered
}

// Limit reports the buffering cap, zero when not collecting.
func (b *Builder) Limit() uint64 {
	return b.limit
}

// Add offers a block to the builder. It returns true if the block was
// buffered; the caller must then not compress it itself, Finalize hands it
// back. It returns false when the builder is not collecting or when the
// block does not fit the buffer limit or the memory budget. In the latter
// two cases the builder moves to Finalizing and the caller must Finalize
// before compressing anything.
func (b *Builder) Add(block []byte) bool {
	if b.state != domain.DictionaryCollecting {
		return false
	}

	n := uint64(len(block))
	if b.buffered+n > b.limit {
		b.enterFinalizing("buffer limit reached")
		return false
	}

	if b.opts.Budget != nil {
		if err := b.opts.Budget.TryCharge(n); err != nil {
			b.enterFinalizing("memory budget exhausted")
			return false
		}
		b.charged += n
	}

	b.blocks = append(b.blocks, block)
	b.buffered += n
	return true
}

func (b *Builder) enterFinalizing(reason string) {
	b.state = domain.DictionaryFinalizing
	b.earlyReason = reason
	b.log.Debugw(
		"dictionary sampling stopped", "reason", reason, "buffered", b.buffered, "limit", b.limit,
	)
}

// Finalize builds the dictionary from the buffered samples and returns it
// together with the buffered blocks in arrival order. The builder is Ready
// afterwards and its budget charge is released. The trainer is not
// interruptible; cancelling ctx while it runs still waits for it.
//
// On error the builder stays Finalizing with its blocks and their charge
// intact, so Finalize can be retried or Abandon can drop both.
func (b *Builder) Finalize(ctx context.Context) (*domain.Dictionary, [][]byte, error) {
	if b.state != domain.DictionaryCollecting && b.state != domain.DictionaryFinalizing {
		return b.dict, nil, ErrNotCollecting
	}
	b.state = domain.DictionaryFinalizing

	var dict *domain.Dictionary
	err := system.RunWithContext(ctx, func(context.Context) error {
		dict = b.build()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	pending := b.blocks
	b.blocks = nil
	b.release()

	b.dict = dict
	b.state = domain.DictionaryReady
	b.log.Infow(
		"dictionary ready",
		"type", b.opts.Type.String(),
		"size", dict.Len(),
		"trained", dict.Trained,
		"sampled", b.sampledBytes,
		"buffered", b.buffered,
		"early", b.earlyReason,
	)
	return dict, pending, nil
}

// Abandon drops the buffered samples and releases the budget charge. It is
// used when the file build is discarded.
func (b *Builder) Abandon() {
	b.blocks = nil
	b.release()
	if b.state == domain.DictionaryCollecting || b.state == domain.DictionaryFinalizing {
		b.state = domain.DictionaryDisabled
	}
}

func (b *Builder) release() {
	if b.opts.Budget != nil && b.charged > 0 {
		b.opts.Budget.Release(b.charged)
	}
	b.charged = 0
}

func (b *Builder) build() *domain.Dictionary {
	maxDict := int(b.opts.Compression.MaxDictBytes)
	opts := b.opts.Compression

	train := opts.ZstdMaxTrainBytes > 0 && opts.UseZstdDictTrainer
	sampleLimit := int(opts.MaxDictBytes)
	if opts.ZstdMaxTrainBytes > 0 {
		sampleLimit = int(opts.ZstdMaxTrainBytes)
	}
	samples := selectSamples(b.blocks, sampleLimit)
	for _, s := range samples {
		b.sampledBytes += len(s)
	}

	if train {
		dict, err := b.trainer.TrainDictionary(samples, maxDict)
		if err == nil && dict.Len() <= maxDict {
			return dict
		}
		b.log.Warnw("dictionary training failed, using raw samples", "type", b.opts.Type.String(), "error", err)
	}

	dict, err := b.trainer.FinalizeDictionary(samples, maxDict)
	if err != nil || dict.Len() > maxDict {
		b.log.Warnw("dictionary finalize failed, compressing without dictionary", "type", b.opts.Type.String(), "error", err)
		return &domain.Dictionary{}
	}
	return dict
}

// selectSamples picks whole blocks in a fixed pseudo-random order until limit
// bytes are taken, truncating the last pick, and returns them in their
// original order.
func selectSamples(blocks [][]byte, limit int) [][]byte {
	if limit <= 0 || len(blocks) == 0 {
		return nil
	}

	total := 0
	for _, blk := range blocks {
		total += len(blk)
	}
	if total <= limit {
		return slices.Clone(blocks)
	}

	rng := rand.New(rand.NewPCG(sampleSeed, uint64(len(blocks))))
	order := rng.Perm(len(blocks))

	picked := make(map[int][]byte, len(blocks))
	remaining := limit
	for _, i := range order {
		if remaining == 0 {
			break
		}
		blk := blocks[i]
		if len(blk) > remaining {
			blk = blk[:remaining]
		}
		picked[i] = blk
		remaining -= len(blk)
	}

	samples := make([][]byte, 0, len(picked))
	for i := range blocks {
		if blk, ok := picked[i]; ok && len(blk) > 0 {
			samples = append(samples, blk)
		}
	}
	return samples
}
