// Package table drives the compression of one output file: dictionary
// sampling first, then block compression, serial or parallel, into a sink.
package table

import (
	"context"
	"errors"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/iamNilotpal/blockcomp/internal/core/services/block"
	"github.com/iamNilotpal/blockcomp/internal/core/services/dictionary"
	"github.com/iamNilotpal/blockcomp/internal/core/services/parallel"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"github.com/iamNilotpal/blockcomp/pkg/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	ErrWriterClosed = errors.New("table writer is finished")
	ErrNotStarted   = errors.New("table writer has no compression pipeline")
)

type Options struct {
	// Tier is the resolved type and options of this file. See
	// domain.ResolveTier.
	Tier domain.Tier

	// Picker overrides the per-block type choice. Nil always uses Tier.Type.
	Picker block.Picker

	Manager  ports.CompressionManager
	Sink     ports.BlockSink
	Budget   ports.MemoryCharger
	Target   ports.FileSizeTarget
	Checksum ports.ChecksumPort
	Logger   *zap.SugaredLogger
}

// Stats describes a finished file. Compressor carries the per-type counters
// of the block compressor.
type Stats struct {
	Blocks            uint64
	CompressedBlocks  uint64
	RawBlocks         uint64
	RawBytes          uint64
	StoredBytes       uint64
	DictionaryBytes   int
	DictionaryTrained bool
	Compressor        block.Stats
}

// Writer is used by a single goroutine. Stats are only stable after Finish.
type Writer struct {
	opts    Options
	log     *zap.SugaredLogger
	picker  block.Picker
	builder *dictionary.Builder

	comp  *block.Compressor
	sched *parallel.Scheduler
	dict  *domain.Dictionary

	stats  Stats
	closed bool

	// err is the first failure. Blocks may already be missing from the file,
	// so every later Add and Finish reports it.
	err error
}

// NewWriter validates the options and starts sampling for a dictionary when
// the tier asks for one. Without a dictionary the sink is begun right away.
func NewWriter(opts Options) (*Writer, error) {
	if opts.Sink == nil {
		return nil, pkgerrors.NewConfigurationError("new table writer", errors.New("sink is required"))
	}
	if opts.Tier.Type == domain.DisableCompressionOption || !opts.Tier.Type.IsValid() {
		return nil, pkgerrors.NewConfigurationError(
			"new table writer", errors.New("tier type "+opts.Tier.Type.String()+" cannot be written"),
		)
	}
	if err := opts.Tier.Options.Validate(); err != nil {
		return nil, err
	}

	w := &Writer{opts: opts, log: logger.OrNop(opts.Logger), picker: opts.Picker}
	if w.picker == nil {
		w.picker = block.Fixed(opts.Tier.Type)
	}

	w.builder = dictionary.NewBuilder(dictionary.Options{
		Type:        opts.Tier.Type,
		Compression: opts.Tier.Options,
		Manager:     opts.Manager,
		Budget:      opts.Budget,
		Target:      opts.Target,
		Logger:      opts.Logger,
	})

	if w.builder.State() == domain.DictionaryDisabled {
		if err := w.start(nil); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Add appends one uncompressed block. While a dictionary is being sampled
// the block is held back; it is written once the dictionary is ready.
//
// Any failure is sticky: the file may be missing blocks, so every later Add
// returns the same error and Finish does not succeed.
func (w *Writer) Add(ctx context.Context, raw []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.err != nil {
		return w.err
	}

	if w.builder.State() == domain.DictionaryCollecting && w.builder.Add(raw) {
		return nil
	}
	if w.builder.State() == domain.DictionaryFinalizing {
		if err := w.finalize(ctx); err != nil {
			return err
		}
	}
	return w.submit(ctx, raw)
}

// finalize freezes the dictionary and writes the blocks held while sampling.
// Those blocks were accepted by earlier Add calls, so they are submitted
// regardless of ctx.
func (w *Writer) finalize(ctx context.Context) error {
	dict, pending, err := w.builder.Finalize(ctx)
	if err != nil {
		return w.fail(err)
	}
	if err := w.start(dict); err != nil {
		return w.fail(err)
	}

	held := context.WithoutCancel(ctx)
	for _, raw := range pending {
		if err := w.submit(held, raw); err != nil {
			return err
		}
	}
	return nil
}

// start freezes the dictionary and builds the compression pipeline.
func (w *Writer) start(dict *domain.Dictionary) error {
	if err := w.opts.Sink.Begin(dict); err != nil {
		return err
	}

	comp, err := block.NewCompressor(block.Options{
		Picker:      w.picker,
		Compression: w.opts.Tier.Options,
		Manager:     w.opts.Manager,
		Dictionary:  dict,
		Checksum:    w.opts.Checksum,
		Logger:      w.opts.Logger,
	})
	if err != nil {
		return err
	}

	sched, err := parallel.New(parallel.Options{
		Threads:    int(w.opts.Tier.Options.ParallelThreads),
		Compressor: comp,
		Emit:       w.emit,
		Target:     w.opts.Target,
		Logger:     w.opts.Logger,
	})
	if err != nil {
		comp.Close()
		return err
	}

	w.dict, w.comp, w.sched = dict, comp, sched
	w.stats.DictionaryBytes = dict.Len()
	if dict != nil {
		w.stats.DictionaryTrained = dict.Trained
	}
	return nil
}

func (w *Writer) submit(ctx context.Context, raw []byte) error {
	if w.sched == nil {
		return w.fail(ErrNotStarted)
	}
	if err := w.sched.Submit(ctx, raw); err != nil {
		return w.fail(err)
	}
	return nil
}

func (w *Writer) fail(err error) error {
	if w.err == nil {
		w.err = err
		w.log.Warnw("table writer failed", "type", w.opts.Tier.Type.String(), "error", err)
	}
	return w.err
}

// Err returns the failure that stopped the writer, or nil.
func (w *Writer) Err() error {
	return w.err
}

// emit runs on one goroutine at a time, in block order.
func (w *Writer) emit(_ uint64, raw []byte, blk *domain.CompressedBlock) error {
	if err := w.opts.Sink.WriteBlock(blk); err != nil {
		return err
	}

	w.stats.Blocks++
	w.stats.RawBytes += uint64(len(raw))
	w.stats.StoredBytes += uint64(blk.StoredLen())
	if blk.Compressed() {
		w.stats.CompressedBlocks++
	} else {
		w.stats.RawBlocks++
	}
	return nil
}

// Dictionary is the file's dictionary once sampling is over, nil before.
func (w *Writer) Dictionary() *domain.Dictionary {
	return w.dict
}

// DictionaryState reports where dictionary sampling stands.
func (w *Writer) DictionaryState() domain.DictionaryState {
	return w.builder.State()
}

// EstimatedSize is the projected stored size of everything added so far.
// Blocks held for sampling count at their uncompressed size.
func (w *Writer) EstimatedSize() uint64 {
	if w.sched == nil {
		return w.builder.Buffered()
	}
	return w.sched.EstimatedSize()
}

// ShouldSeal reports whether the file has reached its target size.
func (w *Writer) ShouldSeal() bool {
	if w.opts.Target == nil {
		return false
	}
	target := w.opts.Target.TargetFileSize()
	return target > 0 && w.EstimatedSize() >= target
}

// Finish flushes every block into the sink. A file that ends while still
// sampling gets its dictionary from whatever was buffered.
func (w *Writer) Finish(ctx context.Context) (Stats, error) {
	if w.closed {
		return w.stats, ErrWriterClosed
	}
	w.closed = true

	err := w.err
	if err == nil {
		switch w.builder.State() {
		case domain.DictionaryCollecting, domain.DictionaryFinalizing:
			err = w.finalize(ctx)
		}
	}

	if w.sched != nil {
		err = multierr.Append(err, w.sched.Finish(ctx))
	}
	if w.comp != nil {
		w.stats.Compressor = w.comp.Stats()
		err = multierr.Append(err, w.comp.Close())
	}
	if err != nil {
		w.builder.Abandon()
		return w.stats, err
	}

	w.log.Infow(
		"table finished",
		"type", w.opts.Tier.Type.String(),
		"picker", w.picker.Name(),
		"blocks", w.stats.Blocks,
		"compressed", w.stats.CompressedBlocks,
		"raw_bytes", w.stats.RawBytes,
		"stored_bytes", w.stats.StoredBytes,
		"dictionary", w.stats.DictionaryBytes,
	)
	return w.stats, nil
}

// Abandon discards the file. Buffered samples are dropped and their budget
// charge released; blocks already handed to workers are drained but the
// sink is left as is for the caller to discard.
func (w *Writer) Abandon() {
	if w.closed {
		return
	}
	w.closed = true

	w.builder.Abandon()
	if w.sched != nil {
		_ = w.sched.Finish(context.Background())
	}
	if w.comp != nil {
		_ = w.comp.Close()
	}
	w.log.Debugw("table abandoned", "type", w.opts.Tier.Type.String())
}
