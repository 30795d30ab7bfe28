package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/iamNilotpal/blockcomp/config"
	"github.com/iamNilotpal/blockcomp/internal/adapters/budget"
	"github.com/iamNilotpal/blockcomp/internal/adapters/checksum"
	"github.com/iamNilotpal/blockcomp/internal/adapters/compression"
	"github.com/iamNilotpal/blockcomp/internal/adapters/compression/extra"
	"github.com/iamNilotpal/blockcomp/internal/adapters/stream"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/ports"
	"github.com/iamNilotpal/blockcomp/internal/core/services/block"
	"github.com/iamNilotpal/blockcomp/internal/core/services/manager"
	"github.com/iamNilotpal/blockcomp/internal/core/services/mixed"
	"github.com/iamNilotpal/blockcomp/internal/core/services/table"
	"github.com/iamNilotpal/blockcomp/internal/serialize"
	"github.com/iamNilotpal/blockcomp/pkg/fs"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrOutputExists = errors.New("output file exists, use --force to overwrite")

// newRegistry composes the builtin manager with the custom codecs the config
// enables.
func newRegistry(cfg *config.Config, log *zap.SugaredLogger) (*manager.Registry, error) {
	builtin, err := compression.NewBuiltinManager(nil)
	if err != nil {
		return nil, err
	}

	var custom []ports.CompressionManager
	if cfg.EnableCustomCodecs {
		m, err := extra.NewManager(domain.CompressionType(cfg.CustomCodecBase))
		if err != nil {
			builtin.Close()
			return nil, err
		}
		custom = append(custom, m)
	}

	registry, err := manager.NewRegistry(log, builtin, custom...)
	if err != nil {
		err = multierr.Append(err, builtin.Close())
		for _, m := range custom {
			err = multierr.Append(err, m.Close())
		}
		return nil, err
	}
	return registry, nil
}

// newPicker returns nil unless the config rotates types per block.
func newPicker(cfg *config.Config, tier domain.Tier) (block.Picker, error) {
	if !cfg.Mixed.Enabled() {
		return nil, nil
	}

	types, err := cfg.Mixed.CompressionTypes()
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		types = []domain.CompressionType{tier.Type}
	}

	if cfg.Mixed.Mode == config.MixedRandom {
		return mixed.NewRandom(cfg.Mixed.Seed, types...)
	}
	return mixed.NewRoundRobin(types...)
}

func createOutput(path string) (*fs.AtomicFile, error) {
	if !force {
		exists, err := fs.Exists(path)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
	}
	return fs.CreateAtomic(path, 0o644)
}

// part is one output stream under construction.
type part struct {
	writer *table.Writer
	sink   *stream.Writer
}

func newPart(
	cfg *config.Config, registry *manager.Registry, log *zap.SugaredLogger, charger ports.MemoryCharger, w io.Writer,
) (*part, error) {
	tier, err := cfg.ResolvedTier()
	if err != nil {
		return nil, err
	}
	picker, err := newPicker(cfg, tier)
	if err != nil {
		return nil, err
	}
	summer, err := checksum.NewCheckSummer(domain.ChecksumAlgorithm(cfg.ChecksumAlgorithm))
	if err != nil {
		return nil, err
	}

	sink := stream.NewWriter(w, stream.Header{
		DefaultType: tier.Type,
		Options:     serialize.FormatCompressionOptions(tier.Options),
		Checksum:    summer.Name(),
	})

	writer, err := table.NewWriter(table.Options{
		Tier:     tier,
		Picker:   picker,
		Manager:  registry,
		Sink:     sink,
		Budget:   charger,
		Target:   ports.FileSizeTargetFunc(func() uint64 { return cfg.TargetFileSize }),
		Checksum: summer,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	return &part{writer: writer, sink: sink}, nil
}

func (p *part) finish(ctx context.Context) (table.Stats, error) {
	stats, err := p.writer.Finish(ctx)
	if err != nil {
		return stats, err
	}
	return stats, p.sink.Flush()
}

// readBlocks calls fn with consecutive size byte pieces of r. Each piece is a
// fresh slice since writers hold on to blocks.
func readBlocks(r io.Reader, size uint32, fn func(raw []byte) error) error {
	for {
		buf := make([]byte, size)
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			if err := fn(buf[:n]); err != nil {
				return err
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func addStats(total *table.Stats, s table.Stats) {
	total.Blocks += s.Blocks
	total.CompressedBlocks += s.CompressedBlocks
	total.RawBlocks += s.RawBlocks
	total.RawBytes += s.RawBytes
	total.StoredBytes += s.StoredBytes
	total.DictionaryBytes += s.DictionaryBytes
}

// compressStream reads r in block_size pieces and writes one block stream to
// w, however large it grows.
func compressStream(
	ctx context.Context, cfg *config.Config, registry *manager.Registry, log *zap.SugaredLogger,
	r io.Reader, w io.Writer,
) (table.Stats, error) {
	p, err := newPart(cfg, registry, log, budget.New(cfg.DictionaryBudgetBytes), w)
	if err != nil {
		return table.Stats{}, err
	}

	sealWarned := false
	err = readBlocks(r, cfg.BlockSize, func(raw []byte) error {
		if err := p.writer.Add(ctx, raw); err != nil {
			return err
		}
		if !sealWarned && p.writer.ShouldSeal() {
			sealWarned = true
			log.Warnw("output passed the target file size, use --split to roll parts", "target", cfg.TargetFileSize)
		}
		return nil
	})
	if err != nil {
		p.writer.Abandon()
		return table.Stats{}, err
	}

	return p.finish(ctx)
}

// compressSplit writes numbered parts next to output, starting a new part
// whenever the current one reaches target_file_size. Every part carries its
// own dictionary and reads back on its own.
func compressSplit(
	ctx context.Context, cfg *config.Config, registry *manager.Registry, log *zap.SugaredLogger,
	r io.Reader, output string,
) (paths []string, total table.Stats, err error) {
	charger := budget.New(cfg.DictionaryBudgetBytes)

	var (
		current   *part
		file      *fs.AtomicFile
		committed []string
	)
	defer func() {
		if err == nil {
			return
		}
		if current != nil {
			current.writer.Abandon()
			err = multierr.Append(err, file.Abort())
		}
		for _, name := range committed {
			err = multierr.Append(err, os.Remove(name))
		}
	}()

	seal := func() error {
		stats, err := current.finish(ctx)
		if err != nil {
			return err
		}
		if err := file.Commit(); err != nil {
			return err
		}
		committed = append(committed, paths[len(paths)-1])
		addStats(&total, stats)
		log.Debugw("part sealed", "path", paths[len(paths)-1], "blocks", stats.Blocks, "stored_bytes", stats.StoredBytes)
		current, file = nil, nil
		return nil
	}

	err = readBlocks(r, cfg.BlockSize, func(raw []byte) error {
		if current == nil {
			name := fs.PartName(output, uint64(len(paths)+1))
			f, err := createOutput(name)
			if err != nil {
				return err
			}
			p, err := newPart(cfg, registry, log, charger, f)
			if err != nil {
				f.Abort()
				return err
			}
			current, file = p, f
			paths = append(paths, name)
		}

		if err := current.writer.Add(ctx, raw); err != nil {
			return err
		}
		if current.writer.ShouldSeal() {
			return seal()
		}
		return nil
	})
	if err != nil {
		return nil, total, err
	}

	if current != nil {
		if err := seal(); err != nil {
			return nil, total, err
		}
	}
	return paths, total, nil
}

// decompressStream restores every block of a stream into w.
func decompressStream(registry *manager.Registry, r io.Reader, w io.Writer) (uint64, error) {
	reader, err := stream.NewReader(r)
	if err != nil {
		return 0, err
	}
	header := reader.Header()

	summer, err := checksum.NewCheckSummer(domain.ChecksumAlgorithm(header.Checksum))
	if err != nil {
		return 0, err
	}

	d, err := block.NewDecompressor(block.DecompressorOptions{
		Manager:    registry,
		Dictionary: header.Dictionary,
		Checksum:   summer,
	})
	if err != nil {
		return 0, err
	}
	defer d.Close()

	var written uint64
	for {
		blk, err := reader.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		raw, err := d.Decompress(blk)
		if err != nil {
			return written, err
		}
		if _, err := w.Write(raw); err != nil {
			return written, err
		}
		written += uint64(len(raw))
	}
}

// withOutput runs fn against a temporary file that replaces output only if
// fn succeeds.
func withOutput(output string, fn func(w io.Writer) error) (err error) {
	out, err := createOutput(output)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, out.Abort())
		}
	}()

	if err = fn(out); err != nil {
		return err
	}
	return out.Commit()
}

// withInput opens input for the duration of fn.
func withInput(input string, fn func(r io.Reader) error) error {
	in, err := os.Open(input)
	if err != nil {
		return err
	}
	defer in.Close()
	return fn(in)
}
