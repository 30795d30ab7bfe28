package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/iamNilotpal/blockcomp/internal/adapters/stream"
	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"github.com/iamNilotpal/blockcomp/internal/core/services/manager"
	"github.com/iamNilotpal/blockcomp/internal/core/services/table"
	"github.com/iamNilotpal/blockcomp/internal/serialize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runCompress(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	registry, err := newRegistry(cfg, log)
	if err != nil {
		return err
	}
	defer registry.Close()

	input, output := args[0], args[1]
	return withInput(input, func(r io.Reader) error {
		if split {
			paths, stats, err := compressSplit(cmd.Context(), cfg, registry, log, r, output)
			if err != nil {
				return err
			}
			logCompressed(log, input, stats, "parts", len(paths))
			for _, p := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		}

		return withOutput(output, func(w io.Writer) error {
			stats, err := compressStream(cmd.Context(), cfg, registry, log, r, w)
			if err != nil {
				return err
			}
			logCompressed(log, input, stats, "output", output)
			return nil
		})
	})
}

func logCompressed(log *zap.SugaredLogger, input string, stats table.Stats, extra ...any) {
	log.Infow("compressed", append([]any{
		"input", input,
		"blocks", stats.Blocks,
		"compressed_blocks", stats.CompressedBlocks,
		"raw_bytes", stats.RawBytes,
		"stored_bytes", stats.StoredBytes,
		"dictionary_bytes", stats.DictionaryBytes,
	}, extra...)...)
}

// runDecompress concatenates the restored content of every input stream,
// in argument order, into the last argument.
func runDecompress(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	registry, err := newRegistry(cfg, log)
	if err != nil {
		return err
	}
	defer registry.Close()

	inputs, output := args[:len(args)-1], args[len(args)-1]
	return withOutput(output, func(w io.Writer) error {
		var total uint64
		for _, input := range inputs {
			err := withInput(input, func(r io.Reader) error {
				n, err := decompressStream(registry, r, w)
				total += n
				return err
			})
			if err != nil {
				return fmt.Errorf("%s: %w", input, err)
			}
		}
		log.Infow("decompressed", "inputs", len(inputs), "output", output, "bytes", total)
		return nil
	})
}

type blockReport struct {
	Index       int    `json:"index"`
	Type        string `json:"type"`
	Tag         uint8  `json:"tag"`
	RawLen      int    `json:"raw_len"`
	StoredLen   int    `json:"stored_len"`
	HasChecksum bool   `json:"has_checksum"`
}

type streamReport struct {
	DefaultType      string        `json:"default_type"`
	Options          string        `json:"options"`
	Checksum         string        `json:"checksum"`
	DictionaryBytes  int           `json:"dictionary_bytes"`
	DictionaryID     uint32        `json:"dictionary_id,omitempty"`
	TrainedDict      bool          `json:"trained_dictionary"`
	Blocks           []blockReport `json:"blocks"`
	RawBytes         uint64        `json:"raw_bytes"`
	StoredBytes      uint64        `json:"stored_bytes"`
	CompressedBlocks int           `json:"compressed_blocks"`
}

func inspectStream(r io.Reader) (*streamReport, error) {
	reader, err := stream.NewReader(r)
	if err != nil {
		return nil, err
	}

	h := reader.Header()
	report := &streamReport{
		DefaultType:     h.DefaultType.String(),
		Options:         h.Options,
		Checksum:        h.Checksum,
		DictionaryBytes: h.Dictionary.Len(),
		Blocks:          []blockReport{},
	}
	if h.Dictionary != nil {
		report.DictionaryID = h.Dictionary.ID
		report.TrainedDict = h.Dictionary.Trained
	}

	for i := 0; ; i++ {
		blk, err := reader.Next()
		if err == io.EOF {
			return report, nil
		}
		if err != nil {
			return report, err
		}

		report.Blocks = append(report.Blocks, blockReport{
			Index:       i,
			Type:        blk.Type.String(),
			Tag:         uint8(blk.Type),
			RawLen:      blk.RawLen,
			StoredLen:   blk.StoredLen(),
			HasChecksum: blk.HasChecksum,
		})
		report.RawBytes += uint64(blk.RawLen)
		report.StoredBytes += uint64(blk.StoredLen())
		if blk.Compressed() {
			report.CompressedBlocks++
		}
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	report, err := inspectStream(in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return serialize.WriteJSON(out, report)
	}

	fmt.Fprintf(out, "type:        %s\n", report.DefaultType)
	fmt.Fprintf(out, "options:     %s\n", report.Options)
	fmt.Fprintf(out, "checksum:    %s\n", report.Checksum)
	fmt.Fprintf(out, "dictionary:  %d bytes (trained=%t)\n", report.DictionaryBytes, report.TrainedDict)
	fmt.Fprintf(out, "blocks:      %d (%d compressed)\n", len(report.Blocks), report.CompressedBlocks)
	fmt.Fprintf(out, "size:        %d -> %d bytes\n\n", report.RawBytes, report.StoredBytes)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BLOCK\tTYPE\tTAG\tRAW\tSTORED\tCHECKSUM")
	for _, b := range report.Blocks {
		fmt.Fprintf(tw, "%d\t%s\t0x%02X\t%d\t%d\t%t\n", b.Index, b.Type, b.Tag, b.RawLen, b.StoredLen, b.HasChecksum)
	}
	return tw.Flush()
}

func runOptions(cmd *cobra.Command, args []string) error {
	opts, err := serialize.ParseCompressionOptions(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return serialize.WriteJSON(out, opts)
	}
	_, err = fmt.Fprintln(out, serialize.FormatCompressionOptions(opts))
	return err
}

func runTypes(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	registry, err := newRegistry(cfg, log)
	if err != nil {
		return err
	}
	defer registry.Close()

	return listTypes(cmd.OutOrStdout(), registry)
}

func listTypes(w io.Writer, registry *manager.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAG\tTYPE\tMANAGER\tDICTIONARY")
	for _, t := range registry.Types() {
		owner := "-"
		if m := registry.Owner(t); m != nil {
			owner = m.Name()
		}
		dict := t != domain.NoCompression && registry.SupportsDictionary(t)
		fmt.Fprintf(tw, "0x%02X\t%s\t%s\t%t\n", uint8(t), t, owner, dict)
	}
	return tw.Flush()
}
