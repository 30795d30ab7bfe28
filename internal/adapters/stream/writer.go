package stream

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

// Header describes how a stream was written.
type Header struct {
	// Dictionary is the file dictionary. Nil when none was used.
	Dictionary *domain.Dictionary

	// DefaultType is the type the file was configured with. Individual
	// blocks may still be stored raw or with another type.
	DefaultType domain.CompressionType

	// Options is the canonical options string.
	Options string

	// Checksum names the frame checksum algorithm.
	Checksum string
}

// Writer implements ports.BlockSink on top of an io.Writer. It buffers
// output; call Flush once the last block is written.
type Writer struct {
	bw     *bufio.Writer
	header Header
	begun  bool
	blocks uint64
	buf    []byte
}

// NewWriter prepares a stream whose header is completed by Begin.
func NewWriter(w io.Writer, header Header) *Writer {
	return &Writer{bw: bufio.NewWriterSize(w, 256<<10), header: header}
}

// Begin writes the magic, version and header record.
func (w *Writer) Begin(dict *domain.Dictionary) error {
	if w.begun {
		return ErrAlreadyBegun
	}
	w.begun = true
	w.header.Dictionary = dict

	if _, err := w.bw.WriteString(Magic); err != nil {
		return err
	}
	if err := w.bw.WriteByte(Version); err != nil {
		return err
	}
	return w.writeRecord(appendHeader(w.buf[:0], w.header))
}

// WriteBlock appends one block record. Begin must have been called, and a
// block declaring more than MaxBlockSize bytes is refused so every written
// file stays readable.
func (w *Writer) WriteBlock(blk *domain.CompressedBlock) error {
	if !w.begun {
		return ErrNotBegun
	}
	if blk.RawLen > MaxBlockSize {
		return fmt.Errorf("%w: block of %d bytes", ErrRecordTooLarge, blk.RawLen)
	}
	w.buf = appendBlock(w.buf[:0], blk)
	if err := w.writeRecord(w.buf); err != nil {
		return err
	}
	w.blocks++
	return nil
}

func (w *Writer) writeRecord(rec []byte) error {
	var prefix [binary.MaxVarintLen64]byte
	n := len(protowire.AppendVarint(prefix[:0], uint64(len(rec))))
	if _, err := w.bw.Write(prefix[:n]); err != nil {
		return err
	}
	_, err := w.bw.Write(rec)
	return err
}

// Blocks is the number of block records written.
func (w *Writer) Blocks() uint64 {
	return w.blocks
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func appendHeader(b []byte, h Header) []byte {
	if !h.Dictionary.Empty() {
		b = protowire.AppendTag(b, headerDictionary, protowire.BytesType)
		b = protowire.AppendBytes(b, h.Dictionary.Data)
		b = protowire.AppendTag(b, headerDictionaryID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Dictionary.ID))
		if h.Dictionary.Trained {
			b = protowire.AppendTag(b, headerTrained, protowire.VarintType)
			b = protowire.AppendVarint(b, protowire.EncodeBool(true))
		}
	}
	b = protowire.AppendTag(b, headerDefaultType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.DefaultType))
	if h.Options != "" {
		b = protowire.AppendTag(b, headerOptions, protowire.BytesType)
		b = protowire.AppendString(b, h.Options)
	}
	if h.Checksum != "" {
		b = protowire.AppendTag(b, headerChecksum, protowire.BytesType)
		b = protowire.AppendString(b, h.Checksum)
	}
	return b
}

func appendBlock(b []byte, blk *domain.CompressedBlock) []byte {
	b = protowire.AppendTag(b, blockType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(blk.Type))
	b = protowire.AppendTag(b, blockRawLen, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(blk.RawLen))
	b = protowire.AppendTag(b, blockPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, blk.Payload)
	if blk.HasChecksum {
		b = protowire.AppendTag(b, blockChecksum, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, blk.Checksum)
	}
	return b
}
