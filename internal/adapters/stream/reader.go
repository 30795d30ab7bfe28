package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	pkgerrors "github.com/iamNilotpal/blockcomp/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Reader walks a block stream. Any structural problem is reported as a
// corruption error.
type Reader struct {
	br     *bufio.Reader
	header Header
	blocks uint64
	buf    []byte
}

// NewReader checks the magic and version and decodes the header record.
func NewReader(r io.Reader) (*Reader, error) {
	rd := &Reader{br: bufio.NewReaderSize(r, 256<<10)}

	var preamble [len(Magic) + 1]byte
	if _, err := io.ReadFull(rd.br, preamble[:]); err != nil {
		return nil, corrupt("read preamble", fmt.Errorf("%w: %w", ErrBadMagic, err))
	}
	if string(preamble[:len(Magic)]) != Magic {
		return nil, corrupt("read preamble", ErrBadMagic)
	}
	if v := preamble[len(Magic)]; v != Version {
		return nil, corrupt("read preamble", fmt.Errorf("%w: %d", ErrBadVersion, v))
	}

	rec, err := rd.readRecord()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, corrupt("read header", err)
	}
	if rd.header, err = parseHeader(rec); err != nil {
		return nil, corrupt("read header", err)
	}
	return rd, nil
}

// Header returns the header parsed by NewReader.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next block, or io.EOF after the last one. The returned
// payload is owned by the caller.
func (r *Reader) Next() (*domain.CompressedBlock, error) {
	rec, err := r.readRecord()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, corrupt(fmt.Sprintf("read block %d", r.blocks), err)
	}

	blk, err := parseBlock(rec)
	if err != nil {
		return nil, corrupt(fmt.Sprintf("read block %d", r.blocks), err)
	}
	r.blocks++
	return blk, nil
}

// readRecord returns io.EOF only when the stream ends exactly on a record
// boundary.
func (r *Reader) readRecord() ([]byte, error) {
	size, err := binary.ReadUvarint(r.br)
	if err != nil {
		return nil, err
	}
	if size > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d", ErrRecordTooLarge, size)
	}

	if cap(r.buf) < int(size) {
		r.buf = make([]byte, size)
	}
	r.buf = r.buf[:size]
	if _, err := io.ReadFull(r.br, r.buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return r.buf, nil
}

func corrupt(op string, err error) error {
	return pkgerrors.NewCorruptionError(op, 0, err)
}

// fieldFunc consumes the value of field num and returns its length, or a
// negative length when the field is not known and should be skipped.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(rec []byte, field fieldFunc) error {
	for len(rec) > 0 {
		num, typ, n := protowire.ConsumeTag(rec)
		if n < 0 {
			return protowire.ParseError(n)
		}
		rec = rec[n:]

		m, err := field(num, typ, rec)
		if err != nil {
			return err
		}
		if m < 0 {
			m = protowire.ConsumeFieldValue(num, typ, rec)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		rec = rec[m:]
	}
	return nil
}

func expect(num protowire.Number, got, want protowire.Type) error {
	if got != want {
		return fmt.Errorf("field %d has wire type %d, expected %d", num, got, want)
	}
	return nil
}

func parseHeader(rec []byte) (Header, error) {
	var (
		h       Header
		dict    domain.Dictionary
		hasDict bool
	)

	err := walk(rec, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case headerDictionary, headerOptions, headerChecksum:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return 0, err
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			switch num {
			case headerDictionary:
				dict.Data, hasDict = append([]byte(nil), v...), true
			case headerOptions:
				h.Options = string(v)
			default:
				h.Checksum = string(v)
			}
			return n, nil

		case headerDefaultType, headerDictionaryID, headerTrained:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return 0, err
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			switch num {
			case headerDefaultType:
				if v > 0xFF {
					return 0, fmt.Errorf("compression type %d out of range", v)
				}
				h.DefaultType = domain.CompressionType(v)
			case headerDictionaryID:
				if v > 0xFFFFFFFF {
					return 0, fmt.Errorf("dictionary id %d out of range", v)
				}
				dict.ID = uint32(v)
			default:
				dict.Trained = protowire.DecodeBool(v)
			}
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return Header{}, err
	}

	if hasDict {
		h.Dictionary = &dict
	}
	return h, nil
}

func parseBlock(rec []byte) (*domain.CompressedBlock, error) {
	var (
		blk                 domain.CompressedBlock
		hasType, hasPayload bool
	)

	err := walk(rec, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case blockType, blockRawLen:
			if err := expect(num, typ, protowire.VarintType); err != nil {
				return 0, err
			}
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			if num == blockType {
				if v > 0xFF {
					return 0, fmt.Errorf("compression type %d out of range", v)
				}
				blk.Type, hasType = domain.CompressionType(v), true
			} else {
				if v > MaxBlockSize {
					return 0, fmt.Errorf("uncompressed length %d out of range", v)
				}
				blk.RawLen = int(v)
			}
			return n, nil

		case blockPayload:
			if err := expect(num, typ, protowire.BytesType); err != nil {
				return 0, err
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			blk.Payload, hasPayload = append([]byte(nil), v...), true
			return n, nil

		case blockChecksum:
			if err := expect(num, typ, protowire.Fixed32Type); err != nil {
				return 0, err
			}
			v, n := protowire.ConsumeFixed32(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			blk.Checksum, blk.HasChecksum = v, true
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}

	if !hasType || !hasPayload {
		return nil, errors.New("block record is missing its type or payload")
	}
	if blk.Type == domain.NoCompression && len(blk.Payload) != blk.RawLen {
		return nil, fmt.Errorf("raw block holds %d bytes, header says %d", len(blk.Payload), blk.RawLen)
	}
	return &blk, nil
}
