// Package stream implements the block stream file: a small header followed
// by one record per stored block.
//
// Layout:
//
//	"BCMP" | version (1 byte) | record*
//	record = uvarint length | protowire message
//
// The first record is the header, every following record is a block.
// Unknown fields are skipped so newer writers stay readable.
package stream

import (
	"errors"

	"github.com/iamNilotpal/blockcomp/internal/core/domain"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	Magic   = "BCMP"
	Version = byte(1)

	// MaxRecordSize bounds a single record so a corrupt length prefix cannot
	// force a huge allocation.
	MaxRecordSize = 1 << 30

	// MaxBlockSize bounds the uncompressed length a block record may declare.
	MaxBlockSize = domain.MaxBlockSize
)

// Header record fields.
const (
	headerDictionary   protowire.Number = 1
	headerDefaultType  protowire.Number = 2
	headerOptions      protowire.Number = 3
	headerChecksum     protowire.Number = 4
	headerDictionaryID protowire.Number = 5
	headerTrained      protowire.Number = 6
)

// Block record fields.
const (
	blockType     protowire.Number = 1
	blockRawLen   protowire.Number = 2
	blockPayload  protowire.Number = 3
	blockChecksum protowire.Number = 4
)

var (
	ErrBadMagic       = errors.New("not a block stream")
	ErrBadVersion     = errors.New("unsupported block stream version")
	ErrRecordTooLarge = errors.New("record length exceeds limit")
	ErrNotBegun       = errors.New("block written before stream header")
	ErrAlreadyBegun   = errors.New("stream header already written")
)
