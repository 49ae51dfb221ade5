package btree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"btreedb/storage"
)

var (
	// ErrAlreadyExists is returned by New/Create when the target medium
	// already holds a valid tree. Creation is explicit and never
	// destructive.
	ErrAlreadyExists = errors.New("tree already exists")

	// ErrCorruptHeader is returned by Load/Open when the header bytes do
	// not describe a tree this package can read.
	ErrCorruptHeader = errors.New("corrupt tree header")
)

var magic = [4]byte{'b', 't', 'd', 'b'}

/*
On-disk layout of the fixed region in front of the slot array:

	[0..20)   header: magic(4) | degree(8) | recordSize(8)
	[20..36)  footer: rootOffset(8) | freeListHead(8)
	[36..)    slots, recordSize bytes each

The header is written once at creation. The footer is the only state that
changes across operations and is rewritten in place, so slot addresses
never move.
*/
const (
	headerSize = 4 + 8 + 8
	footerSize = 8 + 8

	footerOffset = headerSize
	slotsOffset  = headerSize + footerSize
)

type header struct {
	degree     int
	recordSize uint64
}

type footer struct {
	rootOffset   uint64
	freeListHead uint64
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf, magic[:])
	binary.LittleEndian.PutUint64(buf[4:], uint64(h.degree))
	binary.LittleEndian.PutUint64(buf[12:], h.recordSize)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if !bytes.Equal(buf[:4], magic[:]) {
		return header{}, fmt.Errorf("%w: bad magic %q", ErrCorruptHeader, buf[:4])
	}
	h := header{
		degree:     int(binary.LittleEndian.Uint64(buf[4:])),
		recordSize: binary.LittleEndian.Uint64(buf[12:]),
	}
	if h.degree < 2 {
		return header{}, fmt.Errorf("%w: degree %d", ErrCorruptHeader, h.degree)
	}
	if h.recordSize != recordSize(h.degree) {
		return header{}, fmt.Errorf("%w: record size %d, want %d for degree %d",
			ErrCorruptHeader, h.recordSize, recordSize(h.degree), h.degree)
	}
	return h, nil
}

func (f footer) encode() []byte {
	buf := make([]byte, footerSize)
	binary.LittleEndian.PutUint64(buf, f.rootOffset)
	binary.LittleEndian.PutUint64(buf[8:], f.freeListHead)
	return buf
}

func decodeFooter(buf []byte, h header) (footer, error) {
	f := footer{
		rootOffset:   binary.LittleEndian.Uint64(buf),
		freeListHead: binary.LittleEndian.Uint64(buf[8:]),
	}
	if !validSlotOffset(f.rootOffset, h.recordSize) {
		return footer{}, fmt.Errorf("%w: root offset %d is not a slot address", ErrCorruptHeader, f.rootOffset)
	}
	if f.freeListHead != nilOffset && !validSlotOffset(f.freeListHead, h.recordSize) {
		return footer{}, fmt.Errorf("%w: free list head %d is not a slot address", ErrCorruptHeader, f.freeListHead)
	}
	return f, nil
}

// validSlotOffset reports whether off lands exactly on a slot boundary.
func validSlotOffset(off, recordSize uint64) bool {
	return off >= slotsOffset && (off-slotsOffset)%recordSize == 0
}

// hasValidHeader probes the first bytes of a medium for an existing tree.
// A short read means the medium is empty (or too small to hold a tree) and
// is free to be initialized.
func hasValidHeader(s storage.Storage) bool {
	buf, err := s.Get(0, headerSize)
	if err != nil {
		return false
	}
	_, err = decodeHeader(buf)
	return err == nil
}
