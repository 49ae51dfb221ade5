package btree

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptNode is returned when a slot's bytes violate the record
// layout: flag, key count and sentinel slots disagree with each other.
var ErrCorruptNode = errors.New("corrupt node record")

const (
	// MaxKeySize and MaxValSize cap one entry. Fixing them makes every
	// node record a known size, so any slot can be read in one Get
	// without a length-discovery round trip.
	MaxKeySize = 128
	MaxValSize = 512

	flagLeaf = 1 << 0

	offsetLen = 8
	entryLen  = 2 + 2 + MaxKeySize + MaxValSize

	// sentinelKeyLen marks an unused entry cell. A valid keyLen is at
	// most MaxKeySize, so the two can never collide.
	sentinelKeyLen = 0xFFFF
)

// recordSize is the fixed serialized length of one node for a given
// degree: 1B flags + 2B key count + 2t child offsets + 2t-1 entry cells.
func recordSize(degree int) uint64 {
	return uint64(3 + maxChildren(degree)*offsetLen + maxItems(degree)*entryLen)
}

/*
encode serializes n into a record of exactly recordSize(degree) bytes,
regardless of how many items it holds. Unused child slots carry nilOffset
and unused entry cells carry sentinelKeyLen, so decode can cross-check the
counts against the slot contents.

Layout (little-endian, as everywhere else in this module):

	flags(1) | keyCount(2) | children: 2t x offset(8) |
	entries: 2t-1 x ( keyLen(2) | valLen(2) | key[MaxKeySize] | val[MaxValSize] )
*/
func encode(n *node, degree int) []byte {
	buf := make([]byte, recordSize(degree))
	if n.isLeaf() {
		buf[0] = flagLeaf
	}
	binary.LittleEndian.PutUint16(buf[1:3], uint16(n.numItems))

	off := 3
	for i := 0; i < n.numChildren; i++ {
		binary.LittleEndian.PutUint64(buf[off+i*offsetLen:], n.children[i])
	}
	off += maxChildren(degree) * offsetLen

	for i := 0; i < maxItems(degree); i++ {
		cell := buf[off+i*entryLen:]
		if i >= n.numItems {
			binary.LittleEndian.PutUint16(cell, sentinelKeyLen)
			continue
		}
		it := n.items[i]
		binary.LittleEndian.PutUint16(cell, uint16(len(it.key)))
		binary.LittleEndian.PutUint16(cell[2:], uint16(len(it.val)))
		copy(cell[4:4+MaxKeySize], it.key)
		copy(cell[4+MaxKeySize:4+MaxKeySize+MaxValSize], it.val)
	}
	return buf
}

// decode is the exact inverse of encode. The returned node has no offset;
// the caller sets it from the slot address the bytes came from.
func decode(buf []byte, degree int) (*node, error) {
	if uint64(len(buf)) != recordSize(degree) {
		return nil, fmt.Errorf("%w: record is %d bytes, want %d", ErrCorruptNode, len(buf), recordSize(degree))
	}
	flags := buf[0]
	if flags != 0 && flags != flagLeaf {
		return nil, fmt.Errorf("%w: unknown flags %#x", ErrCorruptNode, flags)
	}
	leaf := flags == flagLeaf

	numItems := int(binary.LittleEndian.Uint16(buf[1:3]))
	if numItems > maxItems(degree) {
		return nil, fmt.Errorf("%w: key count %d exceeds %d", ErrCorruptNode, numItems, maxItems(degree))
	}

	n := newNode(degree)
	n.numItems = numItems

	off := 3
	for i := 0; i < maxChildren(degree); i++ {
		child := binary.LittleEndian.Uint64(buf[off+i*offsetLen:])
		switch {
		case leaf && child != nilOffset:
			return nil, fmt.Errorf("%w: leaf has child offset in slot %d", ErrCorruptNode, i)
		case !leaf && i <= numItems && child == nilOffset:
			return nil, fmt.Errorf("%w: internal node missing child offset in slot %d", ErrCorruptNode, i)
		case !leaf && i > numItems && child != nilOffset:
			return nil, fmt.Errorf("%w: internal node has stray child offset in slot %d", ErrCorruptNode, i)
		}
		n.children[i] = child
	}
	if !leaf {
		n.numChildren = numItems + 1
	}
	off += maxChildren(degree) * offsetLen

	for i := 0; i < maxItems(degree); i++ {
		cell := buf[off+i*entryLen:]
		keyLen := binary.LittleEndian.Uint16(cell)
		if i >= numItems {
			if keyLen != sentinelKeyLen {
				return nil, fmt.Errorf("%w: entry %d in use beyond key count %d", ErrCorruptNode, i, numItems)
			}
			continue
		}
		valLen := binary.LittleEndian.Uint16(cell[2:])
		if keyLen > MaxKeySize || valLen > MaxValSize {
			return nil, fmt.Errorf("%w: entry %d sized %d/%d", ErrCorruptNode, i, keyLen, valLen)
		}
		it := &item{
			key: make([]byte, keyLen),
			val: make([]byte, valLen),
		}
		copy(it.key, cell[4:4+keyLen])
		copy(it.val, cell[4+MaxKeySize:4+MaxKeySize+int(valLen)])
		n.items[i] = it
	}
	return n, nil
}
