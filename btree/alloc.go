package btree

import "encoding/binary"

/*
Slot allocation. Freed slots form a singly linked list threaded through the
slots themselves: the first 8 bytes of a free slot hold the offset of the
next free slot (nilOffset terminates the chain). allocate pops the head;
free pushes onto it. The head lives in the footer, persisted by whichever
tree operation triggered the allocation.

The allocator itself cannot fail on valid input; only medium I/O errors
propagate.
*/

// allocate returns the offset of a slot ready to be written: a recycled
// one if the free list is non-empty, otherwise a fresh zeroed slot
// appended at the end of the medium.
func (t *Tree) allocate() (uint64, error) {
	if t.freeListHead != nilOffset {
		offset := t.freeListHead
		buf, err := t.storage.Get(offset, 8)
		if err != nil {
			return 0, err
		}
		t.freeListHead = binary.LittleEndian.Uint64(buf)
		return offset, nil
	}
	return t.storage.Append(make([]byte, t.recordSize))
}

// free returns a slot to the allocator so merges and root collapses reuse
// space instead of leaking it.
func (t *Tree) free(offset uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, t.freeListHead)
	if err := t.storage.Put(buf, offset); err != nil {
		return err
	}
	t.freeListHead = offset
	return nil
}
