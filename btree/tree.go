package btree

import (
	"errors"
	"fmt"
	"os"

	"btreedb/storage"
)

var (
	// ErrInvalidDegree is returned by New/Create for degrees below 2.
	ErrInvalidDegree = errors.New("degree must be at least 2")

	// ErrKeyTooLarge and ErrValueTooLarge reject entries that cannot fit
	// a fixed-size entry cell.
	ErrKeyTooLarge   = errors.New("key exceeds MaxKeySize")
	ErrValueTooLarge = errors.New("value exceeds MaxValSize")

	// ErrClosed is returned by operations on a closed tree.
	ErrClosed = errors.New("tree is closed")
)

/*
Tree is a persistent B-Tree over a storage medium. All state that survives
across operations lives in the medium; the handle only caches the header
fields and the current footer.

A Tree assumes exclusive access to its medium for its whole lifetime.
Operations are synchronous and single-threaded; each one loads one node at
a time (plus a parent or sibling around splits, borrows and merges),
mutates it, writes it back and moves on.
*/
type Tree struct {
	storage    storage.Storage
	degree     int
	recordSize uint64

	rootOffset   uint64
	freeListHead uint64

	closed bool
}

// New initializes a tree of the given degree on an empty medium. It fails
// with ErrAlreadyExists if the medium already holds a valid tree -- or
// holds anything at all: initializing would overwrite the first bytes and
// append slots off the slot grid, so creation never touches a non-empty
// medium.
func New(s storage.Storage, degree int) (*Tree, error) {
	if degree < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDegree, degree)
	}
	if hasValidHeader(s) {
		return nil, ErrAlreadyExists
	}
	if _, err := s.Get(0, 1); err == nil {
		return nil, fmt.Errorf("%w: medium is not empty", ErrAlreadyExists)
	} else if !errors.Is(err, storage.ErrShortRead) {
		return nil, err
	}

	t := &Tree{
		storage:    s,
		degree:     degree,
		recordSize: recordSize(degree),
	}
	h := header{degree: degree, recordSize: t.recordSize}
	if err := s.Put(h.encode(), 0); err != nil {
		return nil, err
	}
	// Reserve the footer region before the first slot is appended.
	if err := s.Put(footer{}.encode(), footerOffset); err != nil {
		return nil, err
	}

	root := newNode(degree)
	rootOffset, err := t.allocate()
	if err != nil {
		return nil, err
	}
	root.offset = rootOffset
	if err := t.writeNode(root); err != nil {
		return nil, err
	}

	t.rootOffset = rootOffset
	if err := t.writeFooter(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load opens the tree already present on a medium. It fails with
// ErrCorruptHeader if the fixed region is unreadable and with
// ErrCorruptNode if the root slot does not decode.
func Load(s storage.Storage) (*Tree, error) {
	buf, err := s.Get(0, headerSize)
	if err != nil {
		if errors.Is(err, storage.ErrShortRead) {
			return nil, fmt.Errorf("%w: medium holds no header", ErrCorruptHeader)
		}
		return nil, err
	}
	h, err := decodeHeader(buf)
	if err != nil {
		return nil, err
	}

	buf, err = s.Get(footerOffset, footerSize)
	if err != nil {
		if errors.Is(err, storage.ErrShortRead) {
			return nil, fmt.Errorf("%w: medium holds no footer", ErrCorruptHeader)
		}
		return nil, err
	}
	f, err := decodeFooter(buf, h)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		storage:      s,
		degree:       h.degree,
		recordSize:   h.recordSize,
		rootOffset:   f.rootOffset,
		freeListHead: f.freeListHead,
	}
	// Fail fast on a tree whose root slot is unreadable.
	if _, err := t.loadNode(t.rootOffset); err != nil {
		return nil, err
	}
	return t, nil
}

// Create initializes a new tree backed by a new file at path. Creation is
// exclusive: any existing file at path, tree or not, fails with
// ErrAlreadyExists and is left untouched.
func Create(path string, degree int) (*Tree, error) {
	s, err := storage.CreateFile(path)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}
	t, err := New(s, degree)
	if err != nil {
		s.Close()
		return nil, err
	}
	return t, nil
}

// Open loads an existing tree from the file at path.
func Open(path string) (*Tree, error) {
	s, err := storage.OpenFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Load(s)
	if err != nil {
		s.Close()
		return nil, err
	}
	return t, nil
}

// Degree reports the minimum branching factor the tree was created with.
func (t *Tree) Degree() int {
	return t.degree
}

// Close flushes the medium and releases it. The handle is unusable
// afterwards.
func (t *Tree) Close() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return t.storage.Close()
}

/*
Get returns the value stored under key. Absence is not an error: the
second return is false when the key was never put, or was deleted.

Iterative descent: load the node at the current offset, binary-search it,
and either return, stop at a leaf, or follow the child offset the search
position points at. No node outlives the choice of its child.
*/
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrClosed
	}
	for next := t.rootOffset; next != nilOffset; {
		n, err := t.loadNode(next)
		if err != nil {
			return nil, false, err
		}
		pos, found := n.search(key)
		if found {
			return n.items[pos].val, true, nil
		}
		if n.isLeaf() {
			return nil, false, nil
		}
		next = n.children[pos]
	}
	return nil, false, nil
}

// Height reports the number of levels in the tree. A tree holding only an
// empty root leaf has height 1. Used by the visualizer and by tests; the
// value is derived by walking the leftmost spine, not stored.
func (t *Tree) Height() (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	height := 0
	for next := t.rootOffset; ; {
		n, err := t.loadNode(next)
		if err != nil {
			return 0, err
		}
		height++
		if n.isLeaf() {
			return height, nil
		}
		next = n.children[0]
	}
}

// Len reports the number of keys currently stored, by full traversal.
func (t *Tree) Len() (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	return t.countKeys(t.rootOffset)
}

func (t *Tree) countKeys(offset uint64) (int, error) {
	n, err := t.loadNode(offset)
	if err != nil {
		return 0, err
	}
	total := n.numItems
	for i := 0; i < n.numChildren; i++ {
		sub, err := t.countKeys(n.children[i])
		if err != nil {
			return 0, err
		}
		total += sub
	}
	return total, nil
}

func (t *Tree) loadNode(offset uint64) (*node, error) {
	buf, err := t.storage.Get(offset, t.recordSize)
	if err != nil {
		return nil, err
	}
	n, err := decode(buf, t.degree)
	if err != nil {
		return nil, fmt.Errorf("slot at %d: %w", offset, err)
	}
	n.offset = offset
	return n, nil
}

func (t *Tree) writeNode(n *node) error {
	return t.storage.Put(encode(n, t.degree), n.offset)
}

// writeFooter persists the root offset and free list head in place. It is
// the last write of every mutating operation that changed either field, so
// a failure mid-operation leaves the previous footer (and the tree it
// reaches) intact.
func (t *Tree) writeFooter() error {
	f := footer{rootOffset: t.rootOffset, freeListHead: t.freeListHead}
	return t.storage.Put(f.encode(), footerOffset)
}

func checkEntry(key, val []byte) error {
	if len(key) > MaxKeySize {
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLarge, len(key))
	}
	if len(val) > MaxValSize {
		return fmt.Errorf("%w: %d bytes", ErrValueTooLarge, len(val))
	}
	return nil
}
