package storage

import "errors"

// ErrShortRead is returned by Get when the medium holds fewer bytes at the
// requested offset than the caller asked for.
var ErrShortRead = errors.New("short read")

/*
Storage is the byte-addressable medium a tree lives in. It knows nothing
about nodes or offsets beyond raw byte ranges, so both a real file and an
in-memory buffer satisfy it -- the latter makes the tree unit-testable
without touching a filesystem.

Writes are never partially applied from the caller's point of view: a Put
or Append either lands in full or returns an error.
*/
type Storage interface {
	// Put writes len(data) bytes starting at offset, growing the medium
	// if the range extends past its current end.
	Put(data []byte, offset uint64) error

	// Get reads exactly length bytes starting at offset. Fails with
	// ErrShortRead if fewer are available.
	Get(offset, length uint64) ([]byte, error)

	// Append writes data at the current end of the medium and returns
	// the offset where the write began.
	Append(data []byte) (uint64, error)

	// Close flushes any buffered state and releases the medium. No
	// further calls are valid afterwards.
	Close() error
}
