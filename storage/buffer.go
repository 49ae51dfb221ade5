package storage

import "fmt"

// Buffer is an in-memory Storage. Tests use it to exercise the tree
// deterministically and to compare the whole medium byte for byte.
type Buffer struct {
	data []byte
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Put(data []byte, offset uint64) error {
	if end := offset + uint64(len(data)); end > uint64(len(b.data)) {
		grown := make([]byte, end)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *Buffer) Get(offset, length uint64) ([]byte, error) {
	if offset+length > uint64(len(b.data)) {
		return nil, fmt.Errorf("read %d bytes at %d: %w", length, offset, ErrShortRead)
	}
	buf := make([]byte, length)
	copy(buf, b.data[offset:])
	return buf, nil
}

func (b *Buffer) Append(data []byte) (uint64, error) {
	offset := uint64(len(b.data))
	b.data = append(b.data, data...)
	return offset, nil
}

func (b *Buffer) Close() error {
	return nil
}

// Len reports the current size of the medium.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns a copy of the medium's contents.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
