package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// File is a Storage backed by a single file on disk. It tracks the file
// size itself so Append never has to stat or seek.
type File struct {
	file *os.File
	size uint64
}

// CreateFile creates a new, empty file at path for use as a Storage. It
// fails with a wrapped os.ErrExist if the path already exists, whatever
// the file holds.
func CreateFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %q: %w", path, err)
	}
	return &File{file: f}, nil
}

// OpenFile opens (or creates) the file at path for use as a Storage.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	return &File{file: f, size: uint64(fi.Size())}, nil
}

func (f *File) Put(data []byte, offset uint64) error {
	if _, err := f.file.WriteAt(data, int64(offset)); err != nil {
		return fmt.Errorf("write %d bytes at %d: %w", len(data), offset, err)
	}
	if end := offset + uint64(len(data)); end > f.size {
		f.size = end
	}
	return nil
}

func (f *File) Get(offset, length uint64) ([]byte, error) {
	buf := make([]byte, length)
	_, err := f.file.ReadAt(buf, int64(offset))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read %d bytes at %d: %w", length, offset, ErrShortRead)
		}
		return nil, fmt.Errorf("read %d bytes at %d: %w", length, offset, err)
	}
	return buf, nil
}

func (f *File) Append(data []byte) (uint64, error) {
	offset := f.size
	if err := f.Put(data, offset); err != nil {
		return 0, err
	}
	return offset, nil
}

func (f *File) Close() error {
	// data is forced to disk rather than stuck in the page cache before
	// the handle goes away.
	if err := f.file.Sync(); err != nil {
		return err
	}
	err := f.file.Close()
	f.file = nil
	return err
}
