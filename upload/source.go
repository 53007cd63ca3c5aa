package upload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ByteSource is a forward-only view over the content to upload.
// Size must be known before the first read.
type ByteSource interface {
	io.Reader
	// Name is the file name sent with every chunk.
	Name() string
	// Size is the total number of bytes the source will produce.
	Size() int64
	Close() error
}

// FileSource reads the content of a regular file on disk.
type FileSource struct {
	file *os.File
	name string
	size int64
}

// OpenFile opens the file at path and determines its size.
// Directories and other non-regular files are rejected.
func OpenFile(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newError(ErrSourceUnreadable, 0, fmt.Errorf("stat file: %w", err))
	}
	if info.IsDir() {
		return nil, newError(ErrSourceUnreadable, 0, fmt.Errorf("%s is a directory", path))
	}
	if !info.Mode().IsRegular() {
		return nil, newError(ErrSourceUnreadable, 0, fmt.Errorf("%s is not a regular file", path))
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, newError(ErrSourceUnreadable, 0, fmt.Errorf("open file: %w", err))
	}

	return &FileSource{
		file: file,
		name: filepath.Base(path),
		size: info.Size(),
	}, nil
}

// Read ...
func (s *FileSource) Read(p []byte) (int, error) {
	return s.file.Read(p)
}

// Name ...
func (s *FileSource) Name() string {
	return s.name
}

// Size ...
func (s *FileSource) Size() int64 {
	return s.size
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// BytesSource provides content that is already in memory.
type BytesSource struct {
	*bytes.Reader
	name string
	size int64
}

// NewBytesSource creates a ByteSource from a byte slice.
func NewBytesSource(name string, data []byte) *BytesSource {
	return &BytesSource{
		Reader: bytes.NewReader(data),
		name:   name,
		size:   int64(len(data)),
	}
}

// Name ...
func (s *BytesSource) Name() string {
	return s.name
}

// Size returns the length of the original slice, not the unread remainder.
func (s *BytesSource) Size() int64 {
	return s.size
}

// Close ...
func (s *BytesSource) Close() error {
	return nil
}
