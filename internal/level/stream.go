package level

import (
	"fmt"
	"io"
	"os"
)

// Stream is the random-access byte source over a level container.
// It counts reads and seeks so callers can verify paging behaviour.
// Not safe for concurrent use; duplicate it per goroutine with Open.
type Stream struct {
	rs    io.ReadSeeker
	pos   int64
	reads int
	seeks int
	close func() error
}

// NewStream wraps an existing reader.
func NewStream(rs io.ReadSeeker) *Stream {
	return &Stream{rs: rs}
}

// Open opens the container file at path.
func Open(path string) (*Stream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening level %s: %w", path, err)
	}
	s := NewStream(f)
	s.close = f.Close
	return s, nil
}

// Seek moves to an absolute offset.
func (s *Stream) Seek(offset int64) error {
	off, err := s.rs.Seek(offset, io.SeekStart)
	if err != nil {
		return fmt.Errorf("seeking to %d: %w", offset, err)
	}
	if off != offset {
		return fmt.Errorf("seeking to %d: landed at %d", offset, off)
	}
	s.pos = off
	s.seeks++
	return nil
}

// Read reads exactly len(buf) bytes. A short read is an error.
func (s *Stream) Read(buf []byte) (int, error) {
	n, err := io.ReadFull(s.rs, buf)
	s.pos += int64(n)
	s.reads++
	if err != nil {
		return n, fmt.Errorf("reading %d bytes at %d: %w", len(buf), s.pos-int64(n), err)
	}
	return n, nil
}

// ReadAt seeks to offset and reads size bytes.
func (s *Stream) ReadAt(offset int64, size int) ([]byte, error) {
	if err := s.Seek(offset); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := s.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadSection reads a whole section.
func (s *Stream) ReadSection(sec Section) ([]byte, error) {
	return s.ReadAt(sec.Offset, int(sec.Size))
}

// Tell returns the current offset.
func (s *Stream) Tell() int64 {
	return s.pos
}

// Reads returns how many Read calls were made.
func (s *Stream) Reads() int {
	return s.reads
}

// Seeks returns how many Seek calls were made.
func (s *Stream) Seeks() int {
	return s.seeks
}

// Close releases the underlying file, if the stream owns one.
func (s *Stream) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
