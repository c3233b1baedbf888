// Package blockfile implements the Scanner stage: discovering block
// boundaries inside raw blk*.dat bytes via magic-number scanning.
package blockfile

import (
	"fmt"
	"os"
	"sync"
)

// SharedFile is a long-lived, mutex-guarded handle to one block file.
// The Scanner opens it once per file after the initial scan pass; its
// lifetime is the union of every FileBlockRef that points into it, since
// the Reorderer performs random-access reads against it later.
type SharedFile struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenSharedFile opens path for later random-access reads.
func OpenSharedFile(path string) (*SharedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open block file %s: %w", path, err)
	}
	return &SharedFile{file: f, path: path}, nil
}

// ReadAt reads end-start bytes starting at byte offset start. Concurrent
// random-access callers are serialized by the mutex — the mutex exists to
// document the single-owner-at-a-time intent, not because concurrent
// seek+read is otherwise expected.
func (s *SharedFile) ReadAt(start, end int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, end-start)
	if _, err := s.file.ReadAt(buf, int64(start)); err != nil {
		return nil, fmt.Errorf("read block payload from %s [%d:%d]: %w", s.path, start, end, err)
	}
	return buf, nil
}

// Path returns the underlying file's path, for diagnostics.
func (s *SharedFile) Path() string {
	return s.path
}

// Close releases the underlying file descriptor.
func (s *SharedFile) Close() error {
	return s.file.Close()
}
