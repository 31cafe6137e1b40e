package outbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxSegmentSize is the size at which the log starts a new segment (16MB)
	DefaultMaxSegmentSize = 16 << 20

	segmentPrefix = "outbox"
	segmentSuffix = ".log"
)

// segmentFile is the open segment; *os.File in production
type segmentFile interface {
	io.Writer
	Sync() error
	Truncate(size int64) error
	Close() error
}

// segmentLog is an append-only log split across numbered segment files
type segmentLog struct {
	dir         string
	maxFileSize int64

	// openFile opens a segment for appending
	openFile func(path string) (segmentFile, int64, error)

	mu        sync.Mutex
	fd        segmentFile
	lsn       uint64
	fileSize  int64
	fileIndex int
	closed    bool
}

// openLog opens the log in dir and returns the entries already on disk.
// A torn or corrupted tail ends its segment; tornTail reports it.
func openLog(dir string, maxFileSize int64) (log *segmentLog, entries []*Entry, tornTail bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, false, err
	}

	l := &segmentLog{dir: dir, maxFileSize: maxFileSize, openFile: openSegmentFile}
	files, err := l.segments()
	if err != nil {
		return nil, nil, false, err
	}

	for _, f := range files {
		es, torn, err := readSegment(f)
		if err != nil {
			return nil, nil, false, err
		}
		tornTail = tornTail || torn
		entries = append(entries, es...)
	}
	for _, e := range entries {
		if e.LSN > l.lsn {
			l.lsn = e.LSN
		}
	}

	// A torn segment is never appended to; later entries would sit behind
	// bytes the reader cannot get past.
	if len(files) > 0 {
		l.fileIndex = segmentIndex(files[len(files)-1])
		if tornTail {
			l.fileIndex++
		}
	}
	if err := l.openSegment(l.fileIndex); err != nil {
		return nil, nil, false, err
	}
	return l, entries, tornTail, nil
}

// append assigns the next LSN, writes and syncs the entry
func (l *segmentLog) append(e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	e.LSN = l.lsn + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	data := e.Encode()

	if l.fileSize > 0 && l.fileSize+int64(len(data)) > l.maxFileSize {
		if err := l.rotateNoLock(); err != nil {
			return err
		}
	}

	start := l.fileSize
	n, err := l.fd.Write(data)
	l.fileSize += int64(n)
	if err != nil {
		return l.discardTailNoLock(start, fmt.Errorf("outbox: write: %w", err))
	}
	if err := l.fd.Sync(); err != nil {
		return l.discardTailNoLock(start, fmt.Errorf("outbox: sync: %w", err))
	}

	l.lsn = e.LSN
	return nil
}

// discardTailNoLock cuts the segment back to size after a failed write so
// the next entry does not land behind a fragment the reader stops at. When
// the segment cannot be cut, appends move to a fresh segment instead.
func (l *segmentLog) discardTailNoLock(size int64, cause error) error {
	if err := l.fd.Truncate(size); err == nil {
		if err := l.fd.Sync(); err == nil {
			l.fileSize = size
			return cause
		}
	}

	l.fd.Close()
	if err := l.openSegment(l.fileIndex + 1); err != nil {
		l.closed = true
		return errors.Join(cause, fmt.Errorf("outbox: abandon damaged segment: %w", err))
	}
	return cause
}

// rewrite writes entries verbatim into a fresh segment and removes every
// older one. The LSN counter is left untouched.
func (l *segmentLog) rewrite(entries []*Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	old, err := l.segments()
	if err != nil {
		return err
	}
	if err := l.rotateNoLock(); err != nil {
		return err
	}

	// The old segments stay until the copy is synced; a failed copy is cut
	// back to empty and they remain authoritative.
	for _, e := range entries {
		n, err := l.fd.Write(e.Encode())
		l.fileSize += int64(n)
		if err != nil {
			return l.discardTailNoLock(0, fmt.Errorf("outbox: rewrite: %w", err))
		}
	}
	if err := l.fd.Sync(); err != nil {
		return l.discardTailNoLock(0, fmt.Errorf("outbox: sync: %w", err))
	}

	var errs []error
	for _, f := range old {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *segmentLog) close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.fd.Close()
}

// rotateNoLock moves appends to the next segment (caller must hold mu)
func (l *segmentLog) rotateNoLock() error {
	if err := l.fd.Sync(); err != nil {
		return err
	}
	if err := l.fd.Close(); err != nil {
		return err
	}
	return l.openSegment(l.fileIndex + 1)
}

func (l *segmentLog) openSegment(index int) error {
	fd, size, err := l.openFile(l.segmentPath(index))
	if err != nil {
		return err
	}

	l.fd = fd
	l.fileIndex = index
	l.fileSize = size
	return nil
}

func openSegmentFile(path string) (segmentFile, int64, error) {
	fd, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, 0, err
	}
	stat, err := fd.Stat()
	if err != nil {
		fd.Close()
		return nil, 0, err
	}
	return fd, stat.Size(), nil
}

func (l *segmentLog) segmentPath(index int) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s.%06d%s", segmentPrefix, index, segmentSuffix))
}

// segments returns the segment files sorted by index
func (l *segmentLog) segments() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, segmentPrefix+".") || !strings.HasSuffix(name, segmentSuffix) {
			continue
		}
		files = append(files, filepath.Join(l.dir, name))
	}

	sort.Slice(files, func(i, j int) bool {
		return segmentIndex(files[i]) < segmentIndex(files[j])
	})
	return files, nil
}

func segmentIndex(path string) int {
	var idx int
	fmt.Sscanf(filepath.Base(path), segmentPrefix+".%d"+segmentSuffix, &idx)
	return idx
}
