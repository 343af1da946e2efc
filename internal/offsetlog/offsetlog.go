// Package offsetlog implements the append-only log file that is the source
// of truth for scuttlestore. Entries are framed as a 4-byte big-endian
// payload length, the payload, and the length repeated. An entry's sequence
// is the byte offset of its frame, so sequences are unique and strictly
// increasing for the lifetime of the log.
package offsetlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

const frameHeaderSize = 4

// ErrOutOfRange is returned by Get when the sequence does not point at the
// start of an entry.
var ErrOutOfRange = errors.New("offsetlog: sequence out of range")

// Log is an append-only offset log. All methods are safe for concurrent use.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	size int64
	path string
}

// Open opens (or creates) the log at path. A truncated final frame left by a
// crash is discarded so the log always ends on a whole entry.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open offset log: %w", err)
	}

	l := &Log{f: f, path: path}
	if err := l.recover(); err != nil {
		f.Close()
		return nil, err
	}
	return l, nil
}

// recover walks the frames from the start and truncates the file back to the
// last complete entry.
func (l *Log) recover() error {
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("stat offset log: %w", err)
	}
	size := info.Size()

	var pos int64
	var hdr [frameHeaderSize]byte
	for pos < size {
		if pos+frameHeaderSize > size {
			break
		}
		if _, err := l.f.ReadAt(hdr[:], pos); err != nil {
			return fmt.Errorf("read frame header at %d: %w", pos, err)
		}
		n := int64(binary.BigEndian.Uint32(hdr[:]))
		end := pos + frameHeaderSize + n + frameHeaderSize
		if end > size {
			break
		}
		if _, err := l.f.ReadAt(hdr[:], pos+frameHeaderSize+n); err != nil {
			return fmt.Errorf("read frame trailer at %d: %w", pos, err)
		}
		if int64(binary.BigEndian.Uint32(hdr[:])) != n {
			break
		}
		pos = end
	}

	if pos < size {
		if err := l.f.Truncate(pos); err != nil {
			return fmt.Errorf("truncate corrupt tail: %w", err)
		}
	}
	l.size = pos
	return nil
}

// Append writes a batch of entries and returns their sequences. The batch is
// synced to disk before Append returns; on error nothing from the batch is
// considered appended.
func (l *Log) Append(batch [][]byte) ([]uint64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seqs := make([]uint64, 0, len(batch))
	buf := make([]byte, 0, batchSize(batch))
	pos := l.size
	for _, data := range batch {
		seqs = append(seqs, uint64(pos))
		var hdr [frameHeaderSize]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, data...)
		buf = append(buf, hdr[:]...)
		pos += frameHeaderSize + int64(len(data)) + frameHeaderSize
	}

	if _, err := l.f.WriteAt(buf, l.size); err != nil {
		// Leave any partial write for recover on next open.
		return nil, fmt.Errorf("append to offset log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return nil, fmt.Errorf("sync offset log: %w", err)
	}
	l.size = pos
	return seqs, nil
}

func batchSize(batch [][]byte) int {
	n := 0
	for _, data := range batch {
		n += frameHeaderSize + len(data) + frameHeaderSize
	}
	return n
}

// Get returns the payload of the entry whose frame starts at seq.
func (l *Log) Get(seq uint64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, _, err := l.readAt(int64(seq))
	return data, err
}

// readAt reads one frame at pos and returns the payload and the position of
// the next frame. Callers must hold l.mu.
func (l *Log) readAt(pos int64) ([]byte, int64, error) {
	if pos < 0 || pos+frameHeaderSize > l.size {
		return nil, 0, ErrOutOfRange
	}
	var hdr [frameHeaderSize]byte
	if _, err := l.f.ReadAt(hdr[:], pos); err != nil {
		return nil, 0, fmt.Errorf("read frame header at %d: %w", pos, err)
	}
	n := int64(binary.BigEndian.Uint32(hdr[:]))
	end := pos + frameHeaderSize + n + frameHeaderSize
	if end > l.size {
		return nil, 0, ErrOutOfRange
	}
	data := make([]byte, n)
	if _, err := l.f.ReadAt(data, pos+frameHeaderSize); err != nil {
		return nil, 0, fmt.Errorf("read frame payload at %d: %w", pos, err)
	}
	if _, err := l.f.ReadAt(hdr[:], pos+frameHeaderSize+n); err != nil {
		return nil, 0, fmt.Errorf("read frame trailer at %d: %w", pos, err)
	}
	if int64(binary.BigEndian.Uint32(hdr[:])) != n {
		return nil, 0, fmt.Errorf("corrupt frame at %d: trailer mismatch", pos)
	}
	return data, end, nil
}

// Entry is one log entry yielded by an Iterator.
type Entry struct {
	Seq  uint64
	Data []byte
}

// Iterator walks entries in sequence order. It is not safe for concurrent
// use, but the underlying log may be appended to while iterating; entries
// appended after the iterator was created are still visible.
type Iterator struct {
	log *Log
	pos int64
}

// Iter returns an iterator positioned at the entry whose frame starts at
// from. Iter(0) walks the whole log.
func (l *Log) Iter(from uint64) *Iterator {
	return &Iterator{log: l, pos: int64(from)}
}

// Next returns the next entry, or io.EOF when the log is exhausted.
func (it *Iterator) Next() (Entry, error) {
	it.log.mu.Lock()
	defer it.log.mu.Unlock()

	data, next, err := it.log.readAt(it.pos)
	if err != nil {
		if errors.Is(err, ErrOutOfRange) {
			return Entry{}, io.EOF
		}
		return Entry{}, err
	}
	e := Entry{Seq: uint64(it.pos), Data: data}
	it.pos = next
	return e, nil
}

// Size returns the current byte size of the log, which is also the sequence
// the next appended entry will receive.
func (l *Log) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Path returns the file path the log was opened with.
func (l *Log) Path() string { return l.path }

// Snapshot copies the current contents of the log to w. Entries appended
// after Snapshot starts are not included.
func (l *Log) Snapshot(w io.Writer) (int64, error) {
	l.mu.Lock()
	size := l.size
	l.mu.Unlock()

	return io.Copy(w, io.NewSectionReader(l.f, 0, size))
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
