package offsetlog

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.offset")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendAndGet(t *testing.T) {
	l := openTestLog(t)

	seqs, err := l.Append([][]byte{[]byte("one"), []byte("two"), []byte("three")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(seqs) != 3 {
		t.Fatalf("got %d seqs, want 3", len(seqs))
	}
	if seqs[0] != 0 {
		t.Errorf("first seq = %d, want 0", seqs[0])
	}
	// Frame overhead is 8 bytes per entry.
	if want := uint64(len("one") + 8); seqs[1] != want {
		t.Errorf("second seq = %d, want %d", seqs[1], want)
	}

	for i, want := range []string{"one", "two", "three"} {
		data, err := l.Get(seqs[i])
		if err != nil {
			t.Fatalf("get seq %d: %v", seqs[i], err)
		}
		if string(data) != want {
			t.Errorf("get seq %d = %q, want %q", seqs[i], data, want)
		}
	}
}

func TestGetOutOfRange(t *testing.T) {
	l := openTestLog(t)
	if _, err := l.Get(0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("empty log Get(0) = %v, want ErrOutOfRange", err)
	}

	seqs, err := l.Append([][]byte{[]byte("entry")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	// Mid-frame offsets are not valid sequences.
	if _, err := l.Get(seqs[0] + 2); err == nil {
		t.Error("mid-frame Get succeeded, want error")
	}
	if _, err := l.Get(uint64(l.Size())); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Get(size) = %v, want ErrOutOfRange", err)
	}
}

func TestIter(t *testing.T) {
	l := openTestLog(t)
	entries := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd")}
	seqs, err := l.Append(entries)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	it := l.Iter(0)
	for i := range entries {
		e, err := it.Next()
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		if e.Seq != seqs[i] || !bytes.Equal(e.Data, entries[i]) {
			t.Errorf("entry %d = (%d, %q), want (%d, %q)", i, e.Seq, e.Data, seqs[i], entries[i])
		}
	}
	if _, err := it.Next(); err != io.EOF {
		t.Errorf("exhausted iterator returned %v, want io.EOF", err)
	}

	// Iterating from a later seq skips earlier entries.
	it = l.Iter(seqs[2])
	e, err := it.Next()
	if err != nil {
		t.Fatalf("next from seq %d: %v", seqs[2], err)
	}
	if string(e.Data) != "ccc" {
		t.Errorf("entry = %q, want %q", e.Data, "ccc")
	}
}

func TestIterSeesLiveAppends(t *testing.T) {
	l := openTestLog(t)
	if _, err := l.Append([][]byte{[]byte("first")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	it := l.Iter(0)
	if _, err := it.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := l.Append([][]byte{[]byte("second")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	e, err := it.Next()
	if err != nil {
		t.Fatalf("next after live append: %v", err)
	}
	if string(e.Data) != "second" {
		t.Errorf("entry = %q, want %q", e.Data, "second")
	}
}

func TestReopenPreservesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.offset")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seqs, err := l.Append([][]byte{[]byte("persisted")})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	size := l.Size()
	l.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Size() != size {
		t.Errorf("size after reopen = %d, want %d", l2.Size(), size)
	}
	data, err := l2.Get(seqs[0])
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if string(data) != "persisted" {
		t.Errorf("entry = %q", data)
	}
}

func TestRecoverTruncatedTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.offset")
	l, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := l.Append([][]byte{[]byte("whole"), []byte("entry")}); err != nil {
		t.Fatalf("append: %v", err)
	}
	size := l.Size()
	l.Close()

	// Simulate a crash mid-append: a dangling partial frame.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := f.Write([]byte{0, 0, 0, 99, 'x', 'y'}); err != nil {
		t.Fatalf("write garbage: %v", err)
	}
	f.Close()

	l2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()
	if l2.Size() != size {
		t.Errorf("size after recovery = %d, want %d", l2.Size(), size)
	}
}

func TestSnapshot(t *testing.T) {
	l := openTestLog(t)
	if _, err := l.Append([][]byte{[]byte("snap")}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var buf bytes.Buffer
	n, err := l.Snapshot(&buf)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if n != l.Size() {
		t.Errorf("snapshot wrote %d bytes, want %d", n, l.Size())
	}
	if int64(buf.Len()) != l.Size() {
		t.Errorf("buffer has %d bytes, want %d", buf.Len(), l.Size())
	}
}

func TestAppendEmptyBatch(t *testing.T) {
	l := openTestLog(t)
	seqs, err := l.Append(nil)
	if err != nil {
		t.Fatalf("append nil: %v", err)
	}
	if seqs != nil {
		t.Errorf("seqs = %v, want nil", seqs)
	}
}
