package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// mockSource returns a fixed payload from Snapshot.
type mockSource struct {
	data []byte
	err  error
}

func (s *mockSource) Snapshot(w io.Writer) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	n, err := w.Write(s.data)
	return int64(n), err
}

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Value // []byte
}

func (d *mockDestination) Write(_ context.Context, data []byte) error {
	d.writes.Add(1)
	cp := make([]byte, len(data))
	copy(cp, data)
	d.last.Store(cp)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestSchedulerStartStop(t *testing.T) {
	src := &mockSource{data: []byte("log-bytes")}
	dest := &mockDestination{}

	sched := NewScheduler(src, []Destination{dest}, 50*time.Millisecond, testLogger())
	sched.Start()

	// Wait for at least the initial backup + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}

	data, ok := dest.last.Load().([]byte)
	if !ok || string(data) != "log-bytes" {
		t.Fatalf("last write = %q", data)
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(&mockSource{}, nil, time.Minute, testLogger())
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerMultipleDestinations(t *testing.T) {
	src := &mockSource{data: []byte("x")}
	dest1 := &mockDestination{}
	dest2 := &mockDestination{}

	sched := NewScheduler(src, []Destination{dest1, dest2}, time.Second, testLogger())
	sched.Start()

	// Wait for the initial backup.
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if dest1.writes.Load() < 1 {
		t.Fatal("dest1 expected at least 1 write")
	}
	if dest2.writes.Load() < 1 {
		t.Fatal("dest2 expected at least 1 write")
	}
}

func TestSchedulerSnapshotError(t *testing.T) {
	src := &mockSource{err: errors.New("disk gone")}
	dest := &mockDestination{}

	sched := NewScheduler(src, []Destination{dest}, time.Second, testLogger())
	sched.Start()
	time.Sleep(50 * time.Millisecond)
	sched.Stop()

	if dest.writes.Load() != 0 {
		t.Fatal("destination should not be written when snapshot fails")
	}
}

func TestFileDestination(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backups", "log.offset")
	dest := NewFileDestination(path)

	if err := dest.Write(context.Background(), []byte("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := dest.Write(context.Background(), []byte("second")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "second" {
		t.Errorf("file contents = %q, want %q", data, "second")
	}

	// No temp files should be left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in backup dir, got %d", len(entries))
	}
}
