package applog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nexusgate/oauth-llm-gateway/internal/store"
)

func newTestBuffer(t *testing.T) (*Buffer, *store.FileStore) {
	t.Helper()
	fs, err := store.New(filepath.Join(t.TempDir(), "app_logs.json"))
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	b, err := New(fs)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return b, fs
}

func TestLogAppendsEntry(t *testing.T) {
	b, _ := newTestBuffer(t)
	b.Log("info", "hello")
	tail := b.Tail()
	if len(tail) != 1 || tail[0].Message != "hello" || tail[0].Level != "info" {
		t.Fatalf("unexpected tail: %+v", tail)
	}
	if tail[0].Timestamp == "" {
		t.Fatal("expected a populated timestamp")
	}
}

func TestLogTrimsToMaxEntries(t *testing.T) {
	b, _ := newTestBuffer(t)
	for i := 0; i < MaxEntries+10; i++ {
		b.Log("info", "msg")
	}
	if len(b.Tail()) != MaxEntries {
		t.Fatalf("expected buffer capped at %d, got %d", MaxEntries, len(b.Tail()))
	}
}

func TestLogFlushesAutomaticallyAtThreshold(t *testing.T) {
	b, fs := newTestBuffer(t)
	for i := 0; i < FlushThreshold; i++ {
		b.Log("info", "msg")
	}

	var persisted []Entry
	if err := fs.Load(&persisted); err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	if len(persisted) != FlushThreshold {
		t.Fatalf("expected auto-flush at threshold to persist %d entries, got %d", FlushThreshold, len(persisted))
	}
}

func TestFlushPersistsCurrentSnapshot(t *testing.T) {
	b, fs := newTestBuffer(t)
	b.Log("warn", "careful")
	if err := b.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var persisted []Entry
	if err := fs.Load(&persisted); err != nil {
		t.Fatalf("load persisted: %v", err)
	}
	if len(persisted) != 1 || persisted[0].Message != "careful" {
		t.Fatalf("unexpected persisted entries: %+v", persisted)
	}
}

func TestNewLoadsAndTrimsExistingTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app_logs.json")
	fs, err := store.New(path)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	var seed []Entry
	for i := 0; i < MaxEntries+5; i++ {
		seed = append(seed, Entry{Timestamp: time.Now().UTC().Format(time.RFC3339), Level: "info", Message: "seed"})
	}
	if err := fs.AtomicWrite(seed); err != nil {
		t.Fatalf("seed atomic write: %v", err)
	}

	fs2, err := store.New(path)
	if err != nil {
		t.Fatalf("reopen file store: %v", err)
	}
	b, err := New(fs2)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	if len(b.Tail()) != MaxEntries {
		t.Fatalf("expected loaded tail trimmed to %d, got %d", MaxEntries, len(b.Tail()))
	}
}

func TestStartFlushLoopStopsCleanly(t *testing.T) {
	b, _ := newTestBuffer(t)
	b.Log("info", "pre-loop")
	stop := b.StartFlushLoop(10 * time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	stop()
}
