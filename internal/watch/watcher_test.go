package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestWatcherMatchesExtensionAndSize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(WatcherOptions{
		Directory:      dir,
		FileExtensions: []string{"mp3"},
		MinFileSize:    10,
		MaxFileSize:    1000,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	wavPath := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(wavPath, make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(wavPath)
	if w.matches(wavPath, info) {
		t.Error("expected .wav to be rejected by extension allowlist")
	}

	mp3Path := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(mp3Path, make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ = os.Stat(mp3Path)
	if !w.matches(mp3Path, info) {
		t.Error("expected .mp3 within size bounds to match")
	}

	tinyPath := filepath.Join(dir, "tiny.mp3")
	if err := os.WriteFile(tinyPath, make([]byte, 2), 0o644); err != nil {
		t.Fatal(err)
	}
	info, _ = os.Stat(tinyPath)
	if w.matches(tinyPath, info) {
		t.Error("expected file under MinFileSize to be rejected")
	}
}

func TestWatcherStartReturnsInitialBacklog(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.mp3"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(WatcherOptions{
		Directory:      dir,
		FileExtensions: []string{"mp3"},
		Recursive:      true,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	initial, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(initial) != 1 || initial[0].Path != filepath.Join(dir, "existing.mp3") {
		t.Fatalf("initial = %+v, want one backlog entry for existing.mp3", initial)
	}
}

func TestWatcherDebouncePublishesAfterSettling(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(WatcherOptions{
		Directory:      dir,
		FileExtensions: []string{"mp3"},
		DebounceDelay:  20 * time.Millisecond,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	ctx := context.Background()
	if _, err := w.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	path := filepath.Join(dir, "new.mp3")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-w.Events():
		if ev.Path != path {
			t.Errorf("event path = %q, want %q", ev.Path, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced create event")
	}
}
