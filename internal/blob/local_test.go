package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreWriteOpenExists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	ctx := context.Background()
	key := "sys1/2024/01/15/test.mp3"
	payload := []byte("fake audio bytes")

	if err := store.Write(ctx, key, bytes.NewReader(payload)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	exists, err := store.Exists(ctx, key)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("expected key to exist after Write")
	}

	rc, err := store.Open(ctx, key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("read back %q, want %q", got, payload)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	_, err = store.safePath("../../../etc/passwd")
	if err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}

func TestLocalStoreArchive(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	ctx := context.Background()

	if err := store.Write(ctx, "in/a.mp3", bytes.NewReader([]byte("x"))); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Archive(ctx, "in/a.mp3", "out/a.mp3"); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if exists, _ := store.Exists(ctx, "in/a.mp3"); exists {
		t.Error("source should no longer exist after archive")
	}
	if exists, _ := store.Exists(ctx, "out/a.mp3"); !exists {
		t.Error("destination should exist after archive")
	}

	if _, err := os.Stat(filepath.Join(dir, "in", "a.mp3")); !os.IsNotExist(err) {
		t.Errorf("expected source file removed, stat err = %v", err)
	}
}

func TestLocalStoreExistsMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	exists, err := store.Exists(context.Background(), "nope.mp3")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("expected missing key to report not-exists")
	}
}
