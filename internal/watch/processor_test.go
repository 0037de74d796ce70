package watch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestVerifyIntegrityNonMP3PassesByDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := verifyIntegrity(path)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want non-mp3 to pass unconditionally", ok, err)
	}
}

func TestVerifyIntegrityID3Prefix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(path, append([]byte("ID3"), make([]byte, 10)...), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := verifyIntegrity(path)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want ID3-prefixed mp3 to pass", ok, err)
	}
}

func TestVerifyIntegrityFrameSync(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(path, []byte{0xFF, 0xE2, 0x00, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := verifyIntegrity(path)
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want frame-synced mp3 to pass", ok, err)
	}
}

func TestVerifyIntegrityRejectsGarbageMP3(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := verifyIntegrity(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected garbage mp3 content to fail integrity check")
	}
}

func TestExtractMetadataFallsBackToUnderscoreSegment(t *testing.T) {
	qf := QueuedFile{Path: "/data/SYS1_20260101_120000.mp3"}
	m := extractMetadata(qf, "SYS1_20260101_120000.mp3")
	if m.SystemID != "SYS1" {
		t.Errorf("SystemID = %q, want fallback to leading underscore segment", m.SystemID)
	}
}

func TestExtractMetadataUnknownWhenNoSeparators(t *testing.T) {
	qf := QueuedFile{Path: "/data/recording.mp3"}
	m := extractMetadata(qf, "recording.mp3")
	if m.SystemID != "unknown" {
		t.Errorf("SystemID = %q, want \"unknown\"", m.SystemID)
	}
}

// fakeBlob is a minimal in-memory blob.Store used only to exercise
// Processor.process without touching real storage.
type fakeBlob struct{}

func (fakeBlob) Write(ctx context.Context, key string, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}
func (fakeBlob) Archive(ctx context.Context, srcKey, dstKey string) error { return nil }
func (fakeBlob) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, os.ErrNotExist
}
func (fakeBlob) Exists(ctx context.Context, key string) (bool, error) { return false, nil }
func (fakeBlob) Remove(ctx context.Context, key string) error         { return nil }
func (fakeBlob) Type() string                                         { return "fake" }

func TestProcessSkipsWhenFileMissing(t *testing.T) {
	p := NewProcessor(ProcessorOptions{Blob: fakeBlob{}}, zerolog.Nop())

	qf := QueuedFile{Path: "/does/not/exist.mp3", ModifiedAt: time.Now().UTC()}
	result := p.Process(context.Background(), qf)

	if result.Status != StatusSkipped {
		t.Fatalf("status = %q, want Skipped for missing file", result.Status)
	}
}
