package ingest

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeBlob is an in-memory blob.Store for Core tests.
type fakeBlob struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeBlob() *fakeBlob { return &fakeBlob{data: map[string][]byte{}} }

func (f *fakeBlob) Write(ctx context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = b
	return nil
}

func (f *fakeBlob) Archive(ctx context.Context, srcKey, dstKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[dstKey] = f.data[srcKey]
	delete(f.data, srcKey)
	return nil
}

func (f *fakeBlob) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return io.NopCloser(bytes.NewReader(f.data[key])), nil
}

func (f *fakeBlob) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeBlob) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeBlob) Type() string { return "fake" }

func (f *fakeBlob) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

func TestCoreSubmitRejectsOversizeFile(t *testing.T) {
	c := New(Options{
		Blob:        newFakeBlob(),
		Log:         zerolog.Nop(),
		MaxFileSize: 10,
	})
	_, err := c.Submit(context.Background(), Metadata{SystemID: "metro"}, "a.mp3", 100, bytes.NewReader(make([]byte, 100)))
	if err == nil {
		t.Fatal("expected oversize rejection")
	}
}

func TestCoreSubmitRejectsUnsupportedExtension(t *testing.T) {
	c := New(Options{
		Blob:              newFakeBlob(),
		Log:               zerolog.Nop(),
		MaxFileSize:       1000,
		AllowedExtensions: []string{"mp3"},
	})
	_, err := c.Submit(context.Background(), Metadata{SystemID: "metro"}, "a.exe", 10, bytes.NewReader([]byte("x")))
	if err == nil {
		t.Fatal("expected unsupported media type rejection")
	}
}

func TestEstimateDurationFromSize(t *testing.T) {
	if d := estimateDurationFromSize(0, "mp3"); d != 0 {
		t.Errorf("zero size should estimate zero duration, got %v", d)
	}
	if d := estimateDurationFromSize(16000, "wav"); d != 0 {
		t.Errorf("non-mp3 should estimate zero duration, got %v", d)
	}
	if d := estimateDurationFromSize(16000, "mp3"); d != 1 {
		t.Errorf("16000 bytes of mp3 should estimate ~1s, got %v", d)
	}
}

func TestHashAPIKey(t *testing.T) {
	got := HashAPIKey("secret")
	want := "5ebe2294ecd0e0f08eab7690d2a6ee69"
	if got != want {
		t.Errorf("HashAPIKey(secret) = %q, want %q", got, want)
	}
}

func TestExtensionOf(t *testing.T) {
	cases := map[string]string{
		"a.mp3":        "mp3",
		"a.MP3":        "mp3",
		"no-extension": "",
		"a.tar.gz":     "gz",
	}
	for in, want := range cases {
		if got := extensionOf(in); got != want {
			t.Errorf("extensionOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestClampCallTimestampFutureDated(t *testing.T) {
	uploadTime := time.Now().UTC()
	future := uploadTime.Add(24 * time.Hour)

	got := clampCallTimestamp(future, uploadTime)
	if !got.Equal(uploadTime) {
		t.Errorf("clampCallTimestamp(future) = %v, want upload time %v", got, uploadTime)
	}
}

func TestClampCallTimestampZeroValue(t *testing.T) {
	uploadTime := time.Now().UTC()

	got := clampCallTimestamp(time.Time{}, uploadTime)
	if !got.Equal(uploadTime) {
		t.Errorf("clampCallTimestamp(zero) = %v, want upload time %v", got, uploadTime)
	}
}

func TestClampCallTimestampPastDatedPassesThrough(t *testing.T) {
	uploadTime := time.Now().UTC()
	past := uploadTime.Add(-time.Hour)

	got := clampCallTimestamp(past, uploadTime)
	if !got.Equal(past) {
		t.Errorf("clampCallTimestamp(past) = %v, want unchanged %v", got, past)
	}
}
