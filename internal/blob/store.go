// Package blob is the audio storage abstraction (C2): a path/key layout plus
// pluggable local-disk or S3 backends.
package blob

import (
	"context"
	"io"
)

// Store is the storage-backend abstraction that audio_file_path / storage
// keys resolve through. Generalizes the teacher's storage.AudioStore
// interface with an explicit Archive operation (move-after-processing,
// §4.9 step 6) instead of folding it into Save.
type Store interface {
	// Write durably persists data under key, using an atomic
	// write-temp-then-rename so a concurrent reader never observes a
	// partially-written file.
	Write(ctx context.Context, key string, data io.Reader) error

	// Archive relocates the blob at srcKey to dstKey. Implementations that
	// can't rename across the underlying boundary (e.g. cross-device local
	// moves) fall back to copy+remove.
	Archive(ctx context.Context, srcKey, dstKey string) error

	// Open returns a reader for the blob at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Remove deletes the blob at key. Used for best-effort cleanup after a
	// failed insert (§4.5 step 7); callers treat a missing key as success.
	Remove(ctx context.Context, key string) error

	// Type identifies the backend ("local" or "s3"), used in
	// health/status reporting.
	Type() string
}
