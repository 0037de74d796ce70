// Package ingest implements the Ingest Core (C5): the shared algorithm both
// the HTTP upload endpoint and the File Processor funnel through to turn
// raw audio bytes plus metadata into a persisted Call row.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/apierr"
	"github.com/snarg/radio-ingest/internal/blob"
	"github.com/snarg/radio-ingest/internal/filename"
	"github.com/snarg/radio-ingest/internal/store"
	"github.com/snarg/radio-ingest/internal/transcribe"
)

// Metadata carries the fields the caller has already extracted from either
// multipart form fields (HTTP path) or a recorder filename (watch path).
type Metadata struct {
	SystemID       string
	SystemLabel    string // optional human label, as submitted with this call
	Talkgroup      int64
	RadioID        int64
	CallTimestamp  time.Time
	Frequency      int64
	TalkgroupLabel string
	TalkgroupTag   string
	TalkgroupGroup string
	Source         string
	TalkerAlias    string
	Emergency      bool
	Encrypted      bool
	Patches        json.RawMessage
	Sources        json.RawMessage
	FreqList       json.RawMessage
	DurationHint   float64 // caller-supplied duration, 0 if unknown
}

// Result is returned on a successful Submit.
type Result struct {
	CallID        string
	AudioFilePath string
}

// Core wires together the Store, Blob Store, and Transcription Dispatcher
// behind the single ingest algorithm (§4.5), grounded on the teacher's
// ingest.Pipeline.ProcessUploadedCall / processWatchedFile shared routine.
type Core struct {
	Store      *store.Store
	Blob       blob.Store
	Dispatcher *transcribe.Dispatcher
	Log        zerolog.Logger

	MaxFileSize       int64
	AllowedExtensions map[string]bool
}

// Options configures Core's validation knobs.
type Options struct {
	Store             *store.Store
	Blob              blob.Store
	Dispatcher        *transcribe.Dispatcher
	Log               zerolog.Logger
	MaxFileSize       int64
	AllowedExtensions []string
}

// New builds a Core.
func New(opts Options) *Core {
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return &Core{
		Store:             opts.Store,
		Blob:              opts.Blob,
		Dispatcher:        opts.Dispatcher,
		Log:               opts.Log,
		MaxFileSize:       opts.MaxFileSize,
		AllowedExtensions: allowed,
	}
}

// RequireAPIKeyFunc is the signature of an API-key validator that reports
// whether a key is active for any system. Nothing in this module constructs
// one; the HTTP upload handler checks keys through httpapi.FindAPIKeyFunc.
type RequireAPIKeyFunc func(ctx context.Context, apiKey string) (bool, error)

// Submit runs the 10-step ingest algorithm (§4.5):
//  1. (api-key check happens in the caller, the HTTP upload handler)
//  2. size check
//  3. extension allowlist
//  4. compute stored filename + storage dir, write blob
//  5. compute duration
//  6. build + insert Call row with status Pending
//  7. on insert failure, remove the blob and return StorageError
//  8. invoke the Transcription Dispatcher if configured
//  9. fire upsert_system_stats + insert_upload_log best-effort
//  10. return Ok(call_id)
func (c *Core) Submit(ctx context.Context, meta Metadata, originalFilename string, size int64, audio io.Reader) (Result, error) {
	if size > c.MaxFileSize {
		return Result{}, apierr.New(apierr.KindPayloadTooLarge, fmt.Sprintf("file size %d exceeds maximum %d", size, c.MaxFileSize))
	}

	ext := extensionOf(originalFilename)
	if len(c.AllowedExtensions) > 0 && !c.AllowedExtensions[ext] {
		return Result{}, apierr.New(apierr.KindUnsupportedMediaType, fmt.Sprintf("extension %q is not allowed", ext))
	}

	uploadTime := time.Now().UTC()
	callTimestamp := clampCallTimestamp(meta.CallTimestamp, uploadTime)

	key := blob.StampedKey(meta.SystemID, uploadTime, filename.Sanitize(originalFilename))
	if err := c.Blob.Write(ctx, key, audio); err != nil {
		return Result{}, apierr.Wrap(apierr.KindStorageError, "failed to write audio blob", err)
	}

	duration := meta.DurationHint
	if duration == 0 {
		duration = estimateDurationFromSize(size, ext)
	}

	callID := uuid.NewString()
	call := store.Call{
		ID:                  callID,
		SystemID:            meta.SystemID,
		SystemLabel:         meta.SystemLabel,
		Talkgroup:           meta.Talkgroup,
		RadioID:             meta.RadioID,
		CallTimestamp:       callTimestamp,
		UploadTimestamp:     uploadTime,
		DurationSeconds:     duration,
		AudioFilePath:       key,
		AudioFilename:       originalFilename,
		Frequency:           meta.Frequency,
		TalkgroupLabel:      meta.TalkgroupLabel,
		TalkgroupTag:        meta.TalkgroupTag,
		TalkgroupGroup:      meta.TalkgroupGroup,
		Source:              meta.Source,
		TalkerAlias:         meta.TalkerAlias,
		Emergency:           meta.Emergency,
		Encrypted:           meta.Encrypted,
		Patches:             meta.Patches,
		Sources:             meta.Sources,
		FreqList:            meta.FreqList,
		TranscriptionStatus: store.TranscriptionPending,
	}

	if err := c.Store.InsertCall(ctx, call); err != nil {
		// Undo the blob write: the commit point is the DB insert, and
		// everything before it must be undoable (§9).
		c.removeBlobBestEffort(ctx, key)
		return Result{}, apierr.Wrap(apierr.KindStorageError, "failed to insert call", err)
	}

	if c.Dispatcher != nil {
		c.Dispatcher.TrySubmit(ctx, transcribe.Job{
			CallID:        callID,
			SystemID:      meta.SystemID,
			Talkgroup:     meta.Talkgroup,
			AudioFilePath: key,
			Duration:      duration,
		})
	}

	c.recordBestEffort(ctx, meta.SystemID, meta.SystemLabel, callID, size)

	return Result{CallID: callID, AudioFilePath: key}, nil
}

// clampCallTimestamp enforces the calls.call_timestamp <= upload_timestamp
// constraint: a zero or future-dated call_timestamp (clock skew or a
// misbehaving recorder) is clamped to uploadTime rather than rejected.
func clampCallTimestamp(callTimestamp, uploadTime time.Time) time.Time {
	if callTimestamp.IsZero() || callTimestamp.After(uploadTime) {
		return uploadTime
	}
	return callTimestamp
}

func (c *Core) removeBlobBestEffort(ctx context.Context, key string) {
	if err := c.Blob.Remove(ctx, key); err != nil {
		c.Log.Warn().Err(err).Str("key", key).Msg("call insert failed after blob write; blob removal also failed, left in place for manual cleanup")
	}
}

func (c *Core) recordBestEffort(ctx context.Context, systemID, systemLabel, callID string, size int64) {
	if err := c.Store.UpsertSystemStats(ctx, systemID, systemLabel); err != nil {
		c.Log.Warn().Err(err).Str("system_id", systemID).Msg("failed to upsert system stats")
	}
	if err := c.Store.InsertUploadLog(ctx, store.UploadLog{
		SystemID:      systemID,
		CallID:        callID,
		Success:       true,
		BytesReceived: size,
	}); err != nil {
		c.Log.Warn().Err(err).Str("call_id", callID).Msg("failed to insert upload log")
	}
}

// LogFailedUpload records an UploadLog row for an ingest that never
// produced a Call row (§4.6: "UploadLog written on every failure").
func (c *Core) LogFailedUpload(ctx context.Context, systemID, remoteAddr string, bytesReceived int64, failure error) {
	if err := c.Store.InsertUploadLog(ctx, store.UploadLog{
		SystemID:      systemID,
		Success:       false,
		ErrorMessage:  failure.Error(),
		BytesReceived: bytesReceived,
		RemoteAddr:    remoteAddr,
	}); err != nil {
		c.Log.Warn().Err(err).Msg("failed to insert failure upload log")
	}
}

// HashAPIKey returns the MD5 hex digest used to look up legacy API keys.
// MD5 is weak; kept only for compatibility with already-provisioned keys.
func HashAPIKey(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func extensionOf(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(filename[i+1:])
}

// estimateDurationFromSize is an informational-only estimate used when no
// caller-supplied duration is available. Per §9 Design Notes, estimating
// duration from MP3 file size must never be used for billing or analytics
// — it is a rough display hint only.
func estimateDurationFromSize(size int64, ext string) float64 {
	if ext != "mp3" || size <= 0 {
		return 0
	}
	const assumedBitrateBytesPerSec = 16000 // ~128kbps
	return float64(size) / assumedBitrateBytesPerSec
}
