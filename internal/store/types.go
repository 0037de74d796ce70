// Package store is the persistence layer (C1): a thin, raw-SQL wrapper over
// a pgxpool.Pool. No ORM — one method per query, matching the teacher's
// internal/database package.
package store

import (
	"encoding/json"
	"time"
)

// TranscriptionStatus is the DAG state of a Call's transcription:
// None -> Pending -> Processing -> {Completed, Failed}; Failed may re-enter
// Pending on retry.
type TranscriptionStatus string

const (
	TranscriptionNone       TranscriptionStatus = "none"
	TranscriptionPending    TranscriptionStatus = "pending"
	TranscriptionProcessing TranscriptionStatus = "processing"
	TranscriptionCompleted  TranscriptionStatus = "completed"
	TranscriptionFailed     TranscriptionStatus = "failed"
)

// Call is a single recorded radio transmission plus its metadata.
type Call struct {
	ID                 string // 128-bit identifier, formatted as UUID
	SystemID           string
	SystemLabel        string // optional human label, as submitted with this call
	Talkgroup          int64
	RadioID            int64
	CallTimestamp       time.Time
	UploadTimestamp     time.Time
	DurationSeconds     float64
	AudioFilePath       string
	AudioFilename       string
	Frequency           int64
	TalkgroupLabel      string
	TalkgroupTag        string
	TalkgroupGroup      string
	Source              string
	TalkerAlias         string
	Emergency           bool
	Encrypted           bool
	Patches             json.RawMessage
	Sources             json.RawMessage
	FreqList             json.RawMessage
	TranscriptionStatus     TranscriptionStatus
	TranscriptionText       string
	TranscriptionConfidence float64
	TranscriptionError      string
	// TranscriptionStartedAt is set the first time status transitions to
	// Processing; TranscriptionCompletedAt is set whenever status lands on
	// Completed or Failed. Both nil until then (§3, §4.1).
	TranscriptionStartedAt   *time.Time
	TranscriptionCompletedAt *time.Time
	SpeakerCount             int
	SpeakerSegments          json.RawMessage
	TranscriptionSegments    json.RawMessage
}

// UploadLog is an append-only audit record of every ingest attempt,
// successful or not.
type UploadLog struct {
	ID             int64
	SystemID       string
	CallID         string // empty if the upload never produced a Call row
	Success        bool
	ErrorMessage   string
	BytesReceived  int64
	RemoteAddr     string
	CreatedAt      time.Time
}

// SystemStats aggregates per-system call counters, reset on UTC day/hour
// boundaries.
type SystemStats struct {
	SystemID      string
	Label         string // cached human label, last non-empty value seen
	TotalCalls    int64
	CallsToday    int64
	CallsThisHour int64
	LastCallAt    time.Time
	StatsDay      time.Time // truncated to UTC day
	StatsHour     time.Time // truncated to UTC hour
	// TopTalkgroups and UploadSources are refreshed on every upsert from the
	// calls table (top 10 by volume, descending), not maintained
	// incrementally — see UpsertSystemStats.
	TopTalkgroups json.RawMessage
	UploadSources json.RawMessage
}

// ApiKey is a legacy, MD5-hashed bearer credential accepted by the upload
// endpoint when SECURITY_REQUIRE_API_KEY is set. MD5 is weak; it is
// preserved here only for compatibility with existing provisioned keys (see
// DESIGN.md Open Questions) and must not be used for any new credential
// scheme.
type ApiKey struct {
	ID               int64
	SystemID         string
	KeyHashMD5       string
	Name             string
	Active           bool
	CreatedAt        time.Time
	ExpiresAt        *time.Time // nil means never expires
	AllowedAddresses []string
	AllowedSystems   []string
}
