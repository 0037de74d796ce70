package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertCall writes a new Call row. The caller is responsible for the
// call_timestamp <= upload_timestamp invariant; the database also enforces
// it via a CHECK constraint as a backstop.
func (s *Store) InsertCall(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
	id, system_id, system_label, talkgroup, radio_id, call_timestamp, upload_timestamp,
	duration_seconds, audio_file_path, audio_filename, frequency,
	talkgroup_label, talkgroup_tag, talkgroup_group, source, talker_alias,
	emergency, encrypted, patches, sources, freq_list,
	transcription_status, transcription_text, transcription_confidence, transcription_error,
	transcription_started_at, transcription_completed_at,
	speaker_count, speaker_segments, transcription_segments
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
	$18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
)`
	_, err := s.Pool.Exec(ctx, q,
		c.ID, c.SystemID, c.SystemLabel, c.Talkgroup, c.RadioID, c.CallTimestamp, c.UploadTimestamp,
		c.DurationSeconds, c.AudioFilePath, c.AudioFilename, c.Frequency,
		c.TalkgroupLabel, c.TalkgroupTag, c.TalkgroupGroup, c.Source, c.TalkerAlias,
		c.Emergency, c.Encrypted, nullableJSON(c.Patches), nullableJSON(c.Sources), nullableJSON(c.FreqList),
		string(c.TranscriptionStatus), c.TranscriptionText, c.TranscriptionConfidence, c.TranscriptionError,
		c.TranscriptionStartedAt, c.TranscriptionCompletedAt,
		c.SpeakerCount, nullableJSON(c.SpeakerSegments), nullableJSON(c.TranscriptionSegments),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return wrapErr("insert_call", err)
}

// GetCall fetches a single Call by id, returning ErrNotFound if absent.
func (s *Store) GetCall(ctx context.Context, id string) (Call, error) {
	const q = `
SELECT id, system_id, system_label, talkgroup, radio_id, call_timestamp, upload_timestamp,
       duration_seconds, audio_file_path, audio_filename, frequency,
       talkgroup_label, talkgroup_tag, talkgroup_group, source, talker_alias,
       emergency, encrypted, patches, sources, freq_list,
       transcription_status, transcription_text, transcription_confidence, transcription_error,
       transcription_started_at, transcription_completed_at,
       speaker_count, speaker_segments, transcription_segments
FROM calls WHERE id = $1`
	row := s.Pool.QueryRow(ctx, q, id)
	c, err := scanCall(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, wrapErr("get_call", err)
	}
	return c, nil
}

// ListCallsBySystem returns a page of calls for systemID, most recent first.
func (s *Store) ListCallsBySystem(ctx context.Context, systemID string, limit, offset int) ([]Call, error) {
	const q = `
SELECT id, system_id, system_label, talkgroup, radio_id, call_timestamp, upload_timestamp,
       duration_seconds, audio_file_path, audio_filename, frequency,
       talkgroup_label, talkgroup_tag, talkgroup_group, source, talker_alias,
       emergency, encrypted, patches, sources, freq_list,
       transcription_status, transcription_text, transcription_confidence, transcription_error,
       transcription_started_at, transcription_completed_at,
       speaker_count, speaker_segments, transcription_segments
FROM calls WHERE system_id = $1
ORDER BY call_timestamp DESC
LIMIT $2 OFFSET $3`
	rows, err := s.Pool.Query(ctx, q, systemID, limit, offset)
	if err != nil {
		return nil, wrapErr("list_calls_by_system", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, wrapErr("list_calls_by_system", err)
		}
		calls = append(calls, c)
	}
	return calls, wrapErr("list_calls_by_system", rows.Err())
}

// CountCallsBySystem returns the total number of calls for a system, used
// to compute pagination.total / total_pages.
func (s *Store) CountCallsBySystem(ctx context.Context, systemID string) (int64, error) {
	const q = `SELECT count(*) FROM calls WHERE system_id = $1`
	var n int64
	err := s.Pool.QueryRow(ctx, q, systemID).Scan(&n)
	return n, wrapErr("count_calls_by_system", err)
}

// TranscriptionUpdate carries one transcription result to be applied to a
// Call row via UpdateTranscription.
type TranscriptionUpdate struct {
	Status                TranscriptionStatus
	Text                  string
	Confidence            float64
	Error                 string
	SpeakerCount          int
	SpeakerSegments       json.RawMessage
	TranscriptionSegments json.RawMessage
}

// UpdateTranscription applies a transcription result. It is idempotent with
// respect to (id, status): re-applying the same (status, text, confidence)
// is a no-op write, never a conflict. transcription_started_at is set the
// first time status lands on Processing and transcription_completed_at is
// set whenever status lands on Completed or Failed (§4.1); both are no-ops
// on subsequent calls that don't trigger the transition (the CASE guards
// keep the columns monotonic).
func (s *Store) UpdateTranscription(ctx context.Context, id string, u TranscriptionUpdate) error {
	const q = `
UPDATE calls SET
	transcription_status = $2,
	transcription_text = $3,
	transcription_confidence = $4,
	transcription_error = $5,
	speaker_count = $6,
	speaker_segments = $7,
	transcription_segments = $8,
	transcription_started_at = CASE
		WHEN $2 = 'processing' AND transcription_started_at IS NULL THEN now()
		ELSE transcription_started_at
	END,
	transcription_completed_at = CASE
		WHEN $2 IN ('completed', 'failed') THEN now()
		ELSE transcription_completed_at
	END
WHERE id = $1`
	tag, err := s.Pool.Exec(ctx, q, id, string(u.Status), u.Text, u.Confidence, u.Error,
		u.SpeakerCount, nullableJSON(u.SpeakerSegments), nullableJSON(u.TranscriptionSegments))
	if err != nil {
		return wrapErr("update_transcription", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindCallByAudioPath checks whether a Call row already references the
// given storage path or filename, used by the File Processor's dedupe step
// (§4.9 step 3).
func (s *Store) FindCallByAudioPath(ctx context.Context, audioFilePath, audioFilename string) (string, bool, error) {
	const q = `SELECT id FROM calls WHERE audio_file_path = $1 OR audio_filename = $2 LIMIT 1`
	var id string
	err := s.Pool.QueryRow(ctx, q, audioFilePath, audioFilename).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapErr("find_call_by_audio_path", err)
	}
	return id, true, nil
}

// CountCalls returns the total number of calls across all systems.
func (s *Store) CountCalls(ctx context.Context) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM calls`).Scan(&n)
	return n, wrapErr("count_calls", err)
}

// CountSystems returns the number of distinct system ids observed.
func (s *Store) CountSystems(ctx context.Context) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `SELECT count(DISTINCT system_id) FROM calls`).Scan(&n)
	return n, wrapErr("count_systems", err)
}

// CountRecentCalls returns the number of calls in the last `window`,
// using a parameterized interval rather than string-concatenating the
// window into the query text (§9 Design Notes: the original's
// string-concatenated INTERVAL trick is not reproduced here).
func (s *Store) CountRecentCalls(ctx context.Context, window time.Duration) (int64, error) {
	const q = `SELECT count(*) FROM calls WHERE call_timestamp >= now() - $1::interval`
	var n int64
	err := s.Pool.QueryRow(ctx, q, window.String()).Scan(&n)
	return n, wrapErr("count_recent_calls", err)
}

// TopSystems returns the busiest systems by call volume, descending.
type SystemCount struct {
	SystemID string
	Count    int64
}

func (s *Store) TopSystems(ctx context.Context, limit int) ([]SystemCount, error) {
	const q = `
SELECT system_id, count(*) AS n FROM calls
GROUP BY system_id ORDER BY n DESC LIMIT $1`
	rows, err := s.Pool.Query(ctx, q, limit)
	if err != nil {
		return nil, wrapErr("top_systems", err)
	}
	defer rows.Close()

	var out []SystemCount
	for rows.Next() {
		var sc SystemCount
		if err := rows.Scan(&sc.SystemID, &sc.Count); err != nil {
			return nil, wrapErr("top_systems", err)
		}
		out = append(out, sc)
	}
	return out, wrapErr("top_systems", rows.Err())
}

// CountSystemCallsSince returns the number of calls for a system since a
// given timestamp (used for the stats endpoint's hourly breakdown).
func (s *Store) CountSystemCallsSince(ctx context.Context, systemID string, since time.Time) (int64, error) {
	const q = `SELECT count(*) FROM calls WHERE system_id = $1 AND call_timestamp >= $2`
	var n int64
	err := s.Pool.QueryRow(ctx, q, systemID, since).Scan(&n)
	return n, wrapErr("count_system_calls_since", err)
}

// DeleteCallsOlderThan removes calls whose call_timestamp predates cutoff,
// returning the number of rows removed.
func (s *Store) DeleteCallsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM calls WHERE call_timestamp < $1`, cutoff)
	if err != nil {
		return 0, wrapErr("delete_calls_older_than", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var c Call
	var status string
	err := row.Scan(
		&c.ID, &c.SystemID, &c.SystemLabel, &c.Talkgroup, &c.RadioID, &c.CallTimestamp, &c.UploadTimestamp,
		&c.DurationSeconds, &c.AudioFilePath, &c.AudioFilename, &c.Frequency,
		&c.TalkgroupLabel, &c.TalkgroupTag, &c.TalkgroupGroup, &c.Source, &c.TalkerAlias,
		&c.Emergency, &c.Encrypted, &c.Patches, &c.Sources, &c.FreqList,
		&status, &c.TranscriptionText, &c.TranscriptionConfidence, &c.TranscriptionError,
		&c.TranscriptionStartedAt, &c.TranscriptionCompletedAt,
		&c.SpeakerCount, &c.SpeakerSegments, &c.TranscriptionSegments,
	)
	c.TranscriptionStatus = TranscriptionStatus(status)
	return c, err
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr interface{ SQLState() string }
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == "23505"
	}
	return false
}
