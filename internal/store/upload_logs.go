package store

import "context"

// InsertUploadLog appends an audit row for an ingest attempt. This table is
// append-only: there is no update or delete path.
func (s *Store) InsertUploadLog(ctx context.Context, l UploadLog) error {
	const q = `
INSERT INTO upload_logs (system_id, call_id, success, error_message, bytes_received, remote_addr)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)`
	_, err := s.Pool.Exec(ctx, q, l.SystemID, l.CallID, l.Success, l.ErrorMessage, l.BytesReceived, l.RemoteAddr)
	return wrapErr("insert_upload_log", err)
}
