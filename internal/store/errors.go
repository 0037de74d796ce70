package store

import "errors"

// Sentinel errors returned by Store methods, mapped to HTTP-layer error
// kinds by internal/httpapi per the error handling design (§7).
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict indicates a uniqueness violation that the caller did not
	// already rule out via its own dedupe check (a genuine bug, since the
	// HTTP ingest path's blob stamp includes microseconds and should never
	// collide).
	ErrConflict = errors.New("store: conflict")
)

// Error wraps an underlying database/driver failure as a StorageError per
// §7: every Store error must be classified and surfaced, never silently
// swallowed or used to trip the transcription circuit breaker.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
