package transcribe

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/snarg/radio-ingest/internal/store"
)

// UpdateTranscriptionFunc applies a compensating transcription-status
// update; satisfied by (*store.Store).UpdateTranscription.
type UpdateTranscriptionFunc func(ctx context.Context, callID string, u store.TranscriptionUpdate) error

// Dispatcher wraps Pool.Enqueue with a circuit breaker so a wedged STT
// backend (one that never drains its queue) degrades to fast failures
// instead of every ingest blocking on a full channel. Grounded on the
// teacher's WorkerPool.Enqueue non-blocking select/default, generalized
// with gobreaker so repeated QueueFull results trip the breaker open and
// further submits fail immediately without even touching the channel.
type Dispatcher struct {
	pool    Pool
	breaker *gobreaker.CircuitBreaker[struct{}]
	update  UpdateTranscriptionFunc
	log     zerolog.Logger
	enabled bool
}

// Options configures a Dispatcher.
type Options struct {
	Pool    Pool
	Update  UpdateTranscriptionFunc
	Log     zerolog.Logger
	Enabled bool

	// MaxFailures is the number of consecutive QueueFull results that trips
	// the breaker open.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before allowing a
	// half-open probe.
	OpenTimeout time.Duration
}

// NewDispatcher builds a Dispatcher. When opts.Enabled is false or opts.Pool
// is nil, TrySubmit is a no-op (matching §4.4: "no-op if transcription
// disabled or no pool").
func NewDispatcher(opts Options) *Dispatcher {
	maxFailures := opts.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout == 0 {
		openTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:    "transcription-dispatch",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}

	return &Dispatcher{
		pool:    opts.Pool,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
		update:  opts.Update,
		log:     opts.Log,
		enabled: opts.Enabled,
	}
}

// TrySubmit attempts to enqueue job for transcription. On success it logs
// and returns. If the queue is full (or the breaker is open), it spawns a
// fire-and-forget compensating update_transcription(Failed, "queue full")
// so the Call row doesn't sit in Pending forever — the HTTP response to the
// original ingest request is unaffected either way (§4.4).
func (d *Dispatcher) TrySubmit(ctx context.Context, job Job) {
	if !d.enabled || d.pool == nil {
		return
	}

	_, err := d.breaker.Execute(func() (struct{}, error) {
		if !d.pool.Enqueue(job) {
			return struct{}{}, errQueueFull
		}
		return struct{}{}, nil
	})

	if err == nil {
		d.log.Debug().Str("call_id", job.CallID).Msg("submitted call for transcription")
		return
	}

	d.log.Warn().Str("call_id", job.CallID).Err(err).Msg("transcription dispatch failed, marking call failed")
	if d.update == nil {
		return
	}

	go func() {
		// Detached from the request's context: the compensating update must
		// still land even if the HTTP client already disconnected.
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if uerr := d.update(bgCtx, job.CallID, store.TranscriptionUpdate{Status: store.TranscriptionFailed, Error: "queue full"}); uerr != nil {
			d.log.Error().Str("call_id", job.CallID).Err(uerr).Msg("failed to record compensating transcription failure")
		}
	}()
}

// QueueLen and QueueCapacity expose pool sizing.
func (d *Dispatcher) QueueLen() int {
	if d.pool == nil {
		return 0
	}
	return d.pool.QueueLen()
}

func (d *Dispatcher) QueueCapacity() int {
	if d.pool == nil {
		return 0
	}
	return d.pool.QueueCapacity()
}

var errQueueFull = dispatchError("queue full")

type dispatchError string

func (e dispatchError) Error() string { return string(e) }
