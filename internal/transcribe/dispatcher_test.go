package transcribe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/radio-ingest/internal/store"
)

func TestDispatcherDisabledIsNoOp(t *testing.T) {
	d := NewDispatcher(Options{Enabled: false, Pool: NewInMemoryPool(1), Log: zerolog.Nop()})
	d.TrySubmit(context.Background(), Job{CallID: "x"})
	// No panic, no pool interaction expected; nothing further to assert.
}

func TestDispatcherSubmitsWhenCapacityAvailable(t *testing.T) {
	pool := NewInMemoryPool(2)
	d := NewDispatcher(Options{Enabled: true, Pool: pool, Log: zerolog.Nop()})

	d.TrySubmit(context.Background(), Job{CallID: "a"})
	if pool.QueueLen() != 1 {
		t.Fatalf("QueueLen() = %d, want 1", pool.QueueLen())
	}
}

func TestDispatcherQueueFullTriggersCompensatingUpdate(t *testing.T) {
	pool := NewInMemoryPool(1)
	pool.Enqueue(Job{CallID: "filler"}) // fill the only slot

	var mu sync.Mutex
	var gotStatus store.TranscriptionStatus
	var gotCallID string
	done := make(chan struct{})

	update := func(ctx context.Context, callID string, u store.TranscriptionUpdate) error {
		mu.Lock()
		gotCallID = callID
		gotStatus = u.Status
		mu.Unlock()
		close(done)
		return nil
	}

	d := NewDispatcher(Options{Enabled: true, Pool: pool, Update: update, Log: zerolog.Nop()})
	d.TrySubmit(context.Background(), Job{CallID: "overflow"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("compensating update was not called in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotCallID != "overflow" {
		t.Errorf("callID = %q, want overflow", gotCallID)
	}
	if gotStatus != store.TranscriptionFailed {
		t.Errorf("status = %q, want %q", gotStatus, store.TranscriptionFailed)
	}
}

func TestDispatcherNilPoolIsNoOp(t *testing.T) {
	d := NewDispatcher(Options{Enabled: true, Pool: nil, Log: zerolog.Nop()})
	d.TrySubmit(context.Background(), Job{CallID: "x"}) // must not panic
	if d.QueueLen() != 0 || d.QueueCapacity() != 0 {
		t.Error("nil pool should report zero length/capacity")
	}
}
