package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewQueue(QueueOptions{})

	now := time.Now().UTC()
	if err := q.Enqueue("/a", 100, now, 0); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := q.Enqueue("/b", 100, now, 5); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}
	if err := q.Enqueue("/c", 100, now, 0); err != nil {
		t.Fatalf("enqueue c: %v", err)
	}

	qf, ok := q.Dequeue()
	if !ok || qf.Path != "/b" {
		t.Fatalf("expected /b (explicit priority) first, got %+v ok=%v", qf, ok)
	}

	qf, ok = q.Dequeue()
	if !ok || qf.Path != "/a" {
		t.Fatalf("expected /a (earliest queued, equal priority) second, got %+v ok=%v", qf, ok)
	}
}

func TestQueueEnqueueDuplicateRejected(t *testing.T) {
	q := NewQueue(QueueOptions{})
	now := time.Now().UTC()
	if err := q.Enqueue("/a", 1, now, 0); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := q.Enqueue("/a", 1, now, 0); err != ErrDuplicatePath {
		t.Fatalf("err = %v, want ErrDuplicatePath", err)
	}
}

func TestQueueEnqueueFullRejected(t *testing.T) {
	q := NewQueue(QueueOptions{MaxSize: 1})
	now := time.Now().UTC()
	if err := q.Enqueue("/a", 1, now, 0); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	if err := q.Enqueue("/b", 1, now, 0); err != ErrQueueFull {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
}

func TestQueuePriorityByAge(t *testing.T) {
	q := NewQueue(QueueOptions{PriorityByAge: true})
	older := time.Now().Add(-time.Hour).UTC()
	newer := time.Now().UTC()

	if err := q.Enqueue("/newer", 1, newer, 0); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue("/older", 1, older, 0); err != nil {
		t.Fatal(err)
	}

	qf, ok := q.Dequeue()
	if !ok || qf.Path != "/older" {
		t.Fatalf("expected /older first by age, got %+v ok=%v", qf, ok)
	}
}

func TestQueuePriorityBySize(t *testing.T) {
	q := NewQueue(QueueOptions{PriorityBySize: true})
	now := time.Now().UTC()

	if err := q.Enqueue("/big", 1000, now, 0); err != nil {
		t.Fatal(err)
	}
	if err := q.Enqueue("/small", 10, now, 0); err != nil {
		t.Fatal(err)
	}

	qf, ok := q.Dequeue()
	if !ok || qf.Path != "/small" {
		t.Fatalf("expected /small first by size, got %+v ok=%v", qf, ok)
	}
}

func TestQueueMarkCompletedRemoves(t *testing.T) {
	q := NewQueue(QueueOptions{})
	now := time.Now().UTC()
	_ = q.Enqueue("/a", 1, now, 0)
	q.Dequeue()
	q.MarkCompleted("/a")

	if stats := q.Stats(); stats.Total != 0 {
		t.Fatalf("stats = %+v, want empty queue", stats)
	}
}

func TestQueueMarkFailedRetriesThenDrops(t *testing.T) {
	q := NewQueue(QueueOptions{MaxRetries: 2})
	now := time.Now().UTC()
	_ = q.Enqueue("/a", 1, now, 0)

	q.Dequeue()
	if willRetry := q.MarkFailed("/a", "boom"); !willRetry {
		t.Fatal("expected first failure to retry")
	}

	q.Dequeue()
	if willRetry := q.MarkFailed("/a", "boom again"); willRetry {
		t.Fatal("expected second failure to exhaust retries")
	}

	if stats := q.Stats(); stats.Total != 0 {
		t.Fatalf("stats = %+v, want item dropped after exhausting retries", stats)
	}
}

func TestQueueRetryNotEligibleBeforeBackoffDelay(t *testing.T) {
	q := NewQueue(QueueOptions{RetryDelay: time.Hour})
	now := time.Now().UTC()
	_ = q.Enqueue("/a", 1, now, 0)

	q.Dequeue()
	if willRetry := q.MarkFailed("/a", "boom"); !willRetry {
		t.Fatal("expected retry to be scheduled")
	}

	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected retried item to be ineligible before its backoff delay elapses")
	}
}

func TestQueueRetryBackoffLimiterThrottlesRetries(t *testing.T) {
	q := NewQueue(QueueOptions{RetryBackoffRPS: 0.001}) // effectively one token, long refill
	now := time.Now().UTC()
	_ = q.Enqueue("/a", 1, now, 0)
	_ = q.Enqueue("/b", 1, now, 0)

	q.Dequeue()
	q.Dequeue()
	q.MarkFailed("/a", "boom")
	q.MarkFailed("/b", "boom")

	first, ok := q.Dequeue()
	if !ok {
		t.Fatal("expected the first retry token to admit one item")
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatalf("expected the second retry (path=%s already admitted) to be throttled by the limiter", first.Path)
	}
}

func TestQueueDequeueEmptyReturnsFalse(t *testing.T) {
	q := NewQueue(QueueOptions{})
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected ok=false on empty queue")
	}
}

func TestQueuePersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.snapshot")

	q := NewQueue(QueueOptions{})
	now := time.Now().UTC()
	_ = q.Enqueue("/a", 1, now, 0)
	_ = q.Enqueue("/b", 2, now, 0)
	q.Dequeue() // marks /a (lowest QueuedAt-ordered... either could be first) Processing

	if err := q.SaveToPersistence(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewQueue(QueueOptions{})
	if err := loaded.LoadFromPersistence(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	stats := loaded.Stats()
	if stats.Total != 2 {
		t.Fatalf("stats = %+v, want 2 items restored", stats)
	}
	if stats.Processing != 0 {
		t.Fatalf("stats = %+v, want Processing items rewritten to Pending (P6)", stats)
	}
}

func TestQueueLoadFromPersistenceMissingFileIsNoOp(t *testing.T) {
	q := NewQueue(QueueOptions{})
	if err := q.LoadFromPersistence(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("err = %v, want nil for missing file", err)
	}
}

func TestQueueLoadFromPersistenceCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt")
	if err := os.WriteFile(path, []byte("not zstd data"), 0o644); err != nil {
		t.Fatal(err)
	}

	q := NewQueue(QueueOptions{})
	if err := q.LoadFromPersistence(path); err == nil {
		t.Fatal("expected error decoding corrupt persistence file")
	}
}
