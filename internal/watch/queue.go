package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

// QueueItemState is a QueuedFile's lifecycle state within the Work Queue.
type QueueItemState string

const (
	StatePending    QueueItemState = "pending"
	StateProcessing QueueItemState = "processing"
)

// QueuedFile is one file awaiting or undergoing processing. Lives only in
// the Work Queue's memory (and its persistence snapshot) — never in Store.
type QueuedFile struct {
	Path       string         `json:"path"`
	Size       int64          `json:"size"`
	ModifiedAt time.Time      `json:"modified_at"`
	QueuedAt   time.Time      `json:"queued_at"`
	State      QueueItemState `json:"state"`
	Priority   int            `json:"priority"` // explicit priority always outranks age/size heuristics
	RetryCount int            `json:"retry_count"`
	NotBefore  time.Time      `json:"not_before"` // retry backoff: ineligible for dequeue until this time
	Error      string         `json:"error,omitempty"` // reason for the most recent failure, if any
}

// Stats reports queue occupancy.
type Stats struct {
	Pending    int
	Processing int
	Total      int
}

var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = fmt.Errorf("work queue is full")
	// ErrDuplicatePath is returned by Enqueue when path is already queued.
	ErrDuplicatePath = fmt.Errorf("path is already queued")
)

// Queue is a bounded, priority-ordered work queue for files discovered by
// the FS Watcher. New component (the teacher hands JSON sidecars straight
// to its pipeline with no intermediate queue); its concurrency-safe
// mutation discipline is grounded in the same single-mutex-guarded-slice
// shape the teacher's WorkerPool uses around its job channel, generalized
// to the priority/dequeue/persistence contract of §4.8.
type Queue struct {
	mu       sync.Mutex
	items    []*QueuedFile
	byPath   map[string]*QueuedFile
	maxSize  int
	maxRetry int

	priorityByAge  bool
	priorityBySize bool

	retryDelay   time.Duration
	retryLimiter *rate.Limiter
}

// QueueOptions configures a Queue.
type QueueOptions struct {
	MaxSize        int
	MaxRetries     int
	PriorityByAge  bool
	PriorityBySize bool

	// RetryDelay is the base of the exponential backoff applied per retry
	// attempt (RetryDelay * 2^RetryCount, exponent capped at 10) before a
	// failed item is eligible for dequeue again.
	RetryDelay time.Duration
	// RetryBackoffRPS additionally throttles how many retried items (as
	// opposed to fresh ones) can re-enter circulation per second, on top
	// of the per-item exponential delay above (§2.2 domain-stack note).
	// Zero disables the extra throttle.
	RetryBackoffRPS float64
}

// NewQueue builds an empty Queue.
func NewQueue(opts QueueOptions) *Queue {
	q := &Queue{
		items:          make([]*QueuedFile, 0),
		byPath:         make(map[string]*QueuedFile),
		maxSize:        opts.MaxSize,
		maxRetry:       opts.MaxRetries,
		priorityByAge:  opts.PriorityByAge,
		priorityBySize: opts.PriorityBySize,
		retryDelay:     opts.RetryDelay,
	}
	if opts.RetryBackoffRPS > 0 {
		q.retryLimiter = rate.NewLimiter(rate.Limit(opts.RetryBackoffRPS), 1)
	}
	return q
}

// Enqueue adds a new file to the queue in Pending state. Returns
// ErrQueueFull if at capacity, ErrDuplicatePath if path is already queued.
func (q *Queue) Enqueue(path string, size int64, modifiedAt time.Time, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byPath[path]; exists {
		return ErrDuplicatePath
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull
	}

	item := &QueuedFile{
		Path:       path,
		Size:       size,
		ModifiedAt: modifiedAt,
		QueuedAt:   time.Now().UTC(),
		State:      StatePending,
		Priority:   priority,
	}
	q.items = append(q.items, item)
	q.byPath[path] = item
	return nil
}

// Dequeue returns the highest-priority Pending item, marking it Processing;
// the item stays in the queue until MarkCompleted or MarkFailed. Returns
// ok=false if no Pending item is available; it never blocks.
//
// Ordering: explicit Priority always outranks the age/size heuristics;
// within equal explicit priority, priority_by_age prefers the
// earliest-modified file, priority_by_size prefers the smallest, and ties
// are broken by earliest QueuedAt (stable).
//
// Retried items (RetryCount > 0) are additionally gated: they must have
// passed their NotBefore backoff deadline, and — if a retry rate limiter
// is configured — a token must be available, so a burst of failures can't
// immediately flood the processor with retries.
func (q *Queue) Dequeue() (QueuedFile, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	retryTokenChecked := false
	retryTokenOK := false

	best := -1
	for i, item := range q.items {
		if item.State != StatePending {
			continue
		}
		if item.RetryCount > 0 {
			if !item.NotBefore.IsZero() && now.Before(item.NotBefore) {
				continue
			}
			if q.retryLimiter != nil {
				if !retryTokenChecked {
					retryTokenOK = q.retryLimiter.Allow()
					retryTokenChecked = true
				}
				if !retryTokenOK {
					continue
				}
			}
		}
		if best == -1 || q.less(item, q.items[best]) {
			best = i
		}
	}
	if best == -1 {
		return QueuedFile{}, false
	}

	q.items[best].State = StateProcessing
	return *q.items[best], true
}

func (q *Queue) less(a, b *QueuedFile) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if q.priorityByAge && !a.ModifiedAt.Equal(b.ModifiedAt) {
		return a.ModifiedAt.Before(b.ModifiedAt)
	}
	if q.priorityBySize && a.Size != b.Size {
		return a.Size < b.Size
	}
	return a.QueuedAt.Before(b.QueuedAt)
}

// MarkCompleted removes path from the queue entirely.
func (q *Queue) MarkCompleted(path string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.remove(path)
}

// MarkFailed increments path's retry count and records errMsg as the item's
// last error. It returns willRetry=true if the item remains in the queue
// (reset to Pending); if retry_count has reached max_retries, the item is
// removed and willRetry is false.
func (q *Queue) MarkFailed(path string, errMsg string) (willRetry bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.byPath[path]
	if !ok {
		return false
	}
	item.Error = errMsg
	item.RetryCount++
	if q.maxRetry > 0 && item.RetryCount >= q.maxRetry {
		q.remove(path)
		return false
	}
	item.State = StatePending
	if q.retryDelay > 0 {
		shift := item.RetryCount
		if shift > 10 {
			shift = 10
		}
		item.NotBefore = time.Now().UTC().Add(q.retryDelay * time.Duration(1<<shift))
	}
	return true
}

func (q *Queue) remove(path string) {
	delete(q.byPath, path)
	for i, item := range q.items {
		if item.Path == path {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// Stats reports current occupancy.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, item := range q.items {
		switch item.State {
		case StatePending:
			s.Pending++
		case StateProcessing:
			s.Processing++
		}
	}
	s.Total = len(q.items)
	return s
}

// persistedQueue is the on-disk envelope written by SaveToPersistence.
// Items is decoded one element at a time so a single malformed entry
// doesn't sink the whole snapshot (§4.8 partial-corruption tolerance).
type persistedQueue struct {
	Version int               `json:"version"`
	Items   []json.RawMessage `json:"items"`
}

const persistenceFormatVersion = 1

// SaveToPersistence atomically writes every Pending and Processing item to
// path, zstd-compressed JSON, via a temp-file-then-rename so a crash
// mid-write never corrupts the previous snapshot.
func (q *Queue) SaveToPersistence(path string) error {
	q.mu.Lock()
	snapshot := make([]QueuedFile, len(q.items))
	for i, item := range q.items {
		snapshot[i] = *item
	}
	q.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].QueuedAt.Before(snapshot[j].QueuedAt) })

	payload := struct {
		Version int          `json:"version"`
		Items   []QueuedFile `json:"items"`
	}{Version: persistenceFormatVersion, Items: snapshot}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal queue snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create persistence dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".queue-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath)
	}()

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("write compressed snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// LoadFromPersistence restores the queue from a snapshot written by
// SaveToPersistence. Any item that was Processing at save time (i.e. the
// service crashed mid-process) is restored as Pending — this is the
// crash-recovery guarantee (P6). Entries that fail to decode are dropped
// rather than aborting the whole load, tolerating partial corruption.
func (q *Queue) LoadFromPersistence(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open persistence file: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return fmt.Errorf("read compressed snapshot: %w", err)
	}

	var payload persistedQueue
	if err := json.Unmarshal(raw, &payload); err != nil {
		// Envelope itself is malformed (not just an entry) — nothing
		// recoverable.
		return fmt.Errorf("decode queue snapshot: %w", err)
	}

	restored := make([]*QueuedFile, 0, len(payload.Items))
	dropped := 0
	for _, rawItem := range payload.Items {
		var item QueuedFile
		if err := json.Unmarshal(rawItem, &item); err != nil {
			dropped++
			continue
		}
		if item.State == StateProcessing {
			item.State = StatePending
		}
		restored = append(restored, &item)
	}
	if dropped > 0 {
		return q.installRestored(restored, fmt.Errorf("dropped %d unreadable queue entries", dropped))
	}
	return q.installRestored(restored, nil)
}

// installRestored swaps in the decoded items and returns reportErr
// unchanged, so callers can distinguish "loaded with some entries
// dropped" from a clean load while still installing what could be
// recovered.
func (q *Queue) installRestored(restored []*QueuedFile, reportErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = restored
	q.byPath = make(map[string]*QueuedFile, len(restored))
	for _, item := range restored {
		q.byPath[item.Path] = item
	}
	return reportErr
}
