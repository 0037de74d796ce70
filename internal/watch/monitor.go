package watch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/snarg/radio-ingest/internal/store"
)

// ServiceState is the Monitor Service's lifecycle state (§4.10).
type ServiceState string

const (
	StateStopped  ServiceState = "stopped"
	StateStarting ServiceState = "starting"
	StateRunning  ServiceState = "running"
	StateDegraded ServiceState = "degraded"
	StateStopping ServiceState = "stopping"
	StateFailed   ServiceState = "failed"
)

// ErrServiceAlreadyRunning is returned by Start when the service is not
// Stopped.
var ErrServiceAlreadyRunning = fmt.Errorf("service already running")

// MonitorOptions configures the Monitor Service, mirroring §6.3's
// monitor.service configuration.
type MonitorOptions struct {
	Store     *store.Store
	Watcher   *Watcher
	Queue     *Queue
	Processor *Processor

	WatchDir        string
	ArchiveDir      string
	FailedDir       string
	TempDir         string
	PersistenceFile string

	ProcessingWorkers   int
	ProcessingInterval  time.Duration
	HealthCheckInterval time.Duration
	MetricsInterval     time.Duration
	PersistenceInterval time.Duration
	ShutdownTimeout     time.Duration
	AutoRestart         bool
	MaxRestartAttempts  int
}

// Counters are the Monitor Service's running totals, safe for concurrent
// access from worker goroutines.
type Counters struct {
	FilesProcessed atomic.Int64
	FilesSkipped   atomic.Int64
	FilesFailed    atomic.Int64
	FilesArchived  atomic.Int64
}

// Monitor composes the Store, FS Watcher, Work Queue, and File Processor
// into the single background service described by §4.10's state machine.
// Grounded on the teacher's cmd/tr-engine/main.go composition root (wiring
// watcher -> pipeline) and FileWatcher.backfill's worker-pool concurrency,
// using golang.org/x/sync/errgroup (§5 expansion) in place of a bespoke
// WaitGroup so the first background-task failure is captured without
// losing track of the others.
type Monitor struct {
	opts MonitorOptions
	log  zerolog.Logger

	mu            sync.RWMutex
	state         ServiceState
	degradedSince string

	counters Counters

	group  *errgroup.Group
	cancel context.CancelFunc

	restartAttempts atomic.Int32

	processingDurations []time.Duration
	processingMu        sync.Mutex
}

// NewMonitor builds a Monitor in the Stopped state.
func NewMonitor(opts MonitorOptions, log zerolog.Logger) *Monitor {
	return &Monitor{opts: opts, log: log, state: StateStopped}
}

// State reports the current lifecycle state.
func (m *Monitor) State() ServiceState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Monitor) setState(s ServiceState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// Start brings the service from Stopped to Running: connects to the store,
// creates working directories, starts the watcher, seeds the queue with
// the initial backlog, and spawns the background tasks (event handler,
// worker pool, health check, metrics, persistence).
func (m *Monitor) Start(ctx context.Context) error {
	if m.State() != StateStopped {
		return ErrServiceAlreadyRunning
	}
	m.setState(StateStarting)

	if err := m.opts.Store.HealthCheck(ctx); err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("store health check failed: %w", err)
	}

	for _, dir := range []string{m.opts.WatchDir, m.opts.ArchiveDir, m.opts.FailedDir, m.opts.TempDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			m.setState(StateFailed)
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	if m.opts.PersistenceFile != "" {
		if err := m.opts.Queue.LoadFromPersistence(m.opts.PersistenceFile); err != nil {
			m.log.Warn().Err(err).Msg("failed to load queue persistence, continuing with any entries that were read")
		}
	}

	initial, err := m.opts.Watcher.Start(ctx)
	if err != nil {
		m.setState(StateFailed)
		return fmt.Errorf("start watcher: %w", err)
	}
	for _, ev := range initial {
		if err := m.opts.Queue.Enqueue(ev.Path, ev.Size, time.Now().UTC(), 0); err != nil {
			m.log.Debug().Err(err).Str("path", ev.Path).Msg("initial scan enqueue skipped")
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	g, gctx := errgroup.WithContext(runCtx)
	m.group = g

	g.Go(func() error { return m.runEventHandler(gctx) })

	workers := m.opts.ProcessingWorkers
	if workers < 2 {
		workers = 2
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error { return m.runWorker(gctx) })
	}

	g.Go(func() error { return m.runHealthCheck(gctx) })
	g.Go(func() error { return m.runMetrics(gctx) })
	g.Go(func() error { return m.runPersistence(gctx) })

	m.setState(StateRunning)
	return nil
}

// Stop broadcasts shutdown, stops the watcher, waits for background tasks
// to finish within ShutdownTimeout, persists the queue, and transitions to
// Stopped.
func (m *Monitor) Stop(ctx context.Context) error {
	m.setState(StateStopping)

	m.opts.Watcher.Stop()
	if m.cancel != nil {
		m.cancel()
	}

	if m.group != nil {
		done := make(chan error, 1)
		go func() { done <- m.group.Wait() }()

		timeout := m.opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		select {
		case err := <-done:
			if err != nil {
				m.log.Warn().Err(err).Msg("background task exited with error during shutdown")
			}
		case <-time.After(timeout):
			m.log.Warn().Msg("shutdown timed out waiting for background tasks")
		}
	}

	if m.opts.PersistenceFile != "" {
		if err := m.opts.Queue.SaveToPersistence(m.opts.PersistenceFile); err != nil {
			m.log.Error().Err(err).Msg("failed to persist queue on shutdown")
		}
	}

	m.setState(StateStopped)
	return nil
}

// runEventHandler drains the watcher's event channel, enqueuing
// created/moved files and logging (without acting on) modified/removed
// ones.
func (m *Monitor) runEventHandler(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.opts.Watcher.Events():
			if !ok {
				return nil
			}
			switch ev.Kind {
			case EventCreated, EventMovedTo:
				if err := m.opts.Queue.Enqueue(ev.Path, ev.Size, time.Now().UTC(), 0); err != nil {
					m.log.Debug().Err(err).Str("path", ev.Path).Msg("enqueue skipped")
				}
			case EventModified:
				m.log.Debug().Str("path", ev.Path).Msg("file modified, ignored")
			case EventRemoved:
				m.log.Debug().Str("path", ev.Path).Msg("file removed")
			}
		}
	}
}

// runWorker repeatedly dequeues and processes files at ProcessingInterval,
// bumping the service counters on each outcome.
func (m *Monitor) runWorker(ctx context.Context) error {
	interval := m.opts.ProcessingInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			qf, ok := m.opts.Queue.Dequeue()
			if !ok {
				continue
			}

			result := m.opts.Processor.Process(ctx, qf)
			m.recordProcessingDuration(result.Duration)

			switch result.Status {
			case StatusCompleted, StatusArchived:
				m.opts.Queue.MarkCompleted(qf.Path)
				m.counters.FilesProcessed.Add(1)
				if result.Status == StatusArchived {
					m.counters.FilesArchived.Add(1)
				}
			case StatusSkipped:
				m.opts.Queue.MarkCompleted(qf.Path)
				m.counters.FilesSkipped.Add(1)
			case StatusFailed:
				m.opts.Queue.MarkFailed(qf.Path, result.Reason)
				m.counters.FilesFailed.Add(1)
			}
		}
	}
}

// runHealthCheck periodically pings the store, toggling Running/Degraded.
func (m *Monitor) runHealthCheck(ctx context.Context) error {
	interval := m.opts.HealthCheckInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.opts.Store.HealthCheck(ctx); err != nil {
				m.log.Warn().Err(err).Msg("health check failed, marking service degraded")
				m.setState(StateDegraded)
			} else if m.State() == StateDegraded {
				m.log.Info().Msg("health check recovered")
				m.setState(StateRunning)
			}
		}
	}
}

// runMetrics periodically reports average processing time, evicting the
// oldest samples once the bounded sample buffer exceeds 1000 entries.
func (m *Monitor) runMetrics(ctx context.Context) error {
	interval := m.opts.MetricsInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			avg := m.averageProcessingDuration()
			stats := m.opts.Queue.Stats()
			m.log.Info().
				Dur("avg_processing_time", avg).
				Int("queue_pending", stats.Pending).
				Int("queue_processing", stats.Processing).
				Int64("files_processed", m.counters.FilesProcessed.Load()).
				Int64("files_failed", m.counters.FilesFailed.Load()).
				Msg("monitor metrics")
		}
	}
}

// runPersistence periodically snapshots the queue to disk, plus once more
// on shutdown (handled directly in Stop).
func (m *Monitor) runPersistence(ctx context.Context) error {
	if m.opts.PersistenceFile == "" {
		<-ctx.Done()
		return nil
	}
	interval := m.opts.PersistenceInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.opts.Queue.SaveToPersistence(m.opts.PersistenceFile); err != nil {
				m.log.Warn().Err(err).Msg("periodic queue persistence failed")
			}
		}
	}
}

func (m *Monitor) recordProcessingDuration(d time.Duration) {
	m.processingMu.Lock()
	defer m.processingMu.Unlock()
	m.processingDurations = append(m.processingDurations, d)
	if len(m.processingDurations) > 1000 {
		// Evict oldest once the bounded sample buffer overflows.
		m.processingDurations = m.processingDurations[len(m.processingDurations)-1000:]
	}
}

func (m *Monitor) averageProcessingDuration() time.Duration {
	m.processingMu.Lock()
	defer m.processingMu.Unlock()
	if len(m.processingDurations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range m.processingDurations {
		total += d
	}
	return total / time.Duration(len(m.processingDurations))
}

// Stats exposes the running totals for health/stats reporting.
func (m *Monitor) Stats() Counters {
	return m.counters
}
