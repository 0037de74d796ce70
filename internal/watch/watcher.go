// Package watch implements the filesystem-facing half of the pipeline: the
// FS Watcher (C7), Work Queue (C8), File Processor (C9), and Monitor
// Service (C10) that together pick up recorder-dropped audio files without
// going through the HTTP ingest endpoint.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// EventKind classifies a filesystem change the Watcher observed.
type EventKind int

const (
	EventCreated EventKind = iota
	EventModified
	EventMovedTo
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventModified:
		return "modified"
	case EventMovedTo:
		return "moved_to"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// FileEvent describes one filtered, debounced filesystem change.
type FileEvent struct {
	Path    string
	Kind    EventKind
	Size    int64
	IsFinal bool // always true: events are only emitted once debounced settled
}

// WatcherOptions configures the Watcher, mirroring §6.3's monitor.watch
// configuration surface.
type WatcherOptions struct {
	Directory      string
	FilePatterns   []string
	FileExtensions []string
	MinFileSize    int64
	MaxFileSize    int64
	DebounceDelay  time.Duration
	Recursive      bool
	FollowSymlinks bool

	// MaxScanDepth bounds the initial recursive scan (§4.7: "bounded-depth
	// (<=10) initial recursive scan on start").
	MaxScanDepth int
}

// Watcher emits FileEvents for audio files appearing under Directory.
// Grounded on the teacher's internal/ingest/watcher.go fsnotify +
// per-path-debounce-timer pattern, generalized from JSON-sidecar watching
// to direct audio-file watching with glob/extension/size filtering.
type Watcher struct {
	opts WatcherOptions
	log  zerolog.Logger

	fsw    *fsnotify.Watcher
	events chan FileEvent

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer

	cancel context.CancelFunc
}

// NewWatcher constructs a Watcher. Call Start to begin emitting events.
func NewWatcher(opts WatcherOptions, log zerolog.Logger) (*Watcher, error) {
	if opts.MaxScanDepth <= 0 {
		opts.MaxScanDepth = 10
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = time.Second
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		opts:           opts,
		log:            log,
		fsw:            fsw,
		events:         make(chan FileEvent, 1000), // bounded, matches §5's capacity-1000 channel
		debounceTimers: make(map[string]*time.Timer),
	}, nil
}

// Events returns the channel FileEvents are published on. The channel has
// capacity 1000; if a consumer falls behind, new events are dropped and
// logged rather than blocking the notify goroutine (§5 back-pressure rule).
func (w *Watcher) Events() <-chan FileEvent { return w.events }

// Start begins watching Directory (recursively, bounded by MaxScanDepth on
// the initial walk) and returns the initial backlog of already-present
// matching files for the caller to enqueue directly.
func (w *Watcher) Start(ctx context.Context) ([]FileEvent, error) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	initial, err := w.walkAndWatch(w.opts.Directory, 0)
	if err != nil {
		cancel()
		return nil, err
	}

	go w.watchLoop(ctx)

	return initial, nil
}

// Stop halts the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.fsw.Close()
}

func (w *Watcher) walkAndWatch(dir string, depth int) ([]FileEvent, error) {
	if depth > w.opts.MaxScanDepth {
		return nil, nil
	}
	if err := w.fsw.Add(dir); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var initial []FileEvent
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if !w.opts.Recursive {
				continue
			}
			sub, err := w.walkAndWatch(full, depth+1)
			if err != nil {
				w.log.Warn().Err(err).Str("dir", full).Msg("failed to watch subdirectory")
				continue
			}
			initial = append(initial, sub...)
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if w.matches(full, info) {
			initial = append(initial, FileEvent{Path: full, Kind: EventCreated, Size: info.Size(), IsFinal: true})
		}
	}
	return initial, nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && w.opts.Recursive {
			if _, err := w.walkAndWatch(event.Name, 0); err != nil {
				w.log.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new subdirectory")
			}
			return
		}
	}

	switch {
	case event.Op&fsnotify.Remove != 0:
		w.publish(FileEvent{Path: event.Name, Kind: EventRemoved, IsFinal: true})
		return
	case event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0:
		return // access-only or unsupported op, suppressed
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return // path must still exist at emission time for Created/Modified
	}
	if info.IsDir() || !w.matches(event.Name, info) {
		return
	}

	kind := EventModified
	if event.Op&fsnotify.Create != 0 {
		kind = EventCreated
	}

	w.scheduleDebounced(event.Name, kind, info.Size())
}

// scheduleDebounced resets a per-path timer so rapid successive writes to
// the same file collapse into a single emitted event once writes settle.
func (w *Watcher) scheduleDebounced(path string, kind EventKind, size int64) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if t, ok := w.debounceTimers[path]; ok {
		t.Stop()
	}
	w.debounceTimers[path] = time.AfterFunc(w.opts.DebounceDelay, func() {
		w.debounceMu.Lock()
		delete(w.debounceTimers, path)
		w.debounceMu.Unlock()

		info, err := os.Stat(path)
		if err != nil {
			return // vanished before settling
		}
		w.publish(FileEvent{Path: path, Kind: kind, Size: info.Size(), IsFinal: true})
	})
}

func (w *Watcher) publish(ev FileEvent) {
	select {
	case w.events <- ev:
	default:
		w.log.Warn().Str("path", ev.Path).Msg("event channel full, dropping event")
	}
}

func (w *Watcher) matches(path string, info os.FileInfo) bool {
	if info.Mode()&os.ModeSymlink != 0 && !w.opts.FollowSymlinks {
		return false
	}
	if info.Size() < w.opts.MinFileSize || (w.opts.MaxFileSize > 0 && info.Size() > w.opts.MaxFileSize) {
		return false
	}

	name := filepath.Base(path)
	if len(w.opts.FilePatterns) > 0 {
		matched := false
		for _, pat := range w.opts.FilePatterns {
			if ok, _ := filepath.Match(pat, name); ok {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(w.opts.FileExtensions) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		allowed := false
		for _, e := range w.opts.FileExtensions {
			if strings.ToLower(strings.TrimPrefix(e, ".")) == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}
