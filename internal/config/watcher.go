package config

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/fxbridge/internal/logging"
)

// ErrWatcherClosed is returned when operating on a closed watcher.
var ErrWatcherClosed = errors.New("watcher is closed")

// DefaultDebounce coalesces the burst of events editors emit on save.
const DefaultDebounce = 50 * time.Millisecond

// ReloadFunc receives each successfully reloaded configuration.
type ReloadFunc func(cfg *Config)

// Watcher reloads a configuration file when it changes.
type Watcher struct {
	mu sync.Mutex

	path     string
	abs      string
	onReload ReloadFunc
	logger   *logging.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	timer   *time.Timer

	// Stats
	reloads   int
	lastError error

	// Lifecycle
	closed   bool
	closeCh  chan struct{}
	closedWg sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher starts watching path. The containing directory is watched so
// that atomic replace-on-save is seen as a create.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     path,
		abs:      abs,
		onReload: onReload,
		debounce: DefaultDebounce,
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrNop(w.logger).WithComponent("config")

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	w.watcher = fsw

	w.closedWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Close stops the watcher. Pending reloads are dropped; a reload that is
// already running finishes before Close returns.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.stopTimer()
	w.mu.Unlock()

	w.closedWg.Wait()
	return w.watcher.Close()
}

// Reloads returns how many times the configuration was reloaded.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// LastError returns the most recent reload or watch error.
func (w *Watcher) LastError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

// processLoop handles incoming fsnotify events.
func (w *Watcher) processLoop() {
	defer w.closedWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.recordError(err)
			w.logger.Warn("watch error: %v", err)
		}
	}
}

// handleEvent schedules a reload for writes and creates of the watched file.
func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.abs {
		return
	}
	if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.stopTimer()
	w.closedWg.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.closedWg.Done()
		w.reload()
	})
}

// stopTimer cancels a scheduled reload. Must be called with mu held.
func (w *Watcher) stopTimer() {
	if w.timer != nil && w.timer.Stop() {
		w.closedWg.Done()
	}
	w.timer = nil
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.recordError(err)
		w.logger.Warn("reload %s: %v", w.path, err)
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.reloads++
	w.mu.Unlock()

	w.logger.Info("reloaded %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}

// recordError records an error in stats.
func (w *Watcher) recordError(err error) {
	w.mu.Lock()
	w.lastError = err
	w.mu.Unlock()
}
