package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the project file when it changes and hands the new
// Settings to a callback. The parent directory is watched rather than the
// file itself because most editors write via rename, which drops a watch
// placed directly on the file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	opts     LoadOptions
	onChange func(*Settings)
	logger   *slog.Logger

	debounce   time.Duration
	debounceMu sync.Mutex
	timer      *time.Timer

	stopChan chan struct{}
	stopped  bool
	mu       sync.Mutex
}

// NewWatcher creates a watcher for the project file named by opts (or
// ProjectFile when opts.Path is empty). onChange runs on the watcher
// goroutine after each successful reload.
func NewWatcher(opts LoadOptions, onChange func(*Settings), logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}

	path := opts.Path
	if path == "" {
		path = ProjectFile
	}

	return &Watcher{
		watcher:  fsw,
		path:     path,
		opts:     opts,
		onChange: onChange,
		logger:   logger,
		debounce: 200 * time.Millisecond,
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins watching. The config file does not have to exist yet; a
// later create is picked up like any other change.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return fmt.Errorf("watcher already stopped")
	}
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info("config watcher started", "file", w.path)
	go w.eventLoop()
	return nil
}

// Stop stops the watcher. Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopChan)

	w.debounceMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.debounceMu.Unlock()

	err := w.watcher.Close()
	w.logger.Info("config watcher stopped")
	return err
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.logger.Debug("config file event", "op", event.Op.String(), "file", event.Name)
	w.scheduleReload()
}

// scheduleReload collapses a burst of events into one reload.
func (w *Watcher) scheduleReload() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	s, err := Load(w.opts)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous settings", "error", err)
		return
	}
	if errs := s.Validate(); len(errs) > 0 {
		w.logger.Warn("config reload rejected, keeping previous settings", "errors", errs)
		return
	}
	w.logger.Info("config reloaded", "file", w.path)
	w.onChange(s)
}
