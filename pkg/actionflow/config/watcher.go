package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher holds the latest valid manifest loaded from a file and reloads it
// when the file changes. A reload that fails keeps the previous manifest.
type Watcher struct {
	mu       sync.RWMutex
	current  Manifest
	path     string
	logger   *slog.Logger
	onChange []func(Manifest)

	fsw       *fsnotify.Watcher
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for reload diagnostics.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher loads the manifest at path. Call Start to begin watching.
func NewWatcher(path string, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	m, err := LoadManifest(abs)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}

	w := &Watcher{
		current: m,
		path:    abs,
		logger:  slog.Default(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Current returns the latest valid manifest.
func (w *Watcher) Current() Manifest {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(Manifest)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Reload re-reads the file. On error the previous manifest is kept. A
// zero-length file is a save in progress and is ignored.
func (w *Watcher) Reload() error {
	if fi, err := os.Stat(w.path); err == nil && fi.Size() == 0 {
		w.logger.Debug("manifest empty, waiting for write", slog.String("path", w.path))
		return nil
	}
	m, err := LoadManifest(w.path)
	if err != nil {
		w.logger.Error("manifest reload failed, keeping previous",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return fmt.Errorf("reload manifest: %w", err)
	}

	w.mu.Lock()
	old := w.current
	w.current = m
	listeners := append([]func(Manifest){}, w.onChange...)
	w.mu.Unlock()

	w.logger.Info("manifest reloaded",
		slog.String("path", w.path),
		slog.Int("channels_before", len(old.Channels)),
		slog.Int("channels_after", len(m.Channels)))

	for _, fn := range listeners {
		fn(m)
	}
	return nil
}

// Start begins watching the file's directory. Editors that save atomically
// replace the file, so the directory is watched rather than the file.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	w.fsw = fsw

	go w.loop()
	w.logger.Debug("watching manifest", slog.String("path", w.path))
	return nil
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		if w.fsw != nil {
			err = w.fsw.Close()
			<-w.done
		}
	})
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	name := filepath.Base(w.path)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug("manifest changed",
					slog.String("op", ev.Op.String()),
					slog.String("file", ev.Name))
				_ = w.Reload()
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("manifest watcher error", slog.String("error", err.Error()))

		case <-w.stopCh:
			return
		}
	}
}
