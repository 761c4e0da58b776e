package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/ringkit/errors"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher reloads a config file when it changes on disk and publishes the
// result into a SafeConfig. A reload that fails to load or validate is
// logged and the previous configuration stays in effect.
type Watcher struct {
	path     string
	loader   *Loader
	target   *SafeConfig
	logger   *slog.Logger
	debounce time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	onChange []func(*Config)
	reloads  int
	failures int
}

// NewWatcher creates a watcher for path. The loader is reused for every
// reload and always validates.
func NewWatcher(path string, target *SafeConfig, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	loader := NewLoader()
	loader.EnableValidation(true)
	loader.AddLayer(path)
	return &Watcher{
		path:     filepath.Clean(path),
		loader:   loader,
		target:   target,
		logger:   logger.With("component", "config-watcher", "path", path),
		debounce: defaultDebounce,
	}
}

// SetDebounce sets how long the watcher waits for writes to settle.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

// OnChange registers fn to run after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.onChange = append(w.onChange, fn)
	w.mu.Unlock()
}

// Stats returns the number of successful and failed reloads.
func (w *Watcher) Stats() (reloads, failures int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.failures
}

// Run watches until ctx is cancelled. The parent directory is watched so
// that editors which replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapFatal(err, "Watcher", "Run", "create fsnotify watcher")
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return errors.WrapInvalid(err, "Watcher", "Run", "watch config directory")
	}
	w.logger.Debug("Watching config file")

	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, w.Reload)
		return
	}
	w.timer.Reset(w.debounce)
}

// Reload loads the file now. It is called by Run after a change settles.
func (w *Watcher) Reload() {
	cfg, err := w.loader.Load()
	if err == nil {
		err = w.target.Update(cfg)
	}

	w.mu.Lock()
	if err != nil {
		w.failures++
		w.mu.Unlock()
		w.logger.Warn("Config reload failed, keeping previous config", "error", err)
		return
	}
	w.reloads++
	callbacks := append([]func(*Config){}, w.onChange...)
	w.mu.Unlock()

	w.logger.Info("Config reloaded")
	current := w.target.Get()
	for _, fn := range callbacks {
		fn(current)
	}
}
