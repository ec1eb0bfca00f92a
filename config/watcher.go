package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/arsession/logging"
	"go.viam.com/arsession/utils"
)

// reloadQuietPeriod is how long the file must stay unchanged before it is re-read. A single save
// usually produces several write events.
const reloadQuietPeriod = 100 * time.Millisecond

// Watcher re-reads a config file whenever it changes on disk and applies its logging settings.
// A file that fails to read or validate is logged and ignored; the previous config stays in
// effect.
type Watcher struct {
	path      string
	logger    logging.Logger
	watcher   *fsnotify.Watcher
	onChange  func(*Config)
	debounced func(func())
	closed    atomic.Bool
	workers   utils.StoppableWorkers
}

// NewWatcher starts watching path. onChange, if set, receives every valid config read after the
// file changes.
func NewWatcher(path string, onChange func(*Config), logger logging.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating config watcher")
	}
	// editors often replace the file, so the directory is watched rather than the file itself
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		//nolint:errcheck
		fsw.Close()
		return nil, errors.Wrapf(err, "watching %q", filepath.Dir(abs))
	}
	w := &Watcher{
		path:      abs,
		logger:    logger,
		watcher:   fsw,
		onChange:  onChange,
		debounced: debounce.New(reloadQuietPeriod),
	}
	w.workers = utils.NewStoppableWorkers(w.run)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("config watcher error", "error", err)
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.debounced(w.reload)
		}
	}
}

func (w *Watcher) reload() {
	if w.closed.Load() {
		return
	}
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Warnw("ignoring invalid config change", "path", w.path, "error", err)
		return
	}
	if err := ApplyLogging(cfg, w.logger); err != nil {
		w.logger.Warnw("failed to apply logging config", "error", err)
	}
	w.logger.Infow("config reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.closed.Store(true)
	err := w.watcher.Close()
	w.workers.Stop()
	return err
}
