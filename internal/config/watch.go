package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/corewire/taskmesh/internal/corekit"
)

// Watcher reloads Config from path whenever the underlying file changes
// on disk. Adapter credentials are read only from TASKMESH_* environment
// variables, so a file change does not rotate them.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  corekit.Logger
}

// NewWatcher starts watching path. Call Close when done.
func NewWatcher(path string, logger corekit.Logger) (*Watcher, error) {
	if logger == nil {
		logger = corekit.NoOpLogger{}
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{path: path, watcher: fw, logger: corekit.WithComponent(logger, "config.watch")}, nil
}

// Watch blocks, invoking onChange with a freshly-loaded Config every time
// the watched file is written or renamed into place, until stop is closed.
func (w *Watcher) Watch(stop <-chan struct{}, onChange func(*Config, error)) {
	for {
		select {
		case <-stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				w.logger.Error("config reload failed", map[string]interface{}{"error": err.Error()})
			} else {
				w.logger.Info("config reloaded", map[string]interface{}{"path": w.path})
			}
			onChange(cfg, err)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", map[string]interface{}{"error": err.Error()})
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
