package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/codefionn/canvaschat/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file whenever it changes on disk and hands the
// new snapshot to every subscriber. Invalid files are logged and ignored,
// the previous snapshot stays current.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	stop    chan struct{}
	done    chan struct{}

	mu          sync.RWMutex
	current     *Config
	subscribers []func(*Config)
}

// NewWatcher loads path and starts watching its directory. The directory is
// watched instead of the file so that editors replacing the file by rename
// are still observed.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    filepath.Clean(path),
		watcher: fw,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		current: cfg,
	}
	go w.loop()
	return w, nil
}

// Current returns the latest valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current.Clone()
}

// Subscribe registers fn to receive every reloaded configuration.
func (w *Watcher) Subscribe(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subscribers = append(w.subscribers, fn)
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.stop)
	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Global().Error("config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Global().Warn("ignoring config change: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	subscribers := slices.Clone(w.subscribers)
	w.mu.Unlock()

	logger.Global().Info("config reloaded from %s", w.path)
	for _, fn := range subscribers {
		fn(cfg.Clone())
	}
}
