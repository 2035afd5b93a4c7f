package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/bryanchriswhite/MatrixOverlay/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors produce on save
const reloadDebounce = 200 * time.Millisecond

// Watcher signals when the config file changes on disk
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	events    chan struct{}
	done      chan struct{}
	timerMu   sync.Mutex
	timer     *time.Timer
	closeOnce sync.Once
}

// NewWatcher watches the directory containing path. The directory is watched
// rather than the file so atomic rename-over-target saves are seen.
func NewWatcher(path string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		path:      filepath.Clean(path),
		events:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go w.processEvents()
	return w, nil
}

// Events delivers one value per (debounced) change. The channel holds at most
// one pending notification.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Close stops the watcher
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.timerMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.timerMu.Unlock()
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) processEvents() {
	log := logger.WithComponent("config")
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Str("op", event.Op.String()).Str("path", event.Name).Msg("Config file event")
			w.debounce()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) debounce() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.notify)
}

func (w *Watcher) notify() {
	select {
	case <-w.done:
		return
	default:
	}
	select {
	case w.events <- struct{}{}:
	default:
		// a reload is already pending
	}
}
