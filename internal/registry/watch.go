package registry

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval collapses the burst of events a single save produces
// (temp file write, rename, WAL checkpoint) into one callback.
const debounceInterval = 50 * time.Millisecond

// Watcher calls a function with fresh counts whenever a file or SQLite
// registry changes on disk.
type Watcher struct {
	reg      *Registry
	location string
	watcher  *fsnotify.Watcher
	onChange func(Counts)

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewWatcher prepares a Watcher for reg. The registry's directory is
// watched rather than the file itself, because every save replaces the file.
func NewWatcher(reg *Registry, onChange func(Counts)) (*Watcher, error) {
	location := reg.Location()
	if !filepath.IsAbs(location) {
		return nil, fmt.Errorf("registry %q is not stored on disk", location)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(location)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(location), err)
	}

	return &Watcher{
		reg:      reg,
		location: location,
		watcher:  watcher,
		onChange: onChange,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins delivering changes. Starting twice, or after Stop, does
// nothing.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.watchLoop()
}

// Stop stops the watcher and waits for the loop to exit. It is safe to call
// without Start and more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
		_ = w.watcher.Close()
		if !w.started {
			close(w.done)
		}
	}
	w.mu.Unlock()
	<-w.done
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			debounce.Reset(debounceInterval)

		case <-debounce.C:
			w.onChange(w.reg.Snapshot())

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.reg.logger.Debug("registry watch error", "error", err.Error())
		}
	}
}

// relevant reports whether event touches the stored counts. The guard lock
// file and the temp file used for atomic saves are ignored.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	name := filepath.Clean(event.Name)
	if !strings.HasPrefix(name, w.location) {
		return false
	}
	if strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}
