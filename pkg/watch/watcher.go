// Package watch re-analyzes a trace file as it grows. Tracing sessions
// often append to the same file for hours; watching keeps the Parquet
// dataset current without re-running the CLI by hand.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors trace files and invokes a callback when one changes.
// Change detection is debounced because tracers flush in bursts.
type Watcher struct {
	fs       *fsnotify.Watcher
	mu       sync.RWMutex
	files    map[string]*fileState
	debounce time.Duration

	// OnChange runs after a watched file settles. Errors it returns are
	// routed to OnError; the watch loop keeps running.
	OnChange func(path string) error
	OnError  func(path string, err error)
}

type fileState struct {
	modTime    time.Time
	size       int64
	processing bool
}

func New() (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	return &Watcher{
		fs:       fs,
		files:    make(map[string]*fileState),
		debounce: 500 * time.Millisecond,
	}, nil
}

// Watch registers a trace file. The containing directory is what gets
// watched; editors and tracers that rename-over the file still trigger.
func (w *Watcher) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watch: resolve %s: %w", path, err)
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch: stat %s: %w", path, err)
	}

	w.mu.Lock()
	w.files[abs] = &fileState{modTime: stat.ModTime(), size: stat.Size()}
	w.mu.Unlock()

	if err := w.fs.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch: add %s: %w", filepath.Dir(abs), err)
	}
	return nil
}

// Run blocks processing filesystem events until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timerMu sync.Mutex
		timers  = make(map[string]*time.Timer)
	)

	for {
		select {
		case <-ctx.Done():
			w.fs.Close()
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.RLock()
			state, watched := w.files[abs]
			w.mu.RUnlock()
			if !watched {
				continue
			}

			timerMu.Lock()
			if t, exists := timers[abs]; exists {
				t.Stop()
			}
			timers[abs] = time.AfterFunc(w.debounce, func() {
				w.settled(abs, state)
			})
			timerMu.Unlock()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if w.OnError != nil {
				w.OnError("", err)
			}
		}
	}
}

// settled fires after the debounce window with no further events.
func (w *Watcher) settled(path string, state *fileState) {
	w.mu.Lock()
	if state.processing {
		w.mu.Unlock()
		return
	}
	state.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		state.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(path)
	if err != nil {
		if w.OnError != nil {
			w.OnError(path, err)
		}
		return
	}
	if stat.ModTime().Equal(state.modTime) && stat.Size() == state.size {
		return
	}

	w.mu.Lock()
	state.modTime = stat.ModTime()
	state.size = stat.Size()
	w.mu.Unlock()

	if w.OnChange != nil {
		if err := w.OnChange(path); err != nil && w.OnError != nil {
			w.OnError(path, err)
		}
	}
}

func (w *Watcher) Close() error { return w.fs.Close() }
