// Package watch re-runs configuration assembly when fragment files
// change. The pipeline itself stays strictly sequential: one goroutine
// consumes filesystem events and invokes the callback inline, so two
// assemblies never overlap.
package watch

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher monitors a fragment directory and triggers a callback on
// changes to YAML files, debouncing rapid editor save bursts.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	onChange func()
	logger   *zap.Logger

	debounceDur time.Duration
	lastEvent   map[string]time.Time

	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New creates a watcher for the given fragment directory. onChange runs
// on the watcher goroutine for every debounced YAML change.
func New(dir string, onChange func(), logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fsw,
		dir:         dir,
		onChange:    onChange,
		logger:      logger,
		debounceDur: 500 * time.Millisecond,
		lastEvent:   make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}
	w.running = true
	w.logger.Info("watching fragment directory", zap.String("dir", w.dir))

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	ext := strings.ToLower(filepath.Ext(event.Name))
	if ext != ".yml" && ext != ".yaml" {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	now := time.Now()
	if last, ok := w.lastEvent[event.Name]; ok && now.Sub(last) < w.debounceDur {
		return
	}
	w.lastEvent[event.Name] = now

	w.logger.Debug("fragment change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()))
	w.onChange()
}

// Stop shuts the watcher down and waits for the event loop to exit.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		_ = w.watcher.Close()
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	_ = w.watcher.Close()
	<-w.doneCh
}
