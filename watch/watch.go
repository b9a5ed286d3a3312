// Package watch adds video files that appear in a watch folder to the
// workspace.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"

	"vidconv/media"
	"vidconv/service"
)

// DefaultSettleDelay is how long a file must stay unchanged before it is
// picked up. Files being copied in produce a stream of write events.
const DefaultSettleDelay = 2 * time.Second

// Target receives the files found by the watcher.
type Target interface {
	AddFiles(paths []string) service.AddFilesResult
	LoadAllMetadata(ctx context.Context) []media.FileInfo
}

type Watcher struct {
	dir     string
	delay   time.Duration
	target  Target
	logger  hclog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*settleTimer
	ctx     context.Context
}

// settleTimer is one scheduled delivery. Its identity tells a superseded
// timer apart from the current one.
type settleTimer struct {
	timer *time.Timer
}

// New watches dir (not recursively). Nothing is delivered until Run.
func New(dir string, delay time.Duration, target Target, logger hclog.Logger) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultSettleDelay
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch folder %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		delay:   delay,
		target:  target,
		logger:  logger,
		watcher: fw,
		pending: make(map[string]*settleTimer),
	}, nil
}

// Run delivers files until ctx ends, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()
	defer w.stop()

	w.logger.Info("watching folder", "dir", w.dir, "settle", w.delay)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op&fsnotify.Create != fsnotify.Create && event.Op&fsnotify.Write != fsnotify.Write {
		return
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || !media.IsSupportedFormat(name) {
		return
	}
	w.logger.Trace("file event", "path", event.Name, "op", event.Op)
	w.schedule(event.Name)
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if prev, ok := w.pending[path]; ok {
		prev.timer.Stop()
	}
	st := &settleTimer{}
	st.timer = time.AfterFunc(w.delay, func() { w.fire(path, st) })
	w.pending[path] = st
}

// fire delivers path if st is still the timer pending for it. A timer that
// fired while being replaced leaves delivery to its successor.
func (w *Watcher) fire(path string, st *settleTimer) {
	w.mu.Lock()
	if w.pending[path] != st {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	ctx := w.ctx
	w.mu.Unlock()
	w.deliver(ctx, path)
}

func (w *Watcher) deliver(ctx context.Context, path string) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}

	res := w.target.AddFiles([]string{path})
	for _, msg := range res.Errors {
		w.logger.Warn("watched file rejected", "error", msg)
	}
	if len(res.Added) == 0 {
		return
	}
	w.logger.Info("watched file added", "path", path)
	w.target.LoadAllMetadata(ctx)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, st := range w.pending {
		st.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", "error", err)
	}
}
