package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"megabot.app/onboarding/common/logger"
)

// Holder serves the current catalog. Records snapshot whatever the holder
// returns at creation time.
type Holder struct {
	current atomic.Pointer[Catalog]
}

func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.current.Store(c)
	return h
}

func (h *Holder) Get() *Catalog {
	return h.current.Load()
}

func (h *Holder) Set(c *Catalog) {
	h.current.Store(c)
}

// Watcher reloads a catalog override file into a Holder when it changes.
// A file that fails to parse is logged and the previous catalog stays live.
type Watcher struct {
	path   string
	holder *Holder

	doneCh chan struct{}
}

func NewWatcher(path string, holder *Holder) *Watcher {
	return &Watcher{
		path:   path,
		holder: holder,
		doneCh: make(chan struct{}),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file via rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.doneCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "megabot.catalog.watcher",
	})

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	slog.InfoContext(ctx, "catalog watcher started", "path", w.path)

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.Reload(ctx)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "catalog watcher error", "error", err)
		}
	}
}

// Reload parses the file once and swaps it in on success.
func (w *Watcher) Reload(ctx context.Context) bool {
	c, err := Load(w.path)
	if err != nil {
		slog.ErrorContext(ctx, "catalog reload failed, keeping previous catalog",
			"error", err,
			"path", w.path)
		return false
	}
	w.holder.Set(c)
	slog.InfoContext(ctx, "catalog reloaded", "path", w.path)
	return true
}

// Done is closed once Run returns.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}
