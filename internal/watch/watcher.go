// internal/watch/watcher.go
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/jen-cli/internal/taskgraph"
)

// Event is one normalized file-change notification.
type Event struct {
	Path string
	Kind taskgraph.ChangeKind
}

// Watcher tails a directory tree and drives incremental rebuilds: fsnotify
// events are translated to change kinds, coalesced for a debounce window, fed
// into the task runner as path invalidations, and followed by one rebuild.
//
// Rebuilds are strictly serialized; a rebuild failure is logged and the
// affected tasks stay pending, so the next batch of changes retries them.
type Watcher struct {
	root     string
	debounce time.Duration
	runner   *taskgraph.Runner
	rebuild  func(context.Context) error
	logger   *zap.Logger
}

func New(root string, debounce time.Duration, runner *taskgraph.Runner, rebuild func(context.Context) error, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		runner:   runner,
		rebuild:  rebuild,
		logger:   logger.Named("watch"),
	}
}

// Run blocks until ctx is cancelled or the watcher fails.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fs watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("Watching for changes", zap.String("root", w.root), zap.Duration("debounce", w.debounce))

	events := make(chan Event, 256)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.forward(ctx, fsw, events) })
	g.Go(func() error { return w.applyLoop(ctx, events) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// forward translates raw fsnotify events into normalized Events.
func (w *Watcher) forward(ctx context.Context, fsw *fsnotify.Watcher, out chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			kind, relevant := translate(ev)
			if !relevant {
				continue
			}
			// New directories need their own watches; fsnotify is not
			// recursive.
			if kind == taskgraph.ChangeAdd {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, ev.Name); err != nil {
						w.logger.Warn("Could not watch new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			select {
			case out <- Event{Path: filepath.Clean(ev.Name), Kind: kind}:
			case <-ctx.Done():
				return ctx.Err()
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

// applyLoop coalesces events for the debounce window, then invalidates and
// rebuilds once per quiet period.
func (w *Watcher) applyLoop(ctx context.Context, in <-chan Event) error {
	pending := make(map[string]taskgraph.ChangeKind)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e := <-in:
			// Delete is sticky: a delete followed by a rapid re-create still
			// strips the stale input first; the create re-adds it.
			if prev, ok := pending[e.Path]; !ok || prev != taskgraph.ChangeDelete {
				pending[e.Path] = e.Kind
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.flush(ctx, pending)
			pending = make(map[string]taskgraph.ChangeKind)
		}
	}
}

func (w *Watcher) flush(ctx context.Context, pending map[string]taskgraph.ChangeKind) {
	if len(pending) == 0 {
		return
	}

	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		w.runner.InvalidatePath(p, pending[p])
	}
	if !w.runner.NeedsUpdate() {
		w.logger.Debug("Changes touched nothing the build depends on", zap.Int("events", len(paths)))
		return
	}

	w.logger.Info("Rebuilding", zap.Int("changedPaths", len(paths)))
	if err := w.rebuild(ctx); err != nil {
		// Affected tasks stay pending; the next change retries them.
		w.logger.Error("Rebuild failed", zap.Error(err))
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func translate(ev fsnotify.Event) (taskgraph.ChangeKind, bool) {
	switch {
	case ev.Has(fsnotify.Create):
		return taskgraph.ChangeAdd, true
	case ev.Has(fsnotify.Write):
		return taskgraph.ChangeModify, true
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return taskgraph.ChangeDelete, true
	}
	return 0, false
}
