package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aura-dev/aura/internal/core"
	"github.com/aura-dev/aura/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// watchDebounce batches filesystem events; editors fire several per save.
const watchDebounce = 2 * time.Second

// Watcher re-enqueues an ingestion job whenever the workspace tree changes.
// Events are debounced so one save triggers one job, and coalescing in the
// queue absorbs the rest.
type Watcher struct {
	queue  *Queue
	logger *logging.Logger
}

// NewWatcher creates a workspace watcher feeding the job queue.
func NewWatcher(queue *Queue, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{queue: queue, logger: logger}
}

// Watch blocks until ctx is cancelled, watching the workspace tree
// recursively. New directories are added to the watch as they appear.
func (w *Watcher) Watch(ctx context.Context, ws *core.Workspace) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return core.ErrExecution("WATCH_FAILED", "creating filesystem watcher").WithCause(err)
	}
	defer fsw.Close()

	if err := addRecursive(fsw, ws.Path); err != nil {
		return err
	}

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			select {
			case fire <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fire:
			if _, err := w.queue.Enqueue(ws); err != nil {
				w.logger.Warn("cannot enqueue ingestion", "workspace", ws.ID, "error", err)
			}
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ignoredPath(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					// New directories must be watched too.
					_ = addRecursive(fsw, event.Name)
				}
			}
			schedule()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "workspace", ws.ID, "error", err)
		}
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if skipDirs[name] || (strings.HasPrefix(name, ".") && path != root) {
			return filepath.SkipDir
		}
		_ = fsw.Add(path)
		return nil
	})
}

func ignoredPath(path string) bool {
	path = filepath.ToSlash(path)
	for dir := range skipDirs {
		if strings.Contains(path, "/"+dir+"/") || strings.HasSuffix(path, "/"+dir) {
			return true
		}
	}
	return false
}
