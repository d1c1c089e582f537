// Package watch reloads the catalog when post sources change on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/reblog/internal/catalog"
)

// DefaultDebounce is how long the watcher waits for the file system to go
// quiet before reloading.
const DefaultDebounce = 200 * time.Millisecond

// Reloader rebuilds the post set; *catalog.Catalog satisfies it.
type Reloader interface {
	Load(ctx context.Context) (catalog.Changes, error)
}

// EventCallback is called once per affected post after a successful reload.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, id string)

// Watch follows root with fsnotify until ctx is cancelled. Bursts of .md
// events (and new directories) are debounced into one reload. A failed
// reload is logged and the previous catalog stays in place.
func Watch(ctx context.Context, root string, r Reloader, debounce time.Duration, logger *slog.Logger, cb EventCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			reload(ctx, r, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if hidden(root, ev.Name) {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					}
					schedule()
					continue
				}
			}

			// Removing or renaming a directory only reports the directory itself.
			if strings.HasSuffix(ev.Name, ".md") || ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reload(ctx context.Context, r Reloader, logger *slog.Logger, cb EventCallback) {
	changes, err := r.Load(ctx)
	if err != nil {
		logger.Warn("watcher: reload failed, keeping previous posts", slog.String("error", err.Error()))
		return
	}
	if cb == nil {
		return
	}
	for _, id := range changes.Created {
		cb("created", id)
	}
	for _, id := range changes.Updated {
		cb("updated", id)
	}
	for _, id := range changes.Deleted {
		cb("deleted", id)
	}
}

// hidden reports whether any element of path below root starts with '.'.
func hidden(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
