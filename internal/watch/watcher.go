// Package watch reloads the scene document when it, or an image it
// references, changes on disk.
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
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// Reloader is the document side of the watcher.
type Reloader interface {
	Path() string
	Reload() error
}

// ReloadCallback is called after every successful reload.
type ReloadCallback func(ctx context.Context)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// Watch starts an fsnotify watcher on the document directory and reloads
// the document until ctx is cancelled. Changes to the document file or to
// any image below its directory schedule one debounced reload; cb (if
// non-nil) runs after each reload that succeeds. A failed reload keeps the
// previous document.
//
// New directories created at runtime are automatically added to the watch
// list.
func Watch(ctx context.Context, l Reloader, logger *slog.Logger, debounce time.Duration, cb ReloadCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	docPath, err := filepath.Abs(l.Path())
	if err != nil {
		return err
	}
	root := filepath.Dir(docPath)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("document", docPath))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	scheduleReload := func() {
		if reloadTimer == nil {
			reloadTimer = time.NewTimer(debounce)
			reloadCh = reloadTimer.C
		} else {
			reloadTimer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reloadCh:
			if err := l.Reload(); err != nil {
				logger.Warn("watcher: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Debug("watcher: reloaded", slog.String("document", docPath))
			if cb != nil {
				cb(ctx)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
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
					continue
				}
			}

			if ev.Op == fsnotify.Chmod || !relevant(ev.Name, docPath) {
				continue
			}
			logger.Debug("watcher: change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			scheduleReload()

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// relevant reports whether a change to path can affect the rendered document.
func relevant(path, docPath string) bool {
	if path == docPath {
		return true
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExts[strings.ToLower(filepath.Ext(base))]
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
