package sync

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

// Watch starts an fsnotify watcher on the manifest file and the content
// directory and runs a debounced incremental reconciliation whenever either
// changes, until ctx is cancelled.
//
// Events are debounced because a git checkout or an editor save fires
// several events for one logical change; the reconciliation itself is cheap
// to repeat (classification skips unchanged entries), so the debounce only
// trims noise.
func Watch(ctx context.Context, runner *Runner, manifestPath, contentRoot string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, contentRoot); err != nil {
		return err
	}
	// Watch the manifest's directory, not the file: editors replace files
	// by rename, which drops a direct file watch.
	if err := w.Add(filepath.Dir(manifestPath)); err != nil {
		return err
	}

	logger.Info("watcher: started",
		slog.String("manifest", manifestPath),
		slog.String("content", contentRoot))

	var debounce *time.Timer
	var fire <-chan time.Time

	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(200 * time.Millisecond)
			fire = debounce.C
		} else {
			debounce.Reset(200 * time.Millisecond)
		}
	}

	manifestAbs, _ := filepath.Abs(manifestPath)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-fire:
			report, err := runner.ReconcileFromMemory()
			if err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("watcher: reconciled", slog.String("summary", report.Summary()))

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			abs, _ := filepath.Abs(ev.Name)

			// New directories under the content root join the watch list.
			if ev.Op&fsnotify.Create != 0 && strings.HasPrefix(abs, contentRoot) {
				if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, abs); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", abs), slog.String("error", addErr.Error()))
					}
					schedule()
					continue
				}
			}

			switch {
			case abs == manifestAbs:
				schedule()
			case strings.HasPrefix(abs, contentRoot) && strings.HasSuffix(abs, ".md"):
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
