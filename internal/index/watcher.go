package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// Watch starts an fsnotify watcher on the content root and translates file
// system notifications into FileEvents on events until ctx is cancelled.
//
// New directories are added to the watch list as they appear, and an add
// event is emitted for every file already inside them. Renames are reported
// as a remove of the old path; the new path arrives as a separate create.
func Watch(ctx context.Context, src *storage.FS, logger *slog.Logger, events chan<- models.FileEvent) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, src); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", src.Root()))

	emit := func(op, rel string) bool {
		select {
		case events <- models.FileEvent{Op: op, Path: rel}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			rel, relErr := src.Rel(ev.Name)
			if relErr != nil || rel == "" {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if src.Skip(rel, true) {
						continue
					}
					if addErr := addDirsRecursive(w, src, rel); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", rel),
							slog.String("error", addErr.Error()))
					} else {
						logger.Debug("watcher: watching new dir", slog.String("path", rel))
					}
					for _, file := range filesUnder(src, rel) {
						if !emit(models.OpAdd, file) {
							return nil
						}
					}
					continue
				}
			}

			if src.Skip(rel, false) {
				continue
			}

			var op string
			switch {
			case ev.Op&fsnotify.Create != 0:
				op = models.OpAdd
			case ev.Op&fsnotify.Write != 0:
				op = models.OpChange
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				op = models.OpRemove
			default:
				continue
			}
			logger.Debug("watcher: event", slog.String("path", rel), slog.String("op", op))
			if !emit(op, rel) {
				return nil
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// filesUnder lists the non-ignored files below dir (relative to the root).
func filesUnder(src *storage.FS, dir string) []string {
	var out []string
	_ = filepath.WalkDir(filepath.Join(src.Root(), dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := src.Rel(p)
		if relErr != nil {
			return nil
		}
		if src.Skip(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

// addDirsRecursive adds the given directory (the root when omitted) and all
// its non-ignored subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, src *storage.FS, dir ...string) error {
	start := src.Root()
	if len(dir) > 0 {
		start = filepath.Join(start, dir[0])
	}
	if _, err := os.Stat(start); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := src.Rel(p); relErr == nil && src.Skip(rel, true) {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
