package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

type fileRecords struct {
	rel     string
	records []models.Record
}

// Run walks the whole content tree and replaces the store's collection with
// the records found. The store is swapped only once every file has been
// built, so readers never observe a partially indexed tree.
//
// A missing content root is logged and treated as an empty tree. It returns
// the number of files that produced records.
func (ix *Indexer) Run(ctx context.Context) (int, error) {
	start := time.Now()

	var (
		mu      sync.Mutex
		results []fileRecords
		seen    = make(map[string]struct{})
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	var walk func(dir string) error
	walk = func(dir string) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		entries, err := ix.fs.ReadDir(dir)
		if err != nil {
			if dir == "" && errors.Is(err, fs.ErrNotExist) {
				warn := &apperr.MissingDirectoryWarning{Dir: ix.fs.Root(), Err: err}
				ix.logger.Warn("sync: content root missing", slog.String("dir", warn.Dir))
				return nil
			}
			ix.logger.Warn("sync: read dir failed", slog.String("dir", dir), slog.String("error", err.Error()))
			return nil
		}

		for _, e := range entries {
			rel := filepath.Join(dir, e.Name())
			if e.IsDir() {
				sub := func() error { return walk(rel) }
				// Walk inline when every worker is busy; blocking here
				// while holding a slot could starve the group.
				if !g.TryGo(sub) {
					if err := sub(); err != nil {
						return err
					}
				}
				continue
			}
			if !e.Type().IsRegular() || !ix.builder.Supports(filepath.Ext(rel)) {
				continue
			}

			f, err := ix.fs.ReadFile(rel)
			if err != nil {
				ix.logger.Warn("sync: read failed", slog.String("path", rel), slog.String("error", err.Error()))
				continue
			}
			records := ix.builder.Build(f)

			mu.Lock()
			seen[f.Meta.Path] = struct{}{}
			if len(records) > 0 {
				results = append(results, fileRecords{rel: rel, records: records})
			}
			mu.Unlock()
			ix.logger.Debug("sync: indexed", slog.String("path", rel), slog.Int("records", len(records)))
		}
		return nil
	}

	g.Go(func() error { return walk("") })
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("index: walk: %w", err)
	}

	slices.SortFunc(results, func(a, b fileRecords) int { return cmp.Compare(a.rel, b.rel) })
	var all []models.Record
	for _, fr := range results {
		all = append(all, fr.records...)
	}
	ix.store.Replace(all)

	if ix.pruner != nil {
		if n, err := ix.pruner.Prune(seen); err != nil {
			ix.logger.Warn("sync: cache prune failed", slog.String("error", err.Error()))
		} else if n > 0 {
			ix.logger.Debug("sync: cache pruned", slog.Int("entries", n))
		}
	}

	ix.logger.Info(fmt.Sprintf("Parsed %d files in %.1f seconds", len(results), time.Since(start).Seconds()),
		slog.Int("files", len(results)),
		slog.Int("records", len(all)),
		slog.Int("dirs", len(ix.store.Dirs())))
	return len(results), nil
}
