// Package updater reconciles the record store with single-path file events.
package updater

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/paths"
	"github.com/starford/ansuz/internal/record"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
)

// Change describes the outcome of one reconciliation.
type Change struct {
	Event   models.FileEvent
	Logical string   // normalised path of the event
	Removed []string // record paths deleted
	Added   []string // record paths inserted
}

// Changed reports whether the store was modified.
func (c Change) Changed() bool { return len(c.Removed) > 0 || len(c.Added) > 0 }

// Updater applies file events to a store.
type Updater struct {
	fs      *storage.FS
	builder *record.Builder
	store   *store.Store
	logger  *slog.Logger
	notify  func(Change)

	mu     sync.Mutex
	queues map[string][]models.FileEvent
	wg     sync.WaitGroup
}

// Option configures an Updater.
type Option func(*Updater)

// WithNotify registers fn to be called after every reconciliation.
func WithNotify(fn func(Change)) Option {
	return func(u *Updater) { u.notify = fn }
}

// New creates an Updater.
func New(src *storage.FS, builder *record.Builder, st *store.Store, logger *slog.Logger, opts ...Option) *Updater {
	u := &Updater{
		fs:      src,
		builder: builder,
		store:   st,
		logger:  logger,
		queues:  make(map[string][]models.FileEvent),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Run consumes events until ctx is cancelled or events is closed. Events for
// the same path are applied one at a time in arrival order; different paths
// are reconciled concurrently. Run waits for in-flight work before returning.
func (u *Updater) Run(ctx context.Context, events <-chan models.FileEvent) error {
	defer u.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			u.enqueue(ctx, ev)
		}
	}
}

func (u *Updater) enqueue(ctx context.Context, ev models.FileEvent) {
	key := filepath.Clean(ev.Path)

	u.mu.Lock()
	defer u.mu.Unlock()
	if q, busy := u.queues[key]; busy {
		u.queues[key] = append(q, ev)
		return
	}
	u.queues[key] = nil
	u.wg.Add(1)
	go u.drain(ctx, key, ev)
}

// drain applies ev and then every event queued behind it for key.
func (u *Updater) drain(ctx context.Context, key string, ev models.FileEvent) {
	defer u.wg.Done()
	for {
		u.Apply(ctx, ev)

		u.mu.Lock()
		q := u.queues[key]
		if len(q) == 0 || ctx.Err() != nil {
			delete(u.queues, key)
			u.mu.Unlock()
			return
		}
		ev, u.queues[key] = q[0], q[1:]
		u.mu.Unlock()
	}
}

// Apply reconciles the store with a single event synchronously and returns
// what changed.
func (u *Updater) Apply(ctx context.Context, ev models.FileEvent) Change {
	rel := filepath.Clean(ev.Path)
	ch := Change{
		Event:   ev,
		Logical: u.builder.Normalizer().Normalize(filepath.Join(u.fs.Root(), rel)),
	}
	if ctx.Err() != nil {
		return ch
	}
	if ch.Logical == paths.Root {
		u.logger.Warn("update: ignoring event for the content root", slog.String("event", ev.Op), slog.String("path", ev.Path))
		return ch
	}
	src := filepath.ToSlash(rel)

	switch ev.Op {
	case models.OpAdd, models.OpChange:
		f, err := u.fs.ReadFile(rel)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				u.remove(&ch, src)
				break
			}
			u.logger.Warn("update: read failed", slog.String("path", rel), slog.String("error", err.Error()))
			return ch
		}
		records := u.builder.Build(f)
		if ev.Op == models.OpAdd {
			u.add(&ch, records)
		} else {
			u.change(&ch, src, u.hasDir(rel), records)
		}
	case models.OpRemove:
		u.remove(&ch, src)
	default:
		u.logger.Warn("update: unknown event", slog.String("event", ev.Op), slog.String("path", rel))
		return ch
	}

	u.logger.Debug("update: applied",
		slog.String("event", ev.Op),
		slog.String("path", ch.Logical),
		slog.Int("removed", len(ch.Removed)),
		slog.Int("added", len(ch.Added)))
	if u.notify != nil {
		u.notify(ch)
	}
	return ch
}

func (u *Updater) add(ch *Change, records []models.Record) {
	if len(records) == 0 {
		return
	}
	u.store.Update(func(tx *store.Tx) {
		for _, r := range records {
			if tx.DeleteOne(r.Path()) {
				ch.Removed = append(ch.Removed, r.Path())
			}
			tx.InsertOne(r)
			ch.Added = append(ch.Added, r.Path())
		}
	})
}

// change replaces the records built from src. Records without a source
// (booted from a snapshot) are matched by path, and by dir only when no
// directory of the same name exists on disk, since those can only be the
// elements of an array file.
func (u *Updater) change(ch *Change, src string, sameNameDir bool, records []models.Record) {
	u.store.Update(func(tx *store.Tx) {
		ch.Removed = append(ch.Removed, tx.DeleteWhere(func(r models.Record) bool {
			if s := r.Source(); s != "" {
				return s == src
			}
			return r.Path() == ch.Logical || (!sameNameDir && r.Dir() == ch.Logical)
		})...)
		for _, r := range records {
			if tx.DeleteOne(r.Path()) {
				ch.Removed = append(ch.Removed, r.Path())
			}
			tx.InsertOne(r)
			ch.Added = append(ch.Added, r.Path())
		}
	})
	slices.Sort(ch.Removed)
	ch.Removed = slices.Compact(ch.Removed)
}

// remove deletes the records built from src, or from files below it when src
// was a directory.
func (u *Updater) remove(ch *Change, src string) {
	u.store.Update(func(tx *store.Tx) {
		ch.Removed = tx.DeleteWhere(func(r models.Record) bool {
			s := r.Source()
			return s != "" && (s == src || strings.HasPrefix(s, src+"/"))
		})
		// Records without a source: the record at the path, else the
		// directory subtree.
		orphans := tx.DeleteWhere(func(r models.Record) bool {
			return r.Source() == "" && r.Path() == ch.Logical
		})
		if len(orphans) == 0 && len(ch.Removed) == 0 {
			orphans = tx.DeleteWhere(func(r models.Record) bool {
				return r.Source() == "" && paths.Under(r.Dir(), ch.Logical)
			})
		}
		ch.Removed = append(ch.Removed, orphans...)
	})
	slices.Sort(ch.Removed)
}

// hasDir reports whether a directory sits next to rel under rel's name
// without its extension.
func (u *Updater) hasDir(rel string) bool {
	stem := strings.TrimSuffix(rel, filepath.Ext(rel))
	info, err := os.Stat(filepath.Join(u.fs.Root(), stem))
	return err == nil && info.IsDir()
}
