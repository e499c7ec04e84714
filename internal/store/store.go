// Package store holds the in-memory record collection.
//
// Store keeps records in insertion order and maintains the derived
// directory set. Readers always observe a consistent collection: every
// mutation, including a multi-step Update, runs under the write lock.
package store

import (
	"iter"
	"slices"
	"sync"

	"github.com/armon/go-radix"
	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/paths"
)

// Predicate selects records.
type Predicate func(models.Record) bool

// All matches every record.
func All(models.Record) bool { return true }

// Store is the record collection. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	records []models.Record
	dirs    *radix.Tree // dir -> number of records with that dir
}

// New returns an empty store.
func New() *Store {
	return &Store{dirs: radix.New()}
}

// InsertOne appends a record. It does not check path uniqueness; callers
// remove stale records first.
func (s *Store) InsertOne(r models.Record) {
	s.Update(func(tx *Tx) { tx.InsertOne(r) })
}

// DeleteOne removes the first record whose path matches. It reports whether
// a record was removed.
func (s *Store) DeleteOne(path string) bool {
	var ok bool
	s.Update(func(tx *Tx) { ok = tx.DeleteOne(path) })
	return ok
}

// DeleteMany removes every record whose dir equals dir, or, when recursive,
// lies under it. It returns the number removed.
func (s *Store) DeleteMany(dir string, recursive bool) int {
	var n int
	s.Update(func(tx *Tx) { n = tx.DeleteMany(dir, recursive) })
	return n
}

// Update runs fn with exclusive access. Readers see either none or all of
// the mutations fn performs.
func (s *Store) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

// Replace swaps the whole collection for records.
func (s *Store) Replace(records []models.Record) {
	s.Update(func(tx *Tx) {
		tx.s.records = make([]models.Record, 0, len(records))
		tx.s.dirs = radix.New()
		for _, r := range records {
			tx.InsertOne(r)
		}
	})
}

// Find returns the records matching pred in store order. The sequence
// iterates over a snapshot taken when iteration starts, so it can be ranged
// over repeatedly and never observes a partial update.
func (s *Store) Find(pred Predicate) iter.Seq[models.Record] {
	return func(yield func(models.Record) bool) {
		for _, r := range s.snapshot() {
			if pred(r) && !yield(r.Clone()) {
				return
			}
		}
	}
}

// Count returns the number of records matching pred.
func (s *Store) Count(pred Predicate) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.records {
		if pred(r) {
			n++
		}
	}
	return n
}

// Records returns copies of every record in store order.
func (s *Store) Records() []models.Record {
	return slices.Collect(s.Find(All))
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Dirs returns the directory set in sorted order: the root, every record
// dir, and every ancestor of those dirs.
func (s *Store) Dirs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := map[string]struct{}{paths.Root: {}}
	s.dirs.Walk(func(dir string, _ any) bool {
		set[dir] = struct{}{}
		for _, a := range paths.Ancestors(dir) {
			set[a] = struct{}{}
		}
		return false
	})
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// IsDir reports whether path is in the directory set.
func (s *Store) IsDir(path string) bool {
	path = paths.Clean(path)
	if path == paths.Root {
		return true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := false
	s.dirs.WalkPrefix(path, func(dir string, _ any) bool {
		if paths.Under(dir, path) {
			found = true
			return true
		}
		return false
	})
	return found
}

func (s *Store) snapshot() []models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.records)
}

// Tx is a view of the store with the write lock held. It must not escape
// the Update callback.
type Tx struct {
	s *Store
}

// InsertOne appends a copy of r and assigns it a fresh internal id.
func (tx *Tx) InsertOne(r models.Record) {
	rec := r.Clone()
	rec[models.FieldID] = uuid.NewString()
	tx.s.records = append(tx.s.records, rec)
	tx.addDir(rec.Dir())
}

// DeleteOne removes the first record with the given path.
func (tx *Tx) DeleteOne(path string) bool {
	i := slices.IndexFunc(tx.s.records, func(r models.Record) bool { return r.Path() == path })
	if i < 0 {
		return false
	}
	tx.removeDir(tx.s.records[i].Dir())
	tx.s.records = slices.Delete(tx.s.records, i, i+1)
	return true
}

// DeleteMany removes records by dir; see Store.DeleteMany.
func (tx *Tx) DeleteMany(dir string, recursive bool) int {
	return len(tx.DeleteWhere(func(r models.Record) bool {
		return r.Dir() == dir || (recursive && paths.Under(r.Dir(), dir))
	}))
}

// DeleteWhere removes every record matching pred and returns their paths.
func (tx *Tx) DeleteWhere(pred Predicate) []string {
	var removed []string
	tx.s.records = slices.DeleteFunc(tx.s.records, func(r models.Record) bool {
		if !pred(r) {
			return false
		}
		tx.removeDir(r.Dir())
		removed = append(removed, r.Path())
		return true
	})
	return removed
}

// Has reports whether a record with path exists.
func (tx *Tx) Has(path string) bool {
	return slices.ContainsFunc(tx.s.records, func(r models.Record) bool { return r.Path() == path })
}

func (tx *Tx) addDir(dir string) {
	n := 0
	if v, ok := tx.s.dirs.Get(dir); ok {
		n = v.(int)
	}
	tx.s.dirs.Insert(dir, n+1)
}

func (tx *Tx) removeDir(dir string) {
	v, ok := tx.s.dirs.Get(dir)
	if !ok {
		return
	}
	if n := v.(int); n > 1 {
		tx.s.dirs.Insert(dir, n-1)
		return
	}
	tx.s.dirs.Delete(dir)
}
