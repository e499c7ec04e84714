package query

import (
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/paths"
	"github.com/starford/ansuz/internal/store"
)

// Source is the record collection a query runs against.
type Source interface {
	Find(pred store.Predicate) iter.Seq[models.Record]
	IsDir(path string) bool
}

// Query accumulates filter, search, sort, pagination and projection options
// and resolves them against a Source. Builder methods mutate and return the
// receiver; a Query is not safe for concurrent modification.
type Query struct {
	src     Source
	path    string
	many    bool
	where   Filter
	preds   []store.Predicate
	only    []string
	without []string
	order   []SortKey
	limit   int
	skip    int
	term    string
	search  SearchConfig
}

// New returns a query over every record in src.
func New(src Source) *Query {
	return &Query{src: src, path: paths.Root, many: true, where: Filter{}}
}

// For joins segments into a logical path and scopes the query to it: a path
// in the directory set selects every record directly in that directory,
// any other path selects the record at that path.
func For(src Source, segments ...string) *Query {
	q := New(src)
	if len(segments) == 0 {
		return q
	}
	q.path = paths.Join(segments...)
	q.many = src.IsDir(q.path)
	if q.many {
		return q.Where(Filter{models.FieldDir: q.path})
	}
	return q.Where(Filter{models.FieldPath: q.path})
}

// Get returns a query for the single record at path.
func Get(src Source, path string) *Query {
	q := New(src)
	q.path, q.many = paths.Clean(path), false
	return q.Where(Filter{models.FieldPath: q.path})
}

// List returns a query for the records directly in dir.
func List(src Source, dir string) *Query {
	q := New(src)
	q.path = paths.Clean(dir)
	return q.Where(Filter{models.FieldDir: q.path})
}

// Path returns the logical path the query is scoped to.
func (q *Query) Path() string { return q.path }

// Many reports whether Fetch resolves to a list.
func (q *Query) Many() bool { return q.many }

// Where merges f into the filter. Later keys replace earlier ones.
func (q *Query) Where(f Filter) *Query {
	maps.Copy(q.where, f)
	return q
}

// Filter adds a predicate that every result must satisfy.
func (q *Query) Filter(pred store.Predicate) *Query {
	q.preds = append(q.preds, pred)
	return q
}

// Only restricts result fields to keys.
func (q *Query) Only(keys ...string) *Query {
	q.only = append(q.only, keys...)
	return q
}

// Without drops keys from result fields.
func (q *Query) Without(keys ...string) *Query {
	q.without = append(q.without, keys...)
	return q
}

// SortBy appends a sort key. Keys may address nested values with dots.
func (q *Query) SortBy(key string, dir Direction) *Query {
	q.order = append(q.order, SortKey{Key: key, Dir: dir})
	return q
}

// Limit caps the number of results; 0 means no limit.
func (q *Query) Limit(n int) *Query {
	q.limit = max(n, 0)
	return q
}

// Skip drops the first n results.
func (q *Query) Skip(n int) *Query {
	q.skip = max(n, 0)
	return q
}

// Search ranks results by fuzzy match of term against cfg.Keys.
func (q *Query) Search(term string, cfg SearchConfig) *Query {
	q.term, q.search = term, cfg
	return q
}

// Result holds the outcome of Fetch: a single record or a list.
type Result struct {
	One    models.Record
	Many   []models.Record
	IsMany bool
}

// Value returns the list or the single record, whichever applies.
func (r Result) Value() any {
	if r.IsMany {
		return r.Many
	}
	return r.One
}

// FetchOne returns the first result. When nothing matches it returns a
// *apperr.NotFoundError if raise is set, or a nil record otherwise.
func (q *Query) FetchOne(raise bool) (models.Record, error) {
	records, err := q.resolve(1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		if raise {
			return nil, &apperr.NotFoundError{Path: q.path}
		}
		return nil, nil
	}
	return records[0], nil
}

// Fetch returns every result when the query is scoped to a directory, and
// behaves like FetchOne(true) otherwise.
func (q *Query) Fetch() (Result, error) {
	if q.many {
		records, err := q.FetchMany()
		return Result{Many: records, IsMany: true}, err
	}
	r, err := q.FetchOne(true)
	return Result{One: r}, err
}

// FetchMany returns every result. It never fails because nothing matched.
func (q *Query) FetchMany() ([]models.Record, error) {
	records, err := q.resolve(0)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, nil
}

// Count returns the number of records matching the filter, ignoring search
// and pagination.
func (q *Query) Count() (int, error) {
	pred, err := q.predicate()
	if err != nil {
		return 0, err
	}
	n := 0
	for range q.src.Find(pred) {
		n++
	}
	return n, nil
}

func (q *Query) predicate() (store.Predicate, error) {
	x, err := Parse(q.where)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if len(q.preds) == 0 {
		return Compile(x), nil
	}
	all := And{x}
	for _, p := range q.preds {
		all = append(all, Match{Fn: p})
	}
	return Compile(all), nil
}

// resolve runs filter, search, sort, skip, limit and projection in that
// order. A positive limit overrides the query's own.
func (q *Query) resolve(limit int) ([]models.Record, error) {
	pred, err := q.predicate()
	if err != nil {
		return nil, err
	}
	records := slices.Collect(q.src.Find(pred))

	if q.term != "" && len(records) > 0 {
		records = search(records, q.term, q.search)
	}
	if len(q.order) > 0 {
		sortRecords(records, q.order)
	}
	if q.skip > 0 {
		records = records[min(q.skip, len(records)):]
	}
	if limit == 0 {
		limit = q.limit
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if len(q.only) > 0 || len(q.without) > 0 {
		for i, r := range records {
			records[i] = project(r, q.only, q.without)
		}
	}
	return records, nil
}

// project keeps only the keys in only (all keys when empty) and then drops
// the keys in without.
func project(r models.Record, only, without []string) models.Record {
	out := make(models.Record, len(r))
	for k, v := range r {
		if len(only) > 0 && !slices.Contains(only, k) {
			continue
		}
		if slices.Contains(without, k) {
			continue
		}
		out[k] = v
	}
	return out
}

// String renders the query for logs.
func (q *Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "path=%s many=%t where=%v", q.path, q.many, map[string]any(q.where))
	if q.term != "" {
		fmt.Fprintf(&b, " search=%q", q.term)
	}
	for _, k := range q.order {
		fmt.Fprintf(&b, " sort=%s:%s", k.Key, k.Dir)
	}
	if q.skip > 0 {
		fmt.Fprintf(&b, " skip=%d", q.skip)
	}
	if q.limit > 0 {
		fmt.Fprintf(&b, " limit=%d", q.limit)
	}
	return b.String()
}
