// Package index builds the record collection from the content tree and
// watches the tree for changes.
package index

import (
	"log/slog"
	"runtime"

	"github.com/starford/ansuz/internal/record"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
)

// Pruner drops cached entries for files that no longer exist.
type Pruner interface {
	Prune(keep map[string]struct{}) (int, error)
}

// Indexer performs full walks of the content tree.
type Indexer struct {
	fs      storage.Provider
	builder *record.Builder
	store   *store.Store
	logger  *slog.Logger
	workers int
	pruner  Pruner
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithWorkers bounds the number of concurrent directory walkers.
func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.workers = n
		}
	}
}

// WithPruner prunes a decoded-value cache after every full run.
func WithPruner(p Pruner) Option {
	return func(ix *Indexer) { ix.pruner = p }
}

// New returns an Indexer that fills st from fs.
func New(fs storage.Provider, builder *record.Builder, st *store.Store, logger *slog.Logger, opts ...Option) *Indexer {
	ix := &Indexer{
		fs:      fs,
		builder: builder,
		store:   st,
		logger:  logger,
		workers: runtime.GOMAXPROCS(0) * 2,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}
