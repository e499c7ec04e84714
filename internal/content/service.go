// Package content ties the indexing pipeline, the record store and the query
// engine together behind a single Service.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/paths"
	"github.com/starford/ansuz/internal/query"
	"github.com/starford/ansuz/internal/record"
	"github.com/starford/ansuz/internal/snapshot"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/updater"
)

// Hooks are the extension points exposed to embedding code.
type Hooks struct {
	// BeforeParse may rewrite a file's data before it is decoded.
	BeforeParse func(f *storage.File)
	// BeforeInsert may mutate a record before it enters the store.
	BeforeInsert func(r models.Record)
	// Updated is called after every reconciliation of a file event.
	Updated func(ev models.FileEvent)
}

// Options configure a Service.
type Options struct {
	Dir        string
	Ignore     []string
	Workers    int
	Parsers    map[string]parser.Parser // extra or overriding parsers by extension
	Aliases    map[string]string        // extension -> built-in extension whose parser it reuses
	Parser     parser.Options
	CachePath  string // SQLite parse cache; empty disables it
	SearchKeys []string

	SnapshotDir string
	Dev         bool // use the fixed dev snapshot name
	AutoSave    bool // re-save the snapshot after every change
}

// Service is the content database.
type Service struct {
	opts   Options
	logger *slog.Logger
	hooks  Hooks

	fs       *storage.FS
	registry *parser.Registry
	builder  *record.Builder
	store    *store.Store
	indexer  *index.Indexer
	updater  *updater.Updater
	cache    *cache.DB

	ready atomic.Bool

	mu        sync.Mutex
	listeners []func(updater.Change)
	saveMu    sync.Mutex
}

// New assembles a Service. Nothing is indexed until Init is called.
func New(opts Options, logger *slog.Logger, hooks Hooks) (*Service, error) {
	src, err := storage.NewFS(opts.Dir, opts.Ignore...)
	if err != nil {
		return nil, fmt.Errorf("content: storage: %w", err)
	}

	registry := parser.NewRegistry(opts.Parser)
	for ext, p := range opts.Parsers {
		registry.Register(ext, p)
	}
	for ext, target := range opts.Aliases {
		if err := registry.Alias(ext, target); err != nil {
			return nil, fmt.Errorf("content: %w", err)
		}
	}

	s := &Service{
		opts:     opts,
		logger:   logger,
		hooks:    hooks,
		fs:       src,
		registry: registry,
		store:    store.New(),
	}

	builderOpts := []record.Option{record.WithHooks(record.Hooks{
		BeforeParse:  hooks.BeforeParse,
		BeforeInsert: hooks.BeforeInsert,
	})}
	indexOpts := []index.Option{index.WithWorkers(opts.Workers)}
	if opts.CachePath != "" {
		db, err := cache.Open(opts.CachePath, logger)
		if err != nil {
			return nil, fmt.Errorf("content: %w", err)
		}
		s.cache = db
		builderOpts = append(builderOpts, record.WithCache(db))
		indexOpts = append(indexOpts, index.WithPruner(db))
	}

	s.builder = record.NewBuilder(registry, paths.NewNormalizer(src.Root(), registry), logger, builderOpts...)
	s.indexer = index.New(src, s.builder, s.store, logger, indexOpts...)
	s.updater = updater.New(src, s.builder, s.store, logger, updater.WithNotify(s.changed))
	return s, nil
}

// Init indexes the whole content tree. Queries issued before Init returns
// see an empty collection.
func (s *Service) Init(ctx context.Context) error {
	if _, err := s.indexer.Run(ctx); err != nil {
		return fmt.Errorf("content: init: %w", err)
	}
	s.ready.Store(true)
	return nil
}

// LoadSnapshot replaces the collection with the records of a saved snapshot.
func (s *Service) LoadSnapshot(path string) error {
	records, err := snapshot.Load(path)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	s.store.Replace(records)
	s.ready.Store(true)
	s.logger.Info("content: snapshot loaded", slog.String("path", path), slog.Int("records", len(records)))
	return nil
}

// Ready reports whether the collection has been populated.
func (s *Service) Ready() bool { return s.ready.Load() }

// OnChange registers fn to run after every reconciled file event. It must be
// called before Watch.
func (s *Service) OnChange(fn func(updater.Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Watch keeps the collection in sync with the content tree until ctx is
// cancelled.
func (s *Service) Watch(ctx context.Context) error {
	events := make(chan models.FileEvent, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return index.Watch(gctx, s.fs, s.logger, events) })
	g.Go(func() error { return s.updater.Run(gctx, events) })
	if err := g.Wait(); err != nil {
		return fmt.Errorf("content: watch: %w", err)
	}
	return nil
}

// Apply reconciles a single file event synchronously.
func (s *Service) Apply(ctx context.Context, ev models.FileEvent) updater.Change {
	return s.updater.Apply(ctx, ev)
}

func (s *Service) changed(ch updater.Change) {
	if s.hooks.Updated != nil {
		s.hooks.Updated(ch.Event)
	}
	if s.opts.AutoSave && s.opts.SnapshotDir != "" && ch.Changed() {
		if _, err := s.Save(); err != nil {
			s.logger.Warn("content: snapshot save failed", slog.String("error", err.Error()))
		}
	}

	s.mu.Lock()
	listeners := slices.Clone(s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(ch)
	}
}

// Hash returns the content hash of the collection.
func (s *Service) Hash() (string, error) {
	return snapshot.Hash(s.store.Records())
}

// SnapshotName returns the file name the snapshot is saved under.
func (s *Service) SnapshotName() (string, error) {
	if s.opts.Dev {
		return snapshot.DevName, nil
	}
	hash, err := s.Hash()
	if err != nil {
		return "", err
	}
	return snapshot.FileName(hash), nil
}

// Save writes the snapshot to the snapshot directory and returns its path.
func (s *Service) Save() (string, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	records := s.store.Records()
	name := snapshot.DevName
	if !s.opts.Dev {
		hash, err := snapshot.Hash(records)
		if err != nil {
			return "", err
		}
		name = snapshot.FileName(hash)
	}
	path, err := snapshot.Save(s.opts.SnapshotDir, name, records)
	if err != nil {
		return "", fmt.Errorf("content: %w", err)
	}
	s.logger.Debug("content: snapshot saved", slog.String("path", path), slog.Int("records", len(records)))
	return path, nil
}

// Snapshot returns the serialised collection and its content hash.
func (s *Service) Snapshot() ([]byte, string, error) {
	records := s.store.Records()
	hash, err := snapshot.Hash(records)
	if err != nil {
		return nil, "", err
	}
	data, err := snapshot.Encode(records)
	if err != nil {
		return nil, "", err
	}
	return data, hash, nil
}

// Dirs returns the directory set, sorted.
func (s *Service) Dirs() []string { return s.store.Dirs() }

// Records returns every record in store order.
func (s *Service) Records() []models.Record { return s.store.Records() }

// Query scopes a query to the path formed by segments: a directory selects
// its records, anything else the single record at that path.
func (s *Service) Query(segments ...string) *query.Query {
	return query.For(s.store, segments...)
}

// Get returns the record at path or an apperr.NotFoundError.
func (s *Service) Get(path string) (models.Record, error) {
	return query.Get(s.store, path).FetchOne(true)
}

// List returns the records directly in dir.
func (s *Service) List(dir string) ([]models.Record, error) {
	return query.List(s.store, dir).FetchMany()
}

// SearchKeys returns the configured default search keys.
func (s *Service) SearchKeys() []string {
	if len(s.opts.SearchKeys) == 0 {
		return query.DefaultSearchKeys
	}
	return s.opts.SearchKeys
}

// Extensions lists the registered content extensions.
func (s *Service) Extensions() []string { return s.registry.Extensions() }

// Close releases the parse cache.
func (s *Service) Close() error {
	if s.cache != nil {
		return s.cache.Close()
	}
	return nil
}
