// Package record turns decoded source files into Records.
package record

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/paths"
	"github.com/starford/ansuz/internal/storage"
)

// Hooks are caller callbacks run while building records.
type Hooks struct {
	// BeforeParse may rewrite f.Data before it is decoded.
	BeforeParse func(f *storage.File)
	// BeforeInsert may mutate a record before it is handed to the store.
	BeforeInsert func(r models.Record)
}

// Cache stores decoded values keyed by source path and a checksum of the
// content and the registry fingerprint.
type Cache interface {
	Get(path, checksum string) (any, bool)
	Put(path, checksum string, value any)
}

// Builder builds records from source files.
type Builder struct {
	registry *parser.Registry
	norm     *paths.Normalizer
	hooks    Hooks
	cache    Cache
	logger   *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithHooks installs build hooks.
func WithHooks(h Hooks) Option {
	return func(b *Builder) { b.hooks = h }
}

// WithCache installs a decoded-value cache.
func WithCache(c Cache) Option {
	return func(b *Builder) { b.cache = c }
}

// NewBuilder returns a Builder that decodes with registry and addresses
// records through norm.
func NewBuilder(registry *parser.Registry, norm *paths.Normalizer, logger *slog.Logger, opts ...Option) *Builder {
	b := &Builder{registry: registry, norm: norm, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Normalizer returns the path normalizer used by the builder.
func (b *Builder) Normalizer() *paths.Normalizer { return b.norm }

// Supports reports whether files with ext produce records.
func (b *Builder) Supports(ext string) bool { return b.registry.Supports(ext) }

// Build returns the records for one source file. Unsupported extensions,
// decode failures and empty values all yield no records; decode failures are
// logged.
func (b *Builder) Build(f *storage.File) []models.Record {
	if !b.registry.Supports(f.Extension) {
		return nil
	}

	if b.hooks.BeforeParse != nil {
		b.hooks.BeforeParse(f)
	}

	value, err := b.decode(f)
	if err != nil {
		var pe *apperr.ParseError
		if errors.As(err, &pe) {
			b.logger.Warn("build: could not parse",
				slog.String("path", f.Meta.Path),
				slog.String("extension", pe.Extension),
				slog.String("error", pe.Err.Error()))
		} else {
			b.logger.Warn("build: could not parse", slog.String("path", f.Meta.Path), slog.String("error", err.Error()))
		}
		return nil
	}
	if isEmpty(value) {
		return nil
	}

	logical := b.norm.Normalize(f.Path)

	items, isArray := value.([]any)
	if !isArray {
		return []models.Record{b.finish(f, logical, asFields(value))}
	}

	records := make([]models.Record, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for i, item := range items {
		fields := asFields(item)
		suffix := strconv.Itoa(i + 1)
		if s, ok := fields[models.FieldSlug].(string); ok && s != "" {
			suffix = s
		}
		p := paths.Join(logical, suffix)
		if _, dup := seen[p]; dup {
			b.logger.Warn("build: duplicate record path, keeping first",
				slog.String("path", f.Meta.Path),
				slog.String("record", p),
				slog.Int("index", i+1))
			continue
		}
		seen[p] = struct{}{}
		records = append(records, b.finish(f, p, fields))
	}
	return records
}

func (b *Builder) decode(f *storage.File) (any, error) {
	var sum string
	if b.cache != nil {
		sum = checksum.Sum(append([]byte(b.registry.Fingerprint()), f.Data...))
		if v, ok := b.cache.Get(f.Meta.Path, sum); ok {
			return v, nil
		}
	}

	v, err := b.registry.Parse(f.Extension, f.Data, parser.Context{Path: f.Path})
	if err != nil {
		return nil, err
	}
	v = models.Normalize(v)

	if b.cache != nil {
		b.cache.Put(f.Meta.Path, sum, v)
	}
	return v, nil
}

// finish assembles the record at logical path p from parsed fields.
func (b *Builder) finish(f *storage.File, p string, fields map[string]any) models.Record {
	dir, slug := paths.Split(p)

	rec := make(models.Record, len(fields)+6)
	for k, v := range fields {
		rec[k] = v
	}
	rec[models.FieldSlug] = slug
	rec[models.FieldDir] = dir
	rec[models.FieldPath] = p
	rec[models.FieldExtension] = f.Extension
	rec[models.FieldSource] = f.Meta.Path
	rec[models.FieldCreatedAt] = timestamp(fields[models.FieldCreatedAt], f.Meta.CreatedAt)
	rec[models.FieldUpdatedAt] = timestamp(fields[models.FieldUpdatedAt], f.Meta.UpdatedAt)
	delete(rec, models.FieldID)

	if b.hooks.BeforeInsert != nil {
		b.hooks.BeforeInsert(rec)
	}
	return rec
}

func asFields(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": v}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
}

// timestamp returns the parsed value of raw when it is a valid date, else
// fallback.
func timestamp(raw any, fallback time.Time) time.Time {
	if t, ok := ParseDate(raw); ok {
		return t
	}
	return fallback
}

// ParseDate interprets raw as a date: a time.Time, a string in a common
// layout, or a number of milliseconds since the Unix epoch.
func ParseDate(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v, !v.IsZero()
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}
