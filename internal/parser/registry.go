// Package parser decodes structured text files into plain Go values.
//
// Each format is a Parser keyed by file extension in a Registry. Built-in
// parsers cover Markdown (with YAML frontmatter), YAML, JSON, JSON5, JSONC,
// CSV and XML; callers can override or extend them with Register.
package parser

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/apperr"
)

// Context carries per-file information to a parser.
type Context struct {
	Path string
}

// Parser turns raw file content into a value: a map, an array of maps, or
// any other JSON-like value.
type Parser interface {
	Parse(data []byte, ctx Context) (any, error)
}

// ParserFunc adapts an ordinary function to the Parser interface.
type ParserFunc func(data []byte, ctx Context) (any, error)

// Parse calls f(data, ctx).
func (f ParserFunc) Parse(data []byte, ctx Context) (any, error) {
	return f(data, ctx)
}

// Options configures the built-in parsers.
type Options struct {
	Markdown MarkdownOptions
	CSV      CSVOptions
	XML      XMLOptions
}

// formatVersion changes whenever a built-in parser produces different
// output for the same input.
const formatVersion = 2

// Versioned is implemented by custom parsers whose output changes between
// releases. The version is part of the registry fingerprint.
type Versioned interface {
	Version() string
}

// Registry maps file extensions to parsers. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	opts    Options
	parsers map[string]Parser
}

// NewRegistry returns a registry seeded with the built-in parsers.
func NewRegistry(opts Options) *Registry {
	yml := &YAML{}
	r := &Registry{opts: opts, parsers: map[string]Parser{
		".md":    NewMarkdown(opts.Markdown),
		".json":  &JSON{},
		".json5": &JSON5{},
		".jsonc": &JSONC{},
		".yaml":  yml,
		".yml":   yml,
		".csv":   NewCSV(opts.CSV),
		".xml":   NewXML(opts.XML),
	}}
	return r
}

// Register installs p for ext, replacing any existing parser.
func (r *Registry) Register(ext string, p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[normalizeExt(ext)] = p
}

// Alias makes ext decode with the parser registered for target.
func (r *Registry) Alias(ext, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.parsers[normalizeExt(target)]
	if !ok {
		return fmt.Errorf("parser: alias %s: %w: %s", ext, apperr.ErrUnknownExtension, target)
	}
	r.parsers[normalizeExt(ext)] = p
	return nil
}

// Fingerprint identifies the decoding setup: the built-in options and the
// parser bound to each extension. Values decoded under a different
// fingerprint may differ for the same input.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	fmt.Fprintf(&b, "v%d %+v\n", formatVersion, r.opts)
	for _, ext := range slices.Sorted(maps.Keys(r.parsers)) {
		p := r.parsers[ext]
		fmt.Fprintf(&b, "%s=%T", ext, p)
		if v, ok := p.(Versioned); ok {
			fmt.Fprintf(&b, "@%s", v.Version())
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Supports reports whether ext has a registered parser.
func (r *Registry) Supports(ext string) bool {
	if ext == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.parsers[normalizeExt(ext)]
	return ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parsers))
	for ext := range r.parsers {
		out = append(out, ext)
	}
	slices.Sort(out)
	return out
}

// Parse decodes data with the parser registered for ext. Every failure is
// reported as an *apperr.ParseError.
func (r *Registry) Parse(ext string, data []byte, ctx Context) (value any, err error) {
	r.mu.RLock()
	p, ok := r.parsers[normalizeExt(ext)]
	r.mu.RUnlock()
	if !ok {
		return nil, &apperr.ParseError{Extension: ext, Path: ctx.Path, Err: apperr.ErrUnknownExtension}
	}

	// Custom parsers are caller code; a panic there is a decode failure for
	// this file only.
	defer func() {
		if rec := recover(); rec != nil {
			value = nil
			err = &apperr.ParseError{Extension: ext, Path: ctx.Path, Err: fmt.Errorf("parser panic: %v", rec)}
		}
	}()

	value, err = p.Parse(data, ctx)
	if err != nil {
		return nil, &apperr.ParseError{Extension: ext, Path: ctx.Path, Err: err}
	}
	return value, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
