// Package testutil provides shared test helpers for building content trees
// and pipelines.
package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/paths"
	"github.com/starford/ansuz/internal/record"
	"github.com/starford/ansuz/internal/storage"
)

// Logger returns a JSON logger that only reports errors, keeping test output quiet.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// Tree creates a temporary content directory holding files (relative path
// with forward slashes -> content) and returns its path.
func Tree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content to rel under root, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Pipeline returns a storage provider and record builder for root using the
// built-in parsers.
func Pipeline(t *testing.T, root string, opts ...record.Option) (*storage.FS, *record.Builder) {
	t.Helper()
	src, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	reg := parser.NewRegistry(parser.Options{Markdown: parser.DefaultMarkdownOptions()})
	b := record.NewBuilder(reg, paths.NewNormalizer(src.Root(), reg), Logger(), opts...)
	return src, b
}
