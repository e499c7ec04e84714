// Package storage provides read access to the content directory tree.
package storage

import (
	"io/fs"

	"github.com/starford/ansuz/internal/models"
)

// File is one source file read from the content tree.
type File struct {
	// Path is the absolute filesystem path.
	Path string
	// Rel is the path relative to the content root, using OS separators.
	Rel       string
	Extension string
	Data      []byte
	Meta      models.FileMeta
}

// Provider is the interface for content tree access. All paths are relative
// to the content root.
type Provider interface {
	// Root returns the absolute content root.
	Root() string
	// ReadDir lists the non-ignored entries of dir.
	ReadDir(dir string) ([]fs.DirEntry, error)
	// ReadFile reads a file together with its metadata.
	ReadFile(path string) (*File, error)
	// Skip reports whether an entry is excluded from indexing.
	Skip(path string, isDir bool) bool
}
