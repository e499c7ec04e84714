package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/djherbis/times"
	ignore "github.com/sabhiram/go-gitignore"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/paths"
)

// IgnoreFile holds gitignore-style patterns at the content root.
const IgnoreFile = ".ansuzignore"

// dependencyDirs are never indexed.
var dependencyDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
}

// FS implements Provider backed by the local file system.
type FS struct {
	root   string // absolute path to the content directory
	ignore *ignore.GitIgnore
}

// NewFS creates a new FS provider rooted at the given directory. A missing
// root is allowed (the tree is empty until it appears); a root that exists
// but is not a directory is an error. patterns are gitignore-style rules
// added to those read from IgnoreFile.
func NewFS(root string, patterns ...string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if err == nil && !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}

	lines, err := readIgnoreFile(filepath.Join(abs, IgnoreFile))
	if err != nil {
		return nil, err
	}
	lines = append(lines, patterns...)

	return &FS{root: abs, ignore: ignore.CompileIgnoreLines(lines...)}, nil
}

func readIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", IgnoreFile, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", IgnoreFile, err)
	}
	return lines, nil
}

// Root returns the absolute content root.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the content root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes content root: %s", rel)
	}
	return abs, nil
}

// Rel converts an absolute path under the root into a root-relative one.
func (f *FS) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil {
		return "", fmt.Errorf("storage: rel: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path outside content root: %s", abs)
	}
	if rel == "." {
		rel = ""
	}
	return rel, nil
}

// Skip reports whether the entry at rel is excluded: hidden names, dependency
// directories anywhere in the path, and ignore-file matches.
func (f *FS) Skip(rel string, isDir bool) bool {
	if rel == "" {
		return false
	}
	slashed := filepath.ToSlash(rel)
	for _, seg := range strings.Split(slashed, "/") {
		if paths.IsHidden(seg) || dependencyDirs[seg] {
			return true
		}
	}
	if isDir {
		slashed += "/"
	}
	return f.ignore.MatchesPath(slashed)
}

// ReadDir lists the non-ignored entries of dir (relative to root).
func (f *FS) ReadDir(dir string) ([]fs.DirEntry, error) {
	abs, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read dir %s: %w", dir, err)
	}
	out := entries[:0]
	for _, e := range entries {
		if !f.Skip(filepath.Join(dir, e.Name()), e.IsDir()) {
			out = append(out, e)
		}
	}
	return out, nil
}

// ReadFile returns the content and metadata of a file.
func (f *FS) ReadFile(path string) (*File, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("storage: %s is a directory", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}

	created := info.ModTime()
	if ts := times.Get(info); ts.HasBirthTime() {
		created = ts.BirthTime()
	}

	return &File{
		Path:      abs,
		Rel:       filepath.Clean(path),
		Extension: filepath.Ext(abs),
		Data:      data,
		Meta: models.FileMeta{
			Path:      filepath.ToSlash(filepath.Clean(path)),
			Checksum:  checksum.Sum(data),
			Size:      info.Size(),
			CreatedAt: created,
			UpdatedAt: info.ModTime(),
		},
	}, nil
}

// Exists reports whether the content root currently exists.
func (f *FS) Exists() bool {
	info, err := os.Stat(f.root)
	return err == nil && info.IsDir()
}

var _ Provider = (*FS)(nil)
