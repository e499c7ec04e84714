// Package paths maps filesystem paths onto canonical logical paths.
//
// A logical path is slash separated, starts with a single "/", never ends
// with "/" (except the root itself) and carries no content extension:
//
//	<root>/posts/hello.md  ->  /posts/hello
//	<root>\data\list.json  ->  /data/list
package paths

import (
	"path"
	"path/filepath"
	"strings"
)

// Root is the logical path of the indexed root directory.
const Root = "/"

// ExtensionSet reports whether an extension is a recognised content extension.
type ExtensionSet interface {
	Supports(ext string) bool
}

// Normalizer converts absolute filesystem paths under a root directory into
// logical paths. It performs no I/O.
type Normalizer struct {
	root string
	exts ExtensionSet
}

// NewNormalizer returns a Normalizer for root. exts decides which extensions
// are stripped from the final segment.
func NewNormalizer(root string, exts ExtensionSet) *Normalizer {
	return &Normalizer{root: filepath.Clean(root), exts: exts}
}

// Root returns the cleaned filesystem root.
func (n *Normalizer) Root() string { return n.root }

// Normalize returns the logical path for the filesystem path p.
func (n *Normalizer) Normalize(p string) string {
	rel := p
	cleaned := filepath.Clean(p)
	switch {
	case cleaned == n.root:
		rel = ""
	case n.root == string(filepath.Separator):
		rel = cleaned
	case strings.HasPrefix(cleaned, n.root+string(filepath.Separator)):
		rel = cleaned[len(n.root):]
	}
	rel = strings.ReplaceAll(rel, `\`, "/")
	if strings.Trim(rel, "/") == "" {
		return Root
	}

	base := path.Base(rel)
	ext := path.Ext(base)
	if ext != "" && (n.supports(ext) || strings.HasPrefix(base, ".")) {
		rel = rel[:len(rel)-len(ext)]
	}
	return Clean(rel)
}

func (n *Normalizer) supports(ext string) bool {
	return n.exts != nil && n.exts.Supports(ext)
}

// Clean canonicalises a logical path: forward slashes only, one leading
// slash, no duplicate or trailing slashes.
func Clean(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	var b strings.Builder
	b.Grow(len(p) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteByte(c)
	}
	out := b.String()
	if len(out) > 1 && strings.HasSuffix(out, "/") {
		out = out[:len(out)-1]
	}
	return out
}

// Join builds a logical path from segments. Empty segments are ignored.
func Join(segments ...string) string {
	return Clean(strings.Join(segments, "/"))
}

// Split returns the parent directory and the last segment of a logical path.
func Split(logical string) (dir, slug string) {
	logical = Clean(logical)
	if logical == Root {
		return Root, ""
	}
	i := strings.LastIndexByte(logical, '/')
	dir, slug = logical[:i], logical[i+1:]
	if dir == "" {
		dir = Root
	}
	return dir, slug
}

// Ancestors returns every proper ancestor of a logical path, nearest first,
// ending with the root.
func Ancestors(logical string) []string {
	var out []string
	for p := Clean(logical); p != Root; {
		p, _ = Split(p)
		out = append(out, p)
	}
	return out
}

// Under reports whether p equals dir or lies beneath it.
func Under(p, dir string) bool {
	if dir == Root {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}

// IsHidden reports whether a file or directory name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
