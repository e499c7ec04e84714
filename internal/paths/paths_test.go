package paths

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type extSet map[string]bool

func (s extSet) Supports(ext string) bool { return s[ext] }

var contentExts = extSet{".md": true, ".json": true, ".yaml": true}

func TestNormalize(t *testing.T) {
	n := NewNormalizer("/srv/content", contentExts)

	cases := []struct {
		in, want string
	}{
		{"/srv/content", "/"},
		{"/srv/content/", "/"},
		{"/srv/content/.", "/"},
		{"/srv/content//", "/"},
		{"/srv/content/posts/hello.md", "/posts/hello"},
		{"/srv/content/list.json", "/list"},
		{"/srv/content/posts", "/posts"},
		{"/srv/content/notes.txt", "/notes.txt"},
		{"/srv/content/a//b.yaml", "/a/b"},
		{"/srv/content/posts/.draft", "/posts"},
		{`/srv/content/win\path\file.md`, "/win/path/file"},
	}
	for _, c := range cases {
		if got := n.Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestClean(t *testing.T) {
	cases := map[string]string{
		"":          "/",
		"/":         "/",
		"//a///b//": "/a/b",
		"a/b":       "/a/b",
		`\a\b`:      "/a/b",
		"/posts/a/": "/posts/a",
	}
	for in, want := range cases {
		if got := Clean(in); got != want {
			t.Errorf("Clean(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJoin(t *testing.T) {
	if got := Join("posts", "", "a"); got != "/posts/a" {
		t.Errorf("Join = %q", got)
	}
	if got := Join(); got != "/" {
		t.Errorf("Join() = %q", got)
	}
}

func TestSplit(t *testing.T) {
	cases := []struct{ in, dir, slug string }{
		{"/posts/a", "/posts", "a"},
		{"/a", "/", "a"},
		{"/", "/", ""},
		{"/list/x/y", "/list/x", "y"},
	}
	for _, c := range cases {
		dir, slug := Split(c.in)
		if dir != c.dir || slug != c.slug {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", c.in, dir, slug, c.dir, c.slug)
		}
	}
}

func TestAncestors(t *testing.T) {
	want := []string{"/a/b", "/a", "/"}
	if diff := cmp.Diff(want, Ancestors("/a/b/c")); diff != "" {
		t.Errorf("Ancestors (-want +got):\n%s", diff)
	}
	if got := Ancestors("/"); len(got) != 0 {
		t.Errorf("Ancestors(/) = %v", got)
	}
}

func TestUnder(t *testing.T) {
	if !Under("/posts/a", "/posts") || !Under("/posts", "/posts") || !Under("/x", "/") {
		t.Error("expected Under to hold")
	}
	if Under("/postsx/a", "/posts") {
		t.Error("sibling prefix must not count as under")
	}
}

func TestIsHidden(t *testing.T) {
	if !IsHidden(".git") || IsHidden("posts") || IsHidden(".") {
		t.Error("IsHidden mismatch")
	}
}
