package record

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/paths"
	"github.com/starford/ansuz/internal/storage"
)

const root = "/content"

var (
	created = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	updated = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
)

func newBuilder(opts ...Option) *Builder {
	reg := parser.NewRegistry(parser.Options{Markdown: parser.DefaultMarkdownOptions()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBuilder(reg, paths.NewNormalizer(root, reg), logger, opts...)
}

func file(rel, data string) *storage.File {
	return &storage.File{
		Path:      filepath.Join(root, rel),
		Rel:       rel,
		Extension: filepath.Ext(rel),
		Data:      []byte(data),
		Meta:      models.FileMeta{Path: rel, CreatedAt: created, UpdatedAt: updated},
	}
}

func assertAddressable(t *testing.T, r models.Record) {
	t.Helper()
	if r.Dir() == paths.Root {
		assert.Equal(t, "/"+r.Slug(), r.Path())
	} else {
		assert.Equal(t, r.Dir()+"/"+r.Slug(), r.Path())
	}
}

func TestBuild_EveryFormatYieldsAddressableRecord(t *testing.T) {
	b := newBuilder()
	files := map[string]string{
		"posts/a.md":   "---\ntitle: A\n---\nhello\n",
		"data/b.json":  `{"title": "B"}`,
		"data/c.json5": "{\"title\": \"C\", // note\n}",
		"data/d.yaml":  "title: D\n",
		"data/e.yml":   "title: E\n",
		"data/f.csv":   "a,b\n1,2\n",
		"data/g.xml":   "<root><x>1</x></root>",
		"top.json":     `{"k": 1}`,
	}
	for rel, data := range files {
		t.Run(rel, func(t *testing.T) {
			records := b.Build(file(rel, data))
			require.NotEmpty(t, records)
			for _, r := range records {
				assertAddressable(t, r)
				assert.Equal(t, filepath.Ext(rel), r.Extension())
			}
		})
	}
}

func TestBuild_SingleRecordFields(t *testing.T) {
	records := newBuilder().Build(file("posts/a.md", "---\ntitle: A\nslug: custom\npath: /evil\n---\nhello\n"))
	require.Len(t, records, 1)
	r := records[0]

	assert.Equal(t, "/posts/a", r.Path())
	assert.Equal(t, "/posts", r.Dir())
	assert.Equal(t, "a", r.Slug(), "reserved slug is always computed")
	assert.Equal(t, "A", r["title"])
	assert.Equal(t, ".md", r.Extension())
	assert.Equal(t, created, r[models.FieldCreatedAt])
	assert.Equal(t, updated, r[models.FieldUpdatedAt])
}

func TestBuild_ArrayUsesSlugOrPosition(t *testing.T) {
	records := newBuilder().Build(file("list.json", `[{"slug":"x"}, {}]`))
	require.Len(t, records, 2)
	assert.Equal(t, "/list/x", records[0].Path())
	assert.Equal(t, "/list", records[0].Dir())
	assert.Equal(t, "x", records[0].Slug())
	assert.Equal(t, "/list/2", records[1].Path())
	assert.Equal(t, "2", records[1].Slug())
}

func TestBuild_DuplicateArraySlugKeepsFirst(t *testing.T) {
	records := newBuilder().Build(file("dup.json", `[{"slug":"a","n":1},{"slug":"a","n":2},{"n":3}]`))
	require.Len(t, records, 2)
	assert.Equal(t, float64(1), records[0]["n"])
	assert.Equal(t, "/dup/3", records[1].Path())
}

func TestBuild_ScalarArrayElementsAreWrapped(t *testing.T) {
	records := newBuilder().Build(file("nums.yaml", "- 1\n- 2\n"))
	require.Len(t, records, 2)
	assert.Equal(t, float64(2), records[1]["value"])
}

func TestBuild_TimestampsFromFields(t *testing.T) {
	records := newBuilder().Build(file("p.yaml", "createdAt: 2020-01-02\nupdatedAt: not a date\n"))
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), records[0][models.FieldCreatedAt])
	assert.Equal(t, updated, records[0][models.FieldUpdatedAt])
}

func TestBuild_SkipsUnsupportedEmptyAndBroken(t *testing.T) {
	b := newBuilder()
	assert.Empty(t, b.Build(file("notes.txt", "hello")))
	assert.Empty(t, b.Build(file("empty.yaml", "")))
	assert.Empty(t, b.Build(file("null.json", "null")))
	assert.Empty(t, b.Build(file("blank.json", `""`)))
	assert.Empty(t, b.Build(file("broken.json", "{")))
	assert.Empty(t, b.Build(file("none.json", "[]")))
}

func TestBuild_Hooks(t *testing.T) {
	b := newBuilder(WithHooks(Hooks{
		BeforeParse: func(f *storage.File) {
			f.Data = []byte(strings.ReplaceAll(string(f.Data), "draft", "final"))
		},
		BeforeInsert: func(r models.Record) {
			r["seen"] = true
		},
	}))
	records := b.Build(file("a.yaml", "state: draft\n"))
	require.Len(t, records, 1)
	assert.Equal(t, "final", records[0]["state"])
	assert.Equal(t, true, records[0]["seen"])
}

type mapCache struct {
	values map[string]any
	gets   int
	puts   int
}

func (c *mapCache) Get(path, sum string) (any, bool) {
	c.gets++
	v, ok := c.values[path+"@"+sum]
	return v, ok
}

func (c *mapCache) Put(path, sum string, v any) {
	c.puts++
	c.values[path+"@"+sum] = v
}

func TestBuild_CacheHitSkipsDecoder(t *testing.T) {
	c := &mapCache{values: map[string]any{}}
	b := newBuilder(WithCache(c))

	first := b.Build(file("a.json", `{"n": 1}`))
	require.Len(t, first, 1)
	assert.Equal(t, 1, c.puts)

	for k := range c.values {
		c.values[k] = map[string]any{"n": float64(42)}
	}
	second := b.Build(file("a.json", `{"n": 1}`))
	require.Len(t, second, 1)
	assert.Equal(t, float64(42), second[0]["n"], "value should come from the cache")
	assert.Equal(t, 1, c.puts)
}

func TestBuild_CacheKeyFollowsParserSetup(t *testing.T) {
	c := &mapCache{values: map[string]any{}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	build := func(opts parser.Options) []models.Record {
		reg := parser.NewRegistry(opts)
		return NewBuilder(reg, paths.NewNormalizer(root, reg), logger, WithCache(c)).Build(file("a.md", "Hello -- world"))
	}

	plain := build(parser.Options{})
	require.Len(t, plain, 1)
	assert.Equal(t, 1, c.puts)

	fancy := build(parser.Options{Markdown: parser.MarkdownOptions{Typographer: true}})
	require.Len(t, fancy, 1)
	assert.Equal(t, 2, c.puts, "changed options must miss the cache")
	assert.NotEqual(t, plain[0]["body"], fancy[0]["body"])

	build(parser.Options{})
	assert.Equal(t, 2, c.puts, "same options hit the cache")
}

func TestParseDate(t *testing.T) {
	cases := []struct {
		in any
		ok bool
	}{
		{"2024-03-04T05:06:07Z", true},
		{"2024-03-04", true},
		{"2024-03-04 05:06:07", true},
		{float64(0), true},
		{time.Time{}, false},
		{"yesterday", false},
		{true, false},
	}
	for _, c := range cases {
		_, ok := ParseDate(c.in)
		assert.Equal(t, c.ok, ok, "ParseDate(%v)", c.in)
	}
}
