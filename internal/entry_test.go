package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/testutil"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Content.Dir = testutil.Tree(t, map[string]string{
		"posts/one.md":    "---\ntitle: One\nrank: 2\n---\nfirst",
		"posts/two.md":    "---\ntitle: Two\nrank: 1\n---\nsecond",
		"notes/a.txt":     "plain text",
		"posts/three.mdx": "---\ntitle: Three\nrank: 3\n---\nthird",
	})
	cfg.Content.Extensions = map[string]string{".mdx": ".md"}
	cfg.Snapshot.Dir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestRun_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuild_WritesSnapshot(t *testing.T) {
	cfg := testConfig(t)

	path, err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "db-") || !strings.HasSuffix(name, ".json") {
		t.Errorf("snapshot name = %q", name)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var records []map[string]any
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}

	// Same content, same name.
	again, err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	if again != path {
		t.Errorf("rebuild path = %q, want %q", again, path)
	}
}

func TestBuild_RequiresSnapshotDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.Snapshot.Dir = ""
	if _, err := Build(context.Background(), WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("expected error without snapshot dir")
	}
}

func TestQuery_WritesJSON(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	req := content.Request{
		Path: "/posts",
		Sort: []content.SortSpec{{Key: "rank", Dir: "desc"}},
		Only: []string{"title"},
	}
	if err := Query(context.Background(), req, &buf, WithConfig(cfg), WithLogOutput(io.Discard)); err != nil {
		t.Fatalf("query: %v", err)
	}

	var got []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	var titles []string
	for _, r := range got {
		titles = append(titles, r["title"].(string))
	}
	if strings.Join(titles, ",") != "Three,One,Two" {
		t.Errorf("titles = %v", titles)
	}
}

func TestQuery_CustomParser(t *testing.T) {
	cfg := testConfig(t)
	txt := parser.ParserFunc(func(data []byte, _ parser.Context) (any, error) {
		return map[string]any{"text": string(data)}, nil
	})

	var buf bytes.Buffer
	req := content.Request{Path: "/notes/a"}
	err := Query(context.Background(), req, &buf,
		WithConfig(cfg), WithParser(".txt", txt), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(buf.String(), `"text": "plain text"`) {
		t.Errorf("output = %s", buf.String())
	}
}

func TestQuery_NotFound(t *testing.T) {
	cfg := testConfig(t)
	err := Query(context.Background(), content.Request{Path: "/posts/nope", Mode: content.ModeOne}, io.Discard,
		WithConfig(cfg), WithLogOutput(io.Discard))
	if err == nil || !strings.Contains(err.Error(), "/posts/nope not found") {
		t.Fatalf("err = %v", err)
	}
}
