package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/content"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/testutil"
)

var site = map[string]string{
	"posts/a.md":    "---\ntitle: Alpha\norder: 2\n---\nhello",
	"posts/b.md":    "---\ntitle: Beta\norder: 1\n---\nworld",
	"posts/c.md":    "---\ntitle: Gamma\norder: 3\ndraft: true\n---\n",
	"authors.json":  `[{"slug":"ann","name":"Ann"},{"slug":"bob","name":"Bob"}]`,
	"settings.yaml": "theme: dark\n",
}

// testEnv indexes a temp content tree and returns the service and router.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*content.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*content.Service, http.Handler) {
	t.Helper()

	opts := content.Options{Dir: testutil.Tree(t, site)}
	opts.Parser.Markdown = parser.DefaultMarkdownOptions()
	svc, err := content.New(opts, testutil.Logger(), content.Hooks{})
	if err != nil {
		t.Fatalf("content.New: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	router := NewRouter(svc, authEnabled, token, sseHandler)
	return svc, router
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestGetRecord(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/records/posts/a", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[RecordResponse](t, w)
	if resp.Record["title"] != "Alpha" {
		t.Errorf("title = %v, want Alpha", resp.Record["title"])
	}
	if resp.Record.Path() != "/posts/a" {
		t.Errorf("path = %q", resp.Record.Path())
	}
}

func TestGetRecord_EncodedPath(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/records/authors%2Fbob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if name := decode[RecordResponse](t, w).Record["name"]; name != "Bob" {
		t.Errorf("name = %v, want Bob", name)
	}
}

func TestGetRecords_Directory(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/records/posts", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode[RecordsResponse](t, w)
	if resp.Total != 3 || len(resp.Records) != 3 {
		t.Errorf("total = %d, records = %d, want 3", resp.Total, len(resp.Records))
	}

	w = do(t, router, http.MethodGet, "/records", nil)
	if got := decode[RecordsResponse](t, w).Total; got != 1 {
		t.Errorf("root records = %d, want 1 (settings)", got)
	}
}

func TestGetRecord_NotFound(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/records/posts/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if msg := decode[errResponse](t, w).Error; msg != "/posts/missing not found" {
		t.Errorf("error = %q", msg)
	}
}

func TestDirs(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/dirs", nil)
	got := decode[DirsResponse](t, w).Dirs
	want := []string{"/", "/authors", "/posts"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("dirs = %v, want %v", got, want)
	}
}

func TestSnapshotETag(t *testing.T) {
	svc, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/db", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var records []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 6 {
		t.Errorf("records = %d, want 6", len(records))
	}
	for _, r := range records {
		for _, key := range []string{"_id", "_source"} {
			if _, ok := r[key]; ok {
				t.Errorf("snapshot leaks internal field %s: %v", key, r)
			}
		}
	}

	hash, err := svc.Hash()
	if err != nil {
		t.Fatal(err)
	}
	etag := w.Header().Get("ETag")
	if etag != `"`+hash+`"` {
		t.Errorf("etag = %q, want %q", etag, hash)
	}

	req := httptest.NewRequest(http.MethodGet, "/db", nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", w.Code)
	}
}

func TestQuery_FilterSortPaginate(t *testing.T) {
	_, router := testEnv(t, "")

	body := map[string]any{
		"path":  "/posts",
		"where": map[string]any{"draft": map[string]any{"$exists": false}},
		"sort":  []map[string]string{{"key": "order", "dir": "asc"}},
		"only":  []string{"title"},
	}
	w := do(t, router, http.MethodPost, "/query", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[RecordsResponse](t, w)
	if len(resp.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(resp.Records))
	}
	if resp.Records[0]["title"] != "Beta" || resp.Records[1]["title"] != "Alpha" {
		t.Errorf("order = %v", resp.Records)
	}
	if len(resp.Records[0]) != 1 {
		t.Errorf("projection kept %v", resp.Records[0])
	}

	body = map[string]any{"where": map[string]any{"order": map[string]any{"$gte": 1}}, "sort": []map[string]string{{"key": "title", "dir": "desc"}}, "skip": 1, "limit": 1}
	w = do(t, router, http.MethodPost, "/query", body)
	resp = decode[RecordsResponse](t, w)
	if len(resp.Records) != 1 || resp.Records[0]["title"] != "Beta" {
		t.Errorf("page = %v", resp.Records)
	}
}

func TestQuery_ModeOne(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/query", map[string]any{"where": map[string]any{"name": "Ann"}, "mode": "one"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if slug := decode[RecordResponse](t, w).Record.Slug(); slug != "ann" {
		t.Errorf("slug = %q", slug)
	}

	w = do(t, router, http.MethodPost, "/query", map[string]any{"path": "/posts/zzz", "mode": "one"})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestQuery_Search(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodPost, "/query", map[string]any{"search": map[string]any{"term": "gam"}, "mode": "many"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	resp := decode[RecordsResponse](t, w)
	if len(resp.Records) == 0 || resp.Records[0]["title"] != "Gamma" {
		t.Errorf("search results = %v", resp.Records)
	}
	if _, ok := resp.Records[0]["_score"]; !ok {
		t.Error("missing _score")
	}
}

func TestQuery_BadRequests(t *testing.T) {
	_, router := testEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/query", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid json = %d, want 400", w.Code)
	}

	for _, body := range []map[string]any{
		{"where": map[string]any{"a": map[string]any{"$bogus": 1}}},
		{"mode": "all"},
		{"limit": -1},
		{"sort": []map[string]string{{"key": ""}}},
		{"sort": []map[string]string{{"key": "a", "dir": "up"}}},
		{"search": map[string]any{"term": ""}},
		{"filter": map[string]any{"title": "Alpha"}},
	} {
		w := do(t, router, http.MethodPost, "/query", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v = %d, want 400 (%s)", body, w.Code, w.Body.String())
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/dirs", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authed = %d, want 200", w.Code)
	}
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	w := do(t, router, http.MethodGet, "/db", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthed = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.HasPrefix(got, "Bearer") {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

func TestAuthMiddleware_WrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")

	req := httptest.NewRequest(http.MethodGet, "/dirs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")

	w := do(t, router, http.MethodGet, "/dirs", nil)
	if w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// blockingSSE writes headers and blocks until the request context is done.
var blockingSSE = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	<-r.Context().Done()
})

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE)

	w := do(t, router, http.MethodGet, "/events", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Error("SSE with valid token should not 401")
	}
}
