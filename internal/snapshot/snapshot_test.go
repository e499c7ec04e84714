package snapshot

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ansuz/internal/models"
)

func sample() []models.Record {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []models.Record{
		{"path": "/posts/a", "dir": "/posts", "slug": "a", "title": "A", "createdAt": ts, "updatedAt": ts, "_id": "1", "_source": "posts/a.md"},
		{"path": "/posts/b", "dir": "/posts", "slug": "b", "title": "B", "tags": []any{"x"}, "createdAt": ts, "updatedAt": ts, "_id": "2", "_source": "posts/b.md"},
		{"path": "/about", "dir": "/", "slug": "about", "n": 3.0, "createdAt": ts, "updatedAt": ts, "_id": "3", "_source": "about.md"},
		{"path": "/list/1", "dir": "/list", "slug": "1", "nested": map[string]any{"k": "v"}, "_id": "4", "_source": "list.yaml"},
	}
}

func TestHash_PermutationInvariant(t *testing.T) {
	want, err := Hash(sample())
	require.NoError(t, err)
	assert.Len(t, want, 8)

	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		recs := sample()
		r.Shuffle(len(recs), func(i, j int) { recs[i], recs[j] = recs[j], recs[i] })
		got, err := Hash(recs)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestHash_IgnoresVolatileFields(t *testing.T) {
	want, err := Hash(sample())
	require.NoError(t, err)

	recs := sample()
	for _, r := range recs {
		r["_id"] = "other"
		r["_source"] = "moved/" + r.Path()
		r["createdAt"] = time.Now()
		r["updatedAt"] = time.Now()
	}
	got, err := Hash(recs)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHash_DetectsChanges(t *testing.T) {
	base, err := Hash(sample())
	require.NoError(t, err)

	mutations := map[string]func([]models.Record){
		"field value":  func(r []models.Record) { r[0]["title"] = "A2" },
		"nested value": func(r []models.Record) { r[3]["nested"] = map[string]any{"k": "w"} },
		"new field":    func(r []models.Record) { r[2]["extra"] = true },
		"array":        func(r []models.Record) { r[1]["tags"] = []any{"x", "y"} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			recs := sample()
			mutate(recs)
			got, err := Hash(recs)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}

	got, err := Hash(sample()[:3])
	require.NoError(t, err)
	assert.NotEqual(t, base, got, "removed record")
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "db-abcd1234.json", FileName("abcd1234"))
}

func TestSaveLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := Save(dir, DevName, sample())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DevName), path)

	got, err := Load(path)
	require.NoError(t, err)

	want := sample()
	for _, r := range want {
		delete(r, "_id")
		delete(r, "_source")
	}
	slices.SortFunc(want, func(a, b models.Record) int { return cmpPath(a, b) })
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("loaded snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestNonFiniteNumbers(t *testing.T) {
	recs := sample()
	recs[0]["score"] = math.Inf(1)
	recs[1]["ratio"] = math.NaN()
	recs[3]["nested"] = map[string]any{"k": math.Inf(-1)}

	h1, err := Hash(recs)
	require.NoError(t, err)
	h2, err := Hash(recs)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	path, err := Save(t.TempDir(), DevName, recs)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"score":null`)
	assert.Contains(t, string(data), `"ratio":null`)
	assert.Contains(t, string(data), `"nested":{"k":null}`)
	assert.NotContains(t, string(data), `"_source"`)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func cmpPath(a, b models.Record) int {
	switch {
	case a.Path() < b.Path():
		return -1
	case a.Path() > b.Path():
		return 1
	}
	return 0
}
