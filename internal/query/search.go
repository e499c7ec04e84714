package query

import (
	"cmp"
	"slices"

	"github.com/sahilm/fuzzy"

	"github.com/starford/ansuz/internal/models"
)

// Ranking metadata attached to search results.
const (
	FieldScore = "_score"
	FieldMatch = "_match"
)

// DefaultSearchKeys are searched when SearchConfig.Keys is empty.
var DefaultSearchKeys = []string{"slug", "name", "title"}

// SearchConfig tunes fuzzy search.
type SearchConfig struct {
	Keys      []string `json:"keys,omitempty"`
	Limit     int      `json:"limit,omitempty"`     // maximum results, 0 for all
	Threshold *int     `json:"threshold,omitempty"` // minimum score kept
}

// keySource exposes one key of every record to the fuzzy matcher.
type keySource struct {
	records []models.Record
	key     string
}

func (s keySource) String(i int) string {
	v, _ := lookup(s.records[i], s.key)
	str, _ := v.(string)
	return str
}

func (s keySource) Len() int { return len(s.records) }

type hit struct {
	index   int
	score   int
	key     string
	matched []int
}

// search ranks records against term over the configured keys. A record's
// score is its best score over all keys. Results are ordered by descending
// score; equal scores keep their input order.
func search(records []models.Record, term string, cfg SearchConfig) []models.Record {
	keys := cfg.Keys
	if len(keys) == 0 {
		keys = DefaultSearchKeys
	}

	best := make(map[int]hit)
	for _, key := range keys {
		for _, m := range fuzzy.FindFrom(term, keySource{records: records, key: key}) {
			if h, ok := best[m.Index]; ok && h.score >= m.Score {
				continue
			}
			best[m.Index] = hit{index: m.Index, score: m.Score, key: key, matched: m.MatchedIndexes}
		}
	}

	hits := make([]hit, 0, len(best))
	for _, h := range best {
		if cfg.Threshold != nil && h.score < *cfg.Threshold {
			continue
		}
		hits = append(hits, h)
	}
	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	if cfg.Limit > 0 && len(hits) > cfg.Limit {
		hits = hits[:cfg.Limit]
	}

	out := make([]models.Record, len(hits))
	for i, h := range hits {
		r := records[h.index].Clone()
		r[FieldScore] = float64(h.score)
		r[FieldMatch] = map[string]any{
			"key":     h.key,
			"indexes": models.Normalize(h.matched),
		}
		out[i] = r
	}
	return out
}
