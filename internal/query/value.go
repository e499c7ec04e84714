package query

import (
	"cmp"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"

	"github.com/starford/ansuz/internal/models"
)

// lookup returns the value of key in r. Keys containing dots that are not
// themselves fields address nested values, e.g. "author.name" or "tags.0".
func lookup(r models.Record, key string) (any, bool) {
	if v, ok := r[key]; ok {
		return v, true
	}
	if !strings.Contains(key, ".") {
		return nil, false
	}
	found := keyPath(key).Get(map[string]any(r))
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}

func keyPath(key string) jp.Expr {
	var x jp.Expr
	for _, seg := range strings.Split(key, ".") {
		if i, err := strconv.Atoi(seg); err == nil {
			x = x.N(i)
			continue
		}
		x = x.C(seg)
	}
	return x
}

// equal reports deep equality: arrays element-wise in order, objects by key
// set and values, NaN equal to NaN.
func equal(a, b any) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equal(xv, yv) {
				return false
			}
		}
		return true
	case string:
		if y, ok := b.(string); ok {
			return x == y
		}
		if y, ok := b.(time.Time); ok {
			t, ok := asTime(x)
			return ok && t.Equal(y)
		}
		return false
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case time.Time:
		t, ok := asTime(b)
		return ok && x.Equal(t)
	}

	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok {
			return false
		}
		return x == y || (math.IsNaN(x) && math.IsNaN(y))
	}
	return false
}

// compare orders two values of the same kind: numbers numerically, strings
// lexicographically, times chronologically. ok is false for other pairs.
func compare(a, b any) (n int, ok bool) {
	if x, ok := number(a); ok {
		y, ok := number(b)
		if !ok || math.IsNaN(x) || math.IsNaN(y) {
			return 0, false
		}
		return cmp.Compare(x, y), true
	}
	if x, ok := a.(time.Time); ok {
		y, ok := asTime(b)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
		if y, ok := b.(time.Time); ok {
			t, ok := asTime(x)
			if !ok {
				return 0, false
			}
			return t.Compare(y), true
		}
		return 0, false
	}
	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			return cmp.Compare(boolRank(x), boolRank(y)), true
		}
	}
	return 0, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}
