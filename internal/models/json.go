package models

import (
	"bytes"
	"encoding/json"
	"math"
)

// MarshalJSON encodes the record with NaN and ±Inf written as null, values
// encoding/json otherwise refuses. HTML characters are left unescaped; the
// calling encoder applies its own escaping.
func (r Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	var v any = map[string]any(r)
	if hasNonFinite(v) {
		v = finite(v)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func nonFinite(f float64) bool { return math.IsNaN(f) || math.IsInf(f, 0) }

func hasNonFinite(v any) bool {
	switch t := v.(type) {
	case float64:
		return nonFinite(t)
	case float32:
		return nonFinite(float64(t))
	case map[string]any:
		for _, e := range t {
			if hasNonFinite(e) {
				return true
			}
		}
	case []any:
		for _, e := range t {
			if hasNonFinite(e) {
				return true
			}
		}
	}
	return false
}

// finite returns a copy of v with non-finite numbers replaced by nil.
func finite(v any) any {
	switch t := v.(type) {
	case float64:
		if nonFinite(t) {
			return nil
		}
	case float32:
		if nonFinite(float64(t)) {
			return nil
		}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = finite(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = finite(e)
		}
		return out
	}
	return v
}
