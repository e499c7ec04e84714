// Package models defines the domain types shared across ansuz.
package models

import (
	"encoding/json"
	"maps"
	"time"
)

// Reserved record fields. Slug, Dir, Path and Extension are always computed
// by the record builder; parsed values can never override them.
const (
	FieldSlug      = "slug"
	FieldDir       = "dir"
	FieldPath      = "path"
	FieldExtension = "extension"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
	FieldID        = "_id"
	// FieldSource holds the slash-separated, root-relative path of the file
	// a record was built from.
	FieldSource = "_source"
)

// InternalFields are bookkeeping fields that are never persisted.
var InternalFields = []string{FieldID, FieldSource}

// Record is one normalised content item derived from a source file.
type Record map[string]any

// Path returns the record's logical path.
func (r Record) Path() string { return r.str(FieldPath) }

// Dir returns the logical parent path of the record.
func (r Record) Dir() string { return r.str(FieldDir) }

// Slug returns the last path segment.
func (r Record) Slug() string { return r.str(FieldSlug) }

// Extension returns the source file extension, including the dot.
func (r Record) Extension() string { return r.str(FieldExtension) }

// ID returns the internal identifier assigned on insert.
func (r Record) ID() string { return r.str(FieldID) }

// Source returns the root-relative path of the record's source file, or ""
// for records that were not built from the tree (e.g. loaded snapshots).
func (r Record) Source() string { return r.str(FieldSource) }

func (r Record) str(key string) string {
	s, _ := r[key].(string)
	return s
}

// Time returns the timestamp stored under key, if any.
func (r Record) Time(key string) (time.Time, bool) {
	t, ok := r[key].(time.Time)
	return t, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// Without returns a shallow copy with the given keys removed.
func (r Record) Without(keys ...string) Record {
	out := r.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// FileMeta describes the source file a record was built from.
type FileMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Normalize converts a decoded value into the JSON value domain: objects
// become map[string]any, arrays []any, all numbers float64. Timestamps are
// rendered as RFC 3339 strings. Values the decoders cannot produce are
// round-tripped through encoding/json.
func Normalize(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case uint:
		return float64(t)
	case uint64:
		return float64(t)
	case uint32:
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case Record:
		return Normalize(map[string]any(t))
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[toKey(k)] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = e
		}
		return out
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func toKey(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	data, err := json.Marshal(k)
	if err != nil {
		return ""
	}
	var s string
	if json.Unmarshal(data, &s) == nil {
		return s
	}
	return string(data)
}
