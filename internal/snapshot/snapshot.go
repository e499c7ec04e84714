// Package snapshot fingerprints and persists the record collection.
package snapshot

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/natefinch/atomic"

	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

// DevName is the snapshot file name used while watching for changes.
const DevName = "db-content.json"

// hashLen is the number of hex digits of the content hash in file names.
const hashLen = 8

// volatile fields never affect the content hash.
var volatile = append([]string{models.FieldCreatedAt, models.FieldUpdatedAt}, models.InternalFields...)

// Hash returns a fingerprint of records that is independent of their order
// and of volatile fields.
func Hash(records []models.Record) (string, error) {
	stable := make([]models.Record, len(records))
	for i, r := range records {
		stable[i] = r.Without(volatile...)
	}
	sortByPath(stable)

	data, err := json.Marshal(stable)
	if err != nil {
		return "", fmt.Errorf("snapshot: hash: %w", err)
	}
	return checksum.Short(data, hashLen), nil
}

// FileName returns the snapshot file name for a content hash.
func FileName(hash string) string {
	return "db-" + hash + ".json"
}

// Encode serialises records as a JSON array sorted by path, without the
// internal fields.
func Encode(records []models.Record) ([]byte, error) {
	out := make([]models.Record, len(records))
	for i, r := range records {
		out[i] = r.Without(models.InternalFields...)
	}
	sortByPath(out)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes records to dir/name atomically and returns the file path.
func Save(dir, name string, records []models.Record) (string, error) {
	data, err := Encode(records)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return path, nil
}

// Load reads a snapshot written by Save. Timestamps are restored to
// time.Time.
func Load(path string) ([]models.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", path, err)
	}
	for _, r := range records {
		for _, key := range []string{models.FieldCreatedAt, models.FieldUpdatedAt} {
			if s, ok := r[key].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					r[key] = t
				}
			}
		}
	}
	return records, nil
}

func sortByPath(records []models.Record) {
	slices.SortStableFunc(records, func(a, b models.Record) int {
		return cmp.Compare(a.Path(), b.Path())
	})
}
