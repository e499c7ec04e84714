package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tailscale/hujson"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"
)

// YAML decodes a YAML document. Its value is used directly as record fields.
type YAML struct{}

// Parse implements Parser.
func (YAML) Parse(data []byte, _ Context) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// JSON decodes strict JSON.
type JSON struct{}

// Parse implements Parser.
func (JSON) Parse(data []byte, _ Context) (any, error) {
	return decodeJSON(data)
}

// JSON5 decodes JSON5: comments, trailing commas, unquoted keys, single
// quoted strings, hexadecimal numbers and Infinity/NaN are accepted.
type JSON5 struct{}

// Parse implements Parser.
func (JSON5) Parse(data []byte, _ Context) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var v any
	if err := json5.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON5: %w", err)
	}
	return v, nil
}

// JSONC decodes JSON with comments and trailing commas.
type JSONC struct{}

// Parse implements Parser.
func (JSONC) Parse(data []byte, _ Context) (any, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}
	return decodeJSON(standardized)
}

func decodeJSON(data []byte) (any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Reject trailing content after the first value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("invalid JSON: unexpected data after top-level value")
	}
	return v, nil
}
