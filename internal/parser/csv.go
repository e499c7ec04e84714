package parser

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVOptions configures CSV decoding.
type CSVOptions struct {
	// Delimiter is the field separator; defaults to ','.
	Delimiter string `yaml:"delimiter"`
	// NoHeader treats the first row as data; columns become field1..fieldN.
	NoHeader bool `yaml:"no_header"`
}

// CSV decodes rows into objects keyed by the header row, exposed under body.
type CSV struct {
	comma    rune
	noHeader bool
}

// NewCSV returns a CSV parser configured by opts.
func NewCSV(opts CSVOptions) *CSV {
	comma := ','
	if r := []rune(opts.Delimiter); len(r) > 0 {
		comma = r[0]
	}
	return &CSV{comma: comma, noHeader: opts.NoHeader}
}

// Parse implements Parser.
func (c *CSV) Parse(data []byte, _ Context) (any, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.Comma = c.comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var header []string
	rows := []any{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if header == nil && !c.noHeader {
			header = rec
			continue
		}
		row := make(map[string]any, len(rec))
		for i, v := range rec {
			row[columnName(header, i)] = v
		}
		rows = append(rows, row)
	}
	return map[string]any{"body": rows}, nil
}

func columnName(header []string, i int) string {
	if i < len(header) && header[i] != "" {
		return header[i]
	}
	return "field" + strconv.Itoa(i+1)
}
