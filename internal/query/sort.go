package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Direction is a sort direction.
type Direction int

// Sort directions.
const (
	Asc Direction = iota
	Desc
)

// ParseDirection accepts "asc" and "desc" (case-insensitive); empty means Asc.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return Asc, fmt.Errorf("query: unknown sort direction %q", s)
}

func (d Direction) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// SortKey is one key of a multi-key sort.
type SortKey struct {
	Key string
	Dir Direction
}

// sortRecords sorts records in place by keys. The sort is stable: records
// equal on every key keep their relative order.
func sortRecords(records []models.Record, keys []SortKey) {
	slices.SortStableFunc(records, func(a, b models.Record) int {
		for _, k := range keys {
			av, aok := lookup(a, k.Key)
			bv, bok := lookup(b, k.Key)
			c := orderValues(av, aok, bv, bok)
			if k.Dir == Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// orderValues is a total order over record values. Absent values come
// first, then null, booleans, numbers, strings and times; other kinds tie.
// NaN sorts before every other number and equal to itself.
func orderValues(a any, aok bool, b any, bok bool) int {
	if c := cmp.Compare(rank(a, aok), rank(b, bok)); c != 0 {
		return c
	}
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return cmp.Compare(x, y)
		}
	}
	if n, ok := compare(a, b); ok {
		return n
	}
	return 0
}

func rank(v any, present bool) int {
	if !present {
		return 0
	}
	switch v.(type) {
	case nil:
		return 1
	case bool:
		return 2
	case string:
		return 4
	}
	if _, ok := number(v); ok {
		return 3
	}
	if _, ok := asTime(v); ok {
		return 5
	}
	return 6
}
