// Package query evaluates declarative record queries: a filter language
// compiled to predicates, fuzzy search, multi-key sorting, pagination and
// projection.
package query

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Filter maps field names, or the logical operators $and, $or and $not, to
// conditions. A condition is a literal (deep equality), an operator map such
// as {"$gt": 10}, or a func(any) bool.
type Filter map[string]any

// Expr is a parsed filter over whole records.
type Expr interface{ expr() }

// Record-level expressions.
type (
	And   []Expr
	Or    []Expr
	Not   struct{ X Expr }
	Field struct {
		Name string
		Cond Cond
	}
	Match struct{ Fn func(models.Record) bool }
)

func (And) expr()   {}
func (Or) expr()    {}
func (Not) expr()   {}
func (Field) expr() {}
func (Match) expr() {}

// Cond is a parsed condition over a single field value.
type Cond interface{ cond() }

// Field-level conditions.
type (
	Eq         struct{ Value any }
	Ne         struct{ Value any }
	Gt         struct{ Value any }
	Gte        struct{ Value any }
	Lt         struct{ Value any }
	Lte        struct{ Value any }
	Between    struct{ Low, High any }
	Regex      struct{ Re *regexp.Regexp }
	In         struct{ Values []any }
	Nin        struct{ Values []any }
	Exists     struct{ Want bool }
	Size       struct{ N int }
	All        struct{ Values []any }
	StartsWith struct{ Prefix string }
	EndsWith   struct{ Suffix string }
	CondAnd    []Cond
	CondOr     []Cond
	CondNot    struct{ C Cond }
	CondFunc   struct{ Fn func(any) bool }
	// ElemMatch holds either a value condition or, for arrays of objects,
	// a record-level expression applied to each element.
	ElemMatch struct {
		Cond Cond
		Expr Expr
	}
)

func (Eq) cond()         {}
func (Ne) cond()         {}
func (Gt) cond()         {}
func (Gte) cond()        {}
func (Lt) cond()         {}
func (Lte) cond()        {}
func (Between) cond()    {}
func (Regex) cond()      {}
func (In) cond()         {}
func (Nin) cond()        {}
func (Exists) cond()     {}
func (Size) cond()       {}
func (All) cond()        {}
func (StartsWith) cond() {}
func (EndsWith) cond()   {}
func (CondAnd) cond()    {}
func (CondOr) cond()     {}
func (CondNot) cond()    {}
func (CondFunc) cond()   {}
func (ElemMatch) cond()  {}

var operators = map[string]bool{
	"$eq": true, "$ne": true, "$gt": true, "$gte": true, "$lt": true, "$lte": true,
	"$between": true, "$regex": true, "$in": true, "$nin": true, "$not": true,
	"$and": true, "$or": true, "$exists": true, "$size": true, "$all": true,
	"$elemMatch": true, "$startsWith": true, "$endsWith": true,
}

// Parse converts a filter into an expression tree. Unknown operators, mixed
// operator and field keys in one condition, malformed operands and invalid
// regular expressions are reported as errors wrapping apperr.ErrInvalidFilter.
func Parse(f Filter) (Expr, error) {
	return parseFilter(map[string]any(f))
}

func parseFilter(f map[string]any) (Expr, error) {
	out := make(And, 0, len(f))
	for _, key := range slices.Sorted(maps.Keys(f)) {
		val := f[key]
		switch key {
		case "$and", "$or":
			list, err := filterList(key, val)
			if err != nil {
				return nil, err
			}
			if key == "$and" {
				out = append(out, And(list))
			} else {
				out = append(out, Or(list))
			}
		case "$not":
			m, ok := asMap(val)
			if !ok {
				return nil, apperr.FilterError("$not expects a filter, got %T", val)
			}
			x, err := parseFilter(m)
			if err != nil {
				return nil, err
			}
			out = append(out, Not{X: x})
		default:
			if strings.HasPrefix(key, "$") {
				return nil, apperr.FilterError("unknown top-level operator %q", key)
			}
			c, err := parseCond(val)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			out = append(out, Field{Name: key, Cond: c})
		}
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}

func filterList(op string, val any) ([]Expr, error) {
	items, ok := asList(val)
	if !ok {
		return nil, apperr.FilterError("%s expects a list of filters, got %T", op, val)
	}
	out := make([]Expr, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, apperr.FilterError("%s expects a list of filters, got element %T", op, item)
		}
		x, err := parseFilter(m)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

// parseCond parses the condition attached to a field.
func parseCond(val any) (Cond, error) {
	switch v := val.(type) {
	case func(any) bool:
		return CondFunc{Fn: v}, nil
	case Cond:
		return v, nil
	}

	m, ok := asMap(val)
	if !ok || !hasOperator(m) {
		return Eq{Value: operand(val)}, nil
	}

	conds := make(CondAnd, 0, len(m))
	for _, op := range slices.Sorted(maps.Keys(m)) {
		if !operators[op] {
			if strings.HasPrefix(op, "$") {
				return nil, apperr.FilterError("unknown operator %q", op)
			}
			return nil, apperr.FilterError("operator map mixes %q with field keys", op)
		}
		c, err := parseOperator(op, m[op])
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}
	if len(conds) == 1 {
		return conds[0], nil
	}
	return conds, nil
}

func parseOperator(op string, arg any) (Cond, error) {
	switch op {
	case "$eq":
		return Eq{Value: operand(arg)}, nil
	case "$ne":
		return Ne{Value: operand(arg)}, nil
	case "$gt":
		return Gt{Value: operand(arg)}, nil
	case "$gte":
		return Gte{Value: operand(arg)}, nil
	case "$lt":
		return Lt{Value: operand(arg)}, nil
	case "$lte":
		return Lte{Value: operand(arg)}, nil
	case "$between":
		list, ok := asList(arg)
		if !ok || len(list) != 2 {
			return nil, apperr.FilterError("$between expects [low, high], got %v", arg)
		}
		return Between{Low: operand(list[0]), High: operand(list[1])}, nil
	case "$regex":
		return parseRegex(arg)
	case "$in", "$nin":
		list, ok := asList(arg)
		if !ok {
			return nil, apperr.FilterError("%s expects a list, got %T", op, arg)
		}
		vals := operands(list)
		if op == "$in" {
			return In{Values: vals}, nil
		}
		return Nin{Values: vals}, nil
	case "$all":
		list, ok := asList(arg)
		if !ok {
			return nil, apperr.FilterError("$all expects a list, got %T", arg)
		}
		return All{Values: operands(list)}, nil
	case "$exists":
		b, ok := arg.(bool)
		if !ok {
			return nil, apperr.FilterError("$exists expects a boolean, got %T", arg)
		}
		return Exists{Want: b}, nil
	case "$size":
		n, ok := asInt(arg)
		if !ok {
			return nil, apperr.FilterError("$size expects an integer, got %v", arg)
		}
		return Size{N: n}, nil
	case "$startsWith", "$endsWith":
		s, ok := arg.(string)
		if !ok {
			return nil, apperr.FilterError("%s expects a string, got %T", op, arg)
		}
		if op == "$startsWith" {
			return StartsWith{Prefix: s}, nil
		}
		return EndsWith{Suffix: s}, nil
	case "$not":
		c, err := parseCond(arg)
		if err != nil {
			return nil, err
		}
		return CondNot{C: c}, nil
	case "$and", "$or":
		list, ok := asList(arg)
		if !ok {
			return nil, apperr.FilterError("%s expects a list of conditions, got %T", op, arg)
		}
		conds := make([]Cond, 0, len(list))
		for _, item := range list {
			c, err := parseCond(item)
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
		if op == "$and" {
			return CondAnd(conds), nil
		}
		return CondOr(conds), nil
	case "$elemMatch":
		if m, ok := asMap(arg); ok && !hasOperator(m) {
			x, err := parseFilter(m)
			if err != nil {
				return nil, err
			}
			return ElemMatch{Expr: x}, nil
		}
		c, err := parseCond(arg)
		if err != nil {
			return nil, err
		}
		return ElemMatch{Cond: c}, nil
	}
	return nil, apperr.FilterError("unknown operator %q", op)
}

func parseRegex(arg any) (Cond, error) {
	switch v := arg.(type) {
	case *regexp.Regexp:
		return Regex{Re: v}, nil
	case string:
		re, err := regexp.Compile(v)
		if err != nil {
			return nil, apperr.FilterError("$regex: %v", err)
		}
		return Regex{Re: re}, nil
	}
	return nil, apperr.FilterError("$regex expects a pattern string, got %T", arg)
}

// hasOperator reports whether any key of m is an operator. Logical keys at
// field level count as operators too.
func hasOperator(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Filter:
		return map[string]any(m), true
	case map[string]any:
		return m, true
	case models.Record:
		return map[string]any(m), true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []Filter:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	case nil:
		return nil, false
	}
	if n, ok := models.Normalize(v).([]any); ok {
		return n, true
	}
	return nil, false
}

func asInt(v any) (int, bool) {
	f, ok := models.Normalize(v).(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// operand brings a literal into the record value domain. Times are kept so
// they compare chronologically against record timestamps.
func operand(v any) any {
	switch t := v.(type) {
	case time.Time, *regexp.Regexp:
		return t
	}
	return models.Normalize(v)
}

func operands(list []any) []any {
	out := make([]any, len(list))
	for i, v := range list {
		out[i] = operand(v)
	}
	return out
}
