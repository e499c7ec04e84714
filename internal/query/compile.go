package query

import (
	"slices"
	"unicode/utf8"

	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
)

// Compile turns an expression into a predicate. The predicate holds no
// per-call state and can be shared between goroutines.
func Compile(x Expr) store.Predicate {
	switch e := x.(type) {
	case nil:
		return store.All
	case And:
		preds := compileAll(e)
		return func(r models.Record) bool {
			for _, p := range preds {
				if !p(r) {
					return false
				}
			}
			return true
		}
	case Or:
		preds := compileAll(e)
		return func(r models.Record) bool {
			for _, p := range preds {
				if p(r) {
					return true
				}
			}
			return false
		}
	case Not:
		p := Compile(e.X)
		return func(r models.Record) bool { return !p(r) }
	case Match:
		return e.Fn
	case Field:
		test := compileCond(e.Cond)
		name := e.Name
		return func(r models.Record) bool {
			v, ok := lookup(r, name)
			return test(v, ok)
		}
	}
	return func(models.Record) bool { return false }
}

func compileAll(xs []Expr) []store.Predicate {
	out := make([]store.Predicate, len(xs))
	for i, x := range xs {
		out[i] = Compile(x)
	}
	return out
}

// valueTest evaluates a condition against a value and whether it was present.
type valueTest func(v any, present bool) bool

func compileCond(c Cond) valueTest {
	switch c := c.(type) {
	case Exists:
		return func(_ any, present bool) bool { return present == c.Want }
	case CondAnd:
		tests := compileConds(c)
		return func(v any, present bool) bool {
			for _, t := range tests {
				if !t(v, present) {
					return false
				}
			}
			return true
		}
	case CondOr:
		tests := compileConds(c)
		return func(v any, present bool) bool {
			for _, t := range tests {
				if t(v, present) {
					return true
				}
			}
			return false
		}
	case CondNot:
		t := compileCond(c.C)
		if _, ok := c.C.(Exists); ok {
			return func(v any, present bool) bool { return !t(v, present) }
		}
		return func(v any, present bool) bool { return present && !t(v, present) }
	}

	test := valueCond(c)
	return func(v any, present bool) bool { return present && test(v) }
}

func compileConds(cs []Cond) []valueTest {
	out := make([]valueTest, len(cs))
	for i, c := range cs {
		out[i] = compileCond(c)
	}
	return out
}

// valueCond compiles a condition that only applies to present values.
func valueCond(c Cond) func(any) bool {
	switch c := c.(type) {
	case Eq:
		return func(v any) bool { return equal(v, c.Value) }
	case Ne:
		return func(v any) bool { return !equal(v, c.Value) }
	case Gt:
		return ordered(c.Value, func(n int) bool { return n > 0 })
	case Gte:
		return ordered(c.Value, func(n int) bool { return n >= 0 })
	case Lt:
		return ordered(c.Value, func(n int) bool { return n < 0 })
	case Lte:
		return ordered(c.Value, func(n int) bool { return n <= 0 })
	case Between:
		lo := ordered(c.Low, func(n int) bool { return n >= 0 })
		hi := ordered(c.High, func(n int) bool { return n <= 0 })
		return func(v any) bool { return lo(v) && hi(v) }
	case Regex:
		return func(v any) bool {
			s, ok := v.(string)
			return ok && c.Re.MatchString(s)
		}
	case In:
		return func(v any) bool { return containsEqual(c.Values, v) }
	case Nin:
		return func(v any) bool { return !containsEqual(c.Values, v) }
	case Size:
		return func(v any) bool {
			switch t := v.(type) {
			case []any:
				return len(t) == c.N
			case string:
				return utf8.RuneCountInString(t) == c.N
			}
			return false
		}
	case All:
		return func(v any) bool {
			list, ok := v.([]any)
			if !ok {
				return false
			}
			for _, want := range c.Values {
				if !containsEqual(list, want) {
					return false
				}
			}
			return true
		}
	case StartsWith:
		return func(v any) bool {
			s, ok := v.(string)
			return ok && len(s) >= len(c.Prefix) && s[:len(c.Prefix)] == c.Prefix
		}
	case EndsWith:
		return func(v any) bool {
			s, ok := v.(string)
			return ok && len(s) >= len(c.Suffix) && s[len(s)-len(c.Suffix):] == c.Suffix
		}
	case CondFunc:
		return c.Fn
	case ElemMatch:
		return elemMatch(c)
	}
	return func(any) bool { return false }
}

func elemMatch(c ElemMatch) func(any) bool {
	if c.Expr != nil {
		pred := Compile(c.Expr)
		return func(v any) bool {
			list, ok := v.([]any)
			return ok && slices.ContainsFunc(list, func(e any) bool {
				m, ok := e.(map[string]any)
				return ok && pred(models.Record(m))
			})
		}
	}
	test := compileCond(c.Cond)
	return func(v any) bool {
		list, ok := v.([]any)
		return ok && slices.ContainsFunc(list, func(e any) bool { return test(e, true) })
	}
}

// ordered returns a test that compares a value against operand and accepts
// the comparison result. Values of incomparable kinds never match.
func ordered(operand any, accept func(int) bool) func(any) bool {
	return func(v any) bool {
		n, ok := compare(v, operand)
		return ok && accept(n)
	}
}

func containsEqual(list []any, v any) bool {
	return slices.ContainsFunc(list, func(e any) bool { return equal(e, v) })
}
