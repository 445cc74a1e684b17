// Package filter implements the typed filter expressions used by the store's
// query-by-criteria methods and their compilation to parameterized SQL. Caller
// values never appear in query text; every operand is bound through a named
// parameter that the store executor rewrites to a positional placeholder.
package filter

// Expr is the type-erased view of an Expression that a Model holds. An
// expression with no operators set is absent and contributes no clauses.
type Expr interface {
	isEmpty() bool
	clauses(column string, b *binder) ([]string, error)
}

// Expression is a set of mutually ANDed operator constraints over one field.
// Operators are set through the builder methods so that "never set" and "set
// to an empty list" stay distinguishable: In() with no arguments is an
// explicit empty list and compiles to a clause matching no rows.
type Expression[T any] struct {
	eq, neq              *T
	gt, gte, lt, lte     *T
	contains, startsWith *T
	in, nin              []T
	inSet, ninSet        bool
	isNull               *bool
}

// New returns an empty expression for the given operand type.
func New[T any]() *Expression[T] {
	return &Expression[T]{}
}

func (e *Expression[T]) Eq(v T) *Expression[T]  { e.eq = &v; return e }
func (e *Expression[T]) Neq(v T) *Expression[T] { e.neq = &v; return e }
func (e *Expression[T]) Gt(v T) *Expression[T]  { e.gt = &v; return e }
func (e *Expression[T]) Gte(v T) *Expression[T] { e.gte = &v; return e }
func (e *Expression[T]) Lt(v T) *Expression[T]  { e.lt = &v; return e }
func (e *Expression[T]) Lte(v T) *Expression[T] { e.lte = &v; return e }

// Contains constrains the column to values containing v as a substring.
func (e *Expression[T]) Contains(v T) *Expression[T] { e.contains = &v; return e }

// StartsWith constrains the column to values with prefix v.
func (e *Expression[T]) StartsWith(v T) *Expression[T] { e.startsWith = &v; return e }

// In constrains the column to the given values. A single value reduces to Eq
// at compile time; no values is an explicit empty list matching no rows.
func (e *Expression[T]) In(vs ...T) *Expression[T] {
	e.in = vs
	e.inSet = true
	return e
}

// Nin excludes the given values. No values is an explicit empty exclusion
// list, which filters nothing.
func (e *Expression[T]) Nin(vs ...T) *Expression[T] {
	e.nin = vs
	e.ninSet = true
	return e
}

// IsNull constrains the column to NULL (true) or NOT NULL (false).
func (e *Expression[T]) IsNull(null bool) *Expression[T] { e.isNull = &null; return e }

func (e *Expression[T]) isEmpty() bool {
	if e == nil {
		return true
	}
	return e.eq == nil && e.neq == nil &&
		e.gt == nil && e.gte == nil && e.lt == nil && e.lte == nil &&
		e.contains == nil && e.startsWith == nil &&
		!e.inSet && !e.ninSet && e.isNull == nil
}

func (e *Expression[T]) clauses(column string, b *binder) ([]string, error) {
	var out []string

	if e.eq != nil {
		out = append(out, column+" = :"+b.bind(column, "eq", *e.eq))
	}
	if e.neq != nil {
		out = append(out, column+" != :"+b.bind(column, "neq", *e.neq))
	}
	if e.inSet {
		switch len(e.in) {
		case 0:
			// Explicit empty list: match nothing, loudly.
			out = append(out, "false")
		case 1:
			out = append(out, column+" = :"+b.bind(column, "eq", e.in[0]))
		default:
			out = append(out, column+" IN ("+bindList(b, column, "in", e.in)+")")
		}
	}
	if e.ninSet {
		if len(e.nin) == 0 {
			// Excluding nothing filters nothing.
			out = append(out, "true")
		} else {
			out = append(out, column+" NOT IN ("+bindList(b, column, "nin", e.nin)+")")
		}
	}
	if e.gt != nil {
		out = append(out, column+" > :"+b.bind(column, "gt", *e.gt))
	}
	if e.gte != nil {
		out = append(out, column+" >= :"+b.bind(column, "gte", *e.gte))
	}
	if e.lt != nil {
		out = append(out, column+" < :"+b.bind(column, "lt", *e.lt))
	}
	if e.lte != nil {
		out = append(out, column+" <= :"+b.bind(column, "lte", *e.lte))
	}
	if e.contains != nil {
		out = append(out, column+" LIKE '%' || :"+b.bind(column, "contains", *e.contains)+" || '%'")
	}
	if e.startsWith != nil {
		out = append(out, column+" LIKE :"+b.bind(column, "startswith", *e.startsWith)+" || '%'")
	}
	if e.isNull != nil {
		if *e.isNull {
			out = append(out, column+" IS NULL")
		} else {
			out = append(out, column+" IS NOT NULL")
		}
	}

	return out, nil
}
