package filter

import (
	"fmt"
	"strings"

	"sampletrack/internal/errs"
)

// Field binds one logical field name to a default column and an expression.
// Models declare their fields statically, in order, at construction; the
// compiler never inspects runtime shapes to discover them.
type Field struct {
	Name   string
	Column string
	// Subkey addresses one key of a JSONB meta column. Set only through
	// AddMeta; validated at compile time.
	Subkey string
	Expr   Expr
}

// Model is an ordered set of named filter fields. Built once per request,
// compiled once, then discarded.
type Model struct {
	fields []Field
}

func NewModel() *Model {
	return &Model{}
}

// Add registers a field. Fields compile in registration order.
func (m *Model) Add(name, column string, e Expr) *Model {
	m.fields = append(m.fields, Field{Name: name, Column: column, Expr: e})
	return m
}

// AddMeta registers a sub-filter over one key of a JSONB column, addressed as
// column->>'subkey'.
func (m *Model) AddMeta(name, column, subkey string, e Expr) *Model {
	m.fields = append(m.fields, Field{Name: name, Column: column, Subkey: subkey, Expr: e})
	return m
}

// Compile turns a model into a WHERE clause and its bound parameters.
// Overrides remap a logical field name to a qualified column (for joins);
// unknown override keys fail loudly. A model with no populated fields
// compiles to ("true", {}).
func Compile(m *Model, overrides map[string]string) (string, map[string]any, error) {
	if err := checkOverrides(m, overrides); err != nil {
		return "", nil, err
	}

	b := newBinder()
	var parts []string
	for _, f := range m.fields {
		if f.Expr == nil || f.Expr.isEmpty() {
			continue
		}
		column := f.Column
		if overrides != nil {
			if c, ok := overrides[f.Name]; ok {
				column = c
			}
		}
		if f.Subkey != "" {
			if strings.ContainsAny(f.Subkey, `'"`) {
				return "", nil, errs.Validationf("meta subkey %q must not contain quote characters", f.Subkey)
			}
			column = fmt.Sprintf("%s->>'%s'", column, f.Subkey)
		}
		clauses, err := f.Expr.clauses(column, b)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, clauses...)
	}

	if len(parts) == 0 {
		return "true", map[string]any{}, nil
	}
	return strings.Join(parts, " AND "), b.params, nil
}

func checkOverrides(m *Model, overrides map[string]string) error {
	for name := range overrides {
		found := false
		for _, f := range m.fields {
			if f.Name == name {
				found = true
				break
			}
		}
		if !found {
			return errs.Validationf("filter override for unknown field %q", name)
		}
	}
	return nil
}

// binder accumulates named parameters for one compile call. Names derive
// deterministically from (column, operator suffix) and are deduplicated with
// a numeric suffix on collision, so identical inputs always produce identical
// names within one call.
type binder struct {
	params map[string]any
}

func newBinder() *binder {
	return &binder{params: map[string]any{}}
}

func (b *binder) bind(column, suffix string, value any) string {
	name := b.nextName(sanitizeIdent(column) + "_" + suffix)
	b.params[name] = value
	return name
}

func bindList[T any](b *binder, column, suffix string, vs []T) string {
	base := sanitizeIdent(column) + "_" + suffix
	refs := make([]string, 0, len(vs))
	for i, v := range vs {
		name := b.nextName(fmt.Sprintf("%s_%d", base, i))
		b.params[name] = v
		refs = append(refs, ":"+name)
	}
	return strings.Join(refs, ", ")
}

func (b *binder) nextName(base string) string {
	if _, taken := b.params[base]; !taken {
		return base
	}
	for i := 2; ; i++ {
		name := fmt.Sprintf("%s_%d", base, i)
		if _, taken := b.params[name]; !taken {
			return name
		}
	}
}

// sanitizeIdent maps an arbitrary column reference to a safe parameter
// identifier: non-alphanumerics become underscores and a leading digit is
// prefixed.
func sanitizeIdent(column string) string {
	var sb strings.Builder
	for _, r := range column {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	s := sb.String()
	if s == "" {
		return "p"
	}
	if s[0] >= '0' && s[0] <= '9' {
		return "p" + s
	}
	return s
}
