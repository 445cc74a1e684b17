package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier is the parameterized-query surface shared by *sql.DB and *sql.Tx,
// so store methods run unchanged inside or outside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Expand rewrites :name placeholders to positional $N arguments in
// first-appearance order. A name referenced twice reuses its position.
// Postgres type casts (::text) pass through untouched. Referencing a name
// absent from params is an error; params that go unreferenced are too, since
// that always indicates a clause/param mismatch upstream.
func Expand(query string, params map[string]any) (string, []any, error) {
	var sb strings.Builder
	var args []any
	positions := map[string]int{}
	used := map[string]struct{}{}

	for i := 0; i < len(query); i++ {
		c := query[i]
		if c != ':' {
			sb.WriteByte(c)
			continue
		}
		// "::" is a cast, and a ':' not followed by an identifier char is
		// literal text.
		if i+1 < len(query) && query[i+1] == ':' {
			sb.WriteString("::")
			i++
			continue
		}
		if !identStart(query[i+1:]) {
			sb.WriteByte(c)
			continue
		}

		j := i + 1
		for j < len(query) && isIdentChar(query[j]) {
			j++
		}
		name := query[i+1 : j]

		pos, seen := positions[name]
		if !seen {
			value, ok := params[name]
			if !ok {
				return "", nil, fmt.Errorf("expand query: no value bound for :%s", name)
			}
			args = append(args, value)
			pos = len(args)
			positions[name] = pos
		}
		used[name] = struct{}{}
		fmt.Fprintf(&sb, "$%d", pos)
		i = j - 1
	}

	if len(used) != len(params) {
		for name := range params {
			if _, ok := used[name]; !ok {
				return "", nil, fmt.Errorf("expand query: bound parameter %q never referenced", name)
			}
		}
	}
	return sb.String(), args, nil
}

func identStart(rest string) bool {
	if rest == "" {
		return false
	}
	c := rest[0]
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
