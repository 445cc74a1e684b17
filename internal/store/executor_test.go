package store

import (
	"reflect"
	"strings"
	"testing"
)

func TestExpand(t *testing.T) {
	cases := []struct {
		name     string
		query    string
		params   map[string]any
		wantSQL  string
		wantArgs []any
		wantErr  string
	}{
		{
			name:     "single param",
			query:    "SELECT id FROM sample WHERE type = :type_eq",
			params:   map[string]any{"type_eq": "blood"},
			wantSQL:  "SELECT id FROM sample WHERE type = $1",
			wantArgs: []any{"blood"},
		},
		{
			name:     "first appearance order",
			query:    "WHERE a = :p_b AND b = :p_a",
			params:   map[string]any{"p_a": 1, "p_b": 2},
			wantSQL:  "WHERE a = $1 AND b = $2",
			wantArgs: []any{2, 1},
		},
		{
			name:     "repeated name reuses position",
			query:    "WHERE a = :v OR b = :v",
			params:   map[string]any{"v": "x"},
			wantSQL:  "WHERE a = $1 OR b = $1",
			wantArgs: []any{"x"},
		},
		{
			name:     "cast passes through",
			query:    "WHERE meta->>'lane' = :lane::text",
			params:   map[string]any{"lane": "L001"},
			wantSQL:  "WHERE meta->>'lane' = $1::text",
			wantArgs: []any{"L001"},
		},
		{
			name:    "missing binding",
			query:   "WHERE a = :gone",
			params:  map[string]any{},
			wantErr: "no value bound",
		},
		{
			name:    "unreferenced binding",
			query:   "WHERE a = :kept",
			params:  map[string]any{"kept": 1, "extra": 2},
			wantErr: "never referenced",
		},
		{
			name:     "no params",
			query:    "SELECT 1",
			params:   map[string]any{},
			wantSQL:  "SELECT 1",
			wantArgs: nil,
		},
		{
			name:     "placeholder at position zero",
			query:    ":v = ANY(tags)",
			params:   map[string]any{"v": "wgs"},
			wantSQL:  "$1 = ANY(tags)",
			wantArgs: []any{"wgs"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotSQL, gotArgs, err := Expand(tc.query, tc.params)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand failed: %v", err)
			}
			if gotSQL != tc.wantSQL {
				t.Fatalf("sql: expected %q, got %q", tc.wantSQL, gotSQL)
			}
			if !reflect.DeepEqual(gotArgs, tc.wantArgs) {
				t.Fatalf("args: expected %v, got %v", tc.wantArgs, gotArgs)
			}
		})
	}
}
