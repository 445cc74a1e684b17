// Package errs defines the error taxonomy shared by the query, access, and
// versioning layers. Handlers map these to HTTP status codes at the edge.
package errs

import (
	"fmt"
	"strings"
)

// ValidationError reports malformed caller input: a bad filter shape, an
// illegal dynamic key, a group submitted without members. Never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AccessDenied reports that the caller lacks the required role on one or more
// projects. It always names every offending project and is never downgraded
// to a not-found.
type AccessDenied struct {
	Member   string
	Projects []string
}

func (e *AccessDenied) Error() string {
	if len(e.Projects) == 0 {
		return fmt.Sprintf("access denied for %q: no resolvable projects", e.Member)
	}
	return fmt.Sprintf("access denied for %q on projects: %s", e.Member, strings.Join(e.Projects, ", "))
}

// NotFound reports a referenced id that does not exist. Distinct from
// AccessDenied: the caller was allowed to look.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// StructuralError reports a malformed upsert tree: a node reachable twice or
// a level past the depth limit. Fatal for the request.
type StructuralError struct {
	Message string
	Nodes   []string
}

func (e *StructuralError) Error() string {
	if len(e.Nodes) == 0 {
		return "structural: " + e.Message
	}
	return fmt.Sprintf("structural: %s (%s)", e.Message, strings.Join(e.Nodes, ", "))
}
