// Package hierarchy linearizes nested upsert trees into a parent-before-child
// insertion order, with cycle and depth protection. Traversal is pure
// in-memory computation; it never touches storage.
package hierarchy

import (
	"fmt"

	"sampletrack/internal/errs"
)

// Node is one element of an upsert tree. Implementations are pointer types;
// the flattener tracks node identity, not content, so the same instance
// appearing twice is a structural fault rather than a silent dedup.
type Node interface {
	// ChildNodes returns the node's direct children in declared order.
	ChildNodes() []Node
	// Describe identifies the node in error messages.
	Describe() string
}

// Placed is one emitted node with its position in the tree. Root and Parent
// are nil for top-level input nodes; for any child, Parent is its direct
// owner and Root the top-most ancestor of its branch.
type Placed struct {
	Root   Node
	Parent Node
	Node   Node
}

// Flatten walks the given roots breadth-first and returns every node in
// level order: a node's parent and root always appear earlier in the output,
// so inserting rows in emission order cannot violate a parent-before-child
// foreign key. A node reachable through two parents, or a tree deeper than
// maxDepth levels, aborts with a StructuralError.
func Flatten(roots []Node, maxDepth int) ([]Placed, error) {
	if maxDepth <= 0 {
		return nil, errs.Validationf("flatten: maxDepth must be positive, got %d", maxDepth)
	}

	seen := map[Node]struct{}{}
	out := make([]Placed, 0, len(roots))

	level := make([]Placed, 0, len(roots))
	for _, r := range roots {
		if r == nil {
			continue
		}
		level = append(level, Placed{Node: r})
	}

	depth := 1
	for len(level) > 0 {
		if depth > maxDepth {
			return nil, &errs.StructuralError{
				Message: fmt.Sprintf("upsert tree exceeds maximum depth %d at level %d", maxDepth, depth),
				Nodes:   describeFrontier(level),
			}
		}

		var next []Placed
		for _, p := range level {
			if _, dup := seen[p.Node]; dup {
				return nil, &errs.StructuralError{
					Message: "node appears more than once in upsert tree",
					Nodes:   []string{p.Node.Describe()},
				}
			}
			seen[p.Node] = struct{}{}
			out = append(out, p)

			root := p.Root
			if root == nil {
				root = p.Node
			}
			for _, child := range p.Node.ChildNodes() {
				if child == nil {
					continue
				}
				next = append(next, Placed{Root: root, Parent: p.Node, Node: child})
			}
		}
		level = next
		depth++
	}

	return out, nil
}

func describeFrontier(level []Placed) []string {
	names := make([]string, 0, len(level))
	for _, p := range level {
		names = append(names, p.Node.Describe())
	}
	return names
}
