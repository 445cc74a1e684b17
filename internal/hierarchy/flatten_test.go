package hierarchy

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"sampletrack/internal/errs"
)

type testNode struct {
	name     string
	children []Node
}

func (n *testNode) ChildNodes() []Node { return n.children }
func (n *testNode) Describe() string   { return n.name }

func node(name string, children ...Node) *testNode {
	return &testNode{name: name, children: children}
}

func TestFlattenLevelOrder(t *testing.T) {
	c3 := node("C3")
	c1 := node("C1", c3)
	c2 := node("C2")
	r := node("R", c1, c2)

	placed, err := Flatten([]Node{r}, 10)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	var order []string
	for _, p := range placed {
		order = append(order, p.Node.Describe())
	}
	if got := strings.Join(order, " "); got != "R C1 C2 C3" {
		t.Fatalf("unexpected order: %s", got)
	}

	if placed[0].Root != nil || placed[0].Parent != nil {
		t.Fatalf("root node must carry nil root/parent")
	}
	for _, i := range []int{1, 2} {
		if placed[i].Root != Node(r) || placed[i].Parent != Node(r) {
			t.Fatalf("%s: expected root=R parent=R", placed[i].Node.Describe())
		}
	}
	if placed[3].Root != Node(r) || placed[3].Parent != Node(c1) {
		t.Fatalf("C3: expected root=R parent=C1")
	}
}

func TestFlattenParentAlwaysEmittedFirst(t *testing.T) {
	roots := []Node{
		node("A", node("A1", node("A2", node("A3")))),
		node("B", node("B1")),
	}
	placed, err := Flatten(roots, 10)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	emitted := map[Node]int{}
	for i, p := range placed {
		emitted[p.Node] = i
	}
	for i, p := range placed {
		if p.Parent == nil {
			continue
		}
		if emitted[p.Parent] >= i {
			t.Fatalf("parent of %s emitted at %d, child at %d", p.Node.Describe(), emitted[p.Parent], i)
		}
	}
}

func TestFlattenCycleIsStructuralError(t *testing.T) {
	shared := node("shared")
	roots := []Node{node("P1", shared), node("P2", shared)}

	_, err := Flatten(roots, 10)
	var serr *errs.StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if len(serr.Nodes) != 1 || serr.Nodes[0] != "shared" {
		t.Fatalf("expected error to name the duplicated node, got %v", serr.Nodes)
	}
}

func TestFlattenSelfCycle(t *testing.T) {
	n := node("loop")
	n.children = []Node{n}

	_, err := Flatten([]Node{n}, 10)
	var serr *errs.StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}

func TestFlattenDepthLimitNamesFrontier(t *testing.T) {
	// Chain 11 levels deep: L1 -> L2 -> ... -> L11.
	deepest := node("L11")
	current := deepest
	for i := 10; i >= 1; i-- {
		current = node("L"+strconv.Itoa(i), current)
	}

	_, err := Flatten([]Node{current}, 10)
	var serr *errs.StructuralError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
	if len(serr.Nodes) != 1 || serr.Nodes[0] != "L11" {
		t.Fatalf("expected error to name the 11th-level frontier, got %v", serr.Nodes)
	}
}

func TestFlattenDepthExactlyAtLimit(t *testing.T) {
	tree := node("L1", node("L2", node("L3")))
	placed, err := Flatten([]Node{tree}, 3)
	if err != nil {
		t.Fatalf("Flatten failed at exact depth limit: %v", err)
	}
	if len(placed) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(placed))
	}
}

func TestFlattenRenestRoundTrip(t *testing.T) {
	tree := node("R",
		node("C1", node("C3"), node("C4")),
		node("C2"),
	)

	placed, err := Flatten([]Node{tree}, 10)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}

	// Rebuild child lists from traversal output and compare shapes.
	rebuilt := map[Node][]Node{}
	var roots []Node
	for _, p := range placed {
		if p.Parent == nil {
			roots = append(roots, p.Node)
			continue
		}
		rebuilt[p.Parent] = append(rebuilt[p.Parent], p.Node)
	}

	if len(roots) != 1 || roots[0] != Node(tree) {
		t.Fatalf("expected single root R, got %v", roots)
	}
	var check func(n Node)
	check = func(n Node) {
		want := n.ChildNodes()
		got := rebuilt[n]
		if len(want) != len(got) {
			t.Fatalf("%s: expected %d children, got %d", n.Describe(), len(want), len(got))
		}
		for i := range want {
			if want[i] != got[i] {
				t.Fatalf("%s: child %d mismatch", n.Describe(), i)
			}
			check(want[i])
		}
	}
	check(tree)
}

func TestFlattenEmptyAndNilRoots(t *testing.T) {
	placed, err := Flatten(nil, 5)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(placed) != 0 {
		t.Fatalf("expected empty output, got %d nodes", len(placed))
	}

	placed, err = Flatten([]Node{nil, node("only")}, 5)
	if err != nil {
		t.Fatalf("Flatten failed: %v", err)
	}
	if len(placed) != 1 {
		t.Fatalf("expected nil roots skipped, got %d nodes", len(placed))
	}
}
