package testutil

import (
	"testing"

	"github.com/vanderheijden86/edgeloc/pkg/locations"
)

// ForestProblems lists every structural invariant the forest breaks: a
// duplicate id, a site with children, a root not flagged IsRoot, or a
// non-root flagged IsRoot. An empty result means the forest is sound.
// Because ids are unique and traversal only follows Children, uniqueness
// also implies each node is reachable from exactly one root.
func ForestProblems(f locations.Forest) []string {
	var problems []string
	seen := make(map[string]int)
	f.Walk(func(n *locations.Node, depth int) bool {
		seen[n.ID]++
		if seen[n.ID] == 2 {
			problems = append(problems, "duplicate id "+n.ID)
		}
		if n.IsSite() && n.Children != nil {
			problems = append(problems, "site with children "+n.ID)
		}
		if depth == 0 && !n.IsRoot {
			problems = append(problems, "root not flagged "+n.ID)
		}
		if depth > 0 && n.IsRoot {
			problems = append(problems, "nested node flagged root "+n.ID)
		}
		return true
	})
	return problems
}

// AssertForestValid fails the test for every structural problem.
func AssertForestValid(t testing.TB, f locations.Forest) {
	t.Helper()
	for _, p := range ForestProblems(f) {
		t.Errorf("invalid forest: %s", p)
	}
}

// AssertRootIDs verifies the root order.
func AssertRootIDs(t testing.TB, f locations.Forest, want ...string) {
	t.Helper()
	if len(f) != len(want) {
		t.Errorf("expected %d roots %v, got %d", len(want), want, len(f))
		return
	}
	for i, n := range f {
		if n.ID != want[i] {
			t.Errorf("root %d = %s, want %s", i, n.ID, want[i])
		}
	}
}

// AssertChildIDs verifies the children of id in order.
func AssertChildIDs(t testing.TB, f locations.Forest, id string, want ...string) {
	t.Helper()
	n, ok := f.Find(id)
	if !ok {
		t.Errorf("node %s not found", id)
		return
	}
	if len(n.Children) != len(want) {
		var got []string
		for _, c := range n.Children {
			got = append(got, c.ID)
		}
		t.Errorf("%s children = %v, want %v", id, got, want)
		return
	}
	for i, c := range n.Children {
		if c.ID != want[i] {
			t.Errorf("%s child %d = %s, want %s", id, i, c.ID, want[i])
		}
	}
}

// AssertAbsent verifies id is nowhere in the forest.
func AssertAbsent(t testing.TB, f locations.Forest, id string) {
	t.Helper()
	if _, ok := f.Find(id); ok {
		t.Errorf("expected %s to be absent", id)
	}
}
