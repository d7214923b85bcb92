// Package locations maintains the lazily loaded region/site tree shown by the
// console: a forest of regions and sites, the focused node, expansion and
// loading flags, search mode, and cached per-root site counts.
//
// Nodes hold only a back-reference id to their parent. Ownership is encoded
// by position in the forest, so parent and root lookups walk the forest.
package locations

import (
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// Node is a region or a site in the forest.
type Node struct {
	ID        string
	Kind      model.Kind
	Name      string
	Children  []*Node // nil until loaded; always nil for sites
	IsRoot    bool
	Expanded  bool
	Loading   bool
	SiteCount int    // cached total for root regions
	ParentID  string // parent region id; lookup only
}

// IsRegion reports whether n is a region.
func (n *Node) IsRegion() bool { return n.Kind == model.KindRegion }

// IsSite reports whether n is a site.
func (n *Node) IsSite() bool { return n.Kind == model.KindSite }

// ChildrenLoaded reports whether a children fetch has completed for n.
func (n *Node) ChildrenLoaded() bool { return n.Children != nil }

// Forest is the ordered list of root nodes.
type Forest []*Node

// NewRegionNode maps a region record to a node stub. Children stay nil
// until the region's children are fetched.
func NewRegionNode(r model.Region) *Node {
	n := &Node{
		ID:       r.ResourceID,
		Kind:     model.KindRegion,
		Name:     r.Name,
		ParentID: r.ParentID(),
	}
	if r.TotalSites != nil {
		n.SiteCount = *r.TotalSites
	}
	return n
}

// NewSiteNode maps a site record to a leaf node.
func NewSiteNode(s model.Site) *Node {
	return &Node{
		ID:       s.ResourceID,
		Kind:     model.KindSite,
		Name:     s.Name,
		ParentID: s.RegionID(),
	}
}

// Walk visits every node depth-first in display order. Returning false from
// fn stops the walk.
func (f Forest) Walk(fn func(n *Node, depth int) bool) {
	var visit func(nodes []*Node, depth int) bool
	visit = func(nodes []*Node, depth int) bool {
		for _, n := range nodes {
			if n == nil {
				continue
			}
			if !fn(n, depth) {
				return false
			}
			if !visit(n.Children, depth+1) {
				return false
			}
		}
		return true
	}
	visit(f, 0)
}

// Find returns the first node with the given id.
func (f Forest) Find(id string) (*Node, bool) {
	var found *Node
	f.Walk(func(n *Node, _ int) bool {
		if n.ID == id {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// FindParent returns the node whose Children contain id. Roots and unknown
// ids return false.
func (f Forest) FindParent(id string) (*Node, bool) {
	var parent *Node
	f.Walk(func(n *Node, _ int) bool {
		for _, c := range n.Children {
			if c != nil && c.ID == id {
				parent = n
				return false
			}
		}
		return true
	})
	return parent, parent != nil
}

// FindRequired is Find for callers that already know id must exist.
func (f Forest) FindRequired(id string) (*Node, error) {
	n, ok := f.Find(id)
	if !ok {
		return nil, invariant("find", id, "node not in forest")
	}
	return n, nil
}

// FindRoot resolves the root owning n by following ParentID references
// upward through the forest. A root resolves to itself. A chain that stops
// at a non-root node, or loops, is an invariant violation.
func (f Forest) FindRoot(n *Node) (*Node, error) {
	if n == nil {
		return nil, invariant("find root", "", "nil node")
	}
	seen := make(map[string]struct{})
	cur := n
	for {
		if cur.IsRoot {
			return cur, nil
		}
		if _, dup := seen[cur.ID]; dup {
			return nil, invariant("find root", n.ID, "parent chain loops at %q", cur.ID)
		}
		seen[cur.ID] = struct{}{}

		parentID := cur.ParentID
		if parentID == "" {
			// Nodes grafted without a back-reference still have a
			// positional parent.
			if p, ok := f.FindParent(cur.ID); ok {
				cur = p
				continue
			}
			return nil, invariant("find root", n.ID, "%q has no parent and is not a root", cur.ID)
		}
		parent, ok := f.Find(parentID)
		if !ok {
			return nil, invariant("find root", n.ID, "parent %q of %q not in forest", parentID, cur.ID)
		}
		cur = parent
	}
}

// Count returns the number of nodes in the forest.
func (f Forest) Count() int {
	count := 0
	f.Walk(func(*Node, int) bool {
		count++
		return true
	})
	return count
}

// contains reports whether id is anywhere under the given nodes.
func contains(nodes []*Node, id string) bool {
	_, ok := Forest(nodes).Find(id)
	return ok
}

// Row is one visible line of the tree.
type Row struct {
	Node  *Node
	Depth int
	Last  bool   // last among its siblings
	Rails []bool // per ancestor level: true if that ancestor has siblings below
}

// Rows flattens the expanded part of the forest into display rows.
func (f Forest) Rows() []Row {
	var rows []Row
	var visit func(nodes []*Node, depth int, rails []bool)
	visit = func(nodes []*Node, depth int, rails []bool) {
		for i, n := range nodes {
			if n == nil {
				continue
			}
			last := i == len(nodes)-1
			rows = append(rows, Row{
				Node:  n,
				Depth: depth,
				Last:  last,
				Rails: append([]bool(nil), rails...),
			})
			if n.Expanded && len(n.Children) > 0 {
				visit(n.Children, depth+1, append(rails, !last))
			}
		}
	}
	visit(f, 0, nil)
	return rows
}
