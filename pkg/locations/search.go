package locations

import (
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// NodesFromSearchResults rebuilds a forest from flat search hits.
//
// The input order carries no meaning: the first pass indexes every record by
// id, the second grafts each record under its parent through that index.
// Roots and every grafted parent come back expanded. Root site counts are
// taken from rootCounts when present. With ScopeRegions sites are skipped;
// with ScopeSites only sites and the regions on their ancestor chains are
// kept. Duplicate ids keep their first occurrence.
//
// A record with no resolvable kind, a site without a parent, a parent id
// missing from the result set, a site used as a parent, and a parent cycle
// are all invariant violations.
func NodesFromSearchResults(results []model.SearchResult, scope model.SearchScope, rootCounts map[string]int) (Forest, error) {
	type entry struct {
		rec  model.SearchResult
		kind model.Kind
	}

	// Pass 1: index.
	index := make(map[string]entry, len(results))
	order := make([]string, 0, len(results))
	for _, r := range results {
		kind, ok := r.ResolvedKind()
		if !ok {
			return nil, invariant("search rebuild", r.ResourceID, "cannot determine region or site")
		}
		if _, dup := index[r.ResourceID]; dup {
			continue
		}
		index[r.ResourceID] = entry{rec: r, kind: kind}
		order = append(order, r.ResourceID)
	}

	keep := make(map[string]bool, len(order))
	switch scope {
	case model.ScopeSites:
		for _, id := range order {
			e := index[id]
			if e.kind != model.KindSite {
				continue
			}
			// Keep the chain from the site up to its root.
			seen := make(map[string]bool)
			for cur := id; cur != "" && !seen[cur]; {
				seen[cur] = true
				keep[cur] = true
				p, ok := index[cur]
				if !ok {
					break
				}
				cur = p.rec.ParentID
			}
		}
	default:
		for _, id := range order {
			keep[id] = scope.Includes(index[id].kind)
		}
	}

	nodes := make(map[string]*Node, len(order))
	for _, id := range order {
		if !keep[id] {
			continue
		}
		e := index[id]
		nodes[id] = &Node{
			ID:       id,
			Kind:     e.kind,
			Name:     e.rec.Name,
			ParentID: e.rec.ParentID,
			Expanded: true,
		}
	}

	// Pass 2: graft.
	var forest Forest
	grafted := 0
	for _, id := range order {
		n, ok := nodes[id]
		if !ok {
			continue
		}
		if n.ParentID == "" {
			if n.IsSite() {
				return nil, invariant("search rebuild", id, "site has no parent region")
			}
			n.IsRoot = true
			n.SiteCount = rootCounts[id]
			forest = append(forest, n)
			grafted++
			continue
		}
		parent, ok := nodes[n.ParentID]
		if !ok {
			if _, indexed := index[n.ParentID]; indexed {
				// Parent was filtered out by scope; so is the child.
				continue
			}
			return nil, invariant("search rebuild", id, "parent %q not in results", n.ParentID)
		}
		if parent.IsSite() {
			return nil, invariant("search rebuild", id, "parent %q is a site", n.ParentID)
		}
		parent.Expanded = true
		if parent.Children == nil {
			parent.Children = make([]*Node, 0, 1)
		}
		parent.Children = append(parent.Children, n)
		grafted++
	}

	// Grafted nodes not reachable from a root sit on a parent cycle.
	if reachable := forest.Count(); reachable != grafted {
		return nil, invariant("search rebuild", "", "parent cycle among %d records", grafted-reachable)
	}

	return forest, nil
}
