package locations

import (
	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// Ticket identifies one outstanding fetch. Results applied through a ticket
// are dropped when the state they were requested for no longer holds. Every
// ticket goes stale when the search term changes, or the scope changes while
// searching. Root-level tickets also go stale when a root is deleted. Node
// tickets go stale when their target is collapsed or deleted.
type Ticket struct {
	Target     string // node id, or RootFocus for root listings and searches
	Seq        uint64
	Generation uint64
	RootGen    uint64
	Epoch      uint64
	Term       string
	Scope      model.SearchScope
}

// BeginFetch issues a ticket for a fetch targeting id (or RootFocus). For a
// node target it also marks the node as loading.
func (s *Store) BeginFetch(target string) Ticket {
	if target != RootFocus {
		if node, ok := s.forest.Find(target); ok {
			node.Loading = true
		}
	}
	s.seq++
	s.pending[target] = s.seq
	return Ticket{
		Target:     target,
		Seq:        s.seq,
		Generation: s.generation,
		RootGen:    s.rootGen,
		Epoch:      s.epochs[target],
		Term:       s.searchTerm,
		Scope:      s.searchScope,
	}
}

// Current reports whether results fetched under t may still be applied.
func (s *Store) Current(t Ticket) bool {
	if t.Generation != s.generation {
		return false
	}
	if t.Target == RootFocus {
		return t.RootGen == s.rootGen
	}
	return t.Epoch == s.epochs[t.Target]
}

// settle forgets t as outstanding and reports whether it was the latest
// fetch issued for its target.
func (s *Store) settle(t Ticket) bool {
	if s.pending[t.Target] != t.Seq {
		return false
	}
	delete(s.pending, t.Target)
	return true
}

// Abandon settles a fetch that failed. The target stops loading unless a
// newer fetch for it is still outstanding.
func (s *Store) Abandon(t Ticket) {
	if !s.settle(t) || t.Target == RootFocus {
		return
	}
	if node, ok := s.forest.Find(t.Target); ok {
		node.Loading = false
	}
}

// ApplyRoots is ReplaceRoots guarded by t.
func (s *Store) ApplyRoots(t Ticket, regions []model.Region) bool {
	s.settle(t)
	if !s.Current(t) {
		debug.Log("locations: stale root listing dropped (gen %d, now %d)", t.Generation, s.generation)
		return false
	}
	s.ReplaceRoots(regions)
	return true
}

// ApplyChildren is ReplaceChildren guarded by t.
func (s *Store) ApplyChildren(t Ticket, regions []model.Region, sites []model.Site) (bool, error) {
	latest := s.settle(t)
	if !s.Current(t) {
		debug.Log("locations: stale children of %s dropped", t.Target)
		// A newer fetch for the same node still owns the loading flag.
		if node, ok := s.forest.Find(t.Target); ok && latest {
			node.Loading = false
		}
		return false, nil
	}
	if err := s.ReplaceChildren(t.Target, regions, sites); err != nil {
		return false, err
	}
	return true, nil
}

// ApplySearch is RebuildFromSearchResults guarded by t.
func (s *Store) ApplySearch(t Ticket, results []model.SearchResult) (bool, error) {
	s.settle(t)
	if !s.Current(t) || t.Term != s.searchTerm || t.Scope != s.searchScope {
		debug.Log("locations: stale search results for %q dropped", t.Term)
		return false, nil
	}
	if err := s.RebuildFromSearchResults(results); err != nil {
		return false, err
	}
	return true, nil
}

// ApplySiteCounts records per-root totals fetched under t. Roots that left
// the forest while the counts were in flight are skipped; use
// SetRootSiteCount where an unknown root must fail.
func (s *Store) ApplySiteCounts(t Ticket, counts map[string]int) bool {
	s.settle(t)
	if !s.Current(t) {
		return false
	}
	roots := make(map[string]*Node, len(s.forest))
	for _, n := range s.forest {
		roots[n.ID] = n
	}
	for id, total := range counts {
		n, ok := roots[id]
		if !ok {
			debug.Log("locations: site count for departed root %s dropped", id)
			continue
		}
		s.siteCounts[id] = total
		n.SiteCount = total
	}
	return true
}
