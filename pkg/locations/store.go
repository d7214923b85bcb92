package locations

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/metrics"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

const (
	// RootFocus is the focus value meaning "the root level".
	RootFocus = "\x00root"
	// NoFocus means nothing is focused.
	NoFocus = ""

	// DefaultMinSearchLength is the shortest term that enters search mode.
	DefaultMinSearchLength = 2
)

// Mode is the browsing/search state of the tree.
type Mode int

const (
	// ModeBrowsing: hierarchical fetch-on-expand from the root level.
	ModeBrowsing Mode = iota
	// ModeSearching: the forest is rebuilt from flat search results.
	ModeSearching
	// ModeTransitioning: the search term was cleared; the forest is empty
	// until the next root fetch lands.
	ModeTransitioning
)

func (m Mode) String() string {
	switch m {
	case ModeBrowsing:
		return "browsing"
	case ModeSearching:
		return "searching"
	case ModeTransitioning:
		return "transitioning"
	default:
		return "unknown"
	}
}

// State is a read-only snapshot of the store's scalar state.
type State struct {
	FocusedID      string
	RootID         string
	ExpandedIDs    []string
	SearchTerm     string
	SearchScope    model.SearchScope
	SearchPristine bool
	LoadingTree    bool
	IsEmpty        bool
	Mode           Mode
	Generation     uint64
}

// Store owns the forest and all focus, expansion and search state. All
// mutation goes through its methods. A Store is not safe for concurrent use;
// it belongs to the single goroutine driving the UI.
type Store struct {
	forest Forest

	focusedID string
	rootID    string
	expanded  map[string]struct{}

	searchTerm     string
	searchScope    model.SearchScope
	searchPristine bool
	minSearchLen   int
	mode           Mode

	loadingTree bool
	isEmpty     bool

	siteCounts map[string]int // root id -> total sites reported by the source

	generation uint64            // bumped when the whole forest is invalidated
	rootGen    uint64            // bumped when the root list loses a root
	epochs     map[string]uint64 // per node, bumped on collapse/delete
	pending    map[string]uint64 // target -> seq of its latest ticket
	seq        uint64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMinSearchLength overrides the search-term threshold.
func WithMinSearchLength(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.minSearchLen = n
		}
	}
}

// WithSearchScope sets the initial search scope.
func WithSearchScope(scope model.SearchScope) StoreOption {
	return func(s *Store) {
		s.searchScope = scope
	}
}

// NewStore returns an empty store focused on the root level and waiting for
// the first root fetch.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		focusedID:      RootFocus,
		expanded:       make(map[string]struct{}),
		searchScope:    model.ScopeAll,
		searchPristine: true,
		minSearchLen:   DefaultMinSearchLength,
		mode:           ModeBrowsing,
		loadingTree:    true,
		siteCounts:     make(map[string]int),
		epochs:         make(map[string]uint64),
		pending:        make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Forest returns the current roots. Callers must not mutate the nodes.
func (s *Store) Forest() Forest { return s.forest }

// Mode returns the current browsing/search mode.
func (s *Store) Mode() Mode { return s.mode }

// FocusedID returns the focused node id, RootFocus, or NoFocus.
func (s *Store) FocusedID() string { return s.focusedID }

// IsExpanded reports whether id is in the expanded set.
func (s *Store) IsExpanded(id string) bool {
	_, ok := s.expanded[id]
	return ok
}

// State returns a snapshot of the scalar state.
func (s *Store) State() State {
	ids := make([]string, 0, len(s.expanded))
	for id := range s.expanded {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return State{
		FocusedID:      s.focusedID,
		RootID:         s.rootID,
		ExpandedIDs:    ids,
		SearchTerm:     s.searchTerm,
		SearchScope:    s.searchScope,
		SearchPristine: s.searchPristine,
		LoadingTree:    s.loadingTree,
		IsEmpty:        s.isEmpty,
		Mode:           s.mode,
		Generation:     s.generation,
	}
}

// FocusNode records id as the node whose children are wanted. A node whose
// children are already loaded is expanded immediately. An id not yet in the
// forest is only remembered, so a later fetch can be attributed to it.
func (s *Store) FocusNode(id string) error {
	s.focusedID = id
	if id == RootFocus || id == NoFocus {
		return nil
	}

	node, ok := s.forest.Find(id)
	if !ok {
		debug.Log("locations: focus on unloaded node %s", id)
		return nil
	}
	if node.ChildrenLoaded() {
		node.Expanded = true
		s.expanded[id] = struct{}{}
	}
	root, err := s.forest.FindRoot(node)
	if err != nil {
		return err
	}
	s.rootID = root.ID
	return nil
}

// CollapseNode hides id's children and drops any pending-load flag. The
// loaded children stay cached.
func (s *Store) CollapseNode(id string) {
	node, ok := s.forest.Find(id)
	if ok {
		node.Expanded = false
		node.Loading = false
	}
	delete(s.expanded, id)
	if _, inFlight := s.pending[id]; ok || inFlight {
		s.epochs[id]++
	}
	if s.focusedID == id {
		s.focusedID = NoFocus
	}
}

// BeginLoadingFocused flags the focused node as loading.
func (s *Store) BeginLoadingFocused() {
	if s.focusedID == NoFocus || s.focusedID == RootFocus {
		return
	}
	if node, ok := s.forest.Find(s.focusedID); ok {
		node.Loading = true
	}
}

// ReplaceRoots rebuilds the root list from a fresh root fetch. Roots whose
// id was already present keep their expansion and loaded children; new ids
// come in collapsed; missing ids are dropped with their subtrees. A root
// listing that lands while searching is dropped.
func (s *Store) ReplaceRoots(regions []model.Region) {
	defer metrics.Timer(metrics.RootsRebuild)()

	if s.mode == ModeSearching {
		debug.Log("locations: root listing during search dropped")
		return
	}

	prev := make(map[string]*Node, len(s.forest))
	for _, n := range s.forest {
		prev[n.ID] = n
	}

	roots := make(Forest, 0, len(regions))
	ids := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		if _, dup := ids[r.ResourceID]; dup {
			debug.Log("locations: duplicate root %s ignored", r.ResourceID)
			continue
		}
		ids[r.ResourceID] = struct{}{}

		n := NewRegionNode(r)
		n.IsRoot = true
		if old, ok := prev[r.ResourceID]; ok {
			n.Expanded = old.Expanded
			n.Children = old.Children
		}
		if r.TotalSites != nil {
			s.siteCounts[r.ResourceID] = *r.TotalSites
		}
		roots = append(roots, n)
	}

	// A region promoted to the top level must not also survive inside a
	// carried-over subtree.
	for _, n := range roots {
		n.Children = pruneIDs(n.Children, ids)
	}

	for id := range s.siteCounts {
		if _, ok := ids[id]; !ok {
			delete(s.siteCounts, id)
		}
	}

	s.forest = roots
	s.isEmpty = len(roots) == 0
	s.loadingTree = false
	if s.mode == ModeTransitioning {
		s.mode = ModeBrowsing
	}
	s.syncExpanded()
	s.RecomputeSiteCounts()
}

// ReplaceChildren installs the result of parentID's children fetch: sites
// first, then regions. A region child that was already loaded keeps its
// children and expansion. A parent no longer in the forest is a stale
// response and is ignored. Installing children under a site is an invariant
// violation.
func (s *Store) ReplaceChildren(parentID string, regions []model.Region, sites []model.Site) error {
	defer metrics.Timer(metrics.ChildrenRebuild)()

	parent, ok := s.forest.Find(parentID)
	if !ok {
		debug.Log("locations: children for unknown node %s dropped", parentID)
		return nil
	}
	if parent.IsSite() {
		return invariant("replace children", parentID, "sites cannot have children")
	}

	prev := make(map[string]*Node, len(parent.Children))
	for _, c := range parent.Children {
		prev[c.ID] = c
	}

	children := make([]*Node, 0, len(sites)+len(regions))
	seen := make(map[string]struct{}, len(sites)+len(regions))
	adopt := func(n *Node) {
		if n.ID == parentID {
			debug.Log("locations: %s listed as its own child", n.ID)
			return
		}
		if _, dup := seen[n.ID]; dup {
			return
		}
		if _, wasChild := prev[n.ID]; !wasChild {
			if elsewhere, ok := s.forest.Find(n.ID); ok {
				if contains([]*Node{elsewhere}, parentID) {
					debug.Log("locations: %s is an ancestor of %s, skipped", n.ID, parentID)
					return
				}
				if elsewhere.IsRoot {
					delete(s.siteCounts, n.ID)
				}
				// Moved under a new parent: take its loaded state along.
				if n.IsRegion() {
					n.Children = elsewhere.Children
					n.Expanded = elsewhere.Expanded
				}
				s.detach(n.ID)
			}
		}
		seen[n.ID] = struct{}{}
		children = append(children, n)
	}

	for _, site := range sites {
		n := NewSiteNode(site)
		if n.ParentID == "" {
			n.ParentID = parentID
		}
		adopt(n)
	}
	for _, r := range regions {
		n := NewRegionNode(r)
		n.SiteCount = 0
		if n.ParentID == "" {
			n.ParentID = parentID
		}
		if old, ok := prev[n.ID]; ok && old.IsRegion() {
			n.Children = old.Children
			n.Expanded = old.Expanded
		}
		adopt(n)
	}

	for _, c := range children {
		c.Children = pruneIDs(c.Children, seen)
	}

	parent.Children = children
	parent.Expanded = true
	parent.Loading = false
	s.expanded[parentID] = struct{}{}
	s.isEmpty = len(s.forest) == 0
	s.syncExpanded()
	s.RecomputeSiteCounts()
	return nil
}

// DeleteNode removes id and its subtree. Focus and root references into the
// removed subtree are cleared. Unknown ids are ignored.
func (s *Store) DeleteNode(id string) {
	node, ok := s.forest.Find(id)
	if !ok {
		debug.Log("locations: delete of unknown node %s ignored", id)
		return
	}
	gone := []*Node{node}

	if s.focusedID != RootFocus && s.focusedID != NoFocus && contains(gone, s.focusedID) {
		s.focusedID = NoFocus
	}
	if s.rootID != "" && contains(gone, s.rootID) {
		s.rootID = ""
	}
	Forest(gone).Walk(func(n *Node, _ int) bool {
		s.epochs[n.ID]++
		return true
	})

	if node.IsRoot {
		delete(s.siteCounts, id)
		// The root list changed shape; outstanding root-level work is stale.
		s.rootGen++
	}
	s.detach(id)
	s.isEmpty = len(s.forest) == 0
	s.syncExpanded()
}

// SetSearchTerm switches between browsing and searching. A term shorter than
// the minimum length leaves search mode: the forest is emptied, focus returns
// to the root level and a root fetch is expected. A longer term enters search
// mode with an empty forest pending results. Any non-empty term marks the
// search as touched.
func (s *Store) SetSearchTerm(term string) {
	s.generation++
	s.forest = nil
	s.expanded = make(map[string]struct{})
	s.rootID = ""
	s.focusedID = RootFocus
	s.loadingTree = true
	s.isEmpty = false
	s.searchTerm = term
	s.searchPristine = term == ""

	if utf8.RuneCountInString(strings.TrimSpace(term)) < s.minSearchLen {
		s.mode = ModeTransitioning
		return
	}
	s.mode = ModeSearching
}

// SearchTerm returns the raw term last passed to SetSearchTerm.
func (s *Store) SearchTerm() string { return s.searchTerm }

// SetSearchScope changes the kind filter applied to search results. While
// searching, the current forest is stale at once and is emptied.
func (s *Store) SetSearchScope(scope model.SearchScope) {
	if scope == s.searchScope {
		return
	}
	s.searchScope = scope
	if s.mode == ModeSearching {
		s.generation++
		s.forest = nil
		s.expanded = make(map[string]struct{})
		s.loadingTree = true
	}
}

// SearchScope returns the active kind filter.
func (s *Store) SearchScope() model.SearchScope { return s.searchScope }

// RebuildFromSearchResults replaces the forest with the tree reconstructed
// from search hits. Results arriving after search mode was left are dropped.
// On an invariant violation the forest is left untouched.
func (s *Store) RebuildFromSearchResults(results []model.SearchResult) error {
	defer metrics.Timer(metrics.SearchRebuild)()

	if s.mode != ModeSearching {
		debug.Log("locations: %d search results outside search mode dropped", len(results))
		return nil
	}
	forest, err := NodesFromSearchResults(results, s.searchScope, s.siteCounts)
	if err != nil {
		return err
	}
	s.forest = forest
	s.isEmpty = len(forest) == 0
	s.loadingTree = false
	s.syncExpanded()
	return nil
}

// SetRootSiteCount caches the total site count reported for a root region.
// Recording against an id that is not a root in the forest is a programming
// error.
func (s *Store) SetRootSiteCount(rootID string, total int) error {
	for _, n := range s.forest {
		if n.ID == rootID {
			s.siteCounts[rootID] = total
			n.SiteCount = total
			return nil
		}
	}
	return invariant("set site count", rootID, "not a root in the forest")
}

// RootSiteCounts returns a copy of the cached per-root totals.
func (s *Store) RootSiteCounts() map[string]int {
	out := make(map[string]int, len(s.siteCounts))
	for k, v := range s.siteCounts {
		out[k] = v
	}
	return out
}

// RecomputeSiteCounts copies the cached totals onto the root nodes. Counts
// come from the data source per root; nothing is summed here.
func (s *Store) RecomputeSiteCounts() {
	for _, n := range s.forest {
		n.SiteCount = s.siteCounts[n.ID]
	}
}

// detach splices id out of the root list or out of its parent's children.
func (s *Store) detach(id string) {
	for i, n := range s.forest {
		if n.ID == id {
			s.forest = append(s.forest[:i:i], s.forest[i+1:]...)
			return
		}
	}
	parent, ok := s.forest.FindParent(id)
	if !ok {
		return
	}
	for i, c := range parent.Children {
		if c.ID == id {
			parent.Children = append(parent.Children[:i:i], parent.Children[i+1:]...)
			return
		}
	}
}

// syncExpanded rebuilds the expanded-id cache from the node flags and
// forgets the epochs of nodes that left the forest with no fetch in flight.
func (s *Store) syncExpanded() {
	s.expanded = make(map[string]struct{}, len(s.expanded))
	present := make(map[string]struct{}, len(s.epochs))
	s.forest.Walk(func(n *Node, _ int) bool {
		if n.Expanded {
			s.expanded[n.ID] = struct{}{}
		}
		present[n.ID] = struct{}{}
		return true
	})
	for id := range s.epochs {
		_, live := present[id]
		_, inFlight := s.pending[id]
		if !live && !inFlight {
			delete(s.epochs, id)
		}
	}
}

// pruneIDs drops every node whose id is in ids from the given subtree.
func pruneIDs(nodes []*Node, ids map[string]struct{}) []*Node {
	if nodes == nil {
		return nil
	}
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if _, drop := ids[n.ID]; drop {
			continue
		}
		n.Children = pruneIDs(n.Children, ids)
		out = append(out, n)
	}
	return out
}
