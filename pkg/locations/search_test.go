package locations

import (
	"errors"
	"testing"

	"github.com/vanderheijden86/edgeloc/pkg/model"
)

func threeLevelResults() []model.SearchResult {
	return []model.SearchResult{
		{ResourceID: "region-1", Name: "R1"},
		{ResourceID: "region-11", Name: "R11", ParentID: "region-1"},
		{ResourceID: "site-11", Name: "S11", ParentID: "region-11"},
	}
}

// TestThreeLevelGraft verifies a root/region/site chain comes back fully
// expanded.
func TestThreeLevelGraft(t *testing.T) {
	f, err := NodesFromSearchResults(threeLevelResults(), model.ScopeAll, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(f) != 1 || f[0].ID != "region-1" {
		t.Fatalf("roots = %v, want [region-1]", ids(f))
	}
	r1 := f[0]
	if len(r1.Children) != 1 || r1.Children[0].ID != "region-11" {
		t.Fatalf("region-1 children = %v", ids(r1.Children))
	}
	r11 := r1.Children[0]
	if len(r11.Children) != 1 || r11.Children[0].ID != "site-11" {
		t.Fatalf("region-11 children = %v", ids(r11.Children))
	}
	for _, n := range []*Node{r1, r11, r11.Children[0]} {
		if !n.Expanded {
			t.Errorf("%s not expanded", n.ID)
		}
	}
	if !r1.IsRoot || r11.IsRoot {
		t.Error("only region-1 should be a root")
	}
	if r11.Children[0].Kind != model.KindSite {
		t.Errorf("site-11 kind = %s", r11.Children[0].Kind)
	}
}

// TestRegionScopeDropsSites verifies no site survives the Regions filter.
func TestRegionScopeDropsSites(t *testing.T) {
	f, err := NodesFromSearchResults(threeLevelResults(), model.ScopeRegions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := f.Find("site-11"); ok {
		t.Error("site-11 present with region scope")
	}
	if f.Count() != 2 {
		t.Errorf("count = %d, want 2", f.Count())
	}
}

func TestSiteScopeKeepsAncestors(t *testing.T) {
	results := append(threeLevelResults(),
		model.SearchResult{ResourceID: "region-2", Name: "R2"},
		model.SearchResult{ResourceID: "region-12", Name: "R12", ParentID: "region-1"},
	)
	f, err := NodesFromSearchResults(results, model.ScopeSites, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"region-1", "region-11", "site-11"} {
		if _, ok := f.Find(id); !ok {
			t.Errorf("%s missing", id)
		}
	}
	for _, id := range []string{"region-2", "region-12"} {
		if _, ok := f.Find(id); ok {
			t.Errorf("%s has no site below it and should be dropped", id)
		}
	}
}

func TestSearchOrderIndependent(t *testing.T) {
	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}}
	base := threeLevelResults()
	for _, order := range orders {
		results := make([]model.SearchResult, 0, len(order))
		for _, i := range order {
			results = append(results, base[i])
		}
		f, err := NodesFromSearchResults(results, model.ScopeAll, nil)
		if err != nil {
			t.Fatalf("order %v: %v", order, err)
		}
		if f.Count() != 3 || len(f) != 1 {
			t.Errorf("order %v: count=%d roots=%d", order, f.Count(), len(f))
		}
	}
}

func TestSearchRootSiteCounts(t *testing.T) {
	results := []model.SearchResult{
		{ResourceID: "region-1", Name: "R1"},
		{ResourceID: "region-2", Name: "R2"},
	}
	f, err := NodesFromSearchResults(results, model.ScopeAll, map[string]int{"region-1": 9})
	if err != nil {
		t.Fatal(err)
	}
	if f[0].SiteCount != 9 || f[1].SiteCount != 0 {
		t.Errorf("site counts = %d/%d, want 9/0", f[0].SiteCount, f[1].SiteCount)
	}
}

func TestSearchExplicitKindWins(t *testing.T) {
	// The id carries the wrong marker; the explicit kind decides.
	results := []model.SearchResult{
		{ResourceID: "region-1", Name: "R1"},
		{ResourceID: "site-under-region-1", Name: "S", ParentID: "region-1", Kind: model.KindSite},
	}
	f, err := NodesFromSearchResults(results, model.ScopeRegions, nil)
	if err != nil {
		t.Fatal(err)
	}
	if f.Count() != 1 {
		t.Errorf("explicitly tagged site survived region scope: count=%d", f.Count())
	}
}

func TestSearchDuplicateKeepsFirst(t *testing.T) {
	results := []model.SearchResult{
		{ResourceID: "region-1", Name: "first"},
		{ResourceID: "region-1", Name: "second"},
	}
	f, err := NodesFromSearchResults(results, model.ScopeAll, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(f) != 1 || f[0].Name != "first" {
		t.Errorf("unexpected forest %v", ids(f))
	}
}

func TestSearchEmpty(t *testing.T) {
	f, err := NodesFromSearchResults(nil, model.ScopeAll, nil)
	if err != nil || len(f) != 0 {
		t.Errorf("got %v, %v", f, err)
	}
}

func TestSearchInvariantViolations(t *testing.T) {
	tests := []struct {
		name    string
		results []model.SearchResult
	}{
		{"unknown kind", []model.SearchResult{{ResourceID: "host-1", Name: "H"}}},
		{"orphan site", []model.SearchResult{{ResourceID: "site-1", Name: "S"}}},
		{"missing parent", []model.SearchResult{{ResourceID: "region-2", Name: "R2", ParentID: "region-404"}}},
		{"site as parent", []model.SearchResult{
			{ResourceID: "region-1", Name: "R1"},
			{ResourceID: "site-1", Name: "S1", ParentID: "region-1"},
			{ResourceID: "site-2", Name: "S2", ParentID: "site-1"},
		}},
		{"parent cycle", []model.SearchResult{
			{ResourceID: "region-a", Name: "A", ParentID: "region-b"},
			{ResourceID: "region-b", Name: "B", ParentID: "region-a"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NodesFromSearchResults(tt.results, model.ScopeAll, nil)
			if !errors.Is(err, ErrInvariant) {
				t.Errorf("expected ErrInvariant, got %v", err)
			}
		})
	}
}
