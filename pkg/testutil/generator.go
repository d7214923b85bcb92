// Package testutil provides deterministic inventory fixtures and forest
// assertions for edgeloc tests.
package testutil

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// Inventory is a generated region/site hierarchy.
type Inventory struct {
	Regions []model.Region
	Sites   []model.Site
}

// GeneratorConfig controls inventory generation.
type GeneratorConfig struct {
	Seed           int64 // Random seed for determinism (0 = use current time)
	Roots          int   // Top-level regions (default 3)
	MaxDepth       int   // Region nesting depth below the roots (default 2)
	MaxSubregions  int   // Upper bound of child regions per region (default 3)
	MaxSites       int   // Upper bound of sites per region (default 4)
	IDPrefixRegion string
	IDPrefixSite   string
}

// DefaultConfig returns a config suitable for most tests.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Seed:           42,
		Roots:          3,
		MaxDepth:       2,
		MaxSubregions:  3,
		MaxSites:       4,
		IDPrefixRegion: "region",
		IDPrefixSite:   "site",
	}
}

// Generator creates inventory fixtures.
type Generator struct {
	cfg GeneratorConfig
	rng *rand.Rand
	seq int
}

// New creates a Generator with the given config.
func New(cfg GeneratorConfig) *Generator {
	def := DefaultConfig()
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Roots <= 0 {
		cfg.Roots = def.Roots
	}
	if cfg.MaxDepth < 0 {
		cfg.MaxDepth = 0
	}
	if cfg.MaxSubregions < 0 {
		cfg.MaxSubregions = 0
	}
	if cfg.MaxSites < 0 {
		cfg.MaxSites = 0
	}
	if cfg.IDPrefixRegion == "" {
		cfg.IDPrefixRegion = def.IDPrefixRegion
	}
	if cfg.IDPrefixSite == "" {
		cfg.IDPrefixSite = def.IDPrefixSite
	}
	return &Generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

// NewDefault creates a Generator with default config.
func NewDefault() *Generator {
	return New(DefaultConfig())
}

// Generate builds a random hierarchy. Ids are unique and carry the
// "region"/"site" markers.
func (g *Generator) Generate() Inventory {
	var inv Inventory
	for i := 0; i < g.cfg.Roots; i++ {
		g.region(&inv, "", 0)
	}
	return inv
}

func (g *Generator) region(inv *Inventory, parent string, depth int) {
	g.seq++
	id := fmt.Sprintf("%s-%d", g.cfg.IDPrefixRegion, g.seq)
	r := model.Region{ResourceID: id, Name: fmt.Sprintf("Region %d", g.seq)}
	if parent != "" {
		r.ParentRegion = &model.Ref{ResourceID: parent}
	}
	inv.Regions = append(inv.Regions, r)

	if g.cfg.MaxSites > 0 {
		for n := g.rng.Intn(g.cfg.MaxSites + 1); n > 0; n-- {
			g.seq++
			inv.Sites = append(inv.Sites, model.Site{
				ResourceID: fmt.Sprintf("%s-%d", g.cfg.IDPrefixSite, g.seq),
				Name:       fmt.Sprintf("Site %d", g.seq),
				Region:     &model.Ref{ResourceID: id, Name: r.Name},
			})
		}
	}
	if depth >= g.cfg.MaxDepth || g.cfg.MaxSubregions == 0 {
		return
	}
	for n := g.rng.Intn(g.cfg.MaxSubregions + 1); n > 0; n-- {
		g.region(inv, id, depth+1)
	}
}

// Roots returns the regions without a parent, in generation order.
func (inv Inventory) Roots() []model.Region {
	var out []model.Region
	for _, r := range inv.Regions {
		if r.ParentRegion == nil {
			out = append(out, r)
		}
	}
	return out
}

// ChildrenOf returns the direct child regions and sites of a region.
func (inv Inventory) ChildrenOf(id string) ([]model.Region, []model.Site) {
	var regions []model.Region
	var sites []model.Site
	for _, r := range inv.Regions {
		if r.ParentID() == id {
			regions = append(regions, r)
		}
	}
	for _, s := range inv.Sites {
		if s.RegionID() == id {
			sites = append(sites, s)
		}
	}
	return regions, sites
}

// TotalSites counts the sites anywhere under a region.
func (inv Inventory) TotalSites(id string) int {
	regions, sites := inv.ChildrenOf(id)
	total := len(sites)
	for _, r := range regions {
		total += inv.TotalSites(r.ResourceID)
	}
	return total
}

// SearchResults flattens the whole inventory into search hits, each with
// its parent id and explicit kind.
func (inv Inventory) SearchResults() []model.SearchResult {
	out := make([]model.SearchResult, 0, len(inv.Regions)+len(inv.Sites))
	for _, r := range inv.Regions {
		out = append(out, model.SearchResult{
			ResourceID: r.ResourceID,
			Name:       r.Name,
			ParentID:   r.ParentID(),
			Kind:       model.KindRegion,
		})
	}
	for _, s := range inv.Sites {
		out = append(out, model.SearchResult{
			ResourceID: s.ResourceID,
			Name:       s.Name,
			ParentID:   s.RegionID(),
			Kind:       model.KindSite,
		})
	}
	return out
}

// Shuffled returns a shuffled copy of results using the generator's source.
func (g *Generator) Shuffled(results []model.SearchResult) []model.SearchResult {
	out := append([]model.SearchResult(nil), results...)
	g.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
