package datasource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// InventoryDiff represents differences between two inventories
type InventoryDiff struct {
	// Added contains ids present in B but not in A
	Added []string
	// Removed contains ids present in A but not in B
	Removed []string
	// Moved contains records whose parent differs between A and B
	Moved []ParentChange
	// Renamed contains ids whose name differs between A and B
	Renamed []string
	CountA  int
	CountB  int
}

// ParentChange represents a reparented region or site
type ParentChange struct {
	ID      string     `json:"id"`
	Kind    model.Kind `json:"kind"`
	ParentA string     `json:"parent_a"`
	ParentB string     `json:"parent_b"`
}

// HasChanges returns true if the inventories differ
func (d InventoryDiff) HasChanges() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Moved) > 0 || len(d.Renamed) > 0
}

// Summary returns a human-readable summary of the differences
func (d InventoryDiff) Summary() string {
	if !d.HasChanges() {
		return fmt.Sprintf("Inventories match (%d records each)", d.CountA)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d -> %d records:\n", d.CountA, d.CountB)
	list := func(label string, ids []string) {
		if len(ids) == 0 {
			return
		}
		fmt.Fprintf(&b, "  - %d %s\n", len(ids), label)
		if len(ids) <= 5 {
			for _, id := range ids {
				fmt.Fprintf(&b, "    - %s\n", id)
			}
		}
	}
	list("added", d.Added)
	list("removed", d.Removed)
	list("renamed", d.Renamed)
	if len(d.Moved) > 0 {
		fmt.Fprintf(&b, "  - %d moved\n", len(d.Moved))
		if len(d.Moved) <= 5 {
			for _, m := range d.Moved {
				fmt.Fprintf(&b, "    - %s: %s -> %s\n", m.ID, orRoot(m.ParentA), orRoot(m.ParentB))
			}
		}
	}
	return b.String()
}

func orRoot(id string) string {
	if id == "" {
		return "(root)"
	}
	return id
}

type entry struct {
	kind   model.Kind
	name   string
	parent string
}

func index(seed loader.Seed) map[string]entry {
	out := make(map[string]entry, seed.Len())
	for _, r := range seed.Regions {
		out[r.ResourceID] = entry{kind: model.KindRegion, name: r.Name, parent: r.ParentID()}
	}
	for _, s := range seed.Sites {
		out[s.ResourceID] = entry{kind: model.KindSite, name: s.Name, parent: s.RegionID()}
	}
	return out
}

// DiffInventories compares two inventories. All lists are sorted by id.
func DiffInventories(a, b loader.Seed) InventoryDiff {
	mapA, mapB := index(a), index(b)
	diff := InventoryDiff{CountA: len(mapA), CountB: len(mapB)}

	for id := range mapA {
		if _, ok := mapB[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	for id, eb := range mapB {
		ea, ok := mapA[id]
		if !ok {
			diff.Added = append(diff.Added, id)
			continue
		}
		if ea.parent != eb.parent {
			diff.Moved = append(diff.Moved, ParentChange{ID: id, Kind: eb.kind, ParentA: ea.parent, ParentB: eb.parent})
		}
		if ea.name != eb.name {
			diff.Renamed = append(diff.Renamed, id)
		}
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Renamed)
	sort.Slice(diff.Moved, func(i, j int) bool { return diff.Moved[i].ID < diff.Moved[j].ID })
	return diff
}
