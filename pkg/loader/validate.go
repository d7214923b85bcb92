package loader

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrInvalidSeed is returned by Validate.
var ErrInvalidSeed = errors.New("invalid seed")

// Validate checks the seed as a whole: ids are unique across regions and
// sites, every parent reference names a region in the seed, and region
// parents form no cycle. Every problem found is reported in one error.
func Validate(seed Seed) error {
	var problems []string

	ids := make(map[string]int64, seed.Len())
	regions := make(map[string]bool, len(seed.Regions))
	for _, r := range seed.Regions {
		if _, dup := ids[r.ResourceID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate id %s", r.ResourceID))
			continue
		}
		ids[r.ResourceID] = int64(len(ids))
		regions[r.ResourceID] = true
	}
	for _, s := range seed.Sites {
		if _, dup := ids[s.ResourceID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate id %s", s.ResourceID))
			continue
		}
		ids[s.ResourceID] = int64(len(ids))
		if s.RegionID() == "" {
			problems = append(problems, fmt.Sprintf("site %s has no region", s.ResourceID))
		} else if !regions[s.RegionID()] {
			problems = append(problems, fmt.Sprintf("site %s references unknown region %s", s.ResourceID, s.RegionID()))
		}
	}

	g := simple.NewDirectedGraph()
	for id := range regions {
		g.AddNode(simple.Node(ids[id]))
	}
	for _, r := range seed.Regions {
		parent := r.ParentID()
		if parent == "" || parent == r.ResourceID {
			continue
		}
		if !regions[parent] {
			problems = append(problems, fmt.Sprintf("region %s references unknown parent %s", r.ResourceID, parent))
			continue
		}
		from, to := g.Node(ids[parent]), g.Node(ids[r.ResourceID])
		if from == nil || to == nil || g.HasEdgeFromTo(from.ID(), to.ID()) {
			continue
		}
		g.SetEdge(g.NewEdge(from, to))
	}

	if _, err := topo.Sort(g); err != nil {
		var cycles topo.Unorderable
		if errors.As(err, &cycles) {
			names := make(map[int64]string, len(ids))
			for id, n := range ids {
				names[n] = id
			}
			for _, c := range cycles {
				problems = append(problems, "region cycle: "+cycleString(c, names))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidSeed, strings.Join(problems, "; "))
}

func cycleString(nodes []graph.Node, names map[int64]string) string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, names[n.ID()])
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
