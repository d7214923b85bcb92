package export

import (
	"io"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/edgeloc/pkg/locations"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// RobotNode is the machine-readable form of a forest node.
type RobotNode struct {
	ID        string      `json:"id"`
	Kind      model.Kind  `json:"kind"`
	Name      string      `json:"name"`
	ParentID  string      `json:"parent_id,omitempty"`
	SiteCount *int        `json:"site_count,omitempty"`
	Children  []RobotNode `json:"children,omitempty"`
}

// RobotEnvelope wraps every --robot-* response.
type RobotEnvelope struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Command     string            `json:"command"`
	Term        string            `json:"term,omitempty"`
	Scope       model.SearchScope `json:"scope,omitempty"`
	Parent      string            `json:"parent,omitempty"`
	Total       int               `json:"total"`
	Truncated   bool              `json:"truncated,omitempty"`
	Nodes       []RobotNode       `json:"nodes"`
}

// RobotNodes converts a forest. Only loaded children are included; root
// regions carry their cached site count.
func RobotNodes(f locations.Forest) []RobotNode {
	out := make([]RobotNode, 0, len(f))
	for _, n := range f {
		out = append(out, robotNode(n))
	}
	return out
}

func robotNode(n *locations.Node) RobotNode {
	rn := RobotNode{ID: n.ID, Kind: n.Kind, Name: n.Name, ParentID: n.ParentID}
	if n.IsRoot {
		count := n.SiteCount
		rn.SiteCount = &count
	}
	for _, c := range n.Children {
		rn.Children = append(rn.Children, robotNode(c))
	}
	return rn
}

// WriteRobotJSON writes v as indented JSON followed by a newline.
func WriteRobotJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
