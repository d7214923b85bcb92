package export

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"sort"

	svg "github.com/ajstarks/svgo"

	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// TreeSVGOptions controls the diagram.
type TreeSVGOptions struct {
	Title string
	// RootID limits the diagram to one region's subtree. Empty draws all.
	RootID string
}

var (
	colorBackdrop = color.RGBA{R: 0x28, G: 0x2a, B: 0x36, A: 0xff}
	colorRegion   = color.RGBA{R: 0x44, G: 0x3a, B: 0x6b, A: 0xff}
	colorSite     = color.RGBA{R: 0x1a, G: 0x3d, B: 0x2a, A: 0xff}
	colorStroke   = color.RGBA{R: 0x62, G: 0x72, B: 0xa4, A: 0xff}
	colorEdge     = color.RGBA{R: 0x6b, G: 0x77, B: 0x8c, A: 0xff}
	colorText     = color.RGBA{R: 0xf8, G: 0xf8, B: 0xf2, A: 0xff}
	colorSubtle   = color.RGBA{R: 0xbf, G: 0xbf, B: 0xbf, A: 0xff}
)

const (
	svgMargin  = 24
	svgHeader  = 56
	svgIndent  = 36
	svgRowH    = 34
	svgBoxH    = 26
	svgBoxW    = 300
	svgMaxName = 32
)

// treeRow is one box in the diagram.
type treeRow struct {
	ID        string
	Kind      model.Kind
	Name      string
	Depth     int
	Parent    int // row index of the parent, -1 for roots
	SiteCount int
}

// layoutTree orders the seed depth-first: sites before subregions, each
// group by name, the same order the console lists children in.
func layoutTree(seed loader.Seed, rootID string) ([]treeRow, error) {
	type child struct {
		id, name string
		kind     model.Kind
	}
	children := make(map[string][]child)
	known := make(map[string]bool, len(seed.Regions))
	for _, r := range seed.Regions {
		known[r.ResourceID] = true
		children[r.ParentID()] = append(children[r.ParentID()], child{r.ResourceID, r.Name, model.KindRegion})
	}
	for _, s := range seed.Sites {
		children[s.RegionID()] = append(children[s.RegionID()], child{s.ResourceID, s.Name, model.KindSite})
	}
	for _, list := range children {
		sort.SliceStable(list, func(i, j int) bool {
			if list[i].kind != list[j].kind {
				return list[i].kind == model.KindSite
			}
			if list[i].name != list[j].name {
				return list[i].name < list[j].name
			}
			return list[i].id < list[j].id
		})
	}

	var totals func(id string) int
	totals = func(id string) int {
		n := 0
		for _, c := range children[id] {
			if c.kind == model.KindSite {
				n++
			} else {
				n += totals(c.id)
			}
		}
		return n
	}

	var rows []treeRow
	var visit func(c child, depth, parent int)
	visit = func(c child, depth, parent int) {
		row := treeRow{ID: c.id, Kind: c.kind, Name: c.name, Depth: depth, Parent: parent}
		if c.kind == model.KindRegion {
			row.SiteCount = totals(c.id)
		}
		rows = append(rows, row)
		if c.kind != model.KindRegion {
			return
		}
		idx := len(rows) - 1
		for _, gc := range children[c.id] {
			visit(gc, depth+1, idx)
		}
	}

	if rootID == "" {
		for _, c := range children[""] {
			if c.kind == model.KindRegion {
				visit(c, 0, -1)
			}
		}
		return rows, nil
	}
	if !known[rootID] {
		return nil, fmt.Errorf("region %s not in inventory", rootID)
	}
	for _, r := range seed.Regions {
		if r.ResourceID == rootID {
			visit(child{r.ResourceID, r.Name, model.KindRegion}, 0, -1)
		}
	}
	return rows, nil
}

// RenderTreeSVG draws the region/site hierarchy as an indented diagram.
func RenderTreeSVG(w io.Writer, seed loader.Seed, opts TreeSVGOptions) error {
	rows, err := layoutTree(seed, opts.RootID)
	if err != nil {
		return err
	}

	maxDepth := 0
	for _, r := range rows {
		if r.Depth > maxDepth {
			maxDepth = r.Depth
		}
	}
	width := 2*svgMargin + maxDepth*svgIndent + svgBoxW
	height := svgHeader + 2*svgMargin + len(rows)*svgRowH

	title := opts.Title
	if title == "" {
		title = "Inventory"
	}

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, fmt.Sprintf("fill:%s", css(colorBackdrop)))
	canvas.Text(svgMargin, svgMargin+16, title,
		fmt.Sprintf("fill:%s;font-size:16px;font-family:monospace;font-weight:bold", css(colorText)))
	canvas.Text(svgMargin, svgMargin+34, fmt.Sprintf("regions: %d  sites: %d", countKind(rows, model.KindRegion), countKind(rows, model.KindSite)),
		fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorSubtle)))

	pos := func(i int) (x, y int) {
		return svgMargin + rows[i].Depth*svgIndent, svgHeader + svgMargin + i*svgRowH
	}

	// Elbow connectors first so boxes paint over them.
	for i, r := range rows {
		if r.Parent < 0 {
			continue
		}
		px, py := pos(r.Parent)
		x, y := pos(i)
		elbowX := px + svgIndent/2
		style := fmt.Sprintf("stroke:%s;stroke-width:1.5;fill:none", css(colorEdge))
		canvas.Polyline([]int{elbowX, elbowX, x}, []int{py + svgBoxH, y + svgBoxH/2, y + svgBoxH/2}, style)
	}

	for i, r := range rows {
		x, y := pos(i)
		fill := colorSite
		label := truncate(r.Name, svgMaxName)
		if r.Kind == model.KindRegion {
			fill = colorRegion
			label = fmt.Sprintf("%s (%d)", label, r.SiteCount)
		}
		canvas.Gid(r.ID)
		canvas.Roundrect(x, y, svgBoxW, svgBoxH, 6, 6,
			fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", css(fill), css(colorStroke)))
		canvas.Text(x+8, y+17, label, fmt.Sprintf("fill:%s;font-size:12px;font-family:monospace", css(colorText)))
		canvas.Gend()
	}

	canvas.End()
	return nil
}

// WriteTreeSVG renders the diagram to path.
func WriteTreeSVG(path string, seed loader.Seed, opts TreeSVGOptions) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderTreeSVG(file, seed, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func countKind(rows []treeRow, kind model.Kind) int {
	n := 0
	for _, r := range rows {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

func css(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
