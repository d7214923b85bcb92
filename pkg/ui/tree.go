package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/vanderheijden86/edgeloc/pkg/locations"
)

const (
	railGlyph   = "│   "
	spaceGlyph  = "    "
	teeGlyph    = "├── "
	elbowGlyph  = "└── "
	regionOpen  = "▾"
	regionShut  = "▸"
	siteGlyph   = "•"
	minNameCell = 8
)

// treePrefix draws the rails and connector for a row. Roots get none; the
// root level's own rail is not drawn because roots have no connector.
func treePrefix(r locations.Row) string {
	if r.Depth == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 1; i < len(r.Rails); i++ {
		if r.Rails[i] {
			sb.WriteString(railGlyph)
		} else {
			sb.WriteString(spaceGlyph)
		}
	}
	if r.Last {
		sb.WriteString(elbowGlyph)
	} else {
		sb.WriteString(teeGlyph)
	}
	return sb.String()
}

// nodeIcon is the expansion marker of a region or the bullet of a site.
func nodeIcon(n *locations.Node) string {
	switch {
	case n.IsSite():
		return siteGlyph
	case n.Expanded:
		return regionOpen
	default:
		return regionShut
	}
}

func displayName(n *locations.Node) string {
	if n.Name == "" {
		return n.ID
	}
	return n.Name
}

// renderRow renders one visible line of the tree, padded to m.width.
func (m Model) renderRow(r locations.Row, selected bool) string {
	t := m.theme
	n := r.Node

	prefix := treePrefix(r)

	var icon string
	if n.Loading && m.animate {
		icon = m.spinner.View()
	} else if n.Loading {
		icon = "…"
	} else if n.IsSite() {
		icon = t.SiteIcon.Render(nodeIcon(n))
	} else {
		icon = t.RegionIcon.Render(nodeIcon(n))
	}

	var badge string
	if n.IsRoot && n.SiteCount > 0 {
		badge = " " + t.CountBadge.Render(formatCount(n.SiteCount))
	}

	id := ""
	if n.Name != "" && n.Name != n.ID {
		id = " " + t.IDText.Render(n.ID)
	}

	// The id is dropped before the name is truncated.
	nameWidth := m.width - runewidth.StringWidth(prefix) - 3 - lipgloss.Width(badge)
	if nameWidth < minNameCell {
		nameWidth = minNameCell
	}
	name := truncate(displayName(n), nameWidth)
	if runewidth.StringWidth(name)+runewidth.StringWidth(n.ID)+1 > nameWidth {
		id = ""
	}

	line := t.RailText.Render(prefix) + icon + " " + t.NameText.Render(name) + id + badge
	if n.Loading {
		line += " " + t.LoadingText.Render("loading")
	}
	if selected {
		return t.Selected.Render(line)
	}
	return " " + line
}

// visibleRows is how many tree lines fit between the header and the footer.
func (m Model) visibleRows() int {
	chrome := 2 // header + footer
	if m.searchVisible() {
		chrome++
	}
	if h := m.height - chrome; h > 0 {
		return h
	}
	return 1
}

// renderTree renders the windowed tree body.
func (m Model) renderTree() string {
	st := m.store.State()
	rows := m.store.Forest().Rows()

	if len(rows) == 0 {
		if st.LoadingTree {
			return m.renderLoading()
		}
		return m.renderEmptyState()
	}

	end := m.offset + m.visibleRows()
	if end > len(rows) {
		end = len(rows)
	}
	var sb strings.Builder
	for i := m.offset; i < end; i++ {
		sb.WriteString(m.renderRow(rows[i], i == m.cursor))
		if i < end-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func (m Model) renderLoading() string {
	label := "Loading regions…"
	if m.store.Mode() == locations.ModeSearching {
		label = fmt.Sprintf("Searching for %q…", strings.TrimSpace(m.store.SearchTerm()))
	}
	if m.animate {
		label = m.spinner.View() + " " + label
	}
	return m.theme.LoadingText.Render(label)
}

func (m Model) renderEmptyState() string {
	t := m.theme
	if m.store.Mode() == locations.ModeSearching {
		return t.StatusText.Render(fmt.Sprintf("No %s match %q. Press esc to clear the search or tab to widen the scope.",
			scopeNoun(m.store.SearchScope()), strings.TrimSpace(m.store.SearchTerm())))
	}
	return t.StatusText.Render("No regions yet.\n\nImport a seed with:  edgeloc --import inventory.jsonl")
}

// positionIndicator renders "3/120" for the cursor row.
func (m Model) positionIndicator() string {
	n := len(m.store.Forest().Rows())
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d/%d", m.cursor+1, n)
}
