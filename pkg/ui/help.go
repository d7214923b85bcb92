package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// helpMarkdown builds the help overlay source from the key map so the two
// never drift apart.
func helpMarkdown(k keyMap) string {
	var sb strings.Builder
	sb.WriteString("# edgeloc\n\n")
	sb.WriteString("Browse regions and sites. Regions load their children when expanded; ")
	sb.WriteString("a search rebuilds the tree from the matching nodes and their ancestors.\n\n")

	sections := []struct {
		title    string
		bindings []key.Binding
	}{
		{"Navigation", []key.Binding{k.Up, k.Down, k.Top, k.Bottom}},
		{"Tree", []key.Binding{k.Expand, k.Toggle, k.Collapse, k.Refresh}},
		{"Search", []key.Binding{k.Search, k.Clear, k.Scope}},
		{"Actions", []key.Binding{k.Delete, k.Copy, k.Help, k.Quit}},
	}
	for _, s := range sections {
		fmt.Fprintf(&sb, "## %s\n\n| Key | Action |\n|---|---|\n", s.title)
		for _, b := range s.bindings {
			h := b.Help()
			fmt.Fprintf(&sb, "| `%s` | %s |\n", h.Key, h.Desc)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Search scopes cycle through *all*, *regions* and *sites*. ")
	sb.WriteString("Clearing the term, or shortening it below the minimum length, returns to browsing.\n")
	return sb.String()
}

// renderHelp renders the help overlay with glamour, falling back to the raw
// markdown if the renderer cannot be built.
func renderHelp(k keyMap, width int) string {
	src := helpMarkdown(k)
	wrap := width - 4
	if wrap < 40 {
		wrap = 40
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if err != nil {
		return src
	}
	out, err := r.Render(src)
	if err != nil {
		return src
	}
	return strings.TrimRight(out, "\n ")
}

func scopeNoun(s model.SearchScope) string {
	switch s {
	case model.ScopeRegions:
		return "regions"
	case model.ScopeSites:
		return "sites"
	default:
		return "regions or sites"
	}
}
