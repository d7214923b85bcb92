package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile holds the detected terminal color profile. Computed once at
// package init so every style helper can branch without re-detecting.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// ThemeFg returns the given hex color for ANSI256+ terminals and a safe
// ANSI white (color 7) for 16-color or lower terminals.
func ThemeFg(hex string) lipgloss.TerminalColor {
	if TermProfile < colorprofile.ANSI256 {
		return lipgloss.ANSIColor(7)
	}
	return lipgloss.Color(hex)
}

// Theme holds the console palette and the styles derived from it.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Region    lipgloss.AdaptiveColor
	Site      lipgloss.AdaptiveColor
	Danger    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	Base     lipgloss.Style
	Selected lipgloss.Style
	Header   lipgloss.Style

	// Pre-computed row styles; rows render every frame.
	RailText    lipgloss.Style
	RegionIcon  lipgloss.Style
	SiteIcon    lipgloss.Style
	NameText    lipgloss.Style
	IDText      lipgloss.Style
	CountBadge  lipgloss.Style
	LoadingText lipgloss.Style
	StatusText  lipgloss.Style
	ErrorText   lipgloss.Style
	PromptText  lipgloss.Style
}

// DefaultTheme returns the standard Dracula-inspired theme (adaptive)
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Region:    lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"},
		Site:      lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"},
		Danger:    lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
	}

	t.Base = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#F8F8F2"})

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(t.Primary).
		Bold(true)

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.RailText = r.NewStyle().Foreground(t.Muted)
	t.RegionIcon = r.NewStyle().Foreground(t.Region).Bold(true)
	t.SiteIcon = r.NewStyle().Foreground(t.Site)
	t.NameText = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#E8E8E8"})
	t.IDText = r.NewStyle().Foreground(t.Secondary)
	t.CountBadge = r.NewStyle().Foreground(ThemeFg("#282A36")).Background(t.Region).Padding(0, 1)
	t.LoadingText = r.NewStyle().Foreground(t.Muted).Italic(true)
	t.StatusText = r.NewStyle().Foreground(t.Subtext)
	t.ErrorText = r.NewStyle().Foreground(t.Danger).Bold(true)
	t.PromptText = r.NewStyle().Foreground(t.Danger)

	return t
}

// TestTheme returns a theme suitable for use in tests.
func TestTheme() Theme {
	return DefaultTheme(lipgloss.NewRenderer(os.Stdout))
}
