package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/edgeloc/pkg/fetch"
	"github.com/vanderheijden86/edgeloc/pkg/locations"
	"github.com/vanderheijden86/edgeloc/pkg/model"
	"github.com/vanderheijden86/edgeloc/pkg/watcher"
)

// FileChangedMsg is sent when the inventory database changes on disk
type FileChangedMsg struct{}

// fetchedMsg carries a completed inventory call back to Update.
type fetchedMsg struct {
	result fetch.Result
}

// WatchFileCmd returns a command that waits for file changes and sends FileChangedMsg
func WatchFileCmd(w *watcher.Watcher) tea.Cmd {
	return func() tea.Msg {
		<-w.Changed()
		return FileChangedMsg{}
	}
}

// The command builders take their ticket synchronously, inside Update, so
// any state change issued after them makes the result stale.

func (m Model) rootsCmd() tea.Cmd {
	t := m.store.BeginFetch(locations.RootFocus)
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return fetchedMsg{result: coord.Roots(ctx, t)}
	}
}

func (m Model) childrenCmd(id string) tea.Cmd {
	t := m.store.BeginFetch(id)
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return fetchedMsg{result: coord.Children(ctx, t)}
	}
}

func (m Model) searchCmd() tea.Cmd {
	t := m.store.BeginFetch(locations.RootFocus)
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return fetchedMsg{result: coord.Search(ctx, t)}
	}
}

func (m Model) siteCountsCmd() tea.Cmd {
	ids := fetch.RootIDs(m.store)
	if len(ids) == 0 {
		return nil
	}
	t := m.store.BeginFetch(locations.RootFocus)
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return fetchedMsg{result: coord.SiteCounts(ctx, t, ids)}
	}
}

func (m Model) deleteCmd(kind model.Kind, id string) tea.Cmd {
	coord, ctx := m.coord, m.ctx
	return func() tea.Msg {
		return fetchedMsg{result: coord.Delete(ctx, kind, id)}
	}
}

// reloadCmd re-reads whatever the tree currently shows: the search results,
// or the root level plus the children of every expanded region.
func (m Model) reloadCmd() tea.Cmd {
	switch m.store.Mode() {
	case locations.ModeSearching:
		return m.searchCmd()
	case locations.ModeTransitioning:
		return m.rootsCmd()
	}
	cmds := []tea.Cmd{m.rootsCmd()}
	for _, id := range m.store.State().ExpandedIDs {
		cmds = append(cmds, m.childrenCmd(id))
	}
	return tea.Batch(cmds...)
}
