// Package ui is the interactive location console: a lazily loaded
// region/site tree with search, built on Bubble Tea.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/export"
	"github.com/vanderheijden86/edgeloc/pkg/fetch"
	"github.com/vanderheijden86/edgeloc/pkg/locations"
	"github.com/vanderheijden86/edgeloc/pkg/metrics"
	"github.com/vanderheijden86/edgeloc/pkg/model"
	"github.com/vanderheijden86/edgeloc/pkg/watcher"
)

// pendingDelete is a delete waiting for y/n.
type pendingDelete struct {
	kind  model.Kind
	id    string
	name  string
	sites int
}

// Model is the Bubble Tea model of the console.
type Model struct {
	ctx     context.Context
	store   *locations.Store
	coord   *fetch.Coordinator
	watcher *watcher.Watcher

	theme   Theme
	keys    keyMap
	help    help.Model
	search  textinput.Model
	spinner spinner.Model
	helpVP  viewport.Model

	// animate drives the spinner and the search cursor blink. Tests turn
	// it off so every command returns without sleeping.
	animate bool

	// The cursor follows selectedID across reloads; cursor is the fallback
	// position when that node disappears.
	cursor     int
	selectedID string
	offset     int
	width      int
	height     int

	showHelp bool
	pending  *pendingDelete

	status        string
	statusIsError bool

	hits      int
	total     int
	truncated bool
}

// Option configures a Model.
type Option func(*Model)

// WithWatcher reloads the tree whenever w reports a change.
func WithWatcher(w *watcher.Watcher) Option {
	return func(m *Model) { m.watcher = w }
}

// WithTheme overrides the default theme.
func WithTheme(t Theme) Option {
	return func(m *Model) { m.theme = t }
}

// NewModel builds the console over store, loading through coord.
func NewModel(ctx context.Context, store *locations.Store, coord *fetch.Coordinator, opts ...Option) Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "search regions and sites"
	ti.CharLimit = 128

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		ctx:     ctx,
		store:   store,
		coord:   coord,
		theme:   DefaultTheme(lipgloss.DefaultRenderer()),
		keys:    defaultKeyMap(),
		help:    help.New(),
		search:  ti,
		spinner: sp,
		helpVP:  viewport.New(80, 20),
		animate: true,
		width:   80,
		height:  24,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.spinner.Style = m.theme.Renderer.NewStyle().Foreground(m.theme.Primary)
	return m
}

// setAnimate toggles spinner ticks and cursor blinking.
func (m *Model) setAnimate(on bool) {
	m.animate = on
	mode := cursor.CursorStatic
	if on {
		mode = cursor.CursorBlink
	}
	m.search.Cursor.SetMode(mode)
}

// Init loads the root level and starts the spinner and file watch.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.reloadCmd()}
	if m.animate {
		cmds = append(cmds, m.spinner.Tick)
	}
	if m.watcher != nil {
		cmds = append(cmds, WatchFileCmd(m.watcher))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.search.Width = max(10, msg.Width-4)
		m.helpVP.Width = msg.Width
		m.helpVP.Height = max(1, msg.Height-1)
		if m.showHelp {
			m.helpVP.SetContent(renderHelp(m.keys, m.width))
		}
		m.syncCursor()
		return m, nil

	case spinner.TickMsg:
		if !m.animate {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case fetchedMsg:
		return m.handleFetched(msg)

	case FileChangedMsg:
		debug.Log("ui: inventory changed on disk")
		m.setStatus("Inventory changed on disk, reloading", false)
		cmds := []tea.Cmd{m.reloadCmd()}
		if m.watcher != nil {
			cmds = append(cmds, WatchFileCmd(m.watcher))
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.search.Focused() {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleFetched(msg fetchedMsg) (tea.Model, tea.Cmd) {
	applied, err := msg.result.Apply(m.store)
	if err != nil {
		if r, ok := msg.result.(fetch.ChildrenResult); ok {
			m.store.CollapseNode(r.Ticket.Target)
		}
		m.setStatus(err.Error(), true)
		m.syncCursor()
		return m, nil
	}

	var cmd tea.Cmd
	switch r := msg.result.(type) {
	case fetch.RootsResult:
		if applied {
			cmd = m.siteCountsCmd()
		}
	case fetch.SearchResult:
		if applied {
			m.hits, m.total, m.truncated = r.Hits, r.Total, r.Truncated()
		}
	case fetch.DeleteResult:
		m.setStatus(fmt.Sprintf("Deleted %s %s", r.Kind, r.ID), false)
		if m.store.Mode() == locations.ModeBrowsing {
			cmd = m.siteCountsCmd()
		}
	}
	m.syncCursor()
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.pending != nil {
		return m.handleConfirm(msg)
	}
	if m.search.Focused() {
		return m.handleSearchKey(msg)
	}
	if m.showHelp {
		if key.Matches(msg, m.keys.Help, m.keys.Clear, m.keys.Quit) {
			m.showHelp = false
			return m, nil
		}
		var cmd tea.Cmd
		m.helpVP, cmd = m.helpVP.Update(msg)
		return m, cmd
	}

	m.status, m.statusIsError = "", false
	rows := m.store.Forest().Rows()

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.moveCursor(-1)
	case key.Matches(msg, m.keys.Down):
		m.moveCursor(1)
	case key.Matches(msg, m.keys.Top):
		m.moveTo(0)
	case key.Matches(msg, m.keys.Bottom):
		m.moveTo(len(rows) - 1)
	case key.Matches(msg, m.keys.Expand):
		return m.expandSelected()
	case key.Matches(msg, m.keys.Toggle):
		if n := m.selectedNode(); n != nil && n.IsRegion() && (n.Expanded || n.Loading) {
			m.store.CollapseNode(n.ID)
			m.syncCursor()
			return m, nil
		}
		return m.expandSelected()
	case key.Matches(msg, m.keys.Collapse):
		m.collapseOrParent()
	case key.Matches(msg, m.keys.Search):
		m.search.SetValue(m.store.SearchTerm())
		m.search.CursorEnd()
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Clear):
		if m.store.SearchTerm() != "" {
			m.search.SetValue("")
			return m.setSearch("")
		}
	case key.Matches(msg, m.keys.Scope):
		return m.cycleScope()
	case key.Matches(msg, m.keys.Delete):
		m.askDelete()
	case key.Matches(msg, m.keys.Copy):
		m.copySelected()
	case key.Matches(msg, m.keys.Refresh):
		m.setStatus("Reloading", false)
		return m, m.reloadCmd()
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		m.helpVP.SetContent(renderHelp(m.keys, m.width))
		m.helpVP.GotoTop()
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		m.search.Blur()
		return m, nil
	case tea.KeyEsc:
		m.search.Blur()
		m.search.SetValue("")
		if m.store.SearchTerm() != "" {
			return m.setSearch("")
		}
		return m, nil
	}

	prev := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() == prev {
		return m, cmd
	}
	next, fetchCmd := m.setSearch(m.search.Value())
	return next, tea.Batch(cmd, fetchCmd)
}

// setSearch applies a new term. A term long enough to search fetches hits;
// anything shorter goes back to the root listing.
func (m Model) setSearch(term string) (tea.Model, tea.Cmd) {
	m.store.SetSearchTerm(term)
	m.cursor, m.offset, m.selectedID = 0, 0, ""
	m.hits, m.total, m.truncated = 0, 0, false
	if m.store.Mode() == locations.ModeSearching {
		return m, m.searchCmd()
	}
	return m, m.rootsCmd()
}

func (m Model) cycleScope() (tea.Model, tea.Cmd) {
	next := m.store.SearchScope().Next()
	m.store.SetSearchScope(next)
	m.setStatus("Search scope: "+string(next), false)
	if m.store.Mode() != locations.ModeSearching {
		return m, nil
	}
	m.cursor, m.offset, m.selectedID = 0, 0, ""
	return m, m.searchCmd()
}

func (m Model) expandSelected() (tea.Model, tea.Cmd) {
	n := m.selectedNode()
	if n == nil {
		return m, nil
	}
	if n.IsSite() {
		m.setStatus("Sites have no children", false)
		return m, nil
	}
	if n.Loading {
		return m, nil
	}
	if err := m.store.FocusNode(n.ID); err != nil {
		m.setStatus(err.Error(), true)
		return m, nil
	}
	if n.ChildrenLoaded() {
		if len(n.Children) == 0 {
			m.setStatus(displayName(n)+" has no regions or sites", false)
		}
		m.syncCursor()
		return m, nil
	}
	m.store.BeginLoadingFocused()
	return m, m.childrenCmd(n.ID)
}

func (m *Model) collapseOrParent() {
	n := m.selectedNode()
	if n == nil {
		return
	}
	if n.IsRegion() && (n.Expanded || n.Loading) {
		m.store.CollapseNode(n.ID)
		m.syncCursor()
		return
	}
	if p, ok := m.store.Forest().FindParent(n.ID); ok {
		m.selectedID = p.ID
		m.syncCursor()
	}
}

func (m *Model) askDelete() {
	n := m.selectedNode()
	if n == nil {
		return
	}
	m.pending = &pendingDelete{kind: n.Kind, id: n.ID, name: n.Name, sites: siteTotal(n)}
}

func (m Model) handleConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.pending
	m.pending = nil
	switch msg.String() {
	case "y", "Y":
		m.setStatus("Deleting "+p.id, false)
		return m, m.deleteCmd(p.kind, p.id)
	}
	m.setStatus("Delete cancelled", false)
	return m, nil
}

func (m *Model) copySelected() {
	n := m.selectedNode()
	if n == nil {
		return
	}
	if err := clipboard.WriteAll(n.ID); err != nil {
		m.setStatus(fmt.Sprintf("Clipboard error: %v", err), true)
		return
	}
	m.setStatus("Copied "+n.ID, false)
}

// siteTotal is the number of sites a delete of n would remove, as far as
// the tree knows: the cached total for roots, loaded descendants otherwise.
func siteTotal(n *locations.Node) int {
	if n.IsSite() {
		return 0
	}
	if n.IsRoot && n.SiteCount > 0 {
		return n.SiteCount
	}
	total := 0
	locations.Forest(n.Children).Walk(func(c *locations.Node, _ int) bool {
		if c.IsSite() {
			total++
		}
		return true
	})
	return total
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status, m.statusIsError = s, isErr
}

func (m Model) selectedNode() *locations.Node {
	rows := m.store.Forest().Rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return nil
	}
	return rows[m.cursor].Node
}

func (m *Model) moveCursor(delta int) {
	m.moveTo(m.cursor + delta)
}

func (m *Model) moveTo(i int) {
	rows := m.store.Forest().Rows()
	if len(rows) == 0 {
		return
	}
	m.cursor = min(max(i, 0), len(rows)-1)
	m.selectedID = rows[m.cursor].Node.ID
	m.ensureVisible(len(rows))
}

// syncCursor re-finds the selected node after the forest changed.
func (m *Model) syncCursor() {
	rows := m.store.Forest().Rows()
	if len(rows) == 0 {
		m.cursor, m.offset, m.selectedID = 0, 0, ""
		return
	}
	idx := -1
	if m.selectedID != "" {
		for i, r := range rows {
			if r.Node.ID == m.selectedID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		idx = min(max(m.cursor, 0), len(rows)-1)
	}
	m.cursor = idx
	m.selectedID = rows[idx].Node.ID
	m.ensureVisible(len(rows))
}

func (m *Model) ensureVisible(n int) {
	vis := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+vis {
		m.offset = m.cursor - vis + 1
	}
	m.offset = min(max(m.offset, 0), max(n-vis, 0))
}

func (m Model) searchVisible() bool {
	return m.search.Focused() || m.store.SearchTerm() != ""
}

// View implements tea.Model.
func (m Model) View() string {
	defer metrics.Timer(metrics.UIRender)()

	if m.showHelp {
		return m.helpVP.View() + "\n" + m.theme.StatusText.Render("? or esc to close")
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteByte('\n')
	if m.searchVisible() {
		sb.WriteString(m.search.View())
		sb.WriteByte('\n')
	}

	body := m.renderTree()
	sb.WriteString(body)
	if pad := m.visibleRows() - (strings.Count(body, "\n") + 1); pad > 0 {
		sb.WriteString(strings.Repeat("\n", pad))
	}
	sb.WriteByte('\n')
	sb.WriteString(m.renderFooter())
	return sb.String()
}

func (m Model) renderHeader() string {
	t := m.theme
	var info string
	switch m.store.Mode() {
	case locations.ModeSearching:
		term := strings.TrimSpace(m.store.SearchTerm())
		info = fmt.Sprintf("search %q in %s", term, m.store.SearchScope())
		if !m.store.State().LoadingTree {
			info += " · " + plural(m.hits, "hit")
			if m.truncated {
				info += fmt.Sprintf(" (showing %d of %d)", m.hits, m.total)
			}
		}
	case locations.ModeTransitioning:
		info = "reloading"
	default:
		info = plural(len(m.store.Forest()), "region") + " · scope " + string(m.store.SearchScope())
	}
	return t.Header.Render("edgeloc") + " " + t.StatusText.Render(info)
}

func (m Model) renderFooter() string {
	t := m.theme
	if p := m.pending; p != nil {
		return t.PromptText.Render(export.DeletePrompt(p.kind, p.id, p.name, p.sites) + " [y/N]")
	}

	var left string
	switch {
	case m.status != "" && m.statusIsError:
		left = t.ErrorText.Render(m.status)
	case m.status != "":
		left = t.StatusText.Render(m.status)
	default:
		left = m.help.View(m.keys)
	}
	pos := m.positionIndicator()
	if pos == "" {
		return left
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(pos)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + t.StatusText.Render(pos)
}
