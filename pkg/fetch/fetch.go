// Package fetch runs inventory queries on behalf of a locations.Store. Every
// query carries the store ticket it was issued under, so results that come
// back after the store has moved on are dropped when applied.
//
// Queries never touch the store; only Apply does, and Apply must run on the
// goroutine that owns the store.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vanderheijden86/edgeloc/internal/datasource"
	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/locations"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

const (
	// DefaultConcurrency bounds parallel per-root count queries.
	DefaultConcurrency = 8
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 10 * time.Second
)

// Result is the outcome of one fetch.
type Result interface {
	// Apply installs the result into s. It reports whether the result was
	// still current; an error is either the fetch error or an invariant
	// violation raised by the store.
	Apply(s *locations.Store) (bool, error)
}

// Coordinator issues inventory queries.
type Coordinator struct {
	inv         datasource.Inventory
	pageSize    int
	concurrency int
	timeout     time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPageSize sets the page size used when walking listings.
func WithPageSize(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithConcurrency bounds the parallel site-count queries.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithTimeout bounds each fetch. Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.timeout = d
	}
}

// New returns a Coordinator over inv.
func New(inv datasource.Inventory, opts ...Option) *Coordinator {
	c := &Coordinator{
		inv:         inv,
		pageSize:    datasource.DefaultPageSize,
		concurrency: DefaultConcurrency,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// RootsResult carries a root listing.
type RootsResult struct {
	Ticket  locations.Ticket
	Regions []model.Region
	Err     error
}

// Apply implements Result.
func (r RootsResult) Apply(s *locations.Store) (bool, error) {
	if r.Err != nil {
		s.Abandon(r.Ticket)
		return false, r.Err
	}
	return s.ApplyRoots(r.Ticket, r.Regions), nil
}

// Roots lists every root region, walking all pages.
func (c *Coordinator) Roots(ctx context.Context, t locations.Ticket) RootsResult {
	defer debug.LogEnterExit("fetch.Roots")()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var regions []model.Region
	for offset := 0; ; {
		page, err := c.inv.ListRoots(ctx, datasource.Page{Offset: offset, Limit: c.pageSize})
		if err != nil {
			return RootsResult{Ticket: t, Err: fmt.Errorf("list roots: %w", err)}
		}
		regions = append(regions, page.Regions...)
		offset += len(page.Regions)
		if len(page.Regions) == 0 || offset >= page.Total {
			break
		}
	}
	return RootsResult{Ticket: t, Regions: regions}
}

// ChildrenResult carries the children of Ticket.Target.
type ChildrenResult struct {
	Ticket  locations.Ticket
	Regions []model.Region
	Sites   []model.Site
	Err     error
}

// Apply implements Result. A parent that vanished from the inventory is
// treated like an empty listing being dropped: nothing changes.
func (r ChildrenResult) Apply(s *locations.Store) (bool, error) {
	if r.Err != nil {
		s.Abandon(r.Ticket)
		return false, r.Err
	}
	return s.ApplyChildren(r.Ticket, r.Regions, r.Sites)
}

// Children lists every direct child of t.Target, walking all pages.
func (c *Coordinator) Children(ctx context.Context, t locations.Ticket) ChildrenResult {
	defer debug.LogEnterExit("fetch.Children " + t.Target)()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	out := ChildrenResult{Ticket: t}
	for offset := 0; ; {
		page, err := c.inv.ListChildren(ctx, t.Target, datasource.Page{Offset: offset, Limit: c.pageSize})
		if err != nil {
			return ChildrenResult{Ticket: t, Err: fmt.Errorf("list children of %s: %w", t.Target, err)}
		}
		out.Sites = append(out.Sites, page.Sites...)
		out.Regions = append(out.Regions, page.Regions...)
		n := len(page.Sites) + len(page.Regions)
		offset += n
		if n == 0 || offset >= page.Total {
			break
		}
	}
	return out
}

// SearchResult carries search hits with their ancestors.
type SearchResult struct {
	Ticket  locations.Ticket
	Results []model.SearchResult

	// Hits counts the matches in Results; Total counts them in the
	// inventory. Only the first page is fetched.
	Hits  int
	Total int
	Err   error
}

// Apply implements Result.
func (r SearchResult) Apply(s *locations.Store) (bool, error) {
	if r.Err != nil {
		s.Abandon(r.Ticket)
		return false, r.Err
	}
	return s.ApplySearch(r.Ticket, r.Results)
}

// Truncated reports whether more hits exist than were returned.
func (r SearchResult) Truncated() bool {
	return r.Hits < r.Total
}

// Search runs the ticket's term and scope and returns the first page.
func (c *Coordinator) Search(ctx context.Context, t locations.Ticket) SearchResult {
	defer debug.LogEnterExit("fetch.Search " + t.Term)()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	page, err := c.inv.Search(ctx, t.Term, t.Scope, datasource.Page{Limit: c.pageSize})
	if err != nil {
		return SearchResult{Ticket: t, Err: fmt.Errorf("search %q: %w", t.Term, err)}
	}
	return SearchResult{Ticket: t, Results: page.Results, Hits: page.Hits, Total: page.Total}
}

// SiteCountsResult carries per-root site totals.
type SiteCountsResult struct {
	Ticket locations.Ticket
	Counts map[string]int
	Err    error
}

// Apply implements Result.
func (r SiteCountsResult) Apply(s *locations.Store) (bool, error) {
	if r.Err != nil {
		s.Abandon(r.Ticket)
		return false, r.Err
	}
	return s.ApplySiteCounts(r.Ticket, r.Counts), nil
}

// SiteCounts queries the total site count of each root concurrently. Roots
// that disappeared from the inventory are left out; any other failure fails
// the whole result.
func (c *Coordinator) SiteCounts(ctx context.Context, t locations.Ticket, rootIDs []string) SiteCountsResult {
	defer debug.LogEnterExit("fetch.SiteCounts")()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	counts := make(map[string]int, len(rootIDs))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, id := range rootIDs {
		id := id
		g.Go(func() error {
			n, err := c.inv.TotalSites(ctx, id)
			if errors.Is(err, datasource.ErrNotFound) {
				debug.Log("fetch: root %s gone before its count was read", id)
				return nil
			}
			if err != nil {
				return fmt.Errorf("count sites under %s: %w", id, err)
			}
			mu.Lock()
			counts[id] = n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SiteCountsResult{Ticket: t, Err: err}
	}
	return SiteCountsResult{Ticket: t, Counts: counts}
}

// DeleteResult carries the outcome of deleting a node from the inventory.
type DeleteResult struct {
	ID   string
	Kind model.Kind
	Err  error
}

// Apply implements Result. A node that was already gone from the inventory
// is still removed from the forest.
func (r DeleteResult) Apply(s *locations.Store) (bool, error) {
	if r.Err != nil && !errors.Is(r.Err, datasource.ErrNotFound) {
		return false, r.Err
	}
	s.DeleteNode(r.ID)
	return true, nil
}

// Delete removes a region (with its subtree) or a site from the inventory.
func (c *Coordinator) Delete(ctx context.Context, kind model.Kind, id string) DeleteResult {
	defer debug.LogEnterExit("fetch.Delete " + id)()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var err error
	switch kind {
	case model.KindRegion:
		err = c.inv.DeleteRegion(ctx, id)
	case model.KindSite:
		err = c.inv.DeleteSite(ctx, id)
	default:
		err = fmt.Errorf("delete %s: unknown kind %q", id, kind)
	}
	if err != nil && !errors.Is(err, datasource.ErrNotFound) {
		err = fmt.Errorf("delete %s %s: %w", kind, id, err)
	}
	return DeleteResult{ID: id, Kind: kind, Err: err}
}

// RootIDs returns the ids of the store's current roots.
func RootIDs(s *locations.Store) []string {
	f := s.Forest()
	ids := make([]string, 0, len(f))
	for _, n := range f {
		ids = append(ids, n.ID)
	}
	return ids
}

// Refresh synchronously reloads the root level and its site counts. It is
// the blocking path used outside the TUI.
func (c *Coordinator) Refresh(ctx context.Context, s *locations.Store) error {
	if _, err := c.Roots(ctx, s.BeginFetch(locations.RootFocus)).Apply(s); err != nil {
		return err
	}
	_, err := c.SiteCounts(ctx, s.BeginFetch(locations.RootFocus), RootIDs(s)).Apply(s)
	return err
}

// Expand synchronously focuses id and loads its children.
func (c *Coordinator) Expand(ctx context.Context, s *locations.Store, id string) error {
	if err := s.FocusNode(id); err != nil {
		return err
	}
	s.BeginLoadingFocused()
	_, err := c.Children(ctx, s.BeginFetch(id)).Apply(s)
	return err
}

// RunSearch synchronously sets the term and, when it enters search mode,
// loads the results. A short term reloads the root level instead.
func (c *Coordinator) RunSearch(ctx context.Context, s *locations.Store, term string) (SearchResult, error) {
	s.SetSearchTerm(term)
	if s.Mode() != locations.ModeSearching {
		return SearchResult{}, c.Refresh(ctx, s)
	}
	res := c.Search(ctx, s.BeginFetch(locations.RootFocus))
	_, err := res.Apply(s)
	return res, err
}
