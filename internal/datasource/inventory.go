package datasource

import (
	"context"
	"errors"

	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// ErrNotFound is returned when a region or site id does not exist.
var ErrNotFound = errors.New("not found")

// DefaultPageSize is used when a Page has no limit and the caller asked for
// paging through config.
const DefaultPageSize = 200

// Page selects a window of a listing. A Limit of 0 or less means no limit.
type Page struct {
	Offset int
	Limit  int
}

// RegionPage is one page of regions.
type RegionPage struct {
	Regions []model.Region
	Total   int
}

// ChildrenPage is one page of a region's direct children: sites first, then
// regions. Total counts both.
type ChildrenPage struct {
	Regions []model.Region
	Sites   []model.Site
	Total   int
}

// SearchPage is one page of search hits together with the ancestor regions
// needed to rebuild their tree. Total counts hits only.
type SearchPage struct {
	// Results holds the page's hits preceded by their ancestors.
	Results []model.SearchResult

	// Hits is the number of matches in Results.
	Hits  int
	Total int
}

// Inventory is the read/delete surface the console needs from a data source.
type Inventory interface {
	ListRoots(ctx context.Context, page Page) (RegionPage, error)
	ListChildren(ctx context.Context, parentID string, page Page) (ChildrenPage, error)
	Search(ctx context.Context, term string, scope model.SearchScope, page Page) (SearchPage, error)
	TotalSites(ctx context.Context, rootID string) (int, error)
	DeleteRegion(ctx context.Context, id string) error
	DeleteSite(ctx context.Context, id string) error
}
