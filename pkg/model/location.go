// Package model defines the inventory records exchanged between the data
// source and the location tree.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags a location record as a region or a site.
type Kind string

const (
	KindRegion Kind = "region"
	KindSite   Kind = "site"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindRegion || k == KindSite
}

// SearchScope restricts which kinds a search returns.
type SearchScope string

const (
	ScopeAll     SearchScope = "all"
	ScopeRegions SearchScope = "regions"
	ScopeSites   SearchScope = "sites"
)

// ParseSearchScope accepts "", "all", "region(s)" and "site(s)".
func ParseSearchScope(s string) (SearchScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ScopeAll, nil
	case "region", "regions":
		return ScopeRegions, nil
	case "site", "sites":
		return ScopeSites, nil
	default:
		return ScopeAll, fmt.Errorf("unknown search scope %q", s)
	}
}

// Next cycles all -> regions -> sites -> all.
func (s SearchScope) Next() SearchScope {
	switch s {
	case ScopeAll:
		return ScopeRegions
	case ScopeRegions:
		return ScopeSites
	default:
		return ScopeAll
	}
}

// Includes reports whether records of kind k survive the scope filter.
func (s SearchScope) Includes(k Kind) bool {
	switch s {
	case ScopeRegions:
		return k == KindRegion
	case ScopeSites:
		return k == KindSite
	default:
		return true
	}
}

// Ref is a bare pointer to another record by id.
type Ref struct {
	ResourceID string `json:"resourceId" yaml:"resourceId"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Region is a region summary as returned by the inventory.
type Region struct {
	ResourceID   string `json:"resourceId" yaml:"resourceId"`
	Name         string `json:"name" yaml:"name"`
	ParentRegion *Ref   `json:"parentRegion,omitempty" yaml:"parentRegion,omitempty"`
	TotalSites   *int   `json:"totalSites,omitempty" yaml:"totalSites,omitempty"`
}

// ParentID returns the parent region id or "".
func (r Region) ParentID() string {
	if r.ParentRegion == nil {
		return ""
	}
	return r.ParentRegion.ResourceID
}

// Validate checks the required fields.
func (r Region) Validate() error {
	if strings.TrimSpace(r.ResourceID) == "" {
		return errors.New("region resourceId cannot be empty")
	}
	if r.ParentID() == r.ResourceID {
		return fmt.Errorf("region %s cannot be its own parent", r.ResourceID)
	}
	return nil
}

// Site is a site summary as returned by the inventory.
type Site struct {
	ResourceID string `json:"resourceId" yaml:"resourceId"`
	Name       string `json:"name" yaml:"name"`
	Region     *Ref   `json:"region,omitempty" yaml:"region,omitempty"`
}

// RegionID returns the owning region id or "".
func (s Site) RegionID() string {
	if s.Region == nil {
		return ""
	}
	return s.Region.ResourceID
}

// Validate checks the required fields.
func (s Site) Validate() error {
	if strings.TrimSpace(s.ResourceID) == "" {
		return errors.New("site resourceId cannot be empty")
	}
	return nil
}

// SearchResult is one flattened search hit. Kind is attached by the data
// source; records from older producers may leave it empty, in which case the
// kind is inferred from the id (see InferKind).
type SearchResult struct {
	ResourceID string `json:"resourceId"`
	Name       string `json:"name"`
	ParentID   string `json:"parentId,omitempty"`
	Kind       Kind   `json:"kind,omitempty"`
}

// InferKind guesses the kind from the "region"/"site" marker in an id.
// The region marker is checked first. Ids carrying neither marker return
// false.
func InferKind(id string) (Kind, bool) {
	lower := strings.ToLower(id)
	switch {
	case strings.Contains(lower, "region"):
		return KindRegion, true
	case strings.Contains(lower, "site"):
		return KindSite, true
	default:
		return "", false
	}
}

// ResolvedKind returns the explicit kind, falling back to InferKind.
func (r SearchResult) ResolvedKind() (Kind, bool) {
	if r.Kind.IsValid() {
		return r.Kind, true
	}
	return InferKind(r.ResourceID)
}
