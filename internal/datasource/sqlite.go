package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/loader"
	"github.com/vanderheijden86/edgeloc/pkg/metrics"
	"github.com/vanderheijden86/edgeloc/pkg/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS regions (
	resource_id      TEXT PRIMARY KEY,
	name             TEXT NOT NULL DEFAULT '',
	parent_region_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_regions_parent ON regions(parent_region_id);
CREATE TABLE IF NOT EXISTS sites (
	resource_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	region_id   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sites_region ON sites(region_id);
`

// subtreeCTE selects the region ids under (and including) the bound id.
// UNION rather than UNION ALL stops on parent cycles.
const subtreeCTE = `
WITH RECURSIVE sub(id) AS (
	SELECT resource_id FROM regions WHERE resource_id = ?
	UNION
	SELECT r.resource_id FROM regions r JOIN sub ON r.parent_region_id = sub.id
)`

// SQLiteInventory serves the inventory from a SQLite database.
type SQLiteInventory struct {
	db       *sql.DB
	path     string
	readOnly bool
}

var _ Inventory = (*SQLiteInventory)(nil)

// OpenSQLite opens (creating if needed) a writable inventory database.
func OpenSQLite(path string) (*SQLiteInventory, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot create schema: %w", err)
	}
	return &SQLiteInventory{db: db, path: path}, nil
}

// OpenSQLiteReadOnly opens an existing inventory database for reading.
func OpenSQLiteReadOnly(source DataSource) (*SQLiteInventory, error) {
	if source.Type != SourceTypeSQLite {
		return nil, fmt.Errorf("source is not SQLite: %s", source.Type)
	}

	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)", source.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA cache_size = -64000",  // 64MB cache
		"PRAGMA mmap_size = 268435456", // 256MB mmap
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			debug.Log("datasource: %s failed: %v", pragma, err)
		}
	}

	return &SQLiteInventory{db: db, path: source.Path, readOnly: true}, nil
}

// Path returns the database file path.
func (s *SQLiteInventory) Path() string { return s.path }

// Close closes the database connection.
func (s *SQLiteInventory) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// limitArgs maps a Page to LIMIT/OFFSET arguments. SQLite treats a negative
// limit as unbounded.
func limitArgs(p Page) (int, int) {
	limit := p.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := p.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListRoots returns regions without a parent, ordered by name.
func (s *SQLiteInventory) ListRoots(ctx context.Context, page Page) (RegionPage, error) {
	defer metrics.Timer(metrics.QueryRoots)()

	var out RegionPage
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM regions WHERE parent_region_id IS NULL OR parent_region_id = ''`,
	).Scan(&out.Total); err != nil {
		return RegionPage{}, fmt.Errorf("count roots: %w", err)
	}

	limit, offset := limitArgs(page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, name FROM regions
		WHERE parent_region_id IS NULL OR parent_region_id = ''
		ORDER BY name, resource_id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return RegionPage{}, fmt.Errorf("list roots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r model.Region
		if err := rows.Scan(&r.ResourceID, &r.Name); err != nil {
			return RegionPage{}, fmt.Errorf("scan root: %w", err)
		}
		out.Regions = append(out.Regions, r)
	}
	if err := rows.Err(); err != nil {
		return RegionPage{}, fmt.Errorf("error iterating roots: %w", err)
	}
	return out, nil
}

// ListChildren returns the direct children of parentID: sites first, then
// regions, each ordered by name.
func (s *SQLiteInventory) ListChildren(ctx context.Context, parentID string, page Page) (ChildrenPage, error) {
	defer metrics.Timer(metrics.QueryChildren)()

	if ok, err := s.regionExists(ctx, parentID); err != nil {
		return ChildrenPage{}, err
	} else if !ok {
		return ChildrenPage{}, fmt.Errorf("region %s: %w", parentID, ErrNotFound)
	}

	var out ChildrenPage
	if err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sites WHERE region_id = ?)
		     + (SELECT COUNT(*) FROM regions WHERE parent_region_id = ?)`,
		parentID, parentID).Scan(&out.Total); err != nil {
		return ChildrenPage{}, fmt.Errorf("count children: %w", err)
	}

	limit, offset := limitArgs(page)
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, resource_id, name FROM (
			SELECT 0 AS ord, 'site' AS kind, resource_id, name FROM sites WHERE region_id = ?
			UNION ALL
			SELECT 1 AS ord, 'region' AS kind, resource_id, name FROM regions WHERE parent_region_id = ?
		)
		ORDER BY ord, name, resource_id
		LIMIT ? OFFSET ?`, parentID, parentID, limit, offset)
	if err != nil {
		return ChildrenPage{}, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	parent := &model.Ref{ResourceID: parentID}
	for rows.Next() {
		var kind, id, name string
		if err := rows.Scan(&kind, &id, &name); err != nil {
			return ChildrenPage{}, fmt.Errorf("scan child: %w", err)
		}
		if model.Kind(kind) == model.KindSite {
			out.Sites = append(out.Sites, model.Site{ResourceID: id, Name: name, Region: parent})
		} else {
			out.Regions = append(out.Regions, model.Region{ResourceID: id, Name: name, ParentRegion: parent})
		}
	}
	if err := rows.Err(); err != nil {
		return ChildrenPage{}, fmt.Errorf("error iterating children: %w", err)
	}
	return out, nil
}

// Search matches term against names and ids (case-insensitive substring)
// and returns one page of hits plus the ancestor regions of every hit, each
// tagged with its kind and parent id. Ancestors come first.
func (s *SQLiteInventory) Search(ctx context.Context, term string, scope model.SearchScope, page Page) (SearchPage, error) {
	defer metrics.Timer(metrics.QuerySearch)()

	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"

	var parts []string
	var args []any
	if scope.Includes(model.KindRegion) {
		parts = append(parts, `SELECT 0 AS ord, 'region' AS kind, resource_id, name, COALESCE(parent_region_id, '') AS parent
			FROM regions WHERE name LIKE ? ESCAPE '\' OR resource_id LIKE ? ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	if scope.Includes(model.KindSite) {
		parts = append(parts, `SELECT 1 AS ord, 'site' AS kind, resource_id, name, region_id AS parent
			FROM sites WHERE name LIKE ? ESCAPE '\' OR resource_id LIKE ? ESCAPE '\'`)
		args = append(args, pattern, pattern)
	}
	hits := strings.Join(parts, " UNION ALL ")

	var out SearchPage
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (`+hits+`)`, args...).Scan(&out.Total); err != nil {
		return SearchPage{}, fmt.Errorf("count search: %w", err)
	}

	limit, offset := limitArgs(page)
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, resource_id, name, parent FROM (`+hits+`) ORDER BY ord, name, resource_id LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return SearchPage{}, fmt.Errorf("search: %w", err)
	}
	var found []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var kind string
		if err := rows.Scan(&kind, &r.ResourceID, &r.Name, &r.ParentID); err != nil {
			rows.Close()
			return SearchPage{}, fmt.Errorf("scan search hit: %w", err)
		}
		r.Kind = model.Kind(kind)
		found = append(found, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return SearchPage{}, fmt.Errorf("error iterating search hits: %w", err)
	}

	ancestors, err := s.ancestors(ctx, found)
	if err != nil {
		return SearchPage{}, err
	}
	out.Results = append(ancestors, found...)
	out.Hits = len(found)
	return out, nil
}

// ancestors resolves the parent chains of the given hits, one level per
// query, skipping ids already present.
func (s *SQLiteInventory) ancestors(ctx context.Context, hits []model.SearchResult) ([]model.SearchResult, error) {
	have := make(map[string]bool, len(hits))
	for _, h := range hits {
		have[h.ResourceID] = true
	}
	var out []model.SearchResult
	pending := func(records []model.SearchResult) []string {
		var ids []string
		seen := make(map[string]bool)
		for _, r := range records {
			if r.ParentID != "" && !have[r.ParentID] && !seen[r.ParentID] {
				seen[r.ParentID] = true
				ids = append(ids, r.ParentID)
			}
		}
		sort.Strings(ids)
		return ids
	}

	for want := pending(hits); len(want) > 0; {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(want)), ",")
		args := make([]any, len(want))
		for i, id := range want {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT resource_id, name, COALESCE(parent_region_id, '') FROM regions WHERE resource_id IN (`+placeholders+`)`,
			args...)
		if err != nil {
			return nil, fmt.Errorf("resolve ancestors: %w", err)
		}
		var level []model.SearchResult
		for rows.Next() {
			r := model.SearchResult{Kind: model.KindRegion}
			if err := rows.Scan(&r.ResourceID, &r.Name, &r.ParentID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan ancestor: %w", err)
			}
			have[r.ResourceID] = true
			level = append(level, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error iterating ancestors: %w", err)
		}
		if len(level) < len(want) {
			debug.Log("datasource: %d dangling parent references", len(want)-len(level))
		}
		out = append(out, level...)
		want = pending(level)
	}
	return out, nil
}

// TotalSites counts every site under rootID, at any depth.
func (s *SQLiteInventory) TotalSites(ctx context.Context, rootID string) (int, error) {
	defer metrics.Timer(metrics.QuerySiteCounts)()

	if ok, err := s.regionExists(ctx, rootID); err != nil {
		return 0, err
	} else if !ok {
		return 0, fmt.Errorf("region %s: %w", rootID, ErrNotFound)
	}

	var total int
	err := s.db.QueryRowContext(ctx,
		subtreeCTE+` SELECT COUNT(*) FROM sites WHERE region_id IN (SELECT id FROM sub)`,
		rootID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count sites under %s: %w", rootID, err)
	}
	return total, nil
}

// DeleteRegion removes a region, its descendant regions and all their sites.
func (s *SQLiteInventory) DeleteRegion(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		subtreeCTE+` DELETE FROM sites WHERE region_id IN (SELECT id FROM sub)`, id); err != nil {
		return fmt.Errorf("delete sites under %s: %w", id, err)
	}
	res, err := tx.ExecContext(ctx,
		subtreeCTE+` DELETE FROM regions WHERE resource_id IN (SELECT id FROM sub)`, id)
	if err != nil {
		return fmt.Errorf("delete region %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("region %s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// DeleteSite removes one site.
func (s *SQLiteInventory) DeleteSite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE resource_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete site %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("site %s: %w", id, ErrNotFound)
	}
	return nil
}

// Kind reports whether id is a region or a site.
func (s *SQLiteInventory) Kind(ctx context.Context, id string) (model.Kind, error) {
	if ok, err := s.regionExists(ctx, id); err != nil {
		return "", err
	} else if ok {
		return model.KindRegion, nil
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE resource_id = ?`, id).Scan(&n); err != nil {
		return "", fmt.Errorf("lookup site %s: %w", id, err)
	}
	if n == 0 {
		return "", fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return model.KindSite, nil
}

// ImportStats summarizes an import.
type ImportStats struct {
	Regions int
	Sites   int
}

// Import validates seed and writes it in one transaction. With replace set
// the existing inventory is cleared first; otherwise records are upserted.
func (s *SQLiteInventory) Import(ctx context.Context, seed loader.Seed, replace bool) (ImportStats, error) {
	defer metrics.Timer(metrics.SeedImport)()

	if s.readOnly {
		return ImportStats{}, fmt.Errorf("import into read-only database %s", s.path)
	}
	if err := loader.Validate(seed); err != nil {
		return ImportStats{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportStats{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if replace {
		for _, stmt := range []string{`DELETE FROM sites`, `DELETE FROM regions`} {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return ImportStats{}, fmt.Errorf("clear inventory: %w", err)
			}
		}
	}

	regionStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO regions (resource_id, name, parent_region_id) VALUES (?, ?, NULLIF(?, ''))`)
	if err != nil {
		return ImportStats{}, fmt.Errorf("prepare: %w", err)
	}
	defer regionStmt.Close()
	siteStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO sites (resource_id, name, region_id) VALUES (?, ?, ?)`)
	if err != nil {
		return ImportStats{}, fmt.Errorf("prepare: %w", err)
	}
	defer siteStmt.Close()

	var stats ImportStats
	for _, r := range seed.Regions {
		if _, err := regionStmt.ExecContext(ctx, r.ResourceID, r.Name, r.ParentID()); err != nil {
			return ImportStats{}, fmt.Errorf("insert region %s: %w", r.ResourceID, err)
		}
		stats.Regions++
	}
	for _, site := range seed.Sites {
		if _, err := siteStmt.ExecContext(ctx, site.ResourceID, site.Name, site.RegionID()); err != nil {
			return ImportStats{}, fmt.Errorf("insert site %s: %w", site.ResourceID, err)
		}
		stats.Sites++
	}
	if err := tx.Commit(); err != nil {
		return ImportStats{}, fmt.Errorf("commit: %w", err)
	}
	debug.Log("datasource: imported %d regions, %d sites into %s", stats.Regions, stats.Sites, s.path)
	return stats, nil
}

// Snapshot reads the whole inventory.
func (s *SQLiteInventory) Snapshot(ctx context.Context) (loader.Seed, error) {
	var seed loader.Seed

	rows, err := s.db.QueryContext(ctx,
		`SELECT resource_id, name, COALESCE(parent_region_id, '') FROM regions ORDER BY name, resource_id`)
	if err != nil {
		return loader.Seed{}, fmt.Errorf("read regions: %w", err)
	}
	for rows.Next() {
		var r model.Region
		var parent string
		if err := rows.Scan(&r.ResourceID, &r.Name, &parent); err != nil {
			rows.Close()
			return loader.Seed{}, fmt.Errorf("scan region: %w", err)
		}
		if parent != "" {
			r.ParentRegion = &model.Ref{ResourceID: parent}
		}
		seed.Regions = append(seed.Regions, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return loader.Seed{}, fmt.Errorf("error iterating regions: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT resource_id, name, region_id FROM sites ORDER BY name, resource_id`)
	if err != nil {
		return loader.Seed{}, fmt.Errorf("read sites: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var site model.Site
		var region string
		if err := rows.Scan(&site.ResourceID, &site.Name, &region); err != nil {
			return loader.Seed{}, fmt.Errorf("scan site: %w", err)
		}
		site.Region = &model.Ref{ResourceID: region}
		seed.Sites = append(seed.Sites, site)
	}
	if err := rows.Err(); err != nil {
		return loader.Seed{}, fmt.Errorf("error iterating sites: %w", err)
	}
	return seed, nil
}

// Count returns the number of regions and sites.
func (s *SQLiteInventory) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM regions) + (SELECT COUNT(*) FROM sites)`).Scan(&n)
	return n, err
}

func (s *SQLiteInventory) regionExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM regions WHERE resource_id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup region %s: %w", id, err)
	}
	return n > 0, nil
}

// escapeLike escapes LIKE wildcards so term matches literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
