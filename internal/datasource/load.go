package datasource

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/edgeloc/pkg/debug"
	"github.com/vanderheijden86/edgeloc/pkg/loader"
)

// Open discovers the sources in dataDir, selects the freshest valid one and
// returns a writable inventory backed by dataDir/inventory.db. When a seed
// file is fresher than the database it is imported, replacing the database
// contents. An empty data directory yields an empty inventory.
func Open(ctx context.Context, dataDir string) (*SQLiteInventory, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	sources, err := DiscoverSources(DiscoveryOptions{
		DataDir:                dataDir,
		ValidateAfterDiscovery: true,
		Verbose:                debug.Enabled(),
		Logger:                 func(msg string) { debug.Log("datasource: %s", msg) },
	})
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dataDir, DatabaseName)
	inv, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	best, err := SelectBestSource(sources)
	if err != nil {
		// Nothing valid yet: start from an empty inventory.
		return inv, nil
	}
	if best.Type == SourceTypeSQLite {
		return inv, nil
	}

	if _, err := ImportFile(ctx, inv, best.Path, true); err != nil {
		inv.Close()
		return nil, fmt.Errorf("import %s: %w", best.Path, err)
	}
	return inv, nil
}

// ImportFile loads a seed file into inv.
func ImportFile(ctx context.Context, inv *SQLiteInventory, path string, replace bool) (ImportStats, error) {
	seed, err := loader.LoadSeedFromFile(path)
	if err != nil {
		return ImportStats{}, err
	}
	return inv.Import(ctx, seed, replace)
}
