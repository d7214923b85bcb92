// Package datasource discovers, validates and opens edgeloc inventories. An
// inventory lives in a SQLite database (inventory.db) and may be seeded from
// JSON Lines or YAML files in the same data directory; the freshest valid
// source wins.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vanderheijden86/edgeloc/pkg/loader"
)

// DatabaseName is the inventory database file inside the data directory.
const DatabaseName = "inventory.db"

// SourceType identifies the type of data source
type SourceType string

const (
	// SourceTypeSQLite is the inventory database
	SourceTypeSQLite SourceType = "sqlite"
	// SourceTypeJSONL is a JSON Lines seed file
	SourceTypeJSONL SourceType = "jsonl"
	// SourceTypeYAML is a YAML seed file
	SourceTypeYAML SourceType = "yaml"
)

// Priority values for source types (higher = more authoritative)
const (
	PrioritySQLite = 100
	PriorityJSONL  = 60
	PriorityYAML   = 50
)

// ErrNoSources is returned when discovery finds nothing usable.
var ErrNoSources = errors.New("no valid inventory sources")

// DataSource represents a potential source of inventory data
type DataSource struct {
	Type     SourceType `json:"type"`
	Path     string     `json:"path"`
	Priority int        `json:"priority"`
	ModTime  time.Time  `json:"mod_time"`
	Size     int64      `json:"size"`
	// Valid indicates whether the source passed validation
	Valid           bool   `json:"valid"`
	ValidationError string `json:"validation_error,omitempty"`
	// RecordCount is the number of regions plus sites (set during validation)
	RecordCount int `json:"record_count"`
}

// String returns a human-readable description of the source
func (s DataSource) String() string {
	status := "valid"
	if !s.Valid {
		status = fmt.Sprintf("invalid: %s", s.ValidationError)
	}
	return fmt.Sprintf("%s (%s, priority=%d, mod=%s, records=%d, %s)",
		s.Path, s.Type, s.Priority, s.ModTime.Format(time.RFC3339), s.RecordCount, status)
}

// DiscoveryOptions configures source discovery behavior
type DiscoveryOptions struct {
	// DataDir is the data directory (required)
	DataDir string
	// ValidateAfterDiscovery runs validation on each discovered source
	ValidateAfterDiscovery bool
	// IncludeInvalid includes sources that failed validation in results
	IncludeInvalid bool
	// Verbose enables detailed logging during discovery
	Verbose bool
	// Logger receives log messages when Verbose is true
	Logger func(msg string)
}

// DiscoverSources finds the inventory database and seed files in the data
// directory, freshest first.
func DiscoverSources(opts DiscoveryOptions) ([]DataSource, error) {
	if opts.Logger == nil {
		opts.Logger = func(string) {}
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory not set")
	}
	if opts.Verbose {
		opts.Logger(fmt.Sprintf("Discovering sources in: %s", opts.DataDir))
	}

	entries, err := os.ReadDir(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory: %w", err)
	}

	var sources []DataSource
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var src DataSource
		switch {
		case name == DatabaseName:
			src = DataSource{Type: SourceTypeSQLite, Priority: PrioritySQLite}
		case !loader.IsSeedFile(name):
			continue
		case strings.HasSuffix(strings.ToLower(name), ".jsonl"):
			src = DataSource{Type: SourceTypeJSONL, Priority: PriorityJSONL}
		default:
			src = DataSource{Type: SourceTypeYAML, Priority: PriorityYAML}
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		src.Path = filepath.Join(opts.DataDir, name)
		src.ModTime = info.ModTime()
		src.Size = info.Size()
		sources = append(sources, src)
		if opts.Verbose {
			opts.Logger(fmt.Sprintf("Found %s: %s (mod=%s)", src.Type, src.Path, src.ModTime.Format(time.RFC3339)))
		}
	}

	if opts.ValidateAfterDiscovery {
		for i := range sources {
			if err := ValidateSource(&sources[i]); err != nil && opts.Verbose {
				opts.Logger(fmt.Sprintf("Validation failed for %s: %v", sources[i].Path, err))
			}
		}
		if !opts.IncludeInvalid {
			valid := sources[:0]
			for _, s := range sources {
				if s.Valid {
					valid = append(valid, s)
				}
			}
			sources = valid
		}
	}

	sortSources(sources)

	if opts.Verbose {
		opts.Logger(fmt.Sprintf("Discovered %d sources", len(sources)))
	}
	return sources, nil
}

// sortSources orders by mod time (newest first), then priority.
func sortSources(sources []DataSource) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].ModTime.Equal(sources[j].ModTime) {
			return sources[i].Priority > sources[j].Priority
		}
		return sources[i].ModTime.After(sources[j].ModTime)
	})
}

// ValidateSource checks that a source can be read and records its size in
// records. The result is stored on the source as well as returned.
func ValidateSource(src *DataSource) error {
	err := validate(src)
	src.Valid = err == nil
	src.ValidationError = ""
	if err != nil {
		src.ValidationError = err.Error()
	}
	return err
}

func validate(src *DataSource) error {
	switch src.Type {
	case SourceTypeSQLite:
		inv, err := OpenSQLiteReadOnly(*src)
		if err != nil {
			return err
		}
		defer inv.Close()
		n, err := inv.Count(context.Background())
		if err != nil {
			return fmt.Errorf("unreadable inventory: %w", err)
		}
		src.RecordCount = n
		return nil

	case SourceTypeJSONL, SourceTypeYAML:
		if src.Size == 0 {
			return fmt.Errorf("empty seed file")
		}
		seed, err := loader.LoadSeedFromFileWithOptions(src.Path, loader.ParseOptions{WarningHandler: func(string) {}})
		if err != nil {
			return err
		}
		if seed.Len() == 0 {
			return fmt.Errorf("seed has no records")
		}
		if err := loader.Validate(seed); err != nil {
			return err
		}
		src.RecordCount = seed.Len()
		return nil

	default:
		return fmt.Errorf("unknown source type: %s", src.Type)
	}
}

// SelectBestSource picks the freshest valid source; ties go to the higher
// priority.
func SelectBestSource(sources []DataSource) (DataSource, error) {
	var candidates []DataSource
	for _, s := range sources {
		if s.Valid {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return DataSource{}, ErrNoSources
	}
	sortSources(candidates)
	return candidates[0], nil
}
