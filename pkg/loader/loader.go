// Package loader reads inventory seed files: JSON Lines or YAML documents
// describing regions and sites.
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/edgeloc/pkg/model"
)

// DataDirEnvVar overrides the data directory.
const DataDirEnvVar = "EDGELOC_DIR"

// PreferredSeedNames defines the lookup order for seed files.
var PreferredSeedNames = []string{"inventory.jsonl", "inventory.yaml", "inventory.yml"}

// Seed is a parsed inventory.
type Seed struct {
	Regions []model.Region `yaml:"regions"`
	Sites   []model.Site   `yaml:"sites"`
}

// Len returns the number of records.
func (s Seed) Len() int { return len(s.Regions) + len(s.Sites) }

// record is one JSONL line. Kind may be omitted, in which case it is
// inferred from the id.
type record struct {
	Kind         model.Kind `json:"kind"`
	ResourceID   string     `json:"resourceId"`
	Name         string     `json:"name"`
	ParentRegion *model.Ref `json:"parentRegion,omitempty"`
	Region       *model.Ref `json:"region,omitempty"`
}

// GetDataDir returns the data directory, respecting EDGELOC_DIR.
// Otherwise it falls back to .edgeloc in the given path (or cwd if empty).
func GetDataDir(path string) (string, error) {
	if envDir := os.Getenv(DataDirEnvVar); envDir != "" {
		return envDir, nil
	}
	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current working directory: %w", err)
		}
	}
	return filepath.Join(path, ".edgeloc"), nil
}

// IsSeedFile reports whether name looks like a seed file.
func IsSeedFile(name string) bool {
	if strings.Contains(name, ".backup") || strings.Contains(name, ".orig") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl", ".yaml", ".yml":
		return true
	}
	return false
}

// FindSeedPath locates the seed file in dir. PreferredSeedNames win; then the
// first non-empty seed file.
func FindSeedPath(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read data directory: %w", err)
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() || !IsSeedFile(e.Name()) {
			continue
		}
		candidates = append(candidates, e.Name())
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no seed file found in %s", dir)
	}

	for _, preferred := range PreferredSeedNames {
		for _, name := range candidates {
			if name == preferred {
				path := filepath.Join(dir, name)
				if info, err := os.Stat(path); err == nil && info.Size() > 0 {
					return path, nil
				}
			}
		}
	}
	for _, name := range candidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			return path, nil
		}
	}
	return filepath.Join(dir, candidates[0]), nil
}

// DefaultMaxBufferSize is the default buffer size for the line reader (10MB).
const DefaultMaxBufferSize = 1024 * 1024 * 10

// ParseOptions configures seed parsing.
type ParseOptions struct {
	// WarningHandler is called with warning messages (e.g., malformed JSON).
	// If nil, warnings are printed to os.Stderr.
	WarningHandler func(string)

	// BufferSize sets the maximum line size (in bytes) to read at once.
	// Lines longer than this are skipped with a warning.
	// If 0, uses DefaultMaxBufferSize (10MB).
	BufferSize int
}

func (o ParseOptions) warn() func(string) {
	if o.WarningHandler != nil {
		return o.WarningHandler
	}
	if os.Getenv("EDGELOC_ROBOT") == "1" {
		return func(string) {}
	}
	return func(msg string) {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	}
}

// LoadSeedFromFile reads a seed file, choosing the format by extension.
func LoadSeedFromFile(path string) (Seed, error) {
	return LoadSeedFromFileWithOptions(path, ParseOptions{})
}

// LoadSeedFromFileWithOptions is LoadSeedFromFile with custom options.
func LoadSeedFromFileWithOptions(path string, opts ParseOptions) (Seed, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Seed{}, fmt.Errorf("no seed found at %s", path)
	}
	file, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(file)
	default:
		return ParseJSONLWithOptions(file, opts)
	}
}

// ParseJSONL parses JSON Lines seed content.
func ParseJSONL(r io.Reader) (Seed, error) {
	return ParseJSONLWithOptions(r, ParseOptions{})
}

// ParseJSONLWithOptions parses JSON Lines seed content. Malformed and
// invalid lines are skipped with a warning; read errors abort.
func ParseJSONLWithOptions(r io.Reader, opts ParseOptions) (Seed, error) {
	var seed Seed

	maxCapacity := opts.BufferSize
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxBufferSize
	}
	reader := bufio.NewReaderSize(r, maxCapacity)
	warn := opts.warn()

	lineNum := 0
	for {
		lineNum++
		line, isPrefix, err := reader.ReadLine()
		if err != nil {
			if err == io.EOF {
				break
			}
			return Seed{}, fmt.Errorf("error reading seed stream at line %d: %w", lineNum, err)
		}

		if isPrefix {
			warn(fmt.Sprintf("skipping line %d: line too long (exceeds %d bytes)", lineNum, maxCapacity))
			for isPrefix {
				_, isPrefix, err = reader.ReadLine()
				if err == io.EOF {
					break
				}
				if err != nil {
					return Seed{}, fmt.Errorf("error skipping long line at line %d: %w", lineNum, err)
				}
			}
			continue
		}

		if lineNum == 1 {
			line = stripBOM(line)
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			warn(fmt.Sprintf("skipping malformed JSON on line %d: %v", lineNum, err))
			continue
		}
		if err := seed.add(rec); err != nil {
			warn(fmt.Sprintf("skipping invalid record on line %d: %v", lineNum, err))
		}
	}

	return seed, nil
}

func (s *Seed) add(rec record) error {
	kind := rec.Kind
	if kind == "" {
		inferred, ok := model.InferKind(rec.ResourceID)
		if !ok {
			return fmt.Errorf("cannot determine kind of %q", rec.ResourceID)
		}
		kind = inferred
	}

	switch kind {
	case model.KindRegion:
		r := model.Region{ResourceID: rec.ResourceID, Name: rec.Name, ParentRegion: rec.ParentRegion}
		if err := r.Validate(); err != nil {
			return err
		}
		s.Regions = append(s.Regions, r)
	case model.KindSite:
		site := model.Site{ResourceID: rec.ResourceID, Name: rec.Name, Region: rec.Region}
		if err := site.Validate(); err != nil {
			return err
		}
		s.Sites = append(s.Sites, site)
	default:
		return fmt.Errorf("unknown kind %q", kind)
	}
	return nil
}

// ParseYAML parses a YAML seed document with top-level regions and sites
// lists.
func ParseYAML(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return Seed{}, nil
		}
		return Seed{}, fmt.Errorf("failed to parse YAML seed: %w", err)
	}
	for _, reg := range seed.Regions {
		if err := reg.Validate(); err != nil {
			return Seed{}, err
		}
	}
	for _, s := range seed.Sites {
		if err := s.Validate(); err != nil {
			return Seed{}, err
		}
	}
	return seed, nil
}

// WriteJSONL writes the seed as JSON Lines, regions first.
func WriteJSONL(w io.Writer, seed Seed) error {
	enc := json.NewEncoder(w)
	for _, r := range seed.Regions {
		if err := enc.Encode(record{Kind: model.KindRegion, ResourceID: r.ResourceID, Name: r.Name, ParentRegion: r.ParentRegion}); err != nil {
			return err
		}
	}
	for _, s := range seed.Sites {
		if err := enc.Encode(record{Kind: model.KindSite, ResourceID: s.ResourceID, Name: s.Name, Region: s.Region}); err != nil {
			return err
		}
	}
	return nil
}

// stripBOM removes the UTF-8 Byte Order Mark if present
func stripBOM(b []byte) []byte {
	if bytes.HasPrefix(b, []byte{0xEF, 0xBB, 0xBF}) {
		return b[3:]
	}
	return b
}
