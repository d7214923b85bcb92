// Package config handles loading and saving edgeloc configuration.
//
// Configuration follows the XDG Base Directory specification:
//   - Config:  ~/.config/edgeloc/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vanderheijden86/edgeloc/pkg/model"
)

const appName = "edgeloc"

// Inventory is a named data directory registered in the config.
type Inventory struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultScope string `yaml:"default_scope,omitempty"` // all, regions, sites
	MinLength    int    `yaml:"min_length,omitempty"`    // Shortest term that enters search mode
}

// WatchConfig controls live reload of the inventory database.
type WatchConfig struct {
	Enabled  *bool  `yaml:"enabled,omitempty"`
	Debounce string `yaml:"debounce,omitempty"` // Go duration, e.g. "250ms"
}

// Config is the top-level configuration for edgeloc.
type Config struct {
	DataDir     string       `yaml:"data_dir,omitempty"`
	PageSize    int          `yaml:"page_size,omitempty"`
	Default     string       `yaml:"default,omitempty"` // Name of the inventory opened without --data-dir
	Inventories []Inventory  `yaml:"inventories,omitempty"`
	Search      SearchConfig `yaml:"search,omitempty"`
	Watch       WatchConfig  `yaml:"watch,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		PageSize: 200,
		Search: SearchConfig{
			DefaultScope: string(model.ScopeAll),
			MinLength:    2,
		},
		Watch: WatchConfig{
			Debounce: "250ms",
		},
	}
}

// ConfigDir returns the XDG config directory for edgeloc.
func ConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appName)
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	dir := ConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads the config file from the XDG config directory.
// Returns DefaultConfig if the file doesn't exist.
func Load() (Config, error) {
	path := ConfigPath()
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom reads config from a specific path.
// Returns DefaultConfig if the file doesn't exist.
func LoadFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	cfg.DataDir = expandHome(cfg.DataDir)
	for i := range cfg.Inventories {
		cfg.Inventories[i].Path = expandHome(cfg.Inventories[i].Path)
	}

	return cfg, nil
}

// Validate reports values that cannot be used.
func (c Config) Validate() error {
	if c.PageSize < 0 {
		return fmt.Errorf("page_size must not be negative, got %d", c.PageSize)
	}
	if c.Search.MinLength < 0 {
		return fmt.Errorf("search.min_length must not be negative, got %d", c.Search.MinLength)
	}
	if c.Search.DefaultScope != "" {
		if _, err := model.ParseSearchScope(c.Search.DefaultScope); err != nil {
			return fmt.Errorf("search.default_scope: %w", err)
		}
	}
	if c.Watch.Debounce != "" {
		if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
			return fmt.Errorf("watch.debounce: %w", err)
		}
	}
	return nil
}

// Save writes the config to the XDG config directory.
func Save(cfg Config) error {
	path := ConfigPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the config to a specific path.
func SaveTo(cfg Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Scope returns the configured default search scope, falling back to all.
func (c Config) Scope() model.SearchScope {
	scope, err := model.ParseSearchScope(c.Search.DefaultScope)
	if err != nil {
		return model.ScopeAll
	}
	return scope
}

// WatchEnabled reports whether live reload is on. It defaults to true.
func (c Config) WatchEnabled() bool {
	return c.Watch.Enabled == nil || *c.Watch.Enabled
}

// DebounceInterval returns the parsed watch debounce, or zero when unset.
func (c Config) DebounceInterval() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 0
	}
	return d
}

// FindInventory returns the inventory with the given name, or nil.
func (c Config) FindInventory(name string) *Inventory {
	for i := range c.Inventories {
		if strings.EqualFold(c.Inventories[i].Name, name) {
			return &c.Inventories[i]
		}
	}
	return nil
}

// SetInventory registers or updates a named inventory.
func (c *Config) SetInventory(name, path string) {
	if inv := c.FindInventory(name); inv != nil {
		inv.Path = path
		return
	}
	c.Inventories = append(c.Inventories, Inventory{Name: name, Path: path})
}

// ResolveDataDir picks the data directory to open: an explicit flag value
// wins, then a named inventory, then the default inventory, then data_dir.
// An empty result means the loader's own default applies.
func (c Config) ResolveDataDir(flagDir, name string) (string, error) {
	if flagDir != "" {
		return expandHome(flagDir), nil
	}
	if name != "" {
		inv := c.FindInventory(name)
		if inv == nil {
			return "", fmt.Errorf("unknown inventory %q", name)
		}
		return inv.Path, nil
	}
	if c.Default != "" {
		if inv := c.FindInventory(c.Default); inv != nil {
			return inv.Path, nil
		}
	}
	return c.DataDir, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
