// Package config manages mdvc configuration and the .mdvc directory structure.
// It handles loading, saving, and initializing the repository configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kilupskalvis/mdvc/internal/models"
	"github.com/kilupskalvis/mdvc/internal/store"
	"github.com/pelletier/go-toml/v2"
)

const (
	MDVCDir      = ".mdvc"
	ConfigFile   = "config"
	BboltFile    = "mdvc.db"
	SQLiteFile   = "mdvc.sqlite"
	ConflictsDir = "conflicts"
)

// Config represents the mdvc configuration
type Config struct {
	Backend      string   `toml:"backend"`       // bbolt or sqlite
	DefaultBump  string   `toml:"default_bump"`  // Bump used when commit gets none
	ContextLines int      `toml:"context_lines"` // Context lines around conflict hunks
	ListPolicy   string   `toml:"list_policy"`   // conflict or union
	IgnoreFields []string `toml:"ignore_fields"` // Metadata fields that never conflict
	ShowBase     bool     `toml:"show_base"`     // Render the base side in conflict files
	path         string   // path to .mdvc directory
}

// Default returns the configuration written by Initialize
func Default() *Config {
	opts := models.DefaultMergeOptions()
	return &Config{
		Backend:      store.KindBbolt,
		DefaultBump:  string(models.BumpPatch),
		ContextLines: opts.ContextLines,
		ListPolicy:   string(opts.ListPolicy),
		IgnoreFields: opts.IgnoreFields,
	}
}

// FindRoot finds the .mdvc directory by walking up from dir
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		mdvcPath := filepath.Join(dir, MDVCDir)
		if info, err := os.Stat(mdvcPath); err == nil && info.IsDir() {
			return mdvcPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not an mdvc repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .mdvc directory above the working directory
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadFrom(cwd)
}

// LoadFrom loads the configuration from the .mdvc directory above dir.
// Missing keys keep their default values.
func LoadFrom(dir string) (*Config, error) {
	mdvcPath, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(mdvcPath, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.path = mdvcPath
	return cfg, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Backend {
	case "", store.KindBbolt, store.KindSQLite:
	default:
		return fmt.Errorf("invalid backend %q: expected %s or %s", c.Backend, store.KindBbolt, store.KindSQLite)
	}
	if _, err := models.ParseBumpType(c.DefaultBump); err != nil {
		return fmt.Errorf("invalid default_bump: %w", err)
	}
	switch models.ListPolicy(c.ListPolicy) {
	case "", models.ListConflict, models.ListUnion:
	default:
		return fmt.Errorf("invalid list_policy %q: expected conflict or union", c.ListPolicy)
	}
	if c.ContextLines < 0 {
		return fmt.Errorf("invalid context_lines %d: must not be negative", c.ContextLines)
	}
	return nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// Path returns the path to the .mdvc directory
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the path to the configured backend's database file
func (c *Config) DatabasePath() string {
	if c.Backend == store.KindSQLite {
		return filepath.Join(c.path, SQLiteFile)
	}
	return filepath.Join(c.path, BboltFile)
}

// ConflictsPath returns the directory where pending conflict files are kept
func (c *Config) ConflictsPath() string {
	return filepath.Join(c.path, ConflictsDir)
}

// OpenStore opens the configured persistence backend
func (c *Config) OpenStore() (store.Backend, error) {
	return store.Open(c.Backend, c.DatabasePath())
}

// Bump returns the configured default bump type
func (c *Config) Bump() models.BumpType {
	bump, err := models.ParseBumpType(c.DefaultBump)
	if err != nil {
		return models.BumpPatch
	}
	return bump
}

// MergeOptions derives engine merge options from the configuration
func (c *Config) MergeOptions() models.MergeOptions {
	opts := models.DefaultMergeOptions()
	if c.ListPolicy != "" {
		opts.ListPolicy = models.ListPolicy(c.ListPolicy)
	}
	if c.IgnoreFields != nil {
		opts.IgnoreFields = append([]string{}, c.IgnoreFields...)
	}
	if c.ContextLines > 0 {
		opts.ContextLines = c.ContextLines
	}
	return opts
}

// Initialize creates a new .mdvc directory in dir with initial configuration
func Initialize(dir, backend string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	mdvcPath := filepath.Join(dir, MDVCDir)

	// Check if already initialized
	if _, err := os.Stat(mdvcPath); err == nil {
		return nil, fmt.Errorf("mdvc repository already exists")
	}

	cfg := Default()
	if backend != "" {
		cfg.Backend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.path = mdvcPath

	// Create directories
	if err := os.MkdirAll(cfg.ConflictsPath(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create .mdvc directory: %w", err)
	}

	if err := cfg.Save(); err != nil {
		// Cleanup on failure
		os.RemoveAll(mdvcPath)
		return nil, err
	}

	st, err := cfg.OpenStore()
	if err != nil {
		os.RemoveAll(mdvcPath)
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	st.Close()

	return cfg, nil
}
