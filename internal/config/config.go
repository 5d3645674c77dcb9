// Package config loads ledger configuration from YAML, layered over an
// embedded default so a fresh checkout runs with zero setup.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Config is the full ledger configuration.
type Config struct {
	Store StoreConfig `yaml:"store"`
	Owner OwnerConfig `yaml:"owner"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is "sqlite" or "firestore".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file; ":memory:" for ephemeral use.
	Path string `yaml:"path"`

	// ProjectID and CredentialsFile configure the Firestore backend.
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

// OwnerConfig identifies the ledger owner. Aliases cover the name variants
// banks print on statements, and feed the audit payer matching.
type OwnerConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
}

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse embedded default config: %w", err)
	}
	return &cfg, nil
}

// Load reads the YAML file at path layered over the embedded default. An
// empty path returns the default alone.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks backend selection and its required parameters.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the sqlite backend")
		}
	case "firestore":
		if c.Store.ProjectID == "" {
			return fmt.Errorf("store.project_id is required for the firestore backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (expected sqlite or firestore)", c.Store.Backend)
	}

	if c.Owner.ID == "" {
		return fmt.Errorf("owner.id is required")
	}
	return nil
}

// OwnerNames returns the owner's display name and all aliases, for audit
// payer matching.
func (c *Config) OwnerNames() []string {
	names := make([]string, 0, len(c.Owner.Aliases)+1)
	if c.Owner.Name != "" {
		names = append(names, c.Owner.Name)
	}
	names = append(names, c.Owner.Aliases...)
	return names
}
