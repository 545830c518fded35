// Copyright 2026 The wasix-journal Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/hghpublic/wasmerio-wasmer/journal"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local experimentation with journals.
	Development Environment = "development"
	// Production is for instances whose journals must survive crashes.
	Production Environment = "production"
)

// NetworkingMode selects how an instance's networking calls are served.
type NetworkingMode string

const (
	// NetworkingEnabled serves networking calls from the local provider.
	NetworkingEnabled NetworkingMode = "enabled"
	// NetworkingDisabled fails every networking call with notsup.
	NetworkingDisabled NetworkingMode = "disabled"
	// NetworkingAsk prompts the operator on the first networking call.
	NetworkingAsk NetworkingMode = "ask"
)

// Config is the configuration of the wasix-journal tooling.
type Config struct {
	// Environment identifies the deployment type (development, production).
	Environment Environment `yaml:"environment"`

	// Journal configures where and how records are persisted.
	Journal JournalConfig `yaml:"journal"`

	// Runtime configures the instances journals are replayed into.
	Runtime RuntimeConfig `yaml:"runtime"`

	// Per-environment overrides, applied after the base config is
	// loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Journal *JournalConfig `yaml:"journal,omitempty"`
	Runtime *RuntimeConfig `yaml:"runtime,omitempty"`
}

// JournalConfig configures the journal store.
type JournalConfig struct {
	// Path is the journal file. Paths ending in .db, .sqlite or
	// .sqlite3 use the SQLite backend.
	Path string `yaml:"path"`

	// Compression is none, lz4 or zstd.
	// Default: zstd
	Compression string `yaml:"compression"`

	// Sync is always or never.
	// Default: never (development), always (production)
	Sync string `yaml:"sync"`
}

// RuntimeConfig configures replay targets.
type RuntimeConfig struct {
	// Networking is enabled, disabled or ask.
	// Default: ask (development), disabled (production)
	Networking NetworkingMode `yaml:"networking"`

	// NetworkPool is the address range the local network provider
	// leases from. Empty uses the provider default.
	NetworkPool string `yaml:"network_pool"`

	// Root is a host directory that backs the instance file system.
	// Empty means an in-memory tree.
	Root string `yaml:"root"`

	// Preopens are directories handed to the instance. Empty means
	// the root directory at fd 3.
	Preopens []PreopenConfig `yaml:"preopens"`
}

// PreopenConfig is one preopened directory.
type PreopenConfig struct {
	// Path is the directory inside the instance file system.
	Path string `yaml:"path"`

	// Fd pins the descriptor id. Zero allocates the next free id.
	Fd uint32 `yaml:"fd"`
}

// Default returns the default configuration. The defaults are a base
// for the config file, not a replacement for it.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment: Development,
		Journal: JournalConfig{
			Path:        filepath.Join(homeDir, ".local", "state", "wasix", "journal.wjournal"),
			Compression: "zstd",
			Sync:        "never",
		},
		Runtime: RuntimeConfig{
			Networking: NetworkingAsk,
		},
	}
}

// Load loads configuration from the WASIX_CONFIG environment variable.
// There is no fallback: if WASIX_CONFIG is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv("WASIX_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WASIX_CONFIG environment variable not set; " +
			"set it to the path of your config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file. Files ending in
// .json or .jsonc may contain comments and trailing commas.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments are stripped.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: durable appends, no surprise networking.
		if overrides == nil {
			overrides = &ConfigOverrides{
				Journal: &JournalConfig{Sync: "always"},
				Runtime: &RuntimeConfig{Networking: NetworkingDisabled},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Journal != nil {
		if overrides.Journal.Path != "" {
			c.Journal.Path = overrides.Journal.Path
		}
		if overrides.Journal.Compression != "" {
			c.Journal.Compression = overrides.Journal.Compression
		}
		if overrides.Journal.Sync != "" {
			c.Journal.Sync = overrides.Journal.Sync
		}
	}

	if overrides.Runtime != nil {
		if overrides.Runtime.Networking != "" {
			c.Runtime.Networking = overrides.Runtime.Networking
		}
		if overrides.Runtime.NetworkPool != "" {
			c.Runtime.NetworkPool = overrides.Runtime.NetworkPool
		}
		if overrides.Runtime.Root != "" {
			c.Runtime.Root = overrides.Runtime.Root
		}
		if overrides.Runtime.Preopens != nil {
			c.Runtime.Preopens = overrides.Runtime.Preopens
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Journal.Path = expandVars(c.Journal.Path, vars)
	c.Runtime.Root = expandVars(c.Runtime.Root, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Journal.Path == "" {
		errs = append(errs, fmt.Errorf("journal.path is required"))
	}
	if _, err := journal.ParseCompression(c.Journal.Compression); err != nil {
		errs = append(errs, fmt.Errorf("journal.compression: %w", err))
	}
	if _, err := journal.ParseSyncMode(c.Journal.Sync); err != nil {
		errs = append(errs, fmt.Errorf("journal.sync: %w", err))
	}

	modes := []NetworkingMode{NetworkingEnabled, NetworkingDisabled, NetworkingAsk}
	if !slices.Contains(modes, c.Runtime.Networking) {
		errs = append(errs, fmt.Errorf("runtime.networking must be one of: %v", modes))
	}
	if c.Runtime.NetworkPool != "" {
		if _, err := netip.ParsePrefix(c.Runtime.NetworkPool); err != nil {
			errs = append(errs, fmt.Errorf("runtime.network_pool: %w", err))
		}
	}

	seen := make(map[uint32]string)
	for i, preopen := range c.Runtime.Preopens {
		if !path.IsAbs(preopen.Path) {
			errs = append(errs, fmt.Errorf("runtime.preopens[%d].path must be absolute, got %q", i, preopen.Path))
		}
		if preopen.Fd == 0 {
			continue
		}
		if preopen.Fd < 3 {
			errs = append(errs, fmt.Errorf("runtime.preopens[%d].fd %d collides with stdio", i, preopen.Fd))
		}
		if other, ok := seen[preopen.Fd]; ok {
			errs = append(errs, fmt.Errorf("runtime.preopens[%d].fd %d already used by %s", i, preopen.Fd, other))
		}
		seen[preopen.Fd] = preopen.Path
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// JournalOptions converts the journal section to store options. Call
// Validate first; invalid values are reported here too.
func (c *Config) JournalOptions(logger *slog.Logger) (journal.Options, error) {
	compression, err := journal.ParseCompression(c.Journal.Compression)
	if err != nil {
		return journal.Options{}, err
	}
	sync, err := journal.ParseSyncMode(c.Journal.Sync)
	if err != nil {
		return journal.Options{}, err
	}
	return journal.Options{Compression: compression, Sync: sync, Logger: logger}, nil
}

// EnsurePaths creates the directories the configuration refers to.
func (c *Config) EnsurePaths() error {
	paths := []string{
		filepath.Dir(c.Journal.Path),
		c.Runtime.Root,
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
