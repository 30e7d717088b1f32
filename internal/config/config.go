// Package config provides configuration management for the ledger service.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Matching defaults used when the corresponding fields are unset. The roll
// window and coverage rule are broker conventions, kept configurable.
const (
	// defaultRollWindowDays bounds roll linking between orders of a chain.
	defaultRollWindowDays = 30
	// defaultPairWindowSeconds bounds assignment/exercise event pairing.
	defaultPairWindowSeconds = 30
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Feed        FeedConfig        `yaml:"feed"`
	Accounts    []string          `yaml:"accounts"`
	Sync        SyncConfig        `yaml:"sync"`
	Matching    MatchingConfig    `yaml:"matching"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Storage     StorageConfig     `yaml:"storage"`
	API         APIConfig         `yaml:"api"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// FeedConfig defines transaction/quote feed API settings.
type FeedConfig struct {
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	// HistoryDays bounds how much transaction history is fetched per run;
	// zero fetches full history.
	HistoryDays int `yaml:"history_days"`
}

// SyncConfig defines the sync schedule.
type SyncConfig struct {
	// Schedule is a cron expression, e.g. "0 */4 * * *".
	Schedule string `yaml:"schedule"`
	// OnStart triggers a sync immediately at startup.
	OnStart bool `yaml:"on_start"`
}

// MatchingConfig defines lot matching and chain linking parameters.
type MatchingConfig struct {
	RollWindowDays    int `yaml:"roll_window_days"`
	PairWindowSeconds int `yaml:"pair_window_seconds"`
	// MinCoverageRatio gates covered call recognition; 0 means any nonzero
	// stock coverage qualifies.
	MinCoverageRatio float64 `yaml:"min_coverage_ratio"`
	// LotMatchPolicy selects closing allocation order. Only "fifo" is
	// supported today; the field is reserved for per-user overrides.
	LotMatchPolicy string `yaml:"lot_match_policy"`
}

// StrategyConfig defines strategy recognition settings.
type StrategyConfig struct {
	// RulesPath points to a JSON rule table; empty uses the embedded
	// defaults.
	RulesPath string `yaml:"rules_path"`
}

// StorageConfig defines storage settings for ledger snapshots.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the read API server settings.
type APIConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one account is required")
	}
	for i, a := range c.Accounts {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("accounts[%d] is empty", i)
		}
	}

	if c.Feed.APIKey == "" {
		return fmt.Errorf("feed.api_key is required")
	}
	if c.Feed.HistoryDays < 0 {
		return fmt.Errorf("feed.history_days must be >= 0")
	}

	c.normalizeMatching()
	if c.Matching.RollWindowDays <= 0 {
		return fmt.Errorf("matching.roll_window_days must be > 0")
	}
	if c.Matching.PairWindowSeconds <= 0 {
		return fmt.Errorf("matching.pair_window_seconds must be > 0")
	}
	if c.Matching.MinCoverageRatio < 0 || c.Matching.MinCoverageRatio > 1 {
		return fmt.Errorf("matching.min_coverage_ratio must be in [0,1]")
	}
	if c.Matching.LotMatchPolicy != "fifo" {
		return fmt.Errorf("matching.lot_match_policy must be 'fifo'")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port must be a valid port")
	}

	if c.Strategy.RulesPath != "" {
		if _, err := os.Stat(c.Strategy.RulesPath); err != nil {
			return fmt.Errorf("strategy.rules_path: %w", err)
		}
	}

	return nil
}

// normalizeMatching fills matching defaults.
func (c *Config) normalizeMatching() {
	if c.Matching.RollWindowDays == 0 {
		c.Matching.RollWindowDays = defaultRollWindowDays
	}
	if c.Matching.PairWindowSeconds == 0 {
		c.Matching.PairWindowSeconds = defaultPairWindowSeconds
	}
	if c.Matching.LotMatchPolicy == "" {
		c.Matching.LotMatchPolicy = "fifo"
	}
}

// RollWindow returns the roll linking window as a duration.
func (c *Config) RollWindow() time.Duration {
	return time.Duration(c.Matching.RollWindowDays) * 24 * time.Hour
}

// PairWindow returns the assignment pairing window as a duration.
func (c *Config) PairWindow() time.Duration {
	return time.Duration(c.Matching.PairWindowSeconds) * time.Second
}

// HistoryWindow returns how far back transaction fetches should reach; zero
// means full history.
func (c *Config) HistoryWindow() time.Duration {
	return time.Duration(c.Feed.HistoryDays) * 24 * time.Hour
}
