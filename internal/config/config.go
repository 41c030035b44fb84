// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".muninn/configs"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.json"
)

// Load reads configuration from ~/.muninn/configs/config.json
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(configPath)

	// Set defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, use defaults
			return loadFromDefaults(v)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromPath loads configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	// Store defaults
	v.SetDefault("store.base_dir", filepath.Join(homeDir, ".muninn/store"))
	v.SetDefault("store.knowledge_max_chars", 4000)

	// Catalog defaults
	v.SetDefault("catalog.path", filepath.Join(homeDir, ".muninn/db/catalog.db"))

	// Index defaults
	v.SetDefault("index.collection", "memories")
	v.SetDefault("index.request_timeout_seconds", 10)
	v.SetDefault("index.cli_timeout_seconds", 30)
	v.SetDefault("index.reprobe_interval_seconds", 60)

	// Recall defaults
	v.SetDefault("recall.timeout_ms", 2000)
	v.SetDefault("recall.results", 6)
	v.SetDefault("recall.global_results", 3)
	v.SetDefault("recall.fallback_recent", 10)
	v.SetDefault("recall.recency_weight", 0.3)
	v.SetDefault("recall.recency_half_life_days", 7)
	v.SetDefault("recall.transcript_window", 10)
	v.SetDefault("recall.summary_count", 3)

	// Consolidation defaults
	v.SetDefault("consolidation.every_n", 5)
	v.SetDefault("consolidation.access_flush_threshold", 50)
	v.SetDefault("consolidation.contradiction.enabled", true)
	v.SetDefault("consolidation.contradiction.similarity", 0.75)
	v.SetDefault("consolidation.contradiction.confidence", 0.8)
	v.SetDefault("consolidation.summarization.enabled", false)
	v.SetDefault("consolidation.summarization.batch_size", 10)
	v.SetDefault("consolidation.summarization.min_age_days", 30)
	v.SetDefault("consolidation.identity_max_chars", 8000)
	v.SetDefault("consolidation.identity_cooldown_hours", 24)
	v.SetDefault("consolidation.profile_max_lines", 120)
	v.SetDefault("consolidation.commitment_decay_days", 30)

	// Git defaults
	v.SetDefault("git.enabled", false)
	v.SetDefault("git.default_branch", "main")
	v.SetDefault("git.author_name", "muninn")
	v.SetDefault("git.author_email", "muninn@localhost")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_addr", "localhost:9464")
}

// loadFromDefaults creates a config from default values
func loadFromDefaults(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Store.BaseDir == "" {
		return fmt.Errorf("store.base_dir is required")
	}
	if cfg.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}

	if cfg.Recall.TimeoutMillis < 1 {
		return fmt.Errorf("recall.timeout_ms must be at least 1, got %d", cfg.Recall.TimeoutMillis)
	}
	if cfg.Recall.RecencyWeight < 0 || cfg.Recall.RecencyWeight > 1 {
		return fmt.Errorf("recall.recency_weight must be between 0 and 1, got %v", cfg.Recall.RecencyWeight)
	}
	if cfg.Recall.RecencyHalfLifeDays <= 0 {
		return fmt.Errorf("recall.recency_half_life_days must be positive, got %v", cfg.Recall.RecencyHalfLifeDays)
	}

	if cfg.Consolidation.EveryN < 1 {
		return fmt.Errorf("consolidation.every_n must be at least 1, got %d", cfg.Consolidation.EveryN)
	}
	if c := cfg.Consolidation.Contradiction; c.Enabled {
		if c.Similarity < 0 || c.Similarity > 1 {
			return fmt.Errorf("consolidation.contradiction.similarity must be between 0 and 1, got %v", c.Similarity)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			return fmt.Errorf("consolidation.contradiction.confidence must be between 0 and 1, got %v", c.Confidence)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics.enabled is true")
	}

	return nil
}

// EnsureConfigDir creates the configuration directory if it doesn't exist
func EnsureConfigDir() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, DefaultConfigDir)
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Store: StoreConfig{
			BaseDir:           filepath.Join(homeDir, ".muninn/store"),
			KnowledgeMaxChars: 4000,
		},
		Catalog: CatalogConfig{
			Path: filepath.Join(homeDir, ".muninn/db/catalog.db"),
		},
		Index: IndexConfig{
			Collection:             "memories",
			RequestTimeoutSeconds:  10,
			CLITimeoutSeconds:      30,
			ReprobeIntervalSeconds: 60,
		},
		Recall: RecallConfig{
			TimeoutMillis:       2000,
			Results:             6,
			GlobalResults:       3,
			FallbackRecent:      10,
			RecencyWeight:       0.3,
			RecencyHalfLifeDays: 7,
			TranscriptWindow:    10,
			SummaryCount:        3,
		},
		Consolidation: ConsolidationConfig{
			EveryN:               5,
			AccessFlushThreshold: 50,
			Contradiction: ContradictionConfig{
				Enabled:    true,
				Similarity: 0.75,
				Confidence: 0.8,
			},
			Summarization: SummarizationConfig{
				BatchSize:  10,
				MinAgeDays: 30,
			},
			IdentityMaxChars:    8000,
			IdentityCooldownHrs: 24,
			ProfileMaxLines:     120,
			CommitmentDecayDays: 30,
		},
		Git: GitConfig{
			DefaultBranch: "main",
			AuthorName:    "muninn",
			AuthorEmail:   "muninn@localhost",
		},
		Metrics: MetricsConfig{
			ListenAddr: "localhost:9464",
		},
	}
}
