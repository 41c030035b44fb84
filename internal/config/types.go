// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

// Config represents the complete application configuration
type Config struct {
	Store         StoreConfig         `mapstructure:"store"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Index         IndexConfig         `mapstructure:"index"`
	Recall        RecallConfig        `mapstructure:"recall"`
	Consolidation ConsolidationConfig `mapstructure:"consolidation"`
	Git           GitConfig           `mapstructure:"git"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// StoreConfig holds record store settings
type StoreConfig struct {
	BaseDir           string              `mapstructure:"base_dir"`
	Aliases           map[string][]string `mapstructure:"aliases"` // canonical name -> alternate spellings
	KnowledgeMaxChars int                 `mapstructure:"knowledge_max_chars"`
}

// CatalogConfig holds the sqlite catalog sidecar settings
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// IndexConfig holds the external search index tool settings
type IndexConfig struct {
	DaemonURL              string   `mapstructure:"daemon_url"`
	CLIPath                string   `mapstructure:"cli_path"`
	Collection             string   `mapstructure:"collection"`
	GlobalCollections      []string `mapstructure:"global_collections"`
	RequestTimeoutSeconds  int      `mapstructure:"request_timeout_seconds"`
	CLITimeoutSeconds      int      `mapstructure:"cli_timeout_seconds"`
	ReprobeIntervalSeconds int      `mapstructure:"reprobe_interval_seconds"`
}

// RecallConfig holds recall assembly settings
type RecallConfig struct {
	TimeoutMillis       int     `mapstructure:"timeout_ms"`
	Results             int     `mapstructure:"results"`
	GlobalResults       int     `mapstructure:"global_results"`
	FallbackRecent      int     `mapstructure:"fallback_recent"`
	RecencyWeight       float64 `mapstructure:"recency_weight"`
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days"`
	TranscriptWindow    int     `mapstructure:"transcript_window"`
	SummaryCount        int     `mapstructure:"summary_count"`
}

// ConsolidationConfig holds settings for the periodic consolidation pass
type ConsolidationConfig struct {
	EveryN               int                 `mapstructure:"every_n"` // consolidate after every Nth extraction
	AccessFlushThreshold int                 `mapstructure:"access_flush_threshold"`
	Contradiction        ContradictionConfig `mapstructure:"contradiction"`
	Summarization        SummarizationConfig `mapstructure:"summarization"`
	IdentityMaxChars     int                 `mapstructure:"identity_max_chars"`
	IdentityCooldownHrs  int                 `mapstructure:"identity_cooldown_hours"`
	ProfileMaxLines      int                 `mapstructure:"profile_max_lines"`
	CommitmentDecayDays  int                 `mapstructure:"commitment_decay_days"`
}

// ContradictionConfig holds contradiction detection settings
type ContradictionConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Similarity float64 `mapstructure:"similarity"` // index-score floor for candidates
	Confidence float64 `mapstructure:"confidence"` // verdict floor that triggers supersession
}

// SummarizationConfig holds archival summarization settings
type SummarizationConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	BatchSize  int  `mapstructure:"batch_size"`
	MinAgeDays int  `mapstructure:"min_age_days"`
}

// GitConfig holds git audit trail configuration
type GitConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	DefaultBranch string `mapstructure:"default_branch"`
	AuthorName    string `mapstructure:"author_name"`
	AuthorEmail   string `mapstructure:"author_email"`
}

// MetricsConfig holds Prometheus exposition settings
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}
