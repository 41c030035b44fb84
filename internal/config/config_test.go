// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Create a temporary directory for testing
	tempDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", originalHome)

	// Ensure config directory exists
	err := EnsureConfigDir()
	require.NoError(t, err)

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Check defaults
	assert.Equal(t, filepath.Join(tempDir, ".muninn/store"), cfg.Store.BaseDir)
	assert.Equal(t, "memories", cfg.Index.Collection)
	assert.Equal(t, 2000, cfg.Recall.TimeoutMillis)
	assert.Equal(t, 6, cfg.Recall.Results)
	assert.Equal(t, 0.3, cfg.Recall.RecencyWeight)
	assert.Equal(t, 5, cfg.Consolidation.EveryN)
	assert.True(t, cfg.Consolidation.Contradiction.Enabled)
	assert.False(t, cfg.Git.Enabled)
	assert.Equal(t, "main", cfg.Git.DefaultBranch)
	assert.Equal(t, "localhost:9464", cfg.Metrics.ListenAddr)
}

func TestLoadFromPath(t *testing.T) {
	tests := []struct {
		name        string
		configJSON  string
		expectError bool
		validate    func(*testing.T, *Config)
	}{
		{
			name: "valid full config",
			configJSON: `{
				"store": {
					"base_dir": "/tmp/muninn-store",
					"aliases": {
						"jane-doe": ["Jane Doe", "JaneDoe"]
					}
				},
				"catalog": {
					"path": "/tmp/muninn-catalog.db"
				},
				"index": {
					"daemon_url": "http://localhost:7700",
					"collection": "team-memories",
					"global_collections": ["org-wide"]
				},
				"recall": {
					"timeout_ms": 1500,
					"results": 8
				},
				"git": {
					"enabled": true,
					"author_name": "memorybot"
				}
			}`,
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/muninn-store", cfg.Store.BaseDir)
				assert.Equal(t, []string{"Jane Doe", "JaneDoe"}, cfg.Store.Aliases["jane-doe"])
				assert.Equal(t, "http://localhost:7700", cfg.Index.DaemonURL)
				assert.Equal(t, "team-memories", cfg.Index.Collection)
				assert.Equal(t, []string{"org-wide"}, cfg.Index.GlobalCollections)
				assert.Equal(t, 1500, cfg.Recall.TimeoutMillis)
				assert.Equal(t, 8, cfg.Recall.Results)
				assert.True(t, cfg.Git.Enabled)
				assert.Equal(t, "memorybot", cfg.Git.AuthorName)
				// Untouched sections should keep defaults
				assert.Equal(t, 30, cfg.Index.CLITimeoutSeconds)
				assert.Equal(t, 5, cfg.Consolidation.EveryN)
			},
		},
		{
			name: "partial config keeps defaults",
			configJSON: `{
				"store": {
					"base_dir": "/tmp/partial-store"
				}
			}`,
			expectError: false,
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/partial-store", cfg.Store.BaseDir)
				assert.Equal(t, 2000, cfg.Recall.TimeoutMillis)
				assert.Equal(t, "memories", cfg.Index.Collection)
			},
		},
		{
			name: "invalid recall timeout",
			configJSON: `{
				"recall": {
					"timeout_ms": 0
				}
			}`,
			expectError: true,
		},
		{
			name: "recency weight out of range",
			configJSON: `{
				"recall": {
					"recency_weight": 1.5
				}
			}`,
			expectError: true,
		},
		{
			name: "contradiction similarity out of range",
			configJSON: `{
				"consolidation": {
					"contradiction": {
						"enabled": true,
						"similarity": 2.0
					}
				}
			}`,
			expectError: true,
		},
		{
			name: "metrics enabled without listen addr",
			configJSON: `{
				"metrics": {
					"enabled": true,
					"listen_addr": ""
				}
			}`,
			expectError: true,
		},
		{
			name:        "malformed json",
			configJSON:  `{"store": {`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			configPath := filepath.Join(tempDir, "config.json")
			err := os.WriteFile(configPath, []byte(tt.configJSON), 0644)
			require.NoError(t, err)

			cfg, err := LoadFromPath(configPath)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestLoadFromPath_FileNotFound(t *testing.T) {
	_, err := LoadFromPath("/nonexistent/config.json")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError string
	}{
		{
			name:   "default config is valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:        "missing base dir",
			mutate:      func(cfg *Config) { cfg.Store.BaseDir = "" },
			expectError: "store.base_dir is required",
		},
		{
			name:        "missing catalog path",
			mutate:      func(cfg *Config) { cfg.Catalog.Path = "" },
			expectError: "catalog.path is required",
		},
		{
			name:        "non-positive half life",
			mutate:      func(cfg *Config) { cfg.Recall.RecencyHalfLifeDays = 0 },
			expectError: "recency_half_life_days must be positive",
		},
		{
			name:        "every_n below one",
			mutate:      func(cfg *Config) { cfg.Consolidation.EveryN = 0 },
			expectError: "every_n must be at least 1",
		},
		{
			name: "disabled contradiction skips bounds check",
			mutate: func(cfg *Config) {
				cfg.Consolidation.Contradiction.Enabled = false
				cfg.Consolidation.Contradiction.Similarity = 5
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEnsureConfigDir(t *testing.T) {
	tempDir := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tempDir)
	defer os.Setenv("HOME", originalHome)

	err := EnsureConfigDir()
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(tempDir, DefaultConfigDir))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, validate(cfg))
	assert.Equal(t, "memories", cfg.Index.Collection)
	assert.Equal(t, 7.0, cfg.Recall.RecencyHalfLifeDays)
}
