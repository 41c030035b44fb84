// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muninnlabs/muninn/internal/catalog"
	"github.com/muninnlabs/muninn/internal/config"
	"github.com/muninnlabs/muninn/internal/engine"
	"github.com/muninnlabs/muninn/internal/gitlog"
	"github.com/muninnlabs/muninn/internal/index"
	"github.com/muninnlabs/muninn/internal/metrics"
	"github.com/muninnlabs/muninn/internal/rebuild"
	"github.com/muninnlabs/muninn/internal/record"
	"github.com/muninnlabs/muninn/internal/server"
	"github.com/muninnlabs/muninn/pkg/scheduler"
)

// Version is set at build time via ldflags (e.g. -X main.Version={{.Version}}).
var Version = "dev"

func main() {
	// CRITICAL: MCP servers must ONLY output JSON-RPC to stdout.
	// All logging goes to stderr.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	configPath := flag.String("config", "", "Path to config file")
	storeDir := flag.String("store-dir", "", "Record store directory (overrides config)")
	rebuildCatalog := flag.Bool("rebuild-catalog", false, "Regenerate the catalog from the record files and exit")
	forceRebuild := flag.Bool("force", false, "Overwrite existing catalog rows (requires --rebuild-catalog)")
	consolidate := flag.Bool("consolidate", false, "Run one consolidation pass and exit")
	cleanTTL := flag.Bool("clean-ttl", false, "Purge TTL-expired records and exit")
	maintainInterval := flag.Int("maintain-interval", 0, "Background maintenance interval in minutes (0 disables)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Muninn memory engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Server Mode:\n")
		fmt.Fprintf(os.Stderr, "  %s                       Start MCP server (stdio)\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nMaintenance:\n")
		fmt.Fprintf(os.Stderr, "  %s --rebuild-catalog             Regenerate the catalog index\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --rebuild-catalog --force     Regenerate, overwriting existing rows\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --consolidate                 Run one consolidation pass\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --clean-ttl                   Purge TTL-expired records\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *forceRebuild && !*rebuildCatalog {
		slog.Error("--force can only be used with --rebuild-catalog")
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	if *storeDir != "" {
		cfg.Store.BaseDir = *storeDir
	}

	cat, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		slog.Error("failed to open catalog", "err", err)
		os.Exit(1)
	}
	defer cat.Close()

	if *rebuildCatalog {
		withMaintenanceLock(cat, func() {
			runRebuild(cat, cfg.Store.BaseDir, *forceRebuild)
		})
		return
	}

	store, err := record.New(cfg.Store.BaseDir,
		record.WithAliasTable(record.NewAliasTable(cfg.Store.Aliases)),
		record.WithVersionCounter(cat),
		record.WithCatalogSink(catalog.NewSink(cat)),
	)
	if err != nil {
		slog.Error("failed to open record store", "err", err)
		os.Exit(1)
	}

	if *cleanTTL {
		purged, err := store.CleanExpiredTTL()
		if err != nil {
			slog.Error("ttl purge failed", "err", err)
			os.Exit(1)
		}
		slog.Info("ttl purge completed", "purged", purged)
		return
	}

	eng := buildEngine(cfg, store)

	if *consolidate {
		withMaintenanceLock(cat, func() {
			eng.Consolidate(context.Background())
		})
		return
	}

	if *maintainInterval > 0 {
		sched := scheduler.NewScheduler(eng, *maintainInterval)
		sched.Start()
		defer sched.Stop()
		slog.Info("background maintenance started", "interval_minutes", *maintainInterval)
	}

	slog.Info("starting MCP server (stdio)", "version", Version, "store", cfg.Store.BaseDir)
	srv := server.NewMCPServer(eng, Version)
	if err := srv.ServeStdio(); err != nil {
		slog.Error("MCP server error", "err", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file, falling back to built-in defaults.
func loadConfig(path string) *config.Config {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Warn("failed to load config, using defaults", "err", err)
		cfg = config.DefaultConfig()
	}
	return cfg
}

// buildEngine wires the engine from configuration.
func buildEngine(cfg *config.Config, store *record.Store) *engine.Engine {
	var collector metrics.Collector = metrics.NewNoopCollector()
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusCollector()
		collector = prom
		go serveMetrics(cfg.Metrics.ListenAddr, prom)
	}

	idx := index.NewClient(index.Config{
		DaemonURL:         cfg.Index.DaemonURL,
		CLIPath:           cfg.Index.CLIPath,
		DefaultCollection: cfg.Index.Collection,
		GlobalCollections: cfg.Index.GlobalCollections,
		RequestTimeout:    time.Duration(cfg.Index.RequestTimeoutSeconds) * time.Second,
		CLITimeout:        time.Duration(cfg.Index.CLITimeoutSeconds) * time.Second,
		ReprobeInterval:   time.Duration(cfg.Index.ReprobeIntervalSeconds) * time.Second,
	}, collector)

	engCfg := engine.Config{
		RecallTimeout:           time.Duration(cfg.Recall.TimeoutMillis) * time.Millisecond,
		RecallResults:           cfg.Recall.Results,
		GlobalResults:           cfg.Recall.GlobalResults,
		FallbackRecent:          cfg.Recall.FallbackRecent,
		TranscriptWindow:        cfg.Recall.TranscriptWindow,
		SummaryCount:            cfg.Recall.SummaryCount,
		RecencyWeight:           cfg.Recall.RecencyWeight,
		RecencyHalfLifeDays:     cfg.Recall.RecencyHalfLifeDays,
		ConsolidateEvery:        cfg.Consolidation.EveryN,
		AccessFlushThreshold:    cfg.Consolidation.AccessFlushThreshold,
		ContradictionCheck:      cfg.Consolidation.Contradiction.Enabled,
		ContradictionSimilarity: cfg.Consolidation.Contradiction.Similarity,
		ContradictionConfidence: cfg.Consolidation.Contradiction.Confidence,
		SummarizationEnabled:    cfg.Consolidation.Summarization.Enabled,
		SummarizeBatchSize:      cfg.Consolidation.Summarization.BatchSize,
		SummarizeMinAgeDays:     cfg.Consolidation.Summarization.MinAgeDays,
		IdentityMaxChars:        cfg.Consolidation.IdentityMaxChars,
		IdentityCooldown:        time.Duration(cfg.Consolidation.IdentityCooldownHrs) * time.Hour,
		ProfileMaxLines:         cfg.Consolidation.ProfileMaxLines,
		CommitmentDecayDays:     cfg.Consolidation.CommitmentDecayDays,
		Collection:              cfg.Index.Collection,
	}

	opts := []engine.Option{engine.WithCollector(collector)}
	if cfg.Git.Enabled {
		audit, err := gitlog.OpenOrInit(cfg.Store.BaseDir, cfg.Git.AuthorName, cfg.Git.AuthorEmail)
		if err != nil {
			slog.Warn("audit log unavailable", "err", err)
		} else {
			opts = append(opts, engine.WithAuditLog(audit))
		}
	}

	eng, err := engine.New(engCfg, store, idx, newTurnExtractor(), opts...)
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		os.Exit(1)
	}
	return eng
}

// serveMetrics exposes the Prometheus registry.
func serveMetrics(addr string, prom *metrics.PrometheusCollector) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prom.Registry(), promhttp.HandlerOpts{}))
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Warn("metrics endpoint failed", "err", err)
	}
}

// withMaintenanceLock runs fn while holding the catalog maintenance lock,
// so a CLI maintenance run cannot race a concurrent one against the same store.
func withMaintenanceLock(cat *catalog.Catalog, fn func()) {
	owner := catalog.LockOwner()
	acquired, err := cat.AcquireLock("maintenance", owner, 0)
	if err != nil {
		slog.Error("failed to acquire maintenance lock", "err", err)
		os.Exit(1)
	}
	if !acquired {
		slog.Error("maintenance lock held by another process, refusing to run")
		os.Exit(1)
	}
	defer func() {
		if err := cat.ReleaseLock("maintenance", owner); err != nil {
			slog.Warn("failed to release maintenance lock", "err", err)
		}
	}()
	fn()
}

// runRebuild regenerates the catalog and prints a summary.
func runRebuild(cat *catalog.Catalog, storeDir string, force bool) {
	slog.Info("starting catalog rebuild", "store", storeDir)
	result, err := rebuild.RebuildCatalog(cat, storeDir, rebuild.Options{Force: force})
	if err != nil {
		slog.Error("rebuild failed", "err", err)
		os.Exit(1)
	}
	slog.Info("rebuild completed",
		"scanned", result.FilesScanned,
		"created", result.RecordsCreated,
		"skipped", result.FilesSkipped)
	for _, e := range result.Errors {
		slog.Warn("rebuild warning", "detail", e)
	}
}
