// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package index

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/muninnlabs/muninn/internal/metrics"
)

// cliBinary is the name of the external index tool's executable.
const cliBinary = "mindex"

// cliFallbackPaths are the fixed install locations tried after the
// configured path and PATH discovery both miss.
var cliFallbackPaths = []string{
	"/usr/local/bin/mindex",
	"/opt/homebrew/bin/mindex",
	"/usr/bin/mindex",
}

// Config holds the index client configuration.
type Config struct {
	// DaemonURL is the base URL of the long-lived daemon session. Empty
	// disables the daemon path entirely.
	DaemonURL string
	// CLIPath is an explicit path to the index tool binary. Empty means
	// discover via PATH and the fallback locations.
	CLIPath string
	// DefaultCollection is the collection searched when none is given.
	DefaultCollection string
	// GlobalCollections are the extra collections consulted by SearchGlobal.
	GlobalCollections []string

	RequestTimeout  time.Duration // per daemon HTTP call
	CLITimeout      time.Duration // per subprocess invocation
	ReprobeInterval time.Duration // minimum gap between daemon re-probes
	RetryBackoff    time.Duration // linear backoff step for write retries
	MaintainBackoff time.Duration // failure window for update/embed
}

// applyDefaults fills zero-valued fields.
func (c *Config) applyDefaults() {
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.CLITimeout == 0 {
		c.CLITimeout = 30 * time.Second
	}
	if c.ReprobeInterval == 0 {
		c.ReprobeInterval = 60 * time.Second
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	if c.MaintainBackoff == 0 {
		c.MaintainBackoff = 2 * time.Minute
	}
	if c.DefaultCollection == "" {
		c.DefaultCollection = "memories"
	}
}

// writeAttempts is the retry budget for write-ish CLI calls that hit lock
// contention. Read calls always get exactly one attempt.
const writeAttempts = 3

// Client wraps the external search/index tool, reachable as either a
// short-lived subprocess or a long-lived HTTP daemon session. When neither
// is reachable every search returns an empty result set; callers must keep
// a non-index fallback path.
type Client struct {
	cfg       Config
	http      *http.Client
	collector metrics.Collector

	mu          sync.Mutex
	state       ProbeState
	cliPath     string
	sessionUp   bool
	nextReprobe time.Time
	lastReason  string

	// cliMu serializes write-ish subprocess calls: the external tool uses a
	// single-writer embedded store and errors under concurrent access.
	cliMu sync.Mutex

	backoffMu    sync.Mutex
	backoffUntil map[string]time.Time
}

// NewClient creates an index client. The first operation triggers a probe.
func NewClient(cfg Config, collector metrics.Collector) *Client {
	cfg.applyDefaults()
	if collector == nil {
		collector = metrics.NewNoopCollector()
	}
	return &Client{
		cfg:          cfg,
		http:         &http.Client{},
		collector:    collector,
		state:        StateUnprobed,
		backoffUntil: make(map[string]time.Time),
	}
}

// State returns the current probe state.
func (c *Client) State() ProbeState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UnavailableReason returns the diagnostic reason recorded when the client
// last degraded, or "" while it is healthy.
func (c *Client) UnavailableReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReason
}

// Probe determines how the external tool is reachable: the daemon is tried
// first (health check plus session handshake), then CLI discovery. Returns
// true when at least one path is usable.
func (c *Client) Probe(ctx context.Context) bool {
	daemonOK := c.probeDaemon(ctx)
	cliPath, cliOK := c.discoverCLI()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = probeResult(daemonOK, cliOK)
	c.cliPath = cliPath
	c.sessionUp = daemonOK
	if c.state == StateUnavailable {
		c.lastReason = "probe found neither daemon nor cli"
	} else {
		c.lastReason = ""
	}
	slog.Debug("index: probe complete", "state", c.state.String())
	return c.state != StateUnavailable
}

// ensureProbed runs the initial probe once and bounded daemon re-probes
// afterwards.
func (c *Client) ensureProbed(ctx context.Context) ProbeState {
	c.mu.Lock()
	state := c.state
	needInitial := !state.Probed()
	needReprobe := state.Probed() && !state.HasDaemon() && c.cfg.DaemonURL != "" &&
		!c.nextReprobe.IsZero() && time.Now().After(c.nextReprobe)
	if needReprobe {
		// Push the window forward before probing so concurrent calls don't
		// both re-probe.
		c.nextReprobe = time.Now().Add(c.cfg.ReprobeInterval)
	}
	c.mu.Unlock()

	if needInitial {
		c.Probe(ctx)
	} else if needReprobe {
		if c.probeDaemon(ctx) {
			c.mu.Lock()
			c.sessionUp = true
			if c.state == StateCliOnly {
				c.state = StateBoth
			} else if c.state == StateUnavailable {
				c.state = StateDaemonOnly
			}
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// invalidateDaemon drops the daemon session after a connection-level
// failure and schedules a bounded re-probe. Request timeouts never call
// this: a slow daemon is still a live daemon.
func (c *Client) invalidateDaemon(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionUp = false
	c.state = c.state.withoutDaemon()
	c.nextReprobe = time.Now().Add(c.cfg.ReprobeInterval)
	c.lastReason = reason
	slog.Warn("index: daemon session invalidated", "reason", reason, "state", c.state.String())
}

// discoverCLI locates the index tool binary: configured path, then PATH,
// then the fixed fallback locations.
func (c *Client) discoverCLI() (string, bool) {
	if c.cfg.CLIPath != "" {
		if _, err := os.Stat(c.cfg.CLIPath); err == nil {
			return c.cfg.CLIPath, true
		}
	}
	if path, err := exec.LookPath(cliBinary); err == nil {
		return path, true
	}
	for _, path := range cliFallbackPaths {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
