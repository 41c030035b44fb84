// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package engine composes the record store, the search index client, and
// the external collaborators into the agent-facing recall, extraction,
// and consolidation lifecycle.
package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/muninnlabs/muninn/internal/index"
	"github.com/muninnlabs/muninn/internal/metrics"
	"github.com/muninnlabs/muninn/internal/record"
)

// Config holds the engine's tunables.
type Config struct {
	// RecallTimeout is the hard wall-clock deadline for Recall.
	RecallTimeout time.Duration
	// RecallResults / GlobalResults bound the primary and cross-collection
	// searches during recall.
	RecallResults int
	GlobalResults int
	// FallbackRecent is how many recently updated active records stand in
	// for search results when the index is unreachable.
	FallbackRecent int
	// TranscriptWindow is the recent-turn count used when no checkpoint
	// exists.
	TranscriptWindow int
	// SummaryCount bounds the periodic summaries included in recall.
	SummaryCount int

	// RecencyWeight and RecencyHalfLifeDays shape result boosting.
	RecencyWeight       float64
	RecencyHalfLifeDays float64

	// ConsolidateEvery triggers a consolidation pass after every Nth
	// extraction batch.
	ConsolidateEvery int
	// AccessFlushThreshold flushes access tracking once the buffer holds
	// this many distinct record ids.
	AccessFlushThreshold int

	// ContradictionCheck enables contradiction detection on new facts.
	ContradictionCheck bool
	// ContradictionSimilarity is the index-score floor for an existing
	// record to be considered a contradiction candidate.
	ContradictionSimilarity float64
	// ContradictionConfidence is the verdict-confidence floor that triggers
	// supersession.
	ContradictionConfidence float64

	// Summarization settings.
	SummarizationEnabled bool
	SummarizeBatchSize   int
	SummarizeMinAgeDays  int

	// Identity/profile consolidation thresholds.
	IdentityMaxChars int
	IdentityCooldown time.Duration
	ProfileMaxLines  int

	// CommitmentDecayDays ages out resolved commitments.
	CommitmentDecayDays int

	// Collection is the index collection covering this store.
	Collection string
}

func (c *Config) applyDefaults() {
	if c.RecallTimeout == 0 {
		c.RecallTimeout = 2 * time.Second
	}
	if c.RecallResults == 0 {
		c.RecallResults = 6
	}
	if c.GlobalResults == 0 {
		c.GlobalResults = 3
	}
	if c.FallbackRecent == 0 {
		c.FallbackRecent = 10
	}
	if c.TranscriptWindow == 0 {
		c.TranscriptWindow = 10
	}
	if c.SummaryCount == 0 {
		c.SummaryCount = 3
	}
	if c.RecencyWeight == 0 {
		c.RecencyWeight = 0.3
	}
	if c.RecencyHalfLifeDays == 0 {
		c.RecencyHalfLifeDays = 7
	}
	if c.ConsolidateEvery == 0 {
		c.ConsolidateEvery = 5
	}
	if c.AccessFlushThreshold == 0 {
		c.AccessFlushThreshold = 50
	}
	if c.ContradictionSimilarity == 0 {
		c.ContradictionSimilarity = 0.75
	}
	if c.ContradictionConfidence == 0 {
		c.ContradictionConfidence = 0.8
	}
	if c.SummarizeBatchSize == 0 {
		c.SummarizeBatchSize = 10
	}
	if c.SummarizeMinAgeDays == 0 {
		c.SummarizeMinAgeDays = 30
	}
	if c.IdentityMaxChars == 0 {
		c.IdentityMaxChars = 8000
	}
	if c.IdentityCooldown == 0 {
		c.IdentityCooldown = 24 * time.Hour
	}
	if c.ProfileMaxLines == 0 {
		c.ProfileMaxLines = 120
	}
	if c.CommitmentDecayDays == 0 {
		c.CommitmentDecayDays = 30
	}
}

// AuditLog receives a commit after state-changing passes. The git-backed
// implementation lives in internal/gitlog; nil disables auditing.
type AuditLog interface {
	Commit(message string) error
}

// auditCommit records a state-changing pass in the audit log. A failed
// commit is never fatal; memory must keep working without the trail.
func (e *Engine) auditCommit(message string) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Commit(message); err != nil {
		slog.Debug("engine: audit commit failed", "err", err)
	}
}

// Engine is the retrieval orchestrator.
type Engine struct {
	cfg         Config
	store       *record.Store
	idx         *index.Client
	extractor   ExtractionEngine
	transcripts TranscriptManager
	hourly      HourlySummarizer
	collector   metrics.Collector
	audit       AuditLog

	access *accessTracker

	queueMu     sync.Mutex
	turnBuffer  []Turn
	pending     []extractionTask
	running     bool
	extractions int

	maintainMu   sync.Mutex
	lastMaintain time.Time

	consolMu         sync.Mutex
	lastIdentityPass time.Time
}

// New wires an engine together. extractor is required; transcripts, hourly,
// audit, and collector may be nil and degrade to no-ops.
func New(cfg Config, store *record.Store, idx *index.Client, extractor ExtractionEngine, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	if idx == nil {
		return nil, fmt.Errorf("engine: index client is required")
	}
	if extractor == nil {
		return nil, fmt.Errorf("engine: extraction engine is required")
	}
	cfg.applyDefaults()

	e := &Engine{
		cfg:       cfg,
		store:     store,
		idx:       idx,
		extractor: extractor,
		collector: metrics.NewNoopCollector(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.access = newAccessTracker(store, cfg.AccessFlushThreshold)
	return e, nil
}

// Option configures optional engine collaborators.
type Option func(*Engine)

func WithTranscripts(t TranscriptManager) Option {
	return func(e *Engine) { e.transcripts = t }
}

func WithHourlySummaries(h HourlySummarizer) Option {
	return func(e *Engine) { e.hourly = h }
}

func WithCollector(c metrics.Collector) Option {
	return func(e *Engine) {
		if c != nil {
			e.collector = c
		}
	}
}

func WithAuditLog(a AuditLog) Option {
	return func(e *Engine) { e.audit = a }
}

// Store exposes the underlying record store for maintenance tooling.
func (e *Engine) Store() *record.Store { return e.store }

// Index exposes the index client for status reporting.
func (e *Engine) Index() *index.Client { return e.idx }

// Status summarizes engine health for diagnostics.
type Status struct {
	IndexState    string `json:"indexState"`
	QueueDepth    int    `json:"queueDepth"`
	PendingAccess int    `json:"pendingAccess"`
	Extractions   int    `json:"extractions"`
	StatusVersion int64  `json:"statusVersion"`
}

// CurrentStatus reports a point-in-time snapshot.
func (e *Engine) CurrentStatus() Status {
	e.queueMu.Lock()
	depth := len(e.pending)
	extractions := e.extractions
	e.queueMu.Unlock()
	return Status{
		IndexState:    e.idx.State().String(),
		QueueDepth:    depth,
		PendingAccess: e.access.Len(),
		Extractions:   extractions,
		StatusVersion: e.store.StatusVersion(),
	}
}

// Document names for the profile and identity files kept beside the record
// directories.
const (
	profileFile  = "profile.md"
	identityFile = "identity.md"
)

func (e *Engine) readDocument(name string) string {
	raw, err := os.ReadFile(filepath.Join(e.store.BaseDir(), name))
	if err != nil {
		return ""
	}
	return string(raw)
}

func (e *Engine) writeDocument(name, content string) error {
	path := filepath.Join(e.store.BaseDir(), name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// appendToDocument appends lines to a document, skipping ones already
// present verbatim.
func (e *Engine) appendToDocument(name string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	current := e.readDocument(name)
	existing := make(map[string]bool)
	for _, line := range strings.Split(current, "\n") {
		existing[strings.TrimSpace(line)] = true
	}
	var added []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || existing[line] {
			continue
		}
		added = append(added, line)
		existing[line] = true
	}
	if len(added) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(current, "\n"))
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(added, "\n"))
	b.WriteString("\n")
	return e.writeDocument(name, b.String())
}
