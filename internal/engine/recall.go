// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/muninnlabs/muninn/internal/index"
	"github.com/muninnlabs/muninn/internal/record"
)

// Recall assembles a context string for the next agent turn. It runs under
// a hard wall-clock deadline: on timeout or any internal failure it returns
// ""; the host's turn hook must never block or fail on memory.
func (e *Engine) Recall(ctx context.Context, prompt, sessionKey string) string {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.RecallTimeout)
	defer cancel()

	done := make(chan string, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("engine: recall panicked", "panic", r)
				done <- ""
			}
		}()
		done <- e.assembleRecall(ctx, prompt)
	}()

	select {
	case result := <-done:
		e.collector.RecordOperation(ctx, "recall", "success", time.Since(start).Milliseconds())
		return result
	case <-ctx.Done():
		slog.Warn("engine: recall deadline exceeded", "timeout", e.cfg.RecallTimeout, "session", sessionKey)
		e.collector.RecordOperation(context.Background(), "recall", "timeout", time.Since(start).Milliseconds())
		return ""
	}
}

// assembleRecall gathers every context source, in parallel where the
// sources are independent, and renders the final markdown.
func (e *Engine) assembleRecall(ctx context.Context, prompt string) string {
	var (
		wg        sync.WaitGroup
		profile   string
		memories  string
		working   string
		summaries string
		knowledge string
	)

	wg.Add(5)
	go func() {
		defer wg.Done()
		profile = strings.TrimSpace(e.readDocument(profileFile))
	}()
	go func() {
		defer wg.Done()
		memories = e.gatherMemories(ctx, prompt)
	}()
	go func() {
		defer wg.Done()
		working = e.gatherWorkingContext()
	}()
	go func() {
		defer wg.Done()
		summaries = e.gatherSummaries()
	}()
	go func() {
		defer wg.Done()
		knowledge = e.store.BuildKnowledgeIndex(record.KnowledgeLimits{})
	}()
	wg.Wait()

	var sections []string
	if profile != "" {
		sections = append(sections, "## User profile\n"+profile)
	}
	if memories != "" {
		sections = append(sections, "## Relevant memories\n"+memories)
	}
	if knowledge != "" {
		sections = append(sections, "## Known entities\n"+knowledge)
	}
	if working != "" {
		sections = append(sections, "## Working context\n"+working)
	}
	if summaries != "" {
		sections = append(sections, "## Recent summaries\n"+summaries)
	}
	if q := e.store.TopOpenQuestion(); q != nil {
		sections = append(sections, "## Open question\n"+strings.TrimSpace(q.Content))
	}

	if len(sections) == 0 {
		return ""
	}
	return strings.Join(sections, "\n\n")
}

// gatherMemories runs the primary and global searches, boosts, and renders
// the top results. When the index is unreachable it falls back to the most
// recently updated active records.
func (e *Engine) gatherMemories(ctx context.Context, prompt string) string {
	var (
		wg     sync.WaitGroup
		local  []scoredRecord
		global []scoredRecord
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		local = e.resolveResults(e.idx.Search(ctx, prompt, e.cfg.RecallResults))
	}()
	go func() {
		defer wg.Done()
		global = e.resolveResults(e.idx.SearchGlobal(ctx, prompt, e.cfg.GlobalResults))
	}()
	wg.Wait()

	now := time.Now().UTC()
	combined := dedupeByID(append(local, global...))

	if len(combined) == 0 {
		recent, err := e.store.RecentActive(e.cfg.FallbackRecent)
		if err != nil || len(recent) == 0 {
			return ""
		}
		slog.Debug("engine: search empty, using recent-active fallback", "count", len(recent))
		for _, rec := range recent {
			combined = append(combined, scoredRecord{rec: rec, score: 0.5})
		}
	}

	combined = e.boostAndSort(combined, now)
	if len(combined) > e.cfg.RecallResults {
		combined = combined[:e.cfg.RecallResults]
	}

	var b strings.Builder
	for _, sr := range combined {
		e.access.Track(sr.rec.ID, now)
		line := strings.TrimSpace(sr.rec.Content)
		if i := strings.IndexByte(line, '\n'); i > 0 {
			line = line[:i]
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// resolveResults loads the records behind index hits. Hits whose files are
// gone (index lag after archive/invalidate) are dropped.
func (e *Engine) resolveResults(results []index.Result) []scoredRecord {
	out := make([]scoredRecord, 0, len(results))
	for _, r := range results {
		id := strings.TrimSuffix(filepath.Base(r.Path), ".md")
		rec, err := e.store.GetByID(id)
		if err != nil || rec == nil || !rec.IsActive() {
			continue
		}
		out = append(out, scoredRecord{rec: rec, score: r.Score})
	}
	return out
}

func dedupeByID(in []scoredRecord) []scoredRecord {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, sr := range in {
		if seen[sr.rec.ID] {
			continue
		}
		seen[sr.rec.ID] = true
		out = append(out, sr)
	}
	return out
}

// gatherWorkingContext prefers a saved checkpoint (consumed once) over the
// recent transcript window.
func (e *Engine) gatherWorkingContext() string {
	if e.transcripts == nil {
		return ""
	}
	if checkpoint, ok := e.transcripts.LoadCheckpoint(); ok && strings.TrimSpace(checkpoint) != "" {
		e.transcripts.ClearCheckpoint()
		return strings.TrimSpace(checkpoint)
	}
	turns := e.transcripts.ReadRecent(e.cfg.TranscriptWindow)
	if len(turns) == 0 {
		return ""
	}
	return strings.TrimSpace(e.transcripts.FormatForRecall(turns))
}

// gatherSummaries combines stored memory summaries with the external
// hourly summaries.
func (e *Engine) gatherSummaries() string {
	var parts []string
	for _, sum := range e.store.RecentSummaries(e.cfg.SummaryCount) {
		if s := strings.TrimSpace(sum.Content); s != "" {
			parts = append(parts, "- "+firstLine(s))
		}
	}
	if e.hourly != nil {
		if recent := e.hourly.ReadRecent(e.cfg.SummaryCount); len(recent) > 0 {
			if s := strings.TrimSpace(e.hourly.FormatForRecall(recent)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i > 0 {
		return s[:i]
	}
	return s
}
