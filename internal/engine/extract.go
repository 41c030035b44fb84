// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/muninnlabs/muninn/internal/chunker"
	"github.com/muninnlabs/muninn/internal/gitlog"
	"github.com/muninnlabs/muninn/internal/record"
)

// extractionTask captures one flushed batch of turns.
type extractionTask struct {
	turns    []Turn
	enqueued time.Time
}

// ProcessTurn buffers a turn and forwards it to the transcript archive.
// Buffering is cheap; extraction only happens on FlushTurns.
func (e *Engine) ProcessTurn(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	if e.transcripts != nil {
		if err := e.transcripts.Append(turn); err != nil {
			slog.Warn("engine: transcript append failed", "err", err)
		}
	}
	e.queueMu.Lock()
	e.turnBuffer = append(e.turnBuffer, turn)
	e.queueMu.Unlock()
}

// FlushTurns moves the buffered turns onto the extraction queue. The
// buffer is always cleared, even when empty.
func (e *Engine) FlushTurns() {
	e.queueMu.Lock()
	turns := e.turnBuffer
	e.turnBuffer = nil
	e.queueMu.Unlock()
	if len(turns) == 0 {
		return
	}
	e.enqueueExtraction(extractionTask{turns: turns, enqueued: time.Now()})
}

// FlushAccessTracking forces the access buffer to disk. The host calls
// this from its shutdown hook.
func (e *Engine) FlushAccessTracking() int {
	return e.access.Flush()
}

// enqueueExtraction pushes a task onto the FIFO queue and makes sure
// exactly one worker goroutine is draining it. Enqueuing while the worker
// runs never spawns a second worker.
func (e *Engine) enqueueExtraction(task extractionTask) {
	e.queueMu.Lock()
	e.pending = append(e.pending, task)
	depth := len(e.pending)
	startWorker := !e.running
	if startWorker {
		e.running = true
	}
	e.queueMu.Unlock()

	e.collector.SetQueueDepth(context.Background(), "extraction", int64(depth))
	if startWorker {
		go e.drainQueue()
	}
}

// drainQueue is the single extraction worker. It processes tasks in FIFO
// order and exits when the queue empties; the next enqueue restarts it.
func (e *Engine) drainQueue() {
	for {
		e.queueMu.Lock()
		if len(e.pending) == 0 {
			e.running = false
			e.queueMu.Unlock()
			return
		}
		task := e.pending[0]
		e.pending = e.pending[1:]
		depth := len(e.pending)
		e.queueMu.Unlock()
		e.collector.SetQueueDepth(context.Background(), "extraction", int64(depth))

		e.runExtraction(task)

		e.queueMu.Lock()
		e.extractions++
		count := e.extractions
		e.queueMu.Unlock()
		if e.cfg.ConsolidateEvery > 0 && count%e.cfg.ConsolidateEvery == 0 {
			// Background: consolidation never blocks the queue or the
			// turn that triggered it.
			go e.Consolidate(context.Background())
		}
	}
}

// runExtraction calls the external collaborator and persists its output.
// A failed or malformed payload drops the batch; the turns are already out
// of the buffer, so a poison payload is never retried.
func (e *Engine) runExtraction(task extractionTask) {
	ctx := context.Background()
	start := time.Now()

	res, err := e.extractor.Extract(ctx, task.turns, e.store.ListEntityNames())
	if err != nil {
		slog.Error("engine: extraction failed, batch dropped", "err", err, "turns", len(task.turns))
		e.collector.RecordError(ctx, "extract", "collaborator_failure")
		return
	}
	if err := validateExtraction(res); err != nil {
		slog.Error("engine: invalid extraction payload, batch dropped", "err", err)
		e.collector.RecordError(ctx, "extract", "invalid_payload")
		return
	}

	written := 0
	for _, fact := range res.Facts {
		// Each fact write is isolated: one failure must not abort the rest
		// of the batch.
		if id := e.persistFact(ctx, fact); id != "" {
			written++
		}
	}
	for _, ent := range res.Entities {
		if _, err := e.store.WriteEntity(ent.Name, ent.Type, ent.Facts); err != nil {
			slog.Warn("engine: entity write failed", "entity", ent.Name, "err", err)
		}
	}
	for _, q := range res.Questions {
		if _, err := e.store.WriteQuestion(q.Text, q.Priority); err != nil {
			slog.Warn("engine: question write failed", "err", err)
		}
	}
	if err := e.appendToDocument(profileFile, res.ProfileUpdates); err != nil {
		slog.Warn("engine: profile update failed", "err", err)
	}
	if res.IdentityReflection != "" {
		if err := e.appendToDocument(identityFile, []string{res.IdentityReflection}); err != nil {
			slog.Warn("engine: identity update failed", "err", err)
		}
	}

	if written > 0 {
		e.triggerIndexMaintenance()
		e.auditCommit(gitlog.ExtractionMessage(written))
	}
	e.collector.RecordOperation(ctx, "extract", "success", time.Since(start).Milliseconds())
}

// persistFact writes one fact, splitting oversized content into a parent
// plus ordered chunk records, and runs contradiction detection when
// enabled. Returns the new record id, or "" when nothing was written.
func (e *Engine) persistFact(ctx context.Context, fact ExtractedFact) string {
	category := record.Category(fact.Category)
	if category == "" {
		category = record.CategoryFact
	}

	contradicted := e.findContradicted(ctx, fact)

	opts := record.WriteOptions{
		Source:     "extraction",
		Confidence: record.Confidence(fact.Confidence),
		Tags:       fact.Tags,
		EntityRef:  fact.EntityRef,
		Importance: fact.Importance,
	}
	opts.Links = e.suggestLinks(ctx, fact.Content)

	var id string
	var err error
	if chunker.ShouldSplit(fact.Content) {
		id, err = e.writeChunked(category, fact.Content, opts)
	} else {
		id, err = e.store.WriteRecord(category, fact.Content, opts)
	}
	if errors.Is(err, record.ErrDuplicateContent) {
		slog.Debug("engine: duplicate fact skipped")
		return ""
	}
	if err != nil {
		slog.Warn("engine: fact write failed", "err", err)
		e.collector.RecordError(ctx, "persist_fact", "write_failure")
		return ""
	}

	// Supersession runs only now, with the new record's real id in hand.
	for _, oldID := range contradicted {
		if !e.store.Supersede(oldID, id, "contradicted by newer extraction") {
			slog.Debug("engine: supersede target missing", "id", oldID)
			continue
		}
		e.auditCommit(gitlog.SupersedeMessage(oldID, id))
	}
	return id
}

// writeChunked persists oversized content as a parent record plus ordered
// chunk children. The parent keeps a head excerpt for direct reads; the
// chunks carry the full content for the index.
func (e *Engine) writeChunked(category record.Category, content string, opts record.WriteOptions) (string, error) {
	pieces := (&chunker.Chunker{}).Split(content)
	if len(pieces) <= 1 {
		return e.store.WriteRecord(category, content, opts)
	}

	parentOpts := opts
	parentOpts.ChunkTotal = len(pieces)
	parentID, err := e.store.WriteRecord(category, firstLine(content), parentOpts)
	if err != nil {
		return "", err
	}

	for i, piece := range pieces {
		chunkOpts := opts
		chunkOpts.ParentID = parentID
		chunkOpts.ChunkIndex = i + 1
		chunkOpts.ChunkTotal = len(pieces)
		chunkOpts.SkipDedup = true
		if _, err := e.store.WriteRecord(category, piece, chunkOpts); err != nil {
			slog.Warn("engine: chunk write failed", "parent", parentID, "index", i+1, "err", err)
		}
	}
	return parentID, nil
}

// findContradicted returns the ids of active records the new fact
// contradicts with sufficient verdict confidence. Detection is best-effort:
// any failure just means no supersession.
func (e *Engine) findContradicted(ctx context.Context, fact ExtractedFact) []string {
	if !e.cfg.ContradictionCheck {
		return nil
	}
	candidates := e.resolveResults(e.idx.Search(ctx, fact.Content, 3))
	var contradicted []string
	for _, cand := range candidates {
		if cand.score < e.cfg.ContradictionSimilarity {
			continue
		}
		verdict, err := e.extractor.VerifyContradiction(ctx, fact.Content, cand.rec.Content)
		if err != nil || verdict == nil {
			continue
		}
		if verdict.IsContradiction && verdict.Confidence >= e.cfg.ContradictionConfidence {
			contradicted = append(contradicted, cand.rec.ID)
		}
	}
	return contradicted
}

// suggestLinks asks the collaborator for typed links to similar records.
func (e *Engine) suggestLinks(ctx context.Context, content string) []record.Link {
	candidates := e.resolveResults(e.idx.Search(ctx, content, 5))
	if len(candidates) == 0 {
		return nil
	}
	recs := make([]*record.Record, 0, len(candidates))
	for _, c := range candidates {
		recs = append(recs, c.rec)
	}
	links, err := e.extractor.SuggestLinks(ctx, content, recs)
	if err != nil {
		return nil
	}
	return links
}

// triggerIndexMaintenance fires update and embed in the background,
// debounced so rapid extraction bursts coalesce into one refresh.
func (e *Engine) triggerIndexMaintenance() {
	e.maintainMu.Lock()
	if time.Since(e.lastMaintain) < maintainDebounce {
		e.maintainMu.Unlock()
		return
	}
	e.lastMaintain = time.Now()
	e.maintainMu.Unlock()

	dir := e.store.BaseDir()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if e.idx.Update(ctx, dir, e.cfg.Collection) {
			e.idx.Embed(ctx, dir, e.cfg.Collection)
		}
	}()
}

// maintainDebounce is the minimum gap between index refresh triggers.
const maintainDebounce = 30 * time.Second
