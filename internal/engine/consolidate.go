// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/muninnlabs/muninn/internal/gitlog"
	"github.com/muninnlabs/muninn/internal/record"
)

// recentWindowDays separates "recent" from "all-time" records for the
// consolidation collaborator.
const recentWindowDays = 7

// protectedTag exempts a record from summarization archival.
const protectedTag = "protected"

// Consolidate runs one full consolidation pass. It is safe to call
// concurrently: overlapping calls return immediately instead of stacking.
func (e *Engine) Consolidate(ctx context.Context) {
	if !e.consolMu.TryLock() {
		slog.Debug("engine: consolidation already running, skipped")
		return
	}
	defer e.consolMu.Unlock()

	start := time.Now()
	slog.Info("engine: consolidation pass starting")

	flushed := e.access.Flush()
	if flushed > 0 {
		slog.Debug("engine: flushed access tracking", "records", flushed)
	}

	all, err := e.store.ReadAllRecords()
	if err != nil {
		slog.Error("engine: consolidation scan failed", "err", err)
		e.collector.RecordError(ctx, "consolidate", "scan_failure")
		return
	}
	active := make([]*record.Record, 0, len(all))
	recent := make([]*record.Record, 0)
	cutoff := time.Now().AddDate(0, 0, -recentWindowDays)
	for _, rec := range all {
		if !rec.IsActive() || rec.IsChunk() {
			continue
		}
		active = append(active, rec)
		if rec.Updated.After(cutoff) {
			recent = append(recent, rec)
		}
	}
	e.collector.SetStorageCount(ctx, "active_records", int64(len(active)))

	e.applyVerdicts(ctx, recent, active)

	if merged, err := e.store.MergeFragmentedEntities(); err != nil {
		slog.Warn("engine: entity merge failed", "err", err)
	} else if merged > 0 {
		slog.Info("engine: merged fragmented entities", "count", merged)
	}

	if decayed, err := e.store.CleanExpiredCommitments(e.cfg.CommitmentDecayDays); err != nil {
		slog.Warn("engine: commitment decay failed", "err", err)
	} else if decayed > 0 {
		slog.Info("engine: decayed resolved commitments", "count", decayed)
	}

	if purged, err := e.store.CleanExpiredTTL(); err != nil {
		slog.Warn("engine: ttl purge failed", "err", err)
	} else if purged > 0 {
		slog.Info("engine: purged expired records", "count", purged)
	}

	e.consolidateIdentityDoc(ctx)
	e.consolidateProfileDoc(ctx)

	if e.cfg.SummarizationEnabled {
		e.summarizeOldRecords(ctx, active)
	}

	e.triggerIndexMaintenance()
	e.auditCommit(gitlog.ConsolidationMessage(start))
	e.collector.RecordOperation(ctx, "consolidate", "success", time.Since(start).Milliseconds())
	slog.Info("engine: consolidation pass finished", "duration", time.Since(start))
}

// applyVerdicts asks the collaborator for per-record decisions and applies
// them. Each verdict is applied independently; a miss or failure on one
// never stops the rest.
func (e *Engine) applyVerdicts(ctx context.Context, recent, all []*record.Record) {
	profile := e.readDocument(profileFile)
	res, err := e.extractor.Consolidate(ctx, recent, all, profile)
	if err != nil {
		slog.Warn("engine: consolidation collaborator failed", "err", err)
		return
	}
	if res == nil {
		return
	}

	for _, item := range res.Items {
		switch strings.ToUpper(item.Action) {
		case "INVALIDATE":
			if !e.store.Invalidate(item.RecordID) {
				slog.Debug("engine: invalidate target missing", "id", item.RecordID)
			}
		case "UPDATE":
			if item.NewContent == "" {
				continue
			}
			if !e.store.UpdateRecord(item.RecordID, item.NewContent, record.UpdateOptions{}) {
				slog.Debug("engine: update target missing", "id", item.RecordID)
			}
		case "MERGE":
			e.applyMerge(item)
		default:
			slog.Debug("engine: unknown consolidation action", "action", item.Action)
		}
	}

	if err := e.appendToDocument(profileFile, res.ProfileUpdates); err != nil {
		slog.Warn("engine: profile update failed", "err", err)
	}
	for _, ent := range res.EntityUpdates {
		if _, err := e.store.WriteEntity(ent.Name, ent.Type, ent.Facts); err != nil {
			slog.Warn("engine: entity update failed", "entity", ent.Name, "err", err)
		}
	}
}

// applyMerge rewrites the surviving record with the merged content,
// records lineage, and invalidates the merged-away record. The survivor is
// updated first so a failure never loses the merged-away content.
func (e *Engine) applyMerge(item ConsolidationItem) {
	if item.MergeInto == "" || item.NewContent == "" {
		return
	}
	ok := e.store.UpdateRecord(item.MergeInto, item.NewContent, record.UpdateOptions{
		Lineage: []string{item.RecordID},
	})
	if !ok {
		slog.Debug("engine: merge survivor missing", "id", item.MergeInto)
		return
	}
	if !e.store.Invalidate(item.RecordID) {
		slog.Debug("engine: merged-away record missing", "id", item.RecordID)
	}
}

// consolidateIdentityDoc compacts the identity document once it exceeds
// the size threshold, at most once per cooldown window.
func (e *Engine) consolidateIdentityDoc(ctx context.Context) {
	text := e.readDocument(identityFile)
	if len(text) <= e.cfg.IdentityMaxChars {
		return
	}
	if time.Since(e.lastIdentityPass) < e.cfg.IdentityCooldown {
		return
	}
	consolidated, removed, err := e.extractor.ConsolidateIdentity(ctx, text)
	if err != nil {
		slog.Warn("engine: identity consolidation failed", "err", err)
		return
	}
	if err := e.writeDocument(identityFile, consolidated); err != nil {
		slog.Warn("engine: identity write failed", "err", err)
		return
	}
	e.lastIdentityPass = time.Now()
	slog.Info("engine: identity document consolidated", "removed", removed)
}

// consolidateProfileDoc compacts the profile document once it exceeds the
// line threshold.
func (e *Engine) consolidateProfileDoc(ctx context.Context) {
	text := e.readDocument(profileFile)
	if strings.Count(text, "\n") <= e.cfg.ProfileMaxLines {
		return
	}
	consolidated, removed, err := e.extractor.ConsolidateProfile(ctx, text)
	if err != nil {
		slog.Warn("engine: profile consolidation failed", "err", err)
		return
	}
	if err := e.writeDocument(profileFile, consolidated); err != nil {
		slog.Warn("engine: profile write failed", "err", err)
		return
	}
	slog.Info("engine: profile document consolidated", "removed", removed)
}

// summarizeOldRecords archives a batch of low-importance old records into
// a generated summary. It only runs when a full batch qualifies, so
// summaries always cover a meaningful span.
func (e *Engine) summarizeOldRecords(ctx context.Context, active []*record.Record) {
	cutoff := time.Now().AddDate(0, 0, -e.cfg.SummarizeMinAgeDays)
	var eligible []*record.Record
	for _, rec := range active {
		if rec.Updated.After(cutoff) {
			continue
		}
		if hasTag(rec.Tags, protectedTag) {
			continue
		}
		if rec.Importance != nil && rec.Importance.Score >= neutralImportance {
			continue
		}
		eligible = append(eligible, rec)
	}
	if len(eligible) < e.cfg.SummarizeBatchSize {
		return
	}
	batch := eligible[:e.cfg.SummarizeBatchSize]

	digest, err := e.extractor.SummarizeMemories(ctx, batch)
	if err != nil || digest == nil || strings.TrimSpace(digest.SummaryText) == "" {
		slog.Warn("engine: summarization failed", "err", err)
		return
	}

	ids := make([]string, 0, len(batch))
	periodStart, periodEnd := batch[0].Created, batch[0].Created
	for _, rec := range batch {
		ids = append(ids, rec.ID)
		if rec.Created.Before(periodStart) {
			periodStart = rec.Created
		}
		if rec.Created.After(periodEnd) {
			periodEnd = rec.Created
		}
	}

	sum := &record.Summary{
		PeriodStart:      periodStart,
		PeriodEnd:        periodEnd,
		SourceEpisodeIDs: ids,
		KeyFacts:         digest.KeyFacts,
		Content:          digest.SummaryText,
	}
	if _, err := e.store.WriteSummary(sum); err != nil {
		slog.Warn("engine: summary write failed", "err", err)
		return
	}
	archived := 0
	for _, rec := range batch {
		if _, err := e.store.Archive(rec); err != nil {
			slog.Warn("engine: archive failed", "id", rec.ID, "err", err)
			continue
		}
		archived++
	}
	slog.Info("engine: summarized old records", "archived", archived)
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if strings.EqualFold(t, want) {
			return true
		}
	}
	return false
}
