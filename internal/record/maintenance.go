// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"log/slog"
	"time"
)

// CleanExpiredTTL removes records whose TTL has elapsed. Idempotent: a
// second run with no newly expired records removes nothing.
func (s *Store) CleanExpiredTTL() (int, error) {
	all, err := s.ReadAllRecords()
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	removed := 0
	for _, rec := range all {
		if rec.Expired(now) && s.Invalidate(rec.ID) {
			removed++
		}
	}
	return removed, nil
}

// resolvedTag marks a commitment record as fulfilled.
const resolvedTag = "resolved"

// CleanExpiredCommitments archives resolved commitment records older than
// decayDays. Idempotent: archived records are not re-archived.
func (s *Store) CleanExpiredCommitments(decayDays int) (int, error) {
	all, err := s.ReadAllRecords()
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -decayDays)
	archived := 0
	for _, rec := range all {
		if rec.Category != CategoryCommitment || !rec.IsActive() {
			continue
		}
		if !hasTag(rec.Tags, resolvedTag) || rec.Updated.After(cutoff) {
			continue
		}
		if _, err := s.Archive(rec); err != nil {
			slog.Warn("record: failed to archive commitment", "id", rec.ID, "err", err)
			continue
		}
		archived++
	}
	return archived, nil
}

// MergeFragmentedEntities collapses entity files whose names fuzzy-match
// into single files. Idempotent: a converged directory yields zero merges.
func (s *Store) MergeFragmentedEntities() (int, error) {
	stems := s.ListEntityNames()
	merged := 0

	for _, stem := range stems {
		entity, err := s.GetEntity(stem)
		if err != nil || entity == nil {
			continue
		}
		// Match against every stem except this one.
		others := make([]string, 0, len(stems)-1)
		for _, other := range stems {
			if other != stem {
				others = append(others, other)
			}
		}
		target := MatchEntityName(entity.Name, entity.Type, others)
		if target == "" || target == stem {
			continue
		}
		canonical, err := s.GetEntity(target)
		if err != nil || canonical == nil {
			continue
		}

		canonical.Merge(entity)
		if err := s.writeEntityFile(target, canonical); err != nil {
			slog.Warn("record: failed to merge entity", "from", stem, "into", target, "err", err)
			continue
		}
		if err := s.removeEntityFile(stem); err != nil {
			slog.Warn("record: failed to remove merged entity file", "stem", stem, "err", err)
			continue
		}
		merged++
		// Re-list so later iterations don't see the removed file.
		stems = s.ListEntityNames()
	}

	if merged > 0 {
		s.invalidateKnowledgeCache()
	}
	return merged, nil
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}
