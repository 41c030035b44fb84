// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Supersede marks the old record superseded by the new one and writes an
// audit correction record linking both ids. Returns false when oldID is not
// found; it never returns an error for expected absence.
func (s *Store) Supersede(oldID, newID, reason string) bool {
	path := s.findPath(oldID)
	if path == "" {
		return false
	}
	rec, err := s.readRecordFile(path)
	if err != nil {
		return false
	}

	now := time.Now().UTC()
	rec.Status = StatusSuperseded
	rec.SupersededBy = newID
	rec.SupersededAt = &now
	rec.Updated = now

	if err := s.writeRecordFileAt(rec, path); err != nil {
		slog.Warn("record: failed to mark record superseded", "id", oldID, "err", err)
		return false
	}
	s.bumpVersion()

	audit := fmt.Sprintf("Superseded %s with %s: %s", oldID, newID, reason)
	_, err = s.WriteRecord(CategoryCorrection, audit, WriteOptions{
		Source:     "supersession",
		Confidence: Confidence(1.0),
		Links: []Link{
			{Target: oldID, Type: "supersedes", Strength: 1.0, Reason: reason},
			{Target: newID, Type: "superseded_by", Strength: 1.0, Reason: reason},
		},
		SkipDedup: true,
	})
	if err != nil {
		slog.Warn("record: failed to write supersession audit record", "err", err)
	}
	return true
}

// Archive moves a record file into the archive directory and marks it
// archived. Returns the new path, or "" when the record no longer exists.
func (s *Store) Archive(rec *Record) (string, error) {
	path := s.findPath(rec.ID)
	if path == "" {
		return "", nil
	}
	current, err := s.readRecordFile(path)
	if err != nil {
		return "", nil
	}

	current.Status = StatusArchived
	current.Updated = time.Now().UTC()

	dest := filepath.Join(s.baseDir, archiveDir, current.ID+".md")
	if err := s.writeRecordFileAt(current, dest); err != nil {
		return "", err
	}
	if dest != path {
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("failed to remove archived record source: %w", err)
		}
	}
	s.bumpVersion()
	return dest, nil
}

// Invalidate removes a record outright. TTL expiry and explicit
// invalidation are the only paths that delete record files. Returns false
// when the id is unknown.
func (s *Store) Invalidate(id string) bool {
	path := s.findPath(id)
	if path == "" {
		return false
	}
	if err := os.Remove(path); err != nil {
		slog.Warn("record: failed to remove invalidated record", "id", id, "err", err)
		return false
	}
	if s.sink != nil {
		if err := s.sink.RemoveRecord(id); err != nil {
			slog.Debug("record: catalog remove failed", "id", id, "err", err)
		}
	}
	s.bumpVersion()
	return true
}
