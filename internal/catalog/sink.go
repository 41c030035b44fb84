// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import (
	"time"

	"github.com/muninnlabs/muninn/internal/record"
)

// Sink adapts a Catalog to the record store's CatalogSink interface, so
// every record file write is mirrored into the artifact index.
type Sink struct {
	catalog *Catalog
}

// NewSink wraps a catalog for use as a record store sink.
func NewSink(c *Catalog) *Sink {
	return &Sink{catalog: c}
}

// UpsertRecord mirrors a written record file into the catalog.
func (s *Sink) UpsertRecord(rec *record.Record, path string) error {
	status := string(rec.Status)
	if status == "" {
		status = "active"
	}
	var lastAccessed time.Time
	if rec.LastAccessed != nil {
		lastAccessed = *rec.LastAccessed
	}
	return s.catalog.Upsert(&RecordRow{
		ID:           rec.ID,
		Category:     string(rec.Category),
		Status:       status,
		Confidence:   rec.Confidence,
		FilePath:     path,
		Created:      rec.Created,
		Updated:      rec.Updated,
		AccessCount:  rec.AccessCount,
		LastAccessed: lastAccessed,
	})
}

// RemoveRecord drops the row for a deleted record file.
func (s *Sink) RemoveRecord(id string) error {
	return s.catalog.Remove(id)
}

// RecentActivePaths implements the record store's query interface, letting
// recency lookups run against the catalog instead of a full tree walk.
func (s *Sink) RecentActivePaths(n int) ([]string, error) {
	rows, err := s.catalog.RecentActive(n)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(rows))
	for _, row := range rows {
		paths = append(paths, row.FilePath)
	}
	return paths, nil
}
