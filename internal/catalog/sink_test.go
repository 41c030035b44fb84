// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninnlabs/muninn/internal/record"
)

func TestSinkMirrorsRecordWrites(t *testing.T) {
	c := newTestCatalog(t)
	sink := NewSink(c)

	now := time.Now().UTC()
	rec := &record.Record{
		ID:         "fact-20260301T100000-abcd1234",
		Category:   record.CategoryFact,
		Created:    now,
		Updated:    now,
		Confidence: 0.7,
		Content:    "Mirrored fact.",
	}

	require.NoError(t, sink.UpsertRecord(rec, "/store/memories/fact/2026-03/fact-20260301T100000-abcd1234.md"))

	var row RecordRow
	require.NoError(t, c.DB().Where("id = ?", rec.ID).First(&row).Error)
	assert.Equal(t, "fact", row.Category)
	// Empty status normalizes to active
	assert.Equal(t, "active", row.Status)
	assert.Equal(t, 0.7, row.Confidence)

	require.NoError(t, sink.RemoveRecord(rec.ID))
	n, err := c.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSinkServesStoreRecencyQueries(t *testing.T) {
	c := newTestCatalog(t)
	dir := t.TempDir()

	s, err := record.New(dir, record.WithCatalogSink(NewSink(c)))
	require.NoError(t, err)
	keptID, err := s.WriteRecord(record.CategoryFact, "Stays active.", record.WriteOptions{})
	require.NoError(t, err)
	goneID, err := s.WriteRecord(record.CategoryFact, "Will be superseded.", record.WriteOptions{})
	require.NoError(t, err)

	// A sibling store without the sink writes a record the catalog never
	// hears about. Recency answers come from the catalog, so the orphan
	// stays invisible until a rebuild; the walk would have found it.
	orphan, err := record.New(dir)
	require.NoError(t, err)
	orphanID, err := orphan.WriteRecord(record.CategoryFact, "Unknown to the catalog.", record.WriteOptions{})
	require.NoError(t, err)

	require.True(t, s.Supersede(goneID, keptID, "duplicate"))

	recent, err := s.RecentActive(10)
	require.NoError(t, err)
	ids := make([]string, 0, len(recent))
	for _, rec := range recent {
		ids = append(ids, rec.ID)
	}
	assert.Contains(t, ids, keptID)
	assert.NotContains(t, ids, goneID)
	assert.NotContains(t, ids, orphanID)
}
