// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(t.TempDir(), opts...)
	require.NoError(t, err)
	return s
}

func TestWriteRecord_IDAndDefaults(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryFact, "Works at Acme Corp.", WriteOptions{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "fact-"))

	rec, err := s.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, CategoryFact, rec.Category)
	assert.Equal(t, StatusActive, rec.Status)
	// Default confidence applies when none is supplied
	assert.Equal(t, 0.7, rec.Confidence)
	assert.Equal(t, TierWorking, rec.Tier)
	assert.Nil(t, rec.ExpiresAt)
}

func TestWriteRecord_ConfidenceTiers(t *testing.T) {
	s := newTestStore(t)

	highID, err := s.WriteRecord(CategoryFact, "High confidence statement.", WriteOptions{Confidence: Confidence(0.95)})
	require.NoError(t, err)
	high, err := s.GetByID(highID)
	require.NoError(t, err)
	assert.Equal(t, TierEstablished, high.Tier)
	assert.Nil(t, high.ExpiresAt)

	lowID, err := s.WriteRecord(CategoryFact, "Low confidence guess.", WriteOptions{Confidence: Confidence(0.2)})
	require.NoError(t, err)
	low, err := s.GetByID(lowID)
	require.NoError(t, err)
	assert.Equal(t, TierSpeculative, low.Tier)
	require.NotNil(t, low.ExpiresAt)
	// Speculative records get a 14-day TTL from creation
	wantExpiry := low.Created.AddDate(0, 0, SpeculativeTTLDays)
	assert.WithinDuration(t, wantExpiry, *low.ExpiresAt, time.Second)
}

func TestWriteRecord_ExplicitZeroConfidence(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryFact, "Wild guess with no support.", WriteOptions{Confidence: Confidence(0)})
	require.NoError(t, err)
	rec, err := s.GetByID(id)
	require.NoError(t, err)
	// An explicit zero is not the same as unset and must not be rewritten
	// to the default.
	assert.Equal(t, 0.0, rec.Confidence)
	assert.Equal(t, TierSpeculative, rec.Tier)
	require.NotNil(t, rec.ExpiresAt)
}

func TestWriteRecord_RejectsDuplicateContent(t *testing.T) {
	s := newTestStore(t)

	_, err := s.WriteRecord(CategoryFact, "Prefers dark mode.", WriteOptions{})
	require.NoError(t, err)

	_, err = s.WriteRecord(CategoryFact, "Prefers dark mode.", WriteOptions{})
	assert.ErrorIs(t, err, ErrDuplicateContent)

	// Normalization catches case and punctuation variants too
	_, err = s.WriteRecord(CategoryFact, "prefers dark mode", WriteOptions{})
	assert.ErrorIs(t, err, ErrDuplicateContent)

	// SkipDedup bypasses the check
	_, err = s.WriteRecord(CategoryFact, "Prefers dark mode.", WriteOptions{SkipDedup: true})
	assert.NoError(t, err)
}

func TestWriteRecord_EmptyContent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.WriteRecord(CategoryFact, "   ", WriteOptions{})
	assert.Error(t, err)
}

func TestGetByID_Missing(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.GetByID("fact-20260101T000000-missing0")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestRecentActive_OrderAndLimit(t *testing.T) {
	s := newTestStore(t)

	first, err := s.WriteRecord(CategoryFact, "First fact.", WriteOptions{})
	require.NoError(t, err)
	_, err = s.WriteRecord(CategoryFact, "Second fact.", WriteOptions{})
	require.NoError(t, err)
	_, err = s.WriteRecord(CategoryFact, "Third fact.", WriteOptions{})
	require.NoError(t, err)

	// Touch the first so it becomes the most recently updated
	require.True(t, s.UpdateRecord(first, "First fact, revised.", UpdateOptions{}))

	recent, err := s.RecentActive(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, first, recent[0].ID)

	recent, err = s.RecentActive(10)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

// querySink is a CatalogSink that can also answer recency queries, tracking
// written paths so tests can control what the catalog side reports.
type querySink struct {
	paths    []string
	queryErr error
	queries  int
}

func (q *querySink) UpsertRecord(_ *Record, path string) error {
	for _, p := range q.paths {
		if p == path {
			return nil
		}
	}
	q.paths = append(q.paths, path)
	return nil
}

func (q *querySink) RemoveRecord(string) error { return nil }

func (q *querySink) RecentActivePaths(int) ([]string, error) {
	q.queries++
	return q.paths, q.queryErr
}

func TestRecentActive_ServedFromCatalog(t *testing.T) {
	sink := &querySink{}
	s := newTestStore(t, WithCatalogSink(sink))

	firstID, err := s.WriteRecord(CategoryFact, "Known to the catalog.", WriteOptions{})
	require.NoError(t, err)
	secondID, err := s.WriteRecord(CategoryFact, "Also cataloged.", WriteOptions{})
	require.NoError(t, err)

	// Serve only the first row: a catalog-backed answer returns exactly
	// what the rows resolve to, while the walk would find both records.
	sink.paths = sink.paths[:1]
	recent, err := s.RecentActive(10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, firstID, recent[0].ID)
	assert.Equal(t, 1, sink.queries)

	// A failing catalog falls back to the tree walk, which sees both.
	sink.queryErr = assert.AnError
	recent, err = s.RecentActive(10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	ids := []string{recent[0].ID, recent[1].ID}
	assert.Contains(t, ids, firstID)
	assert.Contains(t, ids, secondID)

	// Rows pointing at files that disappeared behind the store's back are
	// dropped; an all-stale answer falls back to the walk too.
	sink.queryErr = nil
	sink.paths = []string{filepath.Join(s.BaseDir(), "memories", "fact", "gone.md")}
	recent, err = s.RecentActive(10)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSupersede(t *testing.T) {
	s := newTestStore(t)

	oldID, err := s.WriteRecord(CategoryFact, "Lives in Lisbon.", WriteOptions{})
	require.NoError(t, err)
	newID, err := s.WriteRecord(CategoryFact, "Lives in Berlin.", WriteOptions{})
	require.NoError(t, err)

	require.True(t, s.Supersede(oldID, newID, "user moved"))

	old, err := s.GetByID(oldID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuperseded, old.Status)
	assert.Equal(t, newID, old.SupersededBy)
	require.NotNil(t, old.SupersededAt)
	assert.False(t, old.IsActive())

	// An audit correction record linking both ids is written
	all, err := s.ReadAllRecords()
	require.NoError(t, err)
	var audit *Record
	for _, rec := range all {
		if rec.Category == CategoryCorrection && rec.Source == "supersession" {
			audit = rec
		}
	}
	require.NotNil(t, audit)
	require.Len(t, audit.Links, 2)
	assert.Equal(t, oldID, audit.Links[0].Target)
	assert.Equal(t, newID, audit.Links[1].Target)
}

func TestSupersede_UnknownID(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Supersede("fact-20260101T000000-nothere0", "x", "reason"))
}

func TestInvalidate(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryFact, "Disposable fact.", WriteOptions{})
	require.NoError(t, err)

	require.True(t, s.Invalidate(id))
	rec, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Nil(t, rec)

	assert.False(t, s.Invalidate(id))
}

func TestArchive(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryEvent, "Attended GopherCon.", WriteOptions{})
	require.NoError(t, err)
	rec, err := s.GetByID(id)
	require.NoError(t, err)

	dest, err := s.Archive(rec)
	require.NoError(t, err)
	assert.NotEmpty(t, dest)

	archived, err := s.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.Equal(t, StatusArchived, archived.Status)
	assert.False(t, archived.IsActive())

	// Archived records are excluded from the active set
	recent, err := s.RecentActive(10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestStatusVersion_Monotonic(t *testing.T) {
	s := newTestStore(t)

	v0 := s.StatusVersion()

	id, err := s.WriteRecord(CategoryFact, "Versioned fact.", WriteOptions{})
	require.NoError(t, err)
	other, err := s.WriteRecord(CategoryFact, "Another fact.", WriteOptions{})
	require.NoError(t, err)

	require.True(t, s.UpdateRecord(id, "Versioned fact, edited.", UpdateOptions{}))
	v1 := s.StatusVersion()
	assert.Greater(t, v1, v0)

	require.True(t, s.Supersede(id, other, "test"))
	v2 := s.StatusVersion()
	assert.Greater(t, v2, v1)

	require.True(t, s.Invalidate(other))
	v3 := s.StatusVersion()
	assert.Greater(t, v3, v2)

	// A failed lifecycle call does not bump the counter
	assert.False(t, s.Supersede("fact-20260101T000000-nothere0", "x", "r"))
	assert.Equal(t, v3, s.StatusVersion())
}

func TestUpdateRecord_LineageAppends(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryFact, "Original.", WriteOptions{Lineage: []string{"seed-1"}})
	require.NoError(t, err)

	require.True(t, s.UpdateRecord(id, "Merged body.", UpdateOptions{Lineage: []string{"merged-2"}}))

	rec, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"seed-1", "merged-2"}, rec.Lineage)
	assert.Equal(t, "Merged body.", rec.Content)
}

func TestRecordAccess_Merges(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryFact, "Accessed fact.", WriteOptions{})
	require.NoError(t, err)

	earlier := time.Now().UTC().Add(-time.Hour)
	later := time.Now().UTC()

	require.True(t, s.RecordAccess(id, 2, later))
	require.True(t, s.RecordAccess(id, 3, earlier))

	rec, err := s.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.AccessCount)
	require.NotNil(t, rec.LastAccessed)
	// The later timestamp wins regardless of flush order
	assert.WithinDuration(t, later, *rec.LastAccessed, time.Second)

	assert.False(t, s.RecordAccess("fact-20260101T000000-nothere0", 1, later))
}

func TestAddLinkToRecord(t *testing.T) {
	s := newTestStore(t)

	id, err := s.WriteRecord(CategoryFact, "Linked fact.", WriteOptions{})
	require.NoError(t, err)

	require.True(t, s.AddLinkToRecord(id, Link{Target: "fact-x", Type: "related", Strength: 0.5}))
	require.True(t, s.AddLinkToRecord(id, Link{Target: "fact-x", Type: "supports", Strength: 0.9}))

	rec, err := s.GetByID(id)
	require.NoError(t, err)
	require.Len(t, rec.Links, 1)
	assert.Equal(t, "supports", rec.Links[0].Type)
	assert.Equal(t, 0.9, rec.Links[0].Strength)
}
