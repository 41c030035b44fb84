// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninnlabs/muninn/internal/record"
)

// writeAgedRecord plants a record file with a backdated updated stamp,
// bypassing WriteRecord which always stamps now.
func writeAgedRecord(t *testing.T, store *record.Store, id, content string, updated time.Time, tags []string) {
	t.Helper()
	dir := filepath.Join(store.BaseDir(), "memories", "fact", updated.Format("2006-01"))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	var tagLines string
	if len(tags) > 0 {
		tagLines = "tags:\n"
		for _, tag := range tags {
			tagLines += "  - " + tag + "\n"
		}
	}
	doc := fmt.Sprintf(`---
id: %s
category: fact
created: %s
updated: %s
confidence: 0.7
confidence_tier: working
status: active
%s---

%s
`, id, updated.Format(time.RFC3339), updated.Format(time.RFC3339), tagLines, content)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".md"), []byte(doc), 0o644))
}

// recordingAudit captures commit messages.
type recordingAudit struct {
	mu       sync.Mutex
	messages []string
}

func (a *recordingAudit) Commit(message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, message)
	return nil
}

func (a *recordingAudit) all() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

func TestConsolidate_AppliesVerdicts(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	invalidateID, err := store.WriteRecord(record.CategoryFact, "User is evaluating Kafka", record.WriteOptions{})
	require.NoError(t, err)
	updateID, err := store.WriteRecord(record.CategoryFact, "User prefers Python", record.WriteOptions{})
	require.NoError(t, err)
	mergeAwayID, err := store.WriteRecord(record.CategoryFact, "User has a dog", record.WriteOptions{})
	require.NoError(t, err)
	survivorID, err := store.WriteRecord(record.CategoryFact, "User has a pet", record.WriteOptions{})
	require.NoError(t, err)

	extractor := &fakeExtractor{
		consolidateFn: func(_, _ []*record.Record, _ string) (*ConsolidationResult, error) {
			return &ConsolidationResult{
				Items: []ConsolidationItem{
					{RecordID: invalidateID, Action: "INVALIDATE"},
					{RecordID: updateID, Action: "update", NewContent: "User prefers Python for scripting, Go for services"},
					{RecordID: mergeAwayID, Action: "MERGE", MergeInto: survivorID, NewContent: "User has a dog named Rex"},
					{RecordID: "fact-20200101T000000-gone", Action: "INVALIDATE"},
				},
				ProfileUpdates: []string{"Primary languages: Python, Go"},
				EntityUpdates:  []ExtractedEntity{{Name: "Rex", Type: "pet", Facts: []string{"Dog owned by the user"}}},
			}, nil
		},
	}
	audit := &recordingAudit{}
	eng, err := New(Config{}, store, unreachableIndex(), extractor, WithAuditLog(audit))
	require.NoError(t, err)

	eng.Consolidate(context.Background())

	gone, err := store.GetByID(invalidateID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	updated, err := store.GetByID(updateID)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "User prefers Python for scripting, Go for services", updated.Content)

	survivor, err := store.GetByID(survivorID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, "User has a dog named Rex", survivor.Content)
	assert.Contains(t, survivor.Lineage, mergeAwayID)

	mergedAway, err := store.GetByID(mergeAwayID)
	require.NoError(t, err)
	assert.Nil(t, mergedAway)

	profile, err := os.ReadFile(filepath.Join(store.BaseDir(), profileFile))
	require.NoError(t, err)
	assert.Contains(t, string(profile), "Primary languages: Python, Go")

	ent, err := store.GetEntity("pet-rex")
	require.NoError(t, err)
	require.NotNil(t, ent)

	messages := audit.all()
	require.Len(t, messages, 1)
	assert.True(t, strings.HasPrefix(messages[0], "consolidate: pass at "))
}

func TestConsolidate_FlushesAccessTracking(t *testing.T) {
	eng, store := newTestEngine(t, Config{}, nil)
	id, err := store.WriteRecord(record.CategoryFact, "Drinks too much coffee", record.WriteOptions{})
	require.NoError(t, err)

	eng.access.Track(id, time.Now().UTC())
	eng.Consolidate(context.Background())

	rec, err := store.GetByID(id)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AccessCount)
	assert.Zero(t, eng.access.Len())
}

func TestConsolidate_OverlappingCallSkipped(t *testing.T) {
	called := false
	extractor := &fakeExtractor{
		consolidateFn: func(_, _ []*record.Record, _ string) (*ConsolidationResult, error) {
			called = true
			return nil, nil
		},
	}
	eng, _ := newTestEngine(t, Config{}, extractor)

	eng.consolMu.Lock()
	eng.Consolidate(context.Background())
	eng.consolMu.Unlock()
	assert.False(t, called)

	eng.Consolidate(context.Background())
	assert.True(t, called)
}

func TestConsolidate_CollaboratorFailureIsNonFatal(t *testing.T) {
	extractor := &fakeExtractor{
		consolidateFn: func(_, _ []*record.Record, _ string) (*ConsolidationResult, error) {
			return nil, fmt.Errorf("model overloaded")
		},
	}
	eng, store := newTestEngine(t, Config{}, extractor)
	id, err := store.WriteRecord(record.CategoryFact, "Still here afterwards", record.WriteOptions{})
	require.NoError(t, err)

	eng.Consolidate(context.Background())

	rec, err := store.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsActive())
}

func TestConsolidate_IdentityDocCompacted(t *testing.T) {
	extractor := &fakeExtractor{
		identityFn: func(string) (string, int, error) {
			return "I keep workplace and location details current.\n", 3, nil
		},
	}
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	eng, err := New(Config{IdentityMaxChars: 50}, store, unreachableIndex(), extractor)
	require.NoError(t, err)

	long := strings.Repeat("A reflection line that pads the document well past fifty chars.\n", 4)
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), identityFile), []byte(long), 0o644))

	eng.Consolidate(context.Background())

	raw, err := os.ReadFile(filepath.Join(store.BaseDir(), identityFile))
	require.NoError(t, err)
	assert.Equal(t, "I keep workplace and location details current.\n", string(raw))

	// Within the cooldown window a second pass leaves the doc alone even
	// if it grows past the threshold again.
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), identityFile), []byte(long), 0o644))
	eng.Consolidate(context.Background())
	raw, err = os.ReadFile(filepath.Join(store.BaseDir(), identityFile))
	require.NoError(t, err)
	assert.Equal(t, long, string(raw))
}

func TestConsolidate_ProfileDocCompacted(t *testing.T) {
	extractor := &fakeExtractor{
		profileFn: func(string) (string, int, error) {
			return "Name: Alex\nRole: SRE\n", 5, nil
		},
	}
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	eng, err := New(Config{ProfileMaxLines: 2}, store, unreachableIndex(), extractor)
	require.NoError(t, err)

	long := "Name: Alex\nRole: SRE\nLikes coffee\nHas a dog\nRuns marathons\n"
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), profileFile), []byte(long), 0o644))

	eng.Consolidate(context.Background())

	raw, err := os.ReadFile(filepath.Join(store.BaseDir(), profileFile))
	require.NoError(t, err)
	assert.Equal(t, "Name: Alex\nRole: SRE\n", string(raw))
}

func TestConsolidate_SummarizesOldRecords(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	old := time.Now().UTC().AddDate(0, 0, -60)
	writeAgedRecord(t, store, "fact-20260701T000000-aaaa1111", "Tried the beta dashboard once", old, nil)
	writeAgedRecord(t, store, "fact-20260701T000001-bbbb2222", "Mentioned a conference in passing", old, nil)
	writeAgedRecord(t, store, "fact-20260701T000002-cccc3333", "Wedding anniversary is June 12", old, []string{"protected"})

	extractor := &fakeExtractor{
		summarizeFn: func(batch []*record.Record) (*MemorySummary, error) {
			return &MemorySummary{
				SummaryText: "Earlier period: explored the beta dashboard and mentioned a conference.",
				KeyFacts:    []string{"explored beta dashboard"},
			}, nil
		},
	}
	eng, err := New(Config{
		SummarizationEnabled: true,
		SummarizeBatchSize:   2,
		SummarizeMinAgeDays:  30,
	}, store, unreachableIndex(), extractor)
	require.NoError(t, err)

	eng.Consolidate(context.Background())

	sums := store.RecentSummaries(5)
	require.Len(t, sums, 1)
	assert.Contains(t, sums[0].Content, "explored the beta dashboard")

	// The summarized records are archived; the protected one survives.
	recent, err := store.RecentActive(10)
	require.NoError(t, err)
	ids := make([]string, 0, len(recent))
	for _, rec := range recent {
		ids = append(ids, rec.ID)
	}
	assert.NotContains(t, ids, "fact-20260701T000000-aaaa1111")
	assert.NotContains(t, ids, "fact-20260701T000001-bbbb2222")
	assert.Contains(t, ids, "fact-20260701T000002-cccc3333")
}
