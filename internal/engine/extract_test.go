// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninnlabs/muninn/internal/record"
)

const testWait = 3 * time.Second

func TestProcessTurn_BuffersAndArchives(t *testing.T) {
	transcripts := &fakeTranscripts{}
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	extractor := &fakeExtractor{}
	eng, err := New(Config{}, store, unreachableIndex(), extractor, WithTranscripts(transcripts))
	require.NoError(t, err)

	eng.ProcessTurn(Turn{Role: "user", Content: "hello"})
	assert.Len(t, transcripts.ReadRecent(10), 1)
	assert.Zero(t, extractor.batchCount())

	// Flushing an empty buffer enqueues nothing.
	eng.FlushTurns()
	eng.FlushTurns()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, extractor.batchCount())
}

func TestFlushTurns_PersistsExtraction(t *testing.T) {
	extractor := &fakeExtractor{
		extractFn: func([]Turn, []string) (*ExtractionResult, error) {
			return &ExtractionResult{
				Facts: []ExtractedFact{
					{Content: "User works at Initech", Category: "fact", Confidence: 0.9},
				},
				Entities: []ExtractedEntity{
					{Name: "Initech", Type: "org", Facts: []string{"Employer of the user"}},
				},
				Questions: []ExtractedQuestion{
					{Text: "Which team at Initech?", Priority: 0.7},
				},
				ProfileUpdates:     []string{"Employed at Initech"},
				IdentityReflection: "I should remember workplace details.",
			}, nil
		},
	}
	audit := &recordingAudit{}
	eng, store := newTestEngine(t, Config{}, extractor, WithAuditLog(audit))

	eng.ProcessTurn(Turn{Role: "user", Content: "I started at Initech last week"})
	eng.FlushTurns()

	// The audit commit is the worker's last write, so once it lands every
	// other artifact of the batch is on disk.
	require.Eventually(t, func() bool {
		return len(audit.all()) == 1
	}, testWait, 10*time.Millisecond)
	assert.Equal(t, "extract: persisted 1 facts", audit.all()[0])

	recent, err := store.RecentActive(5)
	require.NoError(t, err)
	assert.Equal(t, "User works at Initech", recent[0].Content)
	assert.InDelta(t, 0.9, recent[0].Confidence, 1e-9)
	assert.Equal(t, "extraction", recent[0].Source)

	ent, err := store.GetEntity("org-initech")
	require.NoError(t, err)
	require.NotNil(t, ent)
	assert.Contains(t, ent.Facts, "Employer of the user")

	q := store.TopOpenQuestion()
	require.NotNil(t, q)
	assert.Equal(t, "Which team at Initech?", strings.TrimSpace(q.Content))

	profile, err := os.ReadFile(filepath.Join(store.BaseDir(), profileFile))
	require.NoError(t, err)
	assert.Contains(t, string(profile), "Employed at Initech")

	identity, err := os.ReadFile(filepath.Join(store.BaseDir(), identityFile))
	require.NoError(t, err)
	assert.Contains(t, string(identity), "workplace details")
}

func TestExtractionQueue_FIFO(t *testing.T) {
	extractor := &fakeExtractor{
		extractFn: func([]Turn, []string) (*ExtractionResult, error) {
			time.Sleep(20 * time.Millisecond)
			return &ExtractionResult{}, nil
		},
	}
	eng, _ := newTestEngine(t, Config{}, extractor)

	eng.ProcessTurn(Turn{Role: "user", Content: "first"})
	eng.FlushTurns()
	eng.ProcessTurn(Turn{Role: "user", Content: "second"})
	eng.FlushTurns()
	eng.ProcessTurn(Turn{Role: "user", Content: "third"})
	eng.FlushTurns()

	require.Eventually(t, func() bool { return extractor.batchCount() == 3 }, testWait, 10*time.Millisecond)

	extractor.mu.Lock()
	defer extractor.mu.Unlock()
	assert.Equal(t, "first", extractor.batches[0][0].Content)
	assert.Equal(t, "second", extractor.batches[1][0].Content)
	assert.Equal(t, "third", extractor.batches[2][0].Content)
}

func TestExtraction_PoisonPayloadDroppedQueueSurvives(t *testing.T) {
	calls := 0
	extractor := &fakeExtractor{}
	extractor.extractFn = func([]Turn, []string) (*ExtractionResult, error) {
		extractor.mu.Lock()
		calls++
		n := calls
		extractor.mu.Unlock()
		if n == 1 {
			// Structurally invalid: empty fact content.
			return &ExtractionResult{Facts: []ExtractedFact{{Content: "  ", Confidence: 0.5}}}, nil
		}
		return &ExtractionResult{Facts: []ExtractedFact{{Content: "Second batch fact", Confidence: 0.6}}}, nil
	}
	eng, store := newTestEngine(t, Config{}, extractor)

	eng.ProcessTurn(Turn{Role: "user", Content: "bad"})
	eng.FlushTurns()
	eng.ProcessTurn(Turn{Role: "user", Content: "good"})
	eng.FlushTurns()

	require.Eventually(t, func() bool {
		recent, err := store.RecentActive(5)
		return err == nil && len(recent) == 1
	}, testWait, 10*time.Millisecond)

	recent, err := store.RecentActive(5)
	require.NoError(t, err)
	assert.Equal(t, "Second batch fact", recent[0].Content)
	assert.Equal(t, 2, eng.CurrentStatus().Extractions)
}

func TestExtraction_DuplicateFactSkipped(t *testing.T) {
	extractor := &fakeExtractor{
		extractFn: func([]Turn, []string) (*ExtractionResult, error) {
			return &ExtractionResult{Facts: []ExtractedFact{{Content: "User lives in Oslo", Confidence: 0.8}}}, nil
		},
	}
	eng, store := newTestEngine(t, Config{}, extractor)

	eng.ProcessTurn(Turn{Role: "user", Content: "I live in Oslo"})
	eng.FlushTurns()
	eng.ProcessTurn(Turn{Role: "user", Content: "I live in Oslo, as I said"})
	eng.FlushTurns()

	require.Eventually(t, func() bool { return extractor.batchCount() == 2 }, testWait, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		recent, err := store.RecentActive(10)
		return err == nil && len(recent) == 1
	}, testWait, 10*time.Millisecond)
}

func TestExtraction_OversizedFactChunked(t *testing.T) {
	var b strings.Builder
	b.WriteString("Long design discussion about the storage migration.\n")
	for i := 0; i < 80; i++ {
		b.WriteString(fmt.Sprintf("Point number %d covers one aspect of the plan in plain words here. ", i))
	}
	content := b.String()

	extractor := &fakeExtractor{
		extractFn: func([]Turn, []string) (*ExtractionResult, error) {
			return &ExtractionResult{Facts: []ExtractedFact{{Content: content, Confidence: 0.7}}}, nil
		},
	}
	eng, store := newTestEngine(t, Config{}, extractor)

	eng.ProcessTurn(Turn{Role: "user", Content: "let me recap the design"})
	eng.FlushTurns()

	require.Eventually(t, func() bool {
		all, err := store.ReadAllRecords()
		return err == nil && len(all) > 2
	}, testWait, 10*time.Millisecond)

	all, err := store.ReadAllRecords()
	require.NoError(t, err)

	var parent *record.Record
	var chunks []*record.Record
	for _, rec := range all {
		if rec.IsChunk() {
			chunks = append(chunks, rec)
		} else {
			parent = rec
		}
	}
	require.NotNil(t, parent)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Long design discussion about the storage migration.", parent.Content)
	assert.Equal(t, len(chunks), parent.ChunkTotal)

	seen := make(map[int]bool)
	for _, c := range chunks {
		assert.Equal(t, parent.ID, c.ParentID)
		assert.Equal(t, len(chunks), c.ChunkTotal)
		assert.False(t, seen[c.ChunkIndex], "duplicate chunk index %d", c.ChunkIndex)
		seen[c.ChunkIndex] = true
		assert.GreaterOrEqual(t, c.ChunkIndex, 1)
		assert.LessOrEqual(t, c.ChunkIndex, len(chunks))
	}
}

func TestExtraction_ContradictionSupersedesAfterWrite(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	oldID, err := store.WriteRecord(record.CategoryFact, "User lives in Oslo", record.WriteOptions{Confidence: record.Confidence(0.9)})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/v1/session", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `[{"path":"memories/fact/2026-08/%s.md","score":0.92}]`, oldID)
	})
	mux.HandleFunc("/v1/maintain", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	extractor := &fakeExtractor{
		extractFn: func([]Turn, []string) (*ExtractionResult, error) {
			return &ExtractionResult{Facts: []ExtractedFact{
				{Content: "User moved to Bergen", Category: "fact", Confidence: 0.9},
			}}, nil
		},
		verdictFn: func(string, string) (*ContradictionVerdict, error) {
			return &ContradictionVerdict{IsContradiction: true, Confidence: 0.95, WhichIsNewer: "new"}, nil
		},
	}

	idx := newDaemonIndex(srv.URL)
	audit := &recordingAudit{}
	eng, err := New(Config{ContradictionCheck: true}, store, idx, extractor, WithAuditLog(audit))
	require.NoError(t, err)

	eng.ProcessTurn(Turn{Role: "user", Content: "I moved to Bergen"})
	eng.FlushTurns()

	require.Eventually(t, func() bool {
		old, err := store.GetByID(oldID)
		return err == nil && old != nil && old.Status == record.StatusSuperseded
	}, testWait, 10*time.Millisecond)

	old, err := store.GetByID(oldID)
	require.NoError(t, err)
	require.NotEmpty(t, old.SupersededBy)

	// The replacement points back via the store's correction audit trail.
	replacement, err := store.GetByID(old.SupersededBy)
	require.NoError(t, err)
	require.NotNil(t, replacement)
	assert.Equal(t, "User moved to Bergen", replacement.Content)
	assert.True(t, replacement.IsActive())

	// Both the supersession and the extraction leave audit commits. The
	// extraction commit lands after the batch finishes, so wait for it.
	require.Eventually(t, func() bool {
		return len(audit.all()) == 2
	}, testWait, 10*time.Millisecond)
	assert.Contains(t, audit.all(), fmt.Sprintf("supersede: %s replaced by %s", oldID, old.SupersededBy))
	assert.Contains(t, audit.all(), "extract: persisted 1 facts")
}
