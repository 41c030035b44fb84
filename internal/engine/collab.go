// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/muninnlabs/muninn/internal/record"
)

// Turn is a single conversation exchange handed to the engine by the host.
type Turn struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ExtractedFact is one persistable fact from an extraction pass.
type ExtractedFact struct {
	Content    string             `json:"content"`
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	EntityRef  string             `json:"entityRef,omitempty"`
	Tags       []string           `json:"tags,omitempty"`
	Importance *record.Importance `json:"importance,omitempty"`
}

// ExtractedEntity is an entity mention with its observed facts.
type ExtractedEntity struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Facts []string `json:"facts"`
}

// ExtractedQuestion is an open question surfaced during extraction.
type ExtractedQuestion struct {
	Text     string  `json:"text"`
	Priority float64 `json:"priority"`
}

// ExtractionResult is the payload produced by the external extraction
// collaborator for one batch of turns.
type ExtractionResult struct {
	Facts              []ExtractedFact     `json:"facts"`
	Entities           []ExtractedEntity   `json:"entities"`
	Questions          []ExtractedQuestion `json:"questions"`
	ProfileUpdates     []string            `json:"profileUpdates,omitempty"`
	IdentityReflection string              `json:"identityReflection,omitempty"`
}

// ContradictionVerdict is the collaborator's judgement on whether a new
// fact contradicts an existing record.
type ContradictionVerdict struct {
	IsContradiction bool    `json:"isContradiction"`
	Confidence      float64 `json:"confidence"`
	WhichIsNewer    string  `json:"whichIsNewer"`
	Reasoning       string  `json:"reasoning"`
}

// ConsolidationItem is a per-record verdict from the consolidation pass.
type ConsolidationItem struct {
	RecordID string `json:"recordId"`
	Action   string `json:"action"` // INVALIDATE, UPDATE, MERGE
	// NewContent is the rewritten body for UPDATE and MERGE.
	NewContent string `json:"newContent,omitempty"`
	// MergeInto names the surviving record for MERGE verdicts.
	MergeInto string `json:"mergeInto,omitempty"`
}

// ConsolidationResult carries everything a consolidation pass decided.
type ConsolidationResult struct {
	Items          []ConsolidationItem `json:"items"`
	ProfileUpdates []string            `json:"profileUpdates,omitempty"`
	EntityUpdates  []ExtractedEntity   `json:"entityUpdates,omitempty"`
}

// MemorySummary is the collaborator's digest of an archival batch.
type MemorySummary struct {
	SummaryText string   `json:"summaryText"`
	KeyFacts    []string `json:"keyFacts"`
	KeyEntities []string `json:"keyEntities"`
}

// ExtractionEngine is the external LLM-backed collaborator that turns
// conversation into structured memory. Implementations live outside this
// module; tests use fakes.
type ExtractionEngine interface {
	Extract(ctx context.Context, turns []Turn, knownEntities []string) (*ExtractionResult, error)
	Consolidate(ctx context.Context, recent, all []*record.Record, profile string) (*ConsolidationResult, error)
	VerifyContradiction(ctx context.Context, newFact, existingFact string) (*ContradictionVerdict, error)
	SuggestLinks(ctx context.Context, newFact string, candidates []*record.Record) ([]record.Link, error)
	SummarizeMemories(ctx context.Context, batch []*record.Record) (*MemorySummary, error)
	ConsolidateIdentity(ctx context.Context, text string) (consolidated string, removed int, err error)
	ConsolidateProfile(ctx context.Context, text string) (consolidated string, removed int, err error)
}

// TranscriptManager is the external transcript archive.
type TranscriptManager interface {
	Append(turn Turn) error
	ReadRecent(n int) []Turn
	SaveCheckpoint(text string) error
	// LoadCheckpoint returns the saved working context, or "" when none
	// exists. The checkpoint is consumed once: callers clear it after use.
	LoadCheckpoint() (string, bool)
	ClearCheckpoint()
	FormatForRecall(turns []Turn) string
}

// HourlySummarizer provides the periodic transcript summaries.
type HourlySummarizer interface {
	ReadRecent(n int) []string
	FormatForRecall(summaries []string) string
}

// validateExtraction checks the payload shape before anything is persisted.
// The collaborator is LLM-backed and can return structurally wrong data; a
// bad payload drops the whole batch rather than half-persisting it.
func validateExtraction(res *ExtractionResult) error {
	if res == nil {
		return fmt.Errorf("extraction result is nil")
	}
	for i, f := range res.Facts {
		if strings.TrimSpace(f.Content) == "" {
			return fmt.Errorf("fact %d has empty content", i)
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			return fmt.Errorf("fact %d confidence %v outside [0,1]", i, f.Confidence)
		}
	}
	for i, e := range res.Entities {
		if strings.TrimSpace(e.Name) == "" {
			return fmt.Errorf("entity %d has empty name", i)
		}
	}
	for i, q := range res.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %d has empty text", i)
		}
	}
	return nil
}
