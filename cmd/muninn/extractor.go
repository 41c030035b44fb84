// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"strings"

	"github.com/muninnlabs/muninn/internal/engine"
	"github.com/muninnlabs/muninn/internal/record"
)

// turnExtractor is the standalone extraction fallback used when muninn
// runs as a plain MCP server with no LLM collaborator attached: each
// flushed user turn becomes one fact, verbatim. Hosts embedding muninn as
// a library wire a real engine.ExtractionEngine instead.
type turnExtractor struct{}

func newTurnExtractor() *turnExtractor {
	return &turnExtractor{}
}

func (t *turnExtractor) Extract(ctx context.Context, turns []engine.Turn, knownEntities []string) (*engine.ExtractionResult, error) {
	res := &engine.ExtractionResult{}
	for _, turn := range turns {
		if turn.Role != "user" {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		res.Facts = append(res.Facts, engine.ExtractedFact{
			Content:    content,
			Category:   string(record.CategoryFact),
			Confidence: 0.7,
		})
	}
	return res, nil
}

func (t *turnExtractor) Consolidate(ctx context.Context, recent, all []*record.Record, profile string) (*engine.ConsolidationResult, error) {
	// No verdicts without a judgement model; the store-level maintenance
	// passes still run.
	return &engine.ConsolidationResult{}, nil
}

func (t *turnExtractor) VerifyContradiction(ctx context.Context, newFact, existingFact string) (*engine.ContradictionVerdict, error) {
	return nil, nil
}

func (t *turnExtractor) SuggestLinks(ctx context.Context, newFact string, candidates []*record.Record) ([]record.Link, error) {
	return nil, nil
}

func (t *turnExtractor) SummarizeMemories(ctx context.Context, batch []*record.Record) (*engine.MemorySummary, error) {
	return nil, nil
}

func (t *turnExtractor) ConsolidateIdentity(ctx context.Context, text string) (string, int, error) {
	return text, 0, nil
}

func (t *turnExtractor) ConsolidateProfile(ctx context.Context, text string) (string, int, error) {
	return text, 0, nil
}
