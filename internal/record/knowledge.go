// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Knowledge index scoring weights. The score of an entity is a fixed
// weighted sum of recency, fact-count saturation, activity saturation, type
// priority, and relationship-density saturation.
const (
	knowledgeRecencyWeight      = 0.40
	knowledgeFactWeight         = 0.25
	knowledgeActivityWeight     = 0.15
	knowledgeTypeWeight         = 0.10
	knowledgeRelationshipWeight = 0.10

	knowledgeRecencyHalfLifeDays = 14.0

	// Saturation midpoints: score 0.5 at this many items.
	factSaturationMid         = 8.0
	activitySaturationMid     = 5.0
	relationshipSaturationMid = 4.0
)

// knowledgeCacheTTL bounds how long a built index is served without a
// rebuild. Any entity mutation invalidates the cache immediately regardless
// of the TTL.
const knowledgeCacheTTL = 5 * time.Minute

// typePriority ranks entity types for context injection.
var typePriority = map[string]float64{
	"person":       1.0,
	"project":      0.9,
	"organization": 0.8,
	"place":        0.6,
	"tool":         0.6,
	"concept":      0.5,
}

const defaultTypePriority = 0.4

// KnowledgeLimits bounds the rendered knowledge index. The row budget is a
// character cap, not a row cap.
type KnowledgeLimits struct {
	MaxChars int
}

type knowledgeCache struct {
	table   string
	builtAt time.Time
}

func (s *Store) invalidateKnowledgeCache() {
	s.kmu.Lock()
	s.kcache.table = ""
	s.kmu.Unlock()
}

// BuildKnowledgeIndex scores every entity, sorts descending, and renders a
// bounded markdown table. The result is cached for a fixed TTL.
func (s *Store) BuildKnowledgeIndex(limits KnowledgeLimits) string {
	s.kmu.Lock()
	defer s.kmu.Unlock()

	if s.kcache.table != "" && time.Since(s.kcache.builtAt) < knowledgeCacheTTL {
		return s.kcache.table
	}

	table := s.renderKnowledgeIndex(limits, time.Now().UTC())
	s.kcache.table = table
	s.kcache.builtAt = time.Now()
	return table
}

func (s *Store) renderKnowledgeIndex(limits KnowledgeLimits, now time.Time) string {
	entities := s.AllEntities()
	if len(entities) == 0 {
		return ""
	}

	type scored struct {
		entity *Entity
		score  float64
	}
	rows := make([]scored, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, scored{entity: e, score: scoreEntity(e, now)})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].score > rows[j].score })

	maxChars := limits.MaxChars
	if maxChars <= 0 {
		maxChars = 4000
	}

	var sb strings.Builder
	sb.WriteString("| Entity | Type | Key facts |\n")
	sb.WriteString("|---|---|---|\n")
	for _, row := range rows {
		line := renderKnowledgeRow(row.entity)
		if sb.Len()+len(line) > maxChars {
			break
		}
		sb.WriteString(line)
	}
	return sb.String()
}

func renderKnowledgeRow(e *Entity) string {
	facts := e.Facts
	if len(facts) > 3 {
		facts = facts[:3]
	}
	return fmt.Sprintf("| %s | %s | %s |\n", e.Name, e.Type, strings.Join(facts, "; "))
}

// scoreEntity computes the fixed weighted formula over one entity.
func scoreEntity(e *Entity, now time.Time) float64 {
	ageDays := now.Sub(e.Updated).Hours() / 24.0
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Pow(0.5, ageDays/knowledgeRecencyHalfLifeDays)

	prio, ok := typePriority[strings.ToLower(e.Type)]
	if !ok {
		prio = defaultTypePriority
	}

	return knowledgeRecencyWeight*recency +
		knowledgeFactWeight*saturate(len(e.Facts), factSaturationMid) +
		knowledgeActivityWeight*saturate(len(e.Activity), activitySaturationMid) +
		knowledgeTypeWeight*prio +
		knowledgeRelationshipWeight*saturate(len(e.Relationships), relationshipSaturationMid)
}

// saturate maps a count into [0,1) with score 0.5 at the midpoint.
func saturate(n int, mid float64) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) / (float64(n) + mid)
}
