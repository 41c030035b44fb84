// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import "time"

// Category classifies the kind of information a record encodes.
// WriteRecord never rejects a category: unknown values are stored as-is so
// files written by newer versions remain readable.
type Category string

const (
	CategoryFact       Category = "fact"
	CategoryCorrection Category = "correction"
	CategoryPreference Category = "preference"
	CategoryCommitment Category = "commitment"
	CategoryEvent      Category = "event"
	CategoryInsight    Category = "insight"
)

// Status is the lifecycle state of a record.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
	StatusArchived   Status = "archived"
)

// ConfidenceTier is a coarse bucket derived from the numeric confidence score.
type ConfidenceTier string

const (
	TierSpeculative ConfidenceTier = "speculative"
	TierWorking     ConfidenceTier = "working"
	TierEstablished ConfidenceTier = "established"
)

// Confidence tier boundaries, the default applied when a writer leaves
// confidence unset, and the TTL applied to speculative records.
const (
	SpeculativeCeiling = 0.4
	EstablishedFloor   = 0.8
	DefaultConfidence  = 0.7
	SpeculativeTTLDays = 14
)

// Confidence returns a pointer to v for WriteOptions, which distinguishes an
// unset confidence from an explicit zero.
func Confidence(v float64) *float64 { return &v }

// TierForConfidence maps a confidence score to its tier.
func TierForConfidence(confidence float64) ConfidenceTier {
	switch {
	case confidence >= EstablishedFloor:
		return TierEstablished
	case confidence < SpeculativeCeiling:
		return TierSpeculative
	default:
		return TierWorking
	}
}

// Link is a typed relation from one record to another.
type Link struct {
	Target   string  `yaml:"target" json:"target"`
	Type     string  `yaml:"type" json:"type"`
	Strength float64 `yaml:"strength" json:"strength"`
	Reason   string  `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// Importance holds the extraction-time importance assessment of a record.
type Importance struct {
	Score    float64  `yaml:"score" json:"score"`
	Level    string   `yaml:"level" json:"level"`
	Reasons  []string `yaml:"reasons,omitempty" json:"reasons,omitempty"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// Record is a single persisted memory unit: one file with a YAML frontmatter
// header and a free-form markdown body. The header is the sole source of truth
// for all metadata.
type Record struct {
	ID           string         `yaml:"id"`
	Category     Category       `yaml:"category"`
	Created      time.Time      `yaml:"created"`
	Updated      time.Time      `yaml:"updated"`
	Source       string         `yaml:"source,omitempty"`
	Confidence   float64        `yaml:"confidence"`
	Tier         ConfidenceTier `yaml:"confidence_tier,omitempty"`
	Tags         []string       `yaml:"tags,omitempty"`
	EntityRef    string         `yaml:"entity_ref,omitempty"`
	Supersedes   string         `yaml:"supersedes,omitempty"`
	SupersededBy string         `yaml:"superseded_by,omitempty"`
	SupersededAt *time.Time     `yaml:"superseded_at,omitempty"`
	Lineage      []string       `yaml:"lineage,omitempty"`
	Status       Status         `yaml:"status,omitempty"`
	ExpiresAt    *time.Time     `yaml:"expires_at,omitempty"`
	AccessCount  int            `yaml:"access_count,omitempty"`
	LastAccessed *time.Time     `yaml:"last_accessed,omitempty"`
	Importance   *Importance    `yaml:"importance,omitempty"`
	ParentID     string         `yaml:"parent_id,omitempty"`
	ChunkIndex   int            `yaml:"chunk_index,omitempty"`
	ChunkTotal   int            `yaml:"chunk_total,omitempty"`
	Links        []Link         `yaml:"links,omitempty"`

	// Extra preserves frontmatter keys written by other versions of the
	// engine. They round-trip through parse/serialize untouched.
	Extra map[string]any `yaml:",inline"`

	Content string `yaml:"-"`
}

// IsActive reports whether the record is in the active lifecycle state.
// An empty status is treated as active for files written before the status
// field existed.
func (r *Record) IsActive() bool {
	return r.Status == StatusActive || r.Status == ""
}

// IsChunk reports whether the record is a child chunk of a parent record.
func (r *Record) IsChunk() bool {
	return r.ParentID != ""
}

// Expired reports whether the record's TTL has elapsed at the given time.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// AddLink adds or updates a typed link to another record.
func (r *Record) AddLink(target, linkType string, strength float64, reason string) {
	for i, l := range r.Links {
		if l.Target == target {
			r.Links[i].Type = linkType
			r.Links[i].Strength = strength
			r.Links[i].Reason = reason
			return
		}
	}
	r.Links = append(r.Links, Link{Target: target, Type: linkType, Strength: strength, Reason: reason})
}

// Question is a persisted open question with a priority sort key.
type Question struct {
	ID       string    `yaml:"id"`
	Created  time.Time `yaml:"created"`
	Priority float64   `yaml:"priority"`
	Resolved bool      `yaml:"resolved"`

	Content string `yaml:"-"`
}

// Summary aggregates a batch of archived records.
type Summary struct {
	ID               string    `yaml:"id"`
	Created          time.Time `yaml:"created"`
	PeriodStart      time.Time `yaml:"period_start"`
	PeriodEnd        time.Time `yaml:"period_end"`
	SourceEpisodeIDs []string  `yaml:"source_episode_ids,omitempty"`
	KeyFacts         []string  `yaml:"key_facts,omitempty"`

	Content string `yaml:"-"`
}
