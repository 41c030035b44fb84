// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxActivityEntries bounds the newest-first activity log of an entity file.
const MaxActivityEntries = 30

// Relationship is a labeled connection from an entity to another entity.
type Relationship struct {
	Target string
	Label  string
}

// ActivityEntry is one dated note in an entity's activity log.
type ActivityEntry struct {
	Date time.Time
	Note string
}

// Entity is the in-memory form of one entity file. Mutation is always
// read-merge-write: facts are a deduplicated set, the activity log is bounded.
type Entity struct {
	Name          string
	Type          string
	Updated       time.Time
	Summary       string
	Facts         []string
	Relationships []Relationship
	Activity      []ActivityEntry
	Aliases       []string
}

// entityHeader is the YAML frontmatter of an entity file.
type entityHeader struct {
	Name    string    `yaml:"name"`
	Type    string    `yaml:"type"`
	Updated time.Time `yaml:"updated"`
}

// CanonicalFilename returns the "{type}-{slug}" filename stem for the entity.
func (e *Entity) CanonicalFilename() string {
	return CanonicalEntityName(e.Name, e.Type)
}

// AddFact appends a fact if no existing fact normalizes to the same text.
// Returns true when the fact was new.
func (e *Entity) AddFact(fact string) bool {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false
	}
	norm := normalizeForCompare(fact)
	for _, existing := range e.Facts {
		if normalizeForCompare(existing) == norm {
			return false
		}
	}
	e.Facts = append(e.Facts, fact)
	return true
}

// AddRelationship adds a relationship, updating the label if the target is
// already present.
func (e *Entity) AddRelationship(target, label string) {
	for i, rel := range e.Relationships {
		if rel.Target == target {
			e.Relationships[i].Label = label
			return
		}
	}
	e.Relationships = append(e.Relationships, Relationship{Target: target, Label: label})
}

// AddActivity prepends a dated note, truncating the log at MaxActivityEntries.
func (e *Entity) AddActivity(date time.Time, note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	e.Activity = append([]ActivityEntry{{Date: date, Note: note}}, e.Activity...)
	if len(e.Activity) > MaxActivityEntries {
		e.Activity = e.Activity[:MaxActivityEntries]
	}
}

// AddAlias records an alternate name, deduplicated case-insensitively.
func (e *Entity) AddAlias(alias string) {
	alias = strings.TrimSpace(alias)
	if alias == "" || strings.EqualFold(alias, e.Name) {
		return
	}
	for _, existing := range e.Aliases {
		if strings.EqualFold(existing, alias) {
			return
		}
	}
	e.Aliases = append(e.Aliases, alias)
}

// Merge folds another entity's data into this one, deduplicating as it goes.
// The other entity's name is kept as an alias.
func (e *Entity) Merge(other *Entity) {
	for _, f := range other.Facts {
		e.AddFact(f)
	}
	for _, rel := range other.Relationships {
		e.AddRelationship(rel.Target, rel.Label)
	}
	for i := len(other.Activity) - 1; i >= 0; i-- {
		e.AddActivity(other.Activity[i].Date, other.Activity[i].Note)
	}
	for _, a := range other.Aliases {
		e.AddAlias(a)
	}
	e.AddAlias(other.Name)
	if e.Summary == "" {
		e.Summary = other.Summary
	}
	if other.Updated.After(e.Updated) {
		e.Updated = other.Updated
	}
}

// Fixed section headers of the entity file format. The bullet syntax under
// each header is the serialization format.
const (
	sectionSummary     = "## Summary"
	sectionFacts       = "## Facts"
	sectionConnectedTo = "## Connected to"
	sectionActivity    = "## Activity"
	sectionAliases     = "## Aliases"
)

const activityDateLayout = "2006-01-02"

// SerializeEntity renders an entity file: YAML frontmatter plus fixed
// markdown sections.
func SerializeEntity(e *Entity) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter + "\n")

	header, err := yaml.Marshal(entityHeader{Name: e.Name, Type: e.Type, Updated: e.Updated})
	if err != nil {
		return "", fmt.Errorf("failed to marshal entity frontmatter: %w", err)
	}
	buf.Write(header)
	buf.WriteString(frontmatterDelimiter + "\n\n")

	buf.WriteString("# " + e.Name + "\n")

	if e.Summary != "" {
		buf.WriteString("\n" + sectionSummary + "\n\n")
		buf.WriteString(strings.TrimSpace(e.Summary) + "\n")
	}

	buf.WriteString("\n" + sectionFacts + "\n\n")
	for _, f := range e.Facts {
		buf.WriteString("- " + f + "\n")
	}

	if len(e.Relationships) > 0 {
		buf.WriteString("\n" + sectionConnectedTo + "\n\n")
		for _, rel := range e.Relationships {
			buf.WriteString("- " + rel.Target + ": " + rel.Label + "\n")
		}
	}

	if len(e.Activity) > 0 {
		buf.WriteString("\n" + sectionActivity + "\n\n")
		for _, a := range e.Activity {
			buf.WriteString("- " + a.Date.Format(activityDateLayout) + ": " + a.Note + "\n")
		}
	}

	if len(e.Aliases) > 0 {
		buf.WriteString("\n" + sectionAliases + "\n\n")
		for _, alias := range e.Aliases {
			buf.WriteString("- " + alias + "\n")
		}
	}

	return buf.String(), nil
}

// ParseEntity parses an entity file back into an Entity.
func ParseEntity(content string) (*Entity, error) {
	header, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split entity frontmatter: %w", err)
	}

	var eh entityHeader
	if header != "" {
		if err := yaml.Unmarshal([]byte(header), &eh); err != nil {
			return nil, fmt.Errorf("failed to parse entity frontmatter: %w", err)
		}
	}

	e := &Entity{Name: eh.Name, Type: eh.Type, Updated: eh.Updated}

	section := ""
	var summaryLines []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case sectionSummary, sectionFacts, sectionConnectedTo, sectionActivity, sectionAliases:
			section = trimmed
			continue
		}
		if strings.HasPrefix(trimmed, "# ") && section == "" {
			if e.Name == "" {
				e.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			}
			continue
		}

		if section == sectionSummary {
			if trimmed != "" {
				summaryLines = append(summaryLines, trimmed)
			}
			continue
		}

		if !strings.HasPrefix(trimmed, "- ") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(trimmed, "- "))
		if item == "" {
			continue
		}

		switch section {
		case sectionFacts:
			e.Facts = append(e.Facts, item)
		case sectionConnectedTo:
			target, label := splitBulletPair(item)
			e.Relationships = append(e.Relationships, Relationship{Target: target, Label: label})
		case sectionActivity:
			dateStr, note := splitBulletPair(item)
			date, err := time.Parse(activityDateLayout, dateStr)
			if err != nil {
				// Undated notes keep their position with a zero date.
				e.Activity = append(e.Activity, ActivityEntry{Note: item})
				continue
			}
			e.Activity = append(e.Activity, ActivityEntry{Date: date, Note: note})
		case sectionAliases:
			e.Aliases = append(e.Aliases, item)
		}
	}
	e.Summary = strings.Join(summaryLines, "\n")

	return e, nil
}

func splitBulletPair(item string) (string, string) {
	idx := strings.Index(item, ": ")
	if idx == -1 {
		return item, ""
	}
	return item[:idx], strings.TrimSpace(item[idx+2:])
}
