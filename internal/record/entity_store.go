// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteEntity merges facts into the entity file matching name, creating one
// when no existing entity matches. It returns the canonical filename stem
// the facts landed in. Mutation is read-merge-write: facts deduplicate, the
// activity log stays bounded.
func (s *Store) WriteEntity(name, entityType string, facts []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("record: empty entity name")
	}

	stem := s.FindMatchingEntity(name, entityType)

	var entity *Entity
	if stem != "" {
		existing, err := s.GetEntity(stem)
		if err != nil {
			return "", err
		}
		entity = existing
	}
	if entity == nil {
		entity = &Entity{Name: name, Type: entityType}
		stem = entity.CanonicalFilename()
	} else if !strings.EqualFold(entity.Name, name) {
		entity.AddAlias(name)
	}

	for _, fact := range facts {
		entity.AddFact(fact)
	}
	entity.Updated = time.Now().UTC()

	if err := s.writeEntityFile(stem, entity); err != nil {
		return "", err
	}
	s.invalidateKnowledgeCache()
	return stem, nil
}

// UpdateEntity applies fn to an entity and persists the result. Returns
// false when the stem is unknown.
func (s *Store) UpdateEntity(stem string, fn func(*Entity)) bool {
	entity, err := s.GetEntity(stem)
	if err != nil || entity == nil {
		return false
	}
	fn(entity)
	entity.Updated = time.Now().UTC()
	if err := s.writeEntityFile(stem, entity); err != nil {
		slog.Warn("record: failed to update entity", "stem", stem, "err", err)
		return false
	}
	s.invalidateKnowledgeCache()
	return true
}

// FindMatchingEntity resolves a name to an existing canonical stem via the
// alias table and the fuzzy matching pipeline. Returns "" when nothing
// matches. It is side-effect-free.
func (s *Store) FindMatchingEntity(name, entityType string) string {
	if canonical := s.aliases.Resolve(name); canonical != "" {
		name = canonical
	}
	return MatchEntityName(name, entityType, s.ListEntityNames())
}

// ListEntityNames returns the canonical filename stems of every entity file.
// A missing entities directory is an empty result.
func (s *Store) ListEntityNames() []string {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, entitiesDir))
	if err != nil {
		return nil
	}
	var stems []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		stems = append(stems, strings.TrimSuffix(e.Name(), ".md"))
	}
	return stems
}

// GetEntity reads one entity file by its canonical stem. A missing entity
// returns (nil, nil).
func (s *Store) GetEntity(stem string) (*Entity, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, entitiesDir, stem+".md"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entity file: %w", err)
	}
	return ParseEntity(string(data))
}

// AllEntities reads every parsable entity file; corrupt files are skipped.
func (s *Store) AllEntities() []*Entity {
	var out []*Entity
	for _, stem := range s.ListEntityNames() {
		entity, err := s.GetEntity(stem)
		if err != nil {
			slog.Debug("record: skipping unparsable entity file", "stem", stem, "err", err)
			continue
		}
		if entity != nil {
			out = append(out, entity)
		}
	}
	return out
}

func (s *Store) writeEntityFile(stem string, entity *Entity) error {
	out, err := SerializeEntity(entity)
	if err != nil {
		return err
	}
	path := filepath.Join(s.baseDir, entitiesDir, stem+".md")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(out), 0o600); err != nil {
		return fmt.Errorf("failed to write entity file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace entity file: %w", err)
	}
	return nil
}

func (s *Store) removeEntityFile(stem string) error {
	return os.Remove(filepath.Join(s.baseDir, entitiesDir, stem+".md"))
}
