// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"regexp"
	"strings"
)

var (
	// slugRegex matches characters that should be removed from slugs
	slugRegex = regexp.MustCompile(`[^a-z0-9\s-]`)
	// multiSpaceRegex matches runs of spaces/dashes
	multiSpaceRegex = regexp.MustCompile(`[\s-]+`)
)

// Slugify converts an entity name to its slug form: lowercase, special
// characters removed, spaces collapsed to single dashes.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = slugRegex.ReplaceAllString(slug, "")
	slug = multiSpaceRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// CanonicalEntityName returns the "{type}-{slug}" filename stem used as the
// canonical on-disk name for an entity.
func CanonicalEntityName(name, entityType string) string {
	t := Slugify(entityType)
	if t == "" {
		t = "entity"
	}
	s := Slugify(name)
	if s == "" {
		s = "unnamed"
	}
	return t + "-" + s
}

// AliasTable maps known alternate spellings of an entity name to the
// canonical name. It is an explicit configuration object owned by the store,
// loaded once at construction.
type AliasTable struct {
	aliases map[string]string
}

// NewAliasTable builds an alias table from canonical-name -> aliases pairs.
func NewAliasTable(entries map[string][]string) *AliasTable {
	t := &AliasTable{aliases: make(map[string]string)}
	for canonical, names := range entries {
		for _, name := range names {
			t.aliases[Slugify(name)] = canonical
		}
	}
	return t
}

// Resolve returns the canonical name for a known alias, or "" when the name
// is not in the table.
func (t *AliasTable) Resolve(name string) string {
	if t == nil {
		return ""
	}
	return t.aliases[Slugify(name)]
}

// matchSlugThreshold: for substring containment the shorter slug must be more
// than this fraction of the longer slug's length.
const containmentRatio = 0.6

// minLevenshteinLength: edit-distance matching only applies to slugs at least
// this long, so short names like "db" never collapse into unrelated entities.
const minLevenshteinLength = 4

// maxLevenshteinDistance is the edit-distance ceiling for a fuzzy match.
const maxLevenshteinDistance = 2

// MatchEntityName resolves a candidate entity name against existing canonical
// filename stems of the same type. It is a pure function of its inputs so the
// same name always resolves the same way. The pipeline is, in order:
// exact -> dehyphenated exact -> substring containment -> Levenshtein.
// Returns "" when nothing matches.
func MatchEntityName(name, entityType string, existing []string) string {
	candidate := CanonicalEntityName(name, entityType)
	typePrefix := Slugify(entityType)
	if typePrefix == "" {
		typePrefix = "entity"
	}
	typePrefix += "-"

	// Exact match.
	for _, stem := range existing {
		if stem == candidate {
			return stem
		}
	}

	candSlug := strings.TrimPrefix(candidate, typePrefix)
	candFlat := strings.ReplaceAll(candSlug, "-", "")

	// Dehyphenated exact: "jane-doe" == "janedoe".
	for _, stem := range existing {
		if !strings.HasPrefix(stem, typePrefix) {
			continue
		}
		stemSlug := strings.TrimPrefix(stem, typePrefix)
		if strings.ReplaceAll(stemSlug, "-", "") == candFlat {
			return stem
		}
	}

	// Substring containment: the shorter name is contained in the longer and
	// is more than containmentRatio of its length ("janedoe" in
	// "jane-doe-dev").
	for _, stem := range existing {
		if !strings.HasPrefix(stem, typePrefix) {
			continue
		}
		stemFlat := strings.ReplaceAll(strings.TrimPrefix(stem, typePrefix), "-", "")
		shorter, longer := candFlat, stemFlat
		if len(shorter) > len(longer) {
			shorter, longer = longer, shorter
		}
		if len(longer) == 0 || len(shorter) == 0 {
			continue
		}
		if float64(len(shorter)) > containmentRatio*float64(len(longer)) && strings.Contains(longer, shorter) {
			return stem
		}
	}

	// Levenshtein <= 2 on names of at least 4 characters.
	if len(candFlat) >= minLevenshteinLength {
		for _, stem := range existing {
			if !strings.HasPrefix(stem, typePrefix) {
				continue
			}
			stemFlat := strings.ReplaceAll(strings.TrimPrefix(stem, typePrefix), "-", "")
			if len(stemFlat) < minLevenshteinLength {
				continue
			}
			if levenshtein(candFlat, stemFlat) <= maxLevenshteinDistance {
				return stem
			}
		}
	}

	return ""
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming formulation.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, minInt(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// normalizeForCompare reduces text for duplicate comparison: lowercase,
// punctuation stripped, whitespace collapsed.
func normalizeForCompare(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = slugRegex.ReplaceAllString(text, "")
	return multiSpaceRegex.ReplaceAllString(text, " ")
}
