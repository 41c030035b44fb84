// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package chunker splits long memory content into pieces small enough to
// store as individual chunk records under a parent while keeping sentence
// boundaries intact.
package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultMaxWords is the word budget per chunk. Word count is a rough
	// token proxy; nothing downstream needs exact tokenization.
	DefaultMaxWords = 400
	// DefaultOverlap carries trailing context into the next chunk so a
	// fact straddling a boundary stays searchable in both pieces.
	DefaultOverlap = 40
	// SplitThreshold is the content length (in words) above which a write
	// becomes a parent record with chunk children.
	SplitThreshold = 600
)

// Chunker splits prose into overlapping word-budgeted pieces.
type Chunker struct {
	MaxWords int
	Overlap  int
}

// ShouldSplit reports whether content is long enough to warrant chunking.
func ShouldSplit(content string) bool {
	return len(strings.Fields(content)) > SplitThreshold
}

// Split breaks content into chunk texts. Short content comes back as a
// single element; empty content comes back empty.
func (c *Chunker) Split(content string) []string {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	maxWords := c.MaxWords
	if maxWords <= 0 {
		maxWords = DefaultMaxWords
	}
	overlap := c.Overlap
	if overlap < 0 {
		overlap = 0
	} else if overlap == 0 {
		overlap = DefaultOverlap
	}
	if overlap >= maxWords {
		overlap = maxWords / 4
	}

	sentences := splitSentences(content)
	var (
		chunks  []string
		current []string
		words   int
	)
	for _, sentence := range sentences {
		n := wordCount(sentence)
		if words+n > maxWords && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			current = tailByWords(current, overlap)
			words = 0
			for _, s := range current {
				words += wordCount(s)
			}
		}
		current = append(current, sentence)
		words += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// splitSentences breaks text on ., ! and ? when followed by whitespace or
// end of input. Text with no terminators comes back whole.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(current.String()); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	if len(sentences) == 0 {
		if s := strings.TrimSpace(text); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// tailByWords returns the trailing sentences totalling at most budget
// words, always keeping at least the step back it started from.
func tailByWords(sentences []string, budget int) []string {
	if budget == 0 || len(sentences) == 0 {
		return nil
	}
	total := 0
	start := len(sentences)
	for i := len(sentences) - 1; i >= 0; i-- {
		n := wordCount(sentences[i])
		if total+n > budget && start != len(sentences) {
			break
		}
		total += n
		start = i
	}
	return append([]string(nil), sentences[start:]...)
}
