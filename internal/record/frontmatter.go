// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterDelimiter = "---"

// Parse parses a record file: a YAML frontmatter block followed by a blank
// line and free-form body text.
func Parse(content string) (*Record, error) {
	header, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}

	var rec Record
	if header != "" {
		if err := yaml.Unmarshal([]byte(header), &rec); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}
	rec.Content = strings.TrimSpace(body)

	if rec.Tier == "" && rec.Confidence > 0 {
		rec.Tier = TierForConfidence(rec.Confidence)
	}
	return &rec, nil
}

// Serialize renders a record back to its on-disk representation.
func (r *Record) Serialize() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter + "\n")

	header, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	buf.Write(header)
	buf.WriteString(frontmatterDelimiter + "\n\n")
	buf.WriteString(r.Content)
	buf.WriteString("\n")

	return buf.String(), nil
}

// ParseQuestion parses a question file.
func ParseQuestion(content string) (*Question, error) {
	header, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}
	var q Question
	if header != "" {
		if err := yaml.Unmarshal([]byte(header), &q); err != nil {
			return nil, fmt.Errorf("failed to parse question frontmatter: %w", err)
		}
	}
	q.Content = strings.TrimSpace(body)
	return &q, nil
}

// Serialize renders a question back to its on-disk representation.
func (q *Question) Serialize() (string, error) {
	return serializeWithBody(q, q.Content)
}

// ParseSummary parses a summary file.
func ParseSummary(content string) (*Summary, error) {
	header, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, fmt.Errorf("failed to split frontmatter: %w", err)
	}
	var s Summary
	if header != "" {
		if err := yaml.Unmarshal([]byte(header), &s); err != nil {
			return nil, fmt.Errorf("failed to parse summary frontmatter: %w", err)
		}
	}
	s.Content = strings.TrimSpace(body)
	return &s, nil
}

// Serialize renders a summary back to its on-disk representation.
func (s *Summary) Serialize() (string, error) {
	return serializeWithBody(s, s.Content)
}

func serializeWithBody(header any, body string) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(frontmatterDelimiter + "\n")

	out, err := yaml.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("failed to marshal frontmatter: %w", err)
	}
	buf.Write(out)
	buf.WriteString(frontmatterDelimiter + "\n\n")
	buf.WriteString(body)
	buf.WriteString("\n")

	return buf.String(), nil
}

// splitFrontmatter splits file content into the frontmatter block and body.
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, frontmatterDelimiter) {
		return "", content, nil
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 3 {
		return "", content, nil
	}

	closingIndex := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == frontmatterDelimiter {
			closingIndex = i
			break
		}
	}
	if closingIndex == -1 {
		return "", content, fmt.Errorf("frontmatter not properly closed")
	}

	header := strings.Join(lines[1:closingIndex], "\n")

	body := ""
	if closingIndex+1 < len(lines) {
		body = strings.Join(lines[closingIndex+1:], "\n")
	}

	return header, body, nil
}
