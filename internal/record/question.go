// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package record

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// WriteQuestion persists a new open question.
func (s *Store) WriteQuestion(content string, priority float64) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("record: empty question")
	}
	q := &Question{
		ID:       NewQuestionID(),
		Created:  time.Now().UTC(),
		Priority: priority,
		Content:  content,
	}
	out, err := q.Serialize()
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, questionsDir, q.ID+".md")
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		return "", fmt.Errorf("failed to write question file: %w", err)
	}
	return q.ID, nil
}

// OpenQuestions returns unresolved questions sorted by priority descending.
func (s *Store) OpenQuestions() []*Question {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, questionsDir))
	if err != nil {
		return nil
	}
	var out []*Question
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, questionsDir, e.Name()))
		if err != nil {
			continue
		}
		q, err := ParseQuestion(string(data))
		if err != nil {
			slog.Debug("record: skipping unparsable question file", "name", e.Name(), "err", err)
			continue
		}
		if !q.Resolved {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// TopOpenQuestion returns the single highest-priority open question, or nil.
func (s *Store) TopOpenQuestion() *Question {
	open := s.OpenQuestions()
	if len(open) == 0 {
		return nil
	}
	return open[0]
}

// ResolveQuestion marks a question resolved. Returns false when the id is
// unknown.
func (s *Store) ResolveQuestion(id string) bool {
	path := filepath.Join(s.baseDir, questionsDir, id+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	q, err := ParseQuestion(string(data))
	if err != nil {
		return false
	}
	q.Resolved = true
	out, err := q.Serialize()
	if err != nil {
		return false
	}
	return os.WriteFile(path, []byte(out), 0o600) == nil
}

// WriteSummary persists a periodic summary record.
func (s *Store) WriteSummary(sum *Summary) (string, error) {
	if sum.ID == "" {
		sum.ID = NewSummaryID()
	}
	if sum.Created.IsZero() {
		sum.Created = time.Now().UTC()
	}
	out, err := sum.Serialize()
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, summariesDir, sum.ID+".md")
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return sum.ID, nil
}

// RecentSummaries returns the n newest summaries, newest first.
func (s *Store) RecentSummaries(n int) []*Summary {
	entries, err := os.ReadDir(filepath.Join(s.baseDir, summariesDir))
	if err != nil {
		return nil
	}
	var out []*Summary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, summariesDir, e.Name()))
		if err != nil {
			continue
		}
		sum, err := ParseSummary(string(data))
		if err != nil {
			slog.Debug("record: skipping unparsable summary file", "name", e.Name(), "err", err)
			continue
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
