// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package gitlog keeps the record directory under git so every
// status-changing pass leaves an auditable commit. Failures here are
// logged and swallowed; memory must keep working without the audit trail.
package gitlog

import (
	"fmt"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Log wraps a go-git repository rooted at the record directory.
type Log struct {
	path   string
	repo   *git.Repository
	author string
	email  string
}

// OpenOrInit opens the record directory as a git repository, initializing
// one on first use.
func OpenOrInit(path, author, email string) (*Log, error) {
	if author == "" {
		author = "muninn"
	}
	if email == "" {
		email = "muninn@localhost"
	}

	repo, err := git.PlainOpen(path)
	if err == git.ErrRepositoryNotExists {
		if mkErr := os.MkdirAll(path, 0755); mkErr != nil {
			return nil, fmt.Errorf("failed to create record directory: %w", mkErr)
		}
		repo, err = git.PlainInit(path, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit repository: %w", err)
	}

	return &Log{path: path, repo: repo, author: author, email: email}, nil
}

// Commit stages everything under the record directory and commits it.
// A clean worktree is a no-op, not an error, so callers can commit after
// every pass without checking for changes first.
func (l *Log) Commit(message string) error {
	worktree, err := l.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("failed to stage changes: %w", err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	_, err = worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  l.author,
			Email: l.email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// History returns up to maxCount recent commits, newest first.
func (l *Log) History(maxCount int) ([]*object.Commit, error) {
	ref, err := l.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	iter, err := l.repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if maxCount > 0 && len(commits) >= maxCount {
			return fmt.Errorf("stop iteration")
		}
		commits = append(commits, c)
		return nil
	})
	if err != nil && err.Error() != "stop iteration" {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return commits, nil
}

// Messages for the standard audit events.
func SupersedeMessage(oldID, newID string) string {
	return fmt.Sprintf("supersede: %s replaced by %s", oldID, newID)
}

func ConsolidationMessage(at time.Time) string {
	return fmt.Sprintf("consolidate: pass at %s", at.UTC().Format(time.RFC3339))
}

func ExtractionMessage(facts int) string {
	return fmt.Sprintf("extract: persisted %d facts", facts)
}
