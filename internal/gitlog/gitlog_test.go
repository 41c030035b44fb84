// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package gitlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenOrInit_CreatesRepository(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenOrInit(dir, "", "")
	require.NoError(t, err)
	require.NotNil(t, log)

	_, err = os.Stat(filepath.Join(dir, ".git"))
	assert.NoError(t, err)

	// Reopening finds the existing repository.
	again, err := OpenOrInit(dir, "tester", "tester@example.com")
	require.NoError(t, err)
	assert.NotNil(t, again)
}

func TestOpenOrInit_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "records")
	log, err := OpenOrInit(dir, "", "")
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestCommit_CleanWorktreeIsNoop(t *testing.T) {
	log, err := OpenOrInit(t.TempDir(), "", "")
	require.NoError(t, err)
	assert.NoError(t, log.Commit("nothing to see"))
}

func TestCommit_AndHistory(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenOrInit(dir, "tester", "tester@example.com")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fact.md"), []byte("lives in Oslo\n"), 0o644))
	require.NoError(t, log.Commit("extract: persisted 1 facts"))

	// A second commit with no changes adds nothing.
	require.NoError(t, log.Commit("consolidation pass"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fact.md"), []byte("moved to Bergen\n"), 0o644))
	require.NoError(t, log.Commit("supersede: fact-a replaced by fact-b"))

	commits, err := log.History(10)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "supersede: fact-a replaced by fact-b", commits[0].Message)
	assert.Equal(t, "extract: persisted 1 facts", commits[1].Message)
	assert.Equal(t, "tester", commits[0].Author.Name)
	assert.Equal(t, "tester@example.com", commits[0].Author.Email)
}

func TestHistory_RespectsMaxCount(t *testing.T) {
	dir := t.TempDir()
	log, err := OpenOrInit(dir, "", "")
	require.NoError(t, err)

	for _, name := range []string{"a.md", "b.md", "c.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
		require.NoError(t, log.Commit(name))
	}

	commits, err := log.History(2)
	require.NoError(t, err)
	assert.Len(t, commits, 2)
	assert.Equal(t, "c.md", commits[0].Message)
}

func TestHistory_NoCommits(t *testing.T) {
	log, err := OpenOrInit(t.TempDir(), "", "")
	require.NoError(t, err)
	_, err = log.History(5)
	assert.Error(t, err)
}

func TestMessageHelpers(t *testing.T) {
	assert.Equal(t, "supersede: fact-a replaced by fact-b", SupersedeMessage("fact-a", "fact-b"))
	assert.Equal(t, "extract: persisted 3 facts", ExtractionMessage(3))

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "consolidate: pass at 2026-08-30T12:00:00Z", ConsolidationMessage(at))
}
