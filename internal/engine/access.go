// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/muninnlabs/muninn/internal/record"
)

// accessEntry accumulates recall hits for one record between flushes.
type accessEntry struct {
	count        int
	lastAccessed time.Time
}

// accessTracker batches "this record was surfaced" writes so recall never
// pays for synchronous header rewrites. Counts merge with the on-disk
// values at flush time rather than overwriting them.
type accessTracker struct {
	store     *record.Store
	threshold int

	mu      sync.Mutex
	entries map[string]accessEntry
}

func newAccessTracker(store *record.Store, threshold int) *accessTracker {
	return &accessTracker{
		store:     store,
		threshold: threshold,
		entries:   make(map[string]accessEntry),
	}
}

// Track records one access. When the buffer crosses the size threshold it
// flushes inline; recall paths call this after assembling their response,
// so the occasional flush cost lands off the critical path.
func (t *accessTracker) Track(id string, at time.Time) {
	if id == "" {
		return
	}
	t.mu.Lock()
	entry := t.entries[id]
	entry.count++
	if at.After(entry.lastAccessed) {
		entry.lastAccessed = at
	}
	t.entries[id] = entry
	over := len(t.entries) >= t.threshold
	t.mu.Unlock()

	if over {
		t.Flush()
	}
}

// Len reports the number of distinct buffered ids.
func (t *accessTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Flush merges the buffered counts into the record headers. Misses (record
// deleted since it was accessed) are skipped; the buffer is always cleared
// so a bad id cannot pin the tracker.
func (t *accessTracker) Flush() int {
	t.mu.Lock()
	if len(t.entries) == 0 {
		t.mu.Unlock()
		return 0
	}
	batch := t.entries
	t.entries = make(map[string]accessEntry)
	t.mu.Unlock()

	flushed := 0
	for id, entry := range batch {
		if t.store.RecordAccess(id, entry.count, entry.lastAccessed) {
			flushed++
		} else {
			slog.Debug("engine: dropped access entry for missing record", "id", id)
		}
	}
	return flushed
}
