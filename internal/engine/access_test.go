// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muninnlabs/muninn/internal/record"
)

func TestAccessTracker_TrackAndFlush(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	id, err := store.WriteRecord(record.CategoryFact, "Prefers tabs over spaces", record.WriteOptions{})
	require.NoError(t, err)

	tracker := newAccessTracker(store, 50)
	now := time.Now().UTC()

	tracker.Track(id, now)
	tracker.Track(id, now.Add(time.Minute))
	tracker.Track("", now) // ignored
	assert.Equal(t, 1, tracker.Len())

	assert.Equal(t, 1, tracker.Flush())
	assert.Zero(t, tracker.Len())

	rec, err := store.GetByID(id)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 2, rec.AccessCount)
	require.NotNil(t, rec.LastAccessed)
	assert.WithinDuration(t, now.Add(time.Minute), *rec.LastAccessed, time.Second)
}

func TestAccessTracker_FlushEmptyIsZero(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	tracker := newAccessTracker(store, 50)
	assert.Zero(t, tracker.Flush())
}

func TestAccessTracker_MissingRecordDropped(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	tracker := newAccessTracker(store, 50)

	tracker.Track("fact-20260101T000000-deadbeef", time.Now())
	assert.Equal(t, 1, tracker.Len())

	// The miss is skipped but the buffer still clears.
	assert.Zero(t, tracker.Flush())
	assert.Zero(t, tracker.Len())
}

func TestAccessTracker_ThresholdFlushesInline(t *testing.T) {
	store, err := record.New(t.TempDir())
	require.NoError(t, err)
	id1, err := store.WriteRecord(record.CategoryFact, "Runs a homelab", record.WriteOptions{})
	require.NoError(t, err)
	id2, err := store.WriteRecord(record.CategoryFact, "Allergic to peanuts", record.WriteOptions{})
	require.NoError(t, err)

	tracker := newAccessTracker(store, 2)
	now := time.Now().UTC()
	tracker.Track(id1, now)
	assert.Equal(t, 1, tracker.Len())

	// Second distinct id reaches the threshold and flushes inline.
	tracker.Track(id2, now)
	assert.Zero(t, tracker.Len())

	rec, err := store.GetByID(id1)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AccessCount)
}
