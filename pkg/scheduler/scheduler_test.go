// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMaintainer struct {
	consolidations atomic.Int32
	flushes        atomic.Int32
}

func (m *fakeMaintainer) Consolidate(context.Context) { m.consolidations.Add(1) }

func (m *fakeMaintainer) FlushAccessTracking() int {
	m.flushes.Add(1)
	return 0
}

func TestRunMaintenance_FlushesThenConsolidates(t *testing.T) {
	m := &fakeMaintainer{}
	s := NewScheduler(m, 60)
	s.runMaintenance()

	assert.Equal(t, int32(1), m.flushes.Load())
	assert.Equal(t, int32(1), m.consolidations.Load())
}

func TestScheduler_TicksUntilStopped(t *testing.T) {
	m := &fakeMaintainer{}
	s := &Scheduler{
		maintainer: m,
		interval:   10 * time.Millisecond,
		stopChan:   make(chan bool),
	}
	s.Start()

	require.Eventually(t, func() bool {
		return m.consolidations.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	s.Stop()
	after := m.consolidations.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, m.consolidations.Load())
}

func TestNewScheduler_Interval(t *testing.T) {
	s := NewScheduler(&fakeMaintainer{}, 15)
	assert.Equal(t, 15*time.Minute, s.interval)
}
