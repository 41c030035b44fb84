// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Maintainer is the set of background passes the scheduler drives.
type Maintainer interface {
	Consolidate(ctx context.Context)
	FlushAccessTracking() int
}

// Scheduler handles periodic memory maintenance
type Scheduler struct {
	maintainer Maintainer
	interval   time.Duration
	stopChan   chan bool
}

// NewScheduler creates a new scheduler
func NewScheduler(m Maintainer, intervalMinutes int) *Scheduler {
	return &Scheduler{
		maintainer: m,
		interval:   time.Duration(intervalMinutes) * time.Minute,
		stopChan:   make(chan bool),
	}
}

// Start begins the scheduler
func (s *Scheduler) Start() {
	ticker := time.NewTicker(s.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				s.runMaintenance()
			case <-s.stopChan:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopChan <- true
}

// runMaintenance flushes access tracking and runs one consolidation pass
func (s *Scheduler) runMaintenance() {
	slog.Debug("scheduler: maintenance tick")
	s.maintainer.FlushAccessTracking()
	s.maintainer.Consolidate(context.Background())
}
