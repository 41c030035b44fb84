// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package metrics

import "context"

// NoopCollector discards every observation. It is the default when no
// metrics endpoint is configured.
type NoopCollector struct{}

// NewNoopCollector creates a no-op collector
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordOperation does nothing
func (n *NoopCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
}

// RecordError does nothing
func (n *NoopCollector) RecordError(ctx context.Context, operation string, errorType string) {
}

// SetQueueDepth does nothing
func (n *NoopCollector) SetQueueDepth(ctx context.Context, queue string, depth int64) {
}

// SetStorageCount does nothing
func (n *NoopCollector) SetStorageCount(ctx context.Context, storageType string, count int64) {
}
