// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package metrics

import "context"

// Collector is the interface for metrics collection. Implementations are
// the Prometheus-backed collector and the no-op collector used when the
// engine runs without an exposition endpoint.
type Collector interface {
	RecordOperation(ctx context.Context, operation string, status string, durationMs int64)
	RecordError(ctx context.Context, operation string, errorType string)
	SetQueueDepth(ctx context.Context, queue string, depth int64)
	SetStorageCount(ctx context.Context, storageType string, count int64)
}
