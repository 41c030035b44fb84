// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector provides Prometheus metrics collection for engine
// operations: recall latency, extraction queue depth, index client failures.
type PrometheusCollector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	queueDepth        *prometheus.GaugeVec
	storageCount      *prometheus.GaugeVec
	registry          *prometheus.Registry
}

// NewPrometheusCollector creates a Prometheus-backed collector with its own
// registry.
func NewPrometheusCollector() *PrometheusCollector {
	registry := prometheus.NewRegistry()

	operationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muninn_operations_total",
			Help: "Total number of memory engine operations by type and status",
		},
		[]string{"operation", "status"},
	)

	operationDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "muninn_operation_duration_seconds",
			Help:    "Duration of memory engine operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muninn_errors_total",
			Help: "Total number of errors by operation and error type",
		},
		[]string{"operation", "error_type"},
	)

	queueDepth := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "muninn_queue_depth",
			Help: "Current depth of background work queues",
		},
		[]string{"queue"},
	)

	storageCount := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "muninn_storage_count",
			Help: "Current count of stored items by type",
		},
		[]string{"type"},
	)

	registry.MustRegister(operationsTotal)
	registry.MustRegister(operationDuration)
	registry.MustRegister(errorsTotal)
	registry.MustRegister(queueDepth)
	registry.MustRegister(storageCount)

	return &PrometheusCollector{
		operationsTotal:   operationsTotal,
		operationDuration: operationDuration,
		errorsTotal:       errorsTotal,
		queueDepth:        queueDepth,
		storageCount:      storageCount,
		registry:          registry,
	}
}

// RecordOperation records the completion of an operation
func (m *PrometheusCollector) RecordOperation(ctx context.Context, operation string, status string, durationMs int64) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(float64(durationMs) / 1000.0)
}

// RecordError records an error occurrence
func (m *PrometheusCollector) RecordError(ctx context.Context, operation string, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetQueueDepth sets the current depth of a background queue
func (m *PrometheusCollector) SetQueueDepth(ctx context.Context, queue string, depth int64) {
	m.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// SetStorageCount sets the current count for a storage type
func (m *PrometheusCollector) SetStorageCount(ctx context.Context, storageType string, count int64) {
	m.storageCount.WithLabelValues(storageType).Set(float64(count))
}

// Registry returns the Prometheus registry for HTTP exposure
func (m *PrometheusCollector) Registry() *prometheus.Registry {
	return m.registry
}
