// Package service provides the access layer over the aggregator shared by
// the ingestion loop, the flusher and the operational HTTP surface.
package service

import (
	"github.com/p-datadog/libdatadog/internal/aggregator"
	models "github.com/p-datadog/libdatadog/internal/model"
)

// MetricsService wraps the aggregator behind the operations its consumers
// need, keeping the locking discipline inside the aggregator itself.
type MetricsService struct {
	// aggregator is the shared bounded store
	aggregator *aggregator.Aggregator
}

// NewMetricsService creates a new MetricsService over the given aggregator.
func NewMetricsService(agg *aggregator.Aggregator) *MetricsService {

	return &MetricsService{aggregator: agg}
}

// InsertBatch merges a batch of parsed metrics under one lock acquisition,
// delegating to the aggregator. The returned errors identify the dropped
// observations; the caller logs them.
func (ms *MetricsService) InsertBatch(metrics []models.Metric) []error {

	return ms.aggregator.InsertBatch(metrics)
}

// Insert merges a single metric, delegating to the aggregator.
func (ms *MetricsService) Insert(metric models.Metric) error {

	return ms.aggregator.Insert(metric)
}

// Series snapshots all counter and gauge entries, delegating to the
// aggregator.
func (ms *MetricsService) Series() []models.Serie {

	return ms.aggregator.ToSeries()
}

// SketchPayload snapshots all distribution entries, delegating to the
// aggregator.
func (ms *MetricsService) SketchPayload() (models.SketchPayload, error) {

	return ms.aggregator.ToSketchPayload()
}

// Drain atomically takes every accumulated entry out of the aggregator so
// a flush never loses metrics inserted while a payload is being shipped.
func (ms *MetricsService) Drain() *aggregator.Snapshot {

	return ms.aggregator.Drain()
}

// Restore merges a drained snapshot back into the aggregator after a
// failed flush.
func (ms *MetricsService) Restore(snapshot *aggregator.Snapshot) {

	ms.aggregator.Restore(snapshot)
}

// Len reports the number of tracked metric identities.
func (ms *MetricsService) Len() int {

	return ms.aggregator.Len()
}

// Clear drops all accumulated entries.
func (ms *MetricsService) Clear() {

	ms.aggregator.Clear()
}
