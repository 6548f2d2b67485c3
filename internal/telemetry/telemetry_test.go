package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/p-datadog/libdatadog/internal/aggregator"
	models "github.com/p-datadog/libdatadog/internal/model"
	"github.com/p-datadog/libdatadog/internal/service"
)

func TestCollect(t *testing.T) {
	agg, err := aggregator.New(models.EmptyTags, 64)
	require.NoError(t, err)
	metricService := service.NewMetricsService(agg)

	collector := New(metricService, time.Minute, zap.NewNop().Sugar())
	collector.Collect()

	series := metricService.Series()
	require.NotEmpty(t, series)

	names := make(map[string]float64)
	for _, serie := range series {
		names[serie.Name] = serie.Value
	}

	assert.Contains(t, names, "dogstatsd.go.alloc_bytes")
	assert.Contains(t, names, "dogstatsd.go.goroutines")
	assert.Greater(t, names["dogstatsd.go.alloc_bytes"], 0.0)
	assert.Greater(t, names["dogstatsd.go.goroutines"], 0.0)
}

func TestCollect_GaugesReplace(t *testing.T) {
	agg, err := aggregator.New(models.EmptyTags, 64)
	require.NoError(t, err)
	metricService := service.NewMetricsService(agg)

	collector := New(metricService, time.Minute, zap.NewNop().Sugar())

	// Two collections keep one entry per gauge
	collector.Collect()
	count := metricService.Len()
	collector.Collect()
	assert.Equal(t, count, metricService.Len())
}
