// Package telemetry feeds gauges about the agent process and its host into
// the shared aggregator on a fixed schedule.
package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"go.uber.org/zap"

	models "github.com/p-datadog/libdatadog/internal/model"
	"github.com/p-datadog/libdatadog/internal/service"
)

// Collector periodically inserts self-telemetry through the same insert
// path as wire metrics, so the values show up in regular flushes.
type Collector struct {
	service  *service.MetricsService
	interval time.Duration
	logger   *zap.SugaredLogger
}

func New(metricService *service.MetricsService, interval time.Duration, logger *zap.SugaredLogger) *Collector {
	return &Collector{
		service:  metricService,
		interval: interval,
		logger:   logger,
	}
}

// Run collects on every tick until the context is cancelled.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Collect()
		case <-ctx.Done():
			return
		}
	}
}

// Collect gathers one round of runtime and host gauges and inserts them.
func (c *Collector) Collect() {
	metrics := collectRuntimeMetrics()
	metrics = append(metrics, c.collectSystemMetrics()...)

	for _, err := range c.service.InsertBatch(metrics) {
		c.logger.Warnf("dropping telemetry metric: %v", err)
	}
}

func collectRuntimeMetrics() []models.Metric {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return []models.Metric{
		{Name: "dogstatsd.go.alloc_bytes", Kind: models.Gauge, Value: float64(memStats.Alloc)},
		{Name: "dogstatsd.go.heap_alloc_bytes", Kind: models.Gauge, Value: float64(memStats.HeapAlloc)},
		{Name: "dogstatsd.go.sys_bytes", Kind: models.Gauge, Value: float64(memStats.Sys)},
		{Name: "dogstatsd.go.num_gc", Kind: models.Gauge, Value: float64(memStats.NumGC)},
		{Name: "dogstatsd.go.goroutines", Kind: models.Gauge, Value: float64(runtime.NumGoroutine())},
	}
}

func (c *Collector) collectSystemMetrics() []models.Metric {
	var metrics []models.Metric

	memory, err := mem.VirtualMemory()
	if err != nil {
		c.logger.Warnf("error getting memory stats %v", err)
	} else {
		metrics = append(metrics,
			models.Metric{Name: "dogstatsd.system.memory_total", Kind: models.Gauge, Value: float64(memory.Total)},
			models.Metric{Name: "dogstatsd.system.memory_free", Kind: models.Gauge, Value: float64(memory.Free)},
		)
	}

	// Zero interval reports utilization since the previous call
	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		c.logger.Warnf("error getting cpu info %v", err)
	} else if len(cpuPercents) > 0 {
		metrics = append(metrics, models.Metric{
			Name: "dogstatsd.system.cpu_utilization", Kind: models.Gauge, Value: cpuPercents[0],
		})
	}

	return metrics
}
