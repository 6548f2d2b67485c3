package libdatadog_test

import (
	"fmt"
	"testing"

	"github.com/p-datadog/libdatadog/internal/aggregator"
	models "github.com/p-datadog/libdatadog/internal/model"
	"github.com/p-datadog/libdatadog/internal/parser"
	"github.com/p-datadog/libdatadog/internal/service"
)

// Example of parsing statsd lines and aggregating them through the service layer
func Example_parseAndAggregate() {
	agg, err := aggregator.New(models.EmptyTags, 1024)
	if err != nil {
		fmt.Printf("Error creating aggregator: %v\n", err)
		return
	}
	metricService := service.NewMetricsService(agg)

	lineParser := parser.New(false)
	for _, line := range parser.SplitLines("requests:1|c|#route:index\nrequests:2|c|#route:index\n") {
		metric, err := lineParser.Parse(line)
		if err != nil {
			fmt.Printf("Error parsing line: %v\n", err)
			return
		}
		if err := metricService.Insert(metric); err != nil {
			fmt.Printf("Error inserting metric: %v\n", err)
			return
		}
	}

	for _, serie := range metricService.Series() {
		fmt.Printf("%s{%s} = %v\n", serie.Name, serie.Tags, serie.Value)
	}
	// Output: requests{route:index} = 3
}

// Example of the three metric kinds and their merge disciplines
func Example_metricKinds() {
	agg, err := aggregator.New(models.EmptyTags, 1024)
	if err != nil {
		fmt.Printf("Error creating aggregator: %v\n", err)
		return
	}

	// Counters sum, gauges replace
	agg.Insert(models.Metric{Name: "hits", Kind: models.Counter, Value: 1})
	agg.Insert(models.Metric{Name: "hits", Kind: models.Counter, Value: 2})
	agg.Insert(models.Metric{Name: "temp", Kind: models.Gauge, Value: 20.0})
	agg.Insert(models.Metric{Name: "temp", Kind: models.Gauge, Value: 19.5})

	for _, serie := range agg.ToSeries() {
		fmt.Printf("%s = %v\n", serie.Name, serie.Value)
	}
	// Output:
	// hits = 3
	// temp = 19.5
}

// Simple test to demonstrate basic functionality
func TestExampleBasic(t *testing.T) {
	agg, err := aggregator.New(models.EmptyTags, 16)
	if err != nil {
		t.Fatalf("Failed to create aggregator: %v", err)
	}
	metricService := service.NewMetricsService(agg)

	lineParser := parser.New(false)
	metric, err := lineParser.Parse("latency:42.5|d|#service:api")
	if err != nil {
		t.Fatalf("Failed to parse line: %v", err)
	}
	if err := metricService.Insert(metric); err != nil {
		t.Fatalf("Failed to insert metric: %v", err)
	}

	payload, err := metricService.SketchPayload()
	if err != nil {
		t.Fatalf("Failed to snapshot sketches: %v", err)
	}
	if len(payload.Sketches) != 1 {
		t.Errorf("Expected 1 sketch, got %d", len(payload.Sketches))
	}
}
