// Package models defines the data structures shared by the dogstatsd pipeline.
package models

import "strings"

const (
	// Counter metrics sum every observed value since the last reset.
	Counter = "counter"

	// Gauge metrics keep only the last observed value.
	Gauge = "gauge"

	// Distribution metrics feed every observed value into a quantile sketch.
	Distribution = "distribution"
)

// EmptyTags is the tag set of a metric observed without a tag suffix.
var EmptyTags []string

// Metric represents a single parsed statsd observation.
type Metric struct {
	// Name is the metric name as it appeared on the wire
	Name string

	// Kind is one of Counter, Gauge or Distribution
	Kind string

	// Value is the observed value
	Value float64

	// Tags holds the key:value tag strings in their original wire order
	Tags []string
}

// Identity returns the aggregation key of the metric.
//
// Two observations merge into the same aggregation entry exactly when their
// identities are equal. Tag order is part of the identity; the wire source
// never reorders tags, so equal tag sets arrive in equal order.
func (m Metric) Identity() string {
	return m.Name + "|" + strings.Join(m.Tags, ",")
}

// Serie is the flat export shape of one counter or gauge entry.
type Serie struct {
	// Name is the metric name
	Name string `json:"metric"`

	// Value is the accumulated scalar value
	Value float64 `json:"value"`

	// Tags is the comma-joined tag string, default tags first
	Tags string `json:"tags"`
}

// SketchEntry is the export shape of one distribution entry.
type SketchEntry struct {
	// Name is the metric name
	Name string `json:"metric"`

	// Tags is the comma-joined tag string, default tags first
	Tags string `json:"tags"`

	// Sketch is the protobuf encoding of the accumulated DDSketch
	Sketch []byte `json:"sketch"`
}

// SketchPayload carries every distribution entry of one export snapshot.
type SketchPayload struct {
	Sketches []SketchEntry `json:"sketches"`
}

// DropEvent records one discarded observation for the diagnostics sink.
type DropEvent struct {
	// TS is the timestamp of the drop in ISO 8601 format
	TS string `json:"ts"`

	// Origin is the source address of the datagram
	Origin string `json:"origin"`

	// Line is the offending line, or empty when a whole datagram dropped
	Line string `json:"line,omitempty"`

	// Reason describes why the observation was discarded
	Reason string `json:"reason"`
}

// JoinTags concatenates default tags and observation tags into the exported
// tag string, preserving order within each group.
func JoinTags(defaultTags, tags []string) string {
	if len(defaultTags) == 0 {
		return strings.Join(tags, ",")
	}
	if len(tags) == 0 {
		return strings.Join(defaultTags, ",")
	}
	return strings.Join(defaultTags, ",") + "," + strings.Join(tags, ",")
}
