// Package libdatadog implements a dogstatsd ingestion and aggregation agent.
//
// The agent listens for statsd text datagrams over UDP, parses them into
// typed observations and aggregates them in bounded memory:
//   - Counter: sums every observed value since the last flush
//   - Gauge: keeps the last observed value
//   - Distribution: feeds every value into a DDSketch quantile sketch
//
// Aggregated state is exposed in two shapes: a flat series snapshot for
// counters and gauges, and a sketch payload with protobuf-encoded sketches
// for distributions. A periodic flusher ships both payloads upstream over
// HTTP with gzip compression and bounded retry.
//
// Features:
//   - Permissive statsd line grammar with sample-rate and tag suffixes
//   - Service-check and event frames filtered before parsing
//   - Hard capacity ceiling on distinct metric identities
//   - Drop diagnostics fanned out to log and file subscribers
//   - Read-only operational HTTP endpoints for health and snapshots
//   - Self-telemetry gauges about the agent process and its host
//   - Graceful shutdown with a final flush
//
// The agent is configured via command-line flags and environment
// variables.
package libdatadog
