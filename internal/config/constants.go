// Package config provides configuration for the dogstatsd agent.
package config

const (
	// DefaultHost is the address the datagram listener binds to.
	DefaultHost = "localhost"

	// DefaultPort is the statsd port the datagram listener binds to.
	DefaultPort = 8125

	// DefaultCapacity is the maximum number of distinct metric contexts the
	// aggregator tracks before inserts for new identities are refused.
	DefaultCapacity = 1024

	// DefaultFlushInterval is the number of seconds between upstream flushes.
	DefaultFlushInterval = 10

	// DefaultTelemetryInterval is the number of seconds between
	// self-telemetry collections.
	DefaultTelemetryInterval = 30

	// DefaultOpsAddress is the bind address of the operational HTTP server.
	DefaultOpsAddress = "localhost:8126"
)
