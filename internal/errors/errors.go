package errors

import "errors"

var (
	// Parse errors
	ErrMalformedLine      = errors.New("malformed metric line")
	ErrUnknownMetricType  = errors.New("unknown metric type")
	ErrInvalidMetricValue = errors.New("invalid metric value")
	ErrInvalidSampleRate  = errors.New("invalid sample rate")

	// Aggregator errors
	ErrAggregatorFull     = errors.New("aggregator context cap reached")
	ErrInvalidCapacity    = errors.New("aggregator capacity must be positive")
	ErrInvalidTag         = errors.New("tag must be of the form key:value")
	ErrMetricKindMismatch = errors.New("metric kind conflicts with tracked entry")

	// Datagram errors
	ErrInvalidUTF8 = errors.New("datagram payload is not valid utf-8")
)
