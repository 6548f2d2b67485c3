// Package parser implements the statsd wire grammar.
//
// One datagram carries one or more newline-delimited lines of the form
//
//	name:value|type[|@sample_rate][|#tag1:val1,tag2:val2]
//
// Service checks and events are valid statsd traffic but not metrics; they
// are filtered out before parsing so that they never show up as parse
// failures.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	internalerrors "github.com/p-datadog/libdatadog/internal/errors"
	models "github.com/p-datadog/libdatadog/internal/model"
)

const (
	serviceCheckPrefix = "_sc|"
	eventPrefix        = "_e{"
)

// SplitLines splits a datagram payload into candidate metric lines.
//
// Empty lines, service checks and events are dropped here, not reported as
// parse failures.
func SplitLines(payload string) []string {
	var lines []string
	for _, line := range strings.Split(payload, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, serviceCheckPrefix) || strings.HasPrefix(line, eventPrefix) {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// Parser turns single statsd lines into metrics.
type Parser struct {
	// ScaleSampleRates divides sampled counter values by their sample rate,
	// reconstructing the pre-sampling count. Off by default to match the
	// wire values as observed.
	ScaleSampleRates bool
}

func New(scaleSampleRates bool) *Parser {
	return &Parser{ScaleSampleRates: scaleSampleRates}
}

// Parse parses one line of the wire grammar into a Metric.
//
// Failures are typed: a missing value or name yields ErrMalformedLine, an
// unparsable value ErrInvalidMetricValue, an unknown type token
// ErrUnknownMetricType and a sample rate outside (0, 1]
// ErrInvalidSampleRate. A failed line never affects the rest of the batch.
func (p *Parser) Parse(line string) (models.Metric, error) {
	name, rest, found := strings.Cut(line, ":")
	if !found || name == "" {
		return models.Metric{}, fmt.Errorf("%w: %q", internalerrors.ErrMalformedLine, line)
	}

	fields := strings.Split(rest, "|")
	if len(fields) < 2 {
		return models.Metric{}, fmt.Errorf("%w: %q", internalerrors.ErrMalformedLine, line)
	}

	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return models.Metric{}, fmt.Errorf("%w: %q", internalerrors.ErrInvalidMetricValue, fields[0])
	}

	var kind string
	switch fields[1] {
	case "c":
		kind = models.Counter
	case "g":
		kind = models.Gauge
	case "d", "h", "ms":
		// Histograms and timers fold into distributions.
		kind = models.Distribution
	default:
		return models.Metric{}, fmt.Errorf("%w: %q", internalerrors.ErrUnknownMetricType, fields[1])
	}

	sampleRate := 1.0
	var tags []string
	for _, field := range fields[2:] {
		switch {
		case strings.HasPrefix(field, "@"):
			sampleRate, err = strconv.ParseFloat(field[1:], 64)
			if err != nil || sampleRate <= 0 || sampleRate > 1 {
				return models.Metric{}, fmt.Errorf("%w: %q", internalerrors.ErrInvalidSampleRate, field)
			}
		case strings.HasPrefix(field, "#"):
			tags = splitTagSuffix(field[1:])
		default:
			return models.Metric{}, fmt.Errorf("%w: unexpected field %q", internalerrors.ErrMalformedLine, field)
		}
	}

	if p.ScaleSampleRates && kind == models.Counter {
		value /= sampleRate
	}

	return models.Metric{Name: name, Kind: kind, Value: value, Tags: tags}, nil
}

func splitTagSuffix(suffix string) []string {
	if suffix == "" {
		return nil
	}
	return strings.Split(suffix, ",")
}
