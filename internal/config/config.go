package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
)

type AgentConfig struct {
	Host              string
	Port              int
	DefaultTags       []string
	Capacity          int
	FlushInterval     int
	SeriesURL         string
	SketchURL         string
	APIKey            string
	OpsAddress        string
	AuditFile         string
	ScaleSampleRates  bool
	TelemetryInterval int
}

func NewAgentConfig() (*AgentConfig, error) {
	config := &AgentConfig{
		Host:              DefaultHost,
		Port:              DefaultPort,
		Capacity:          DefaultCapacity,
		FlushInterval:     DefaultFlushInterval,
		TelemetryInterval: DefaultTelemetryInterval,
		OpsAddress:        DefaultOpsAddress,
	}

	host := flag.String("host", config.Host, "bind address for the statsd listener")
	port := flag.Int("port", config.Port, "bind port for the statsd listener")
	defaultTags := flag.String("tags", "", "comma-separated tags added to every exported series and sketch")
	capacity := flag.Int("capacity", config.Capacity, "maximum number of distinct metric contexts")
	flushInterval := flag.Int("flush-interval", config.FlushInterval, "seconds between upstream flushes")
	seriesURL := flag.String("series-url", "", "upstream endpoint for series payloads, empty disables flushing")
	sketchURL := flag.String("sketch-url", "", "upstream endpoint for sketch payloads, empty disables flushing")
	apiKey := flag.String("api-key", "", "api key sent with upstream payloads")
	opsAddress := flag.String("ops-address", config.OpsAddress, "bind address for the operational http server")
	auditFile := flag.String("audit-file", "", "path for drop diagnostics, empty disables the file subscriber")
	scaleSampleRates := flag.Bool("scale-sample-rates", false, "divide sampled counter values by their sample rate")
	telemetryInterval := flag.Int("telemetry-interval", config.TelemetryInterval, "seconds between self-telemetry collections")
	flag.Parse()

	envVars := map[string]*string{
		"DSD_HOST":       host,
		"DSD_TAGS":       defaultTags,
		"DSD_SERIES_URL": seriesURL,
		"DSD_SKETCH_URL": sketchURL,
		"DSD_API_KEY":    apiKey,
		"DSD_OPS_ADDR":   opsAddress,
		"DSD_AUDIT_FILE": auditFile,
	}

	for envVar, flag := range envVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	envInts := map[string]*int{
		"DSD_PORT":               port,
		"DSD_CAPACITY":           capacity,
		"DSD_FLUSH_INTERVAL":     flushInterval,
		"DSD_TELEMETRY_INTERVAL": telemetryInterval,
	}

	for envVar, flag := range envInts {
		if envValue := os.Getenv(envVar); envValue != "" {
			value, err := strconv.Atoi(envValue)
			if err != nil {
				return nil, err
			}
			*flag = value
		}
	}

	if envScale := os.Getenv("DSD_SCALE_SAMPLE_RATES"); envScale != "" {
		scale, err := strconv.ParseBool(envScale)
		if err != nil {
			return nil, err
		}
		*scaleSampleRates = scale
	}

	config.Host = *host
	config.Port = *port
	config.DefaultTags = SplitTags(*defaultTags)
	config.Capacity = *capacity
	config.FlushInterval = *flushInterval
	config.SeriesURL = *seriesURL
	config.SketchURL = *sketchURL
	config.APIKey = *apiKey
	config.OpsAddress = *opsAddress
	config.AuditFile = *auditFile
	config.ScaleSampleRates = *scaleSampleRates
	config.TelemetryInterval = *telemetryInterval

	return config, nil
}

// SplitTags splits a comma-separated tag list, dropping empty elements.
func SplitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	var result []string
	for _, tag := range strings.Split(tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			result = append(result, tag)
		}
	}
	return result
}
