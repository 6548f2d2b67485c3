// Package flusher periodically snapshots the aggregator and ships the two
// export payloads upstream.
package flusher

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/p-datadog/libdatadog/internal/service"
)

// Config carries the upstream endpoints and the flush schedule.
type Config struct {
	// SeriesURL receives the JSON-encoded series payload; empty disables it
	SeriesURL string

	// SketchURL receives the JSON-encoded sketch payload; empty disables it
	SketchURL string

	// APIKey, when set, is sent as the DD-Api-Key header
	APIKey string

	// Interval is the time between flushes
	Interval time.Duration
}

// Flusher drains the aggregator on a fixed schedule.
type Flusher struct {
	service *service.MetricsService
	client  *http.Client
	config  Config
	logger  *zap.SugaredLogger

	// retryDelays paces the retry attempts after a retryable failure
	retryDelays []time.Duration
}

func New(metricService *service.MetricsService, config Config, logger *zap.SugaredLogger) *Flusher {
	return &Flusher{
		service:     metricService,
		client:      &http.Client{Timeout: 10 * time.Second},
		config:      config,
		logger:      logger,
		retryDelays: []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
	}
}

// Run flushes on every tick until the context is cancelled, then performs
// one final flush so accumulated metrics are not lost on shutdown.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := f.Flush(ctx); err != nil {
				f.logger.Errorf("flush failed: %v", err)
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := f.Flush(flushCtx); err != nil {
				f.logger.Errorf("final flush failed: %v", err)
			}
			return
		}
	}
}

// Flush drains the aggregator in one atomic step, renders both export
// views from the drained snapshot and ships them. Metrics inserted while a
// payload is in flight land in the emptied aggregator and go out with the
// next flush. On a shipping failure the snapshot is merged back, so a flush
// that fails after the series went out may resend them next time.
func (f *Flusher) Flush(ctx context.Context) error {
	snapshot := f.service.Drain()
	if snapshot.Len() == 0 {
		return nil
	}

	series := snapshot.Series()
	sketches, err := snapshot.SketchPayload()
	if err != nil {
		f.service.Restore(snapshot)
		return fmt.Errorf("rendering sketches: %w", err)
	}

	if f.config.SeriesURL != "" && len(series) > 0 {
		body, err := json.Marshal(series)
		if err != nil {
			f.service.Restore(snapshot)
			return fmt.Errorf("encoding series: %w", err)
		}
		if err := f.send(ctx, f.config.SeriesURL, body); err != nil {
			f.service.Restore(snapshot)
			return fmt.Errorf("shipping series: %w", err)
		}
		f.logger.Infow("shipped series", "count", len(series))
	}

	if f.config.SketchURL != "" && len(sketches.Sketches) > 0 {
		body, err := json.Marshal(sketches)
		if err != nil {
			f.service.Restore(snapshot)
			return fmt.Errorf("encoding sketches: %w", err)
		}
		if err := f.send(ctx, f.config.SketchURL, body); err != nil {
			f.service.Restore(snapshot)
			return fmt.Errorf("shipping sketches: %w", err)
		}
		f.logger.Infow("shipped sketches", "count", len(sketches.Sketches))
	}

	return nil
}

// send posts one gzip-compressed payload, retrying transient failures with
// a bounded backoff schedule.
func (f *Flusher) send(ctx context.Context, url string, body []byte) error {
	var compressed bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressed)
	if _, err := gzipWriter.Write(body); err != nil {
		return fmt.Errorf("error compressing data: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("error closing gzip writer: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= len(f.retryDelays); attempt++ {
		if attempt > 0 {
			delay := f.retryDelays[attempt-1]
			f.logger.Infof("retry attempt %d after %v delay", attempt, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(compressed.Bytes()))
		if err != nil {
			return fmt.Errorf("error creating request for %s: %w", url, err)
		}
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("Content-Encoding", "gzip")
		if f.config.APIKey != "" {
			request.Header.Set("DD-Api-Key", f.config.APIKey)
		}

		response, err := f.client.Do(request)
		if err != nil {
			lastErr = fmt.Errorf("error sending request for %s: %w", url, err)
			if isRetryableError(err) {
				continue
			}
			return lastErr
		}

		respBody, err := io.ReadAll(response.Body)
		response.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("error reading response body: %w", err)
			continue
		}

		if response.StatusCode >= 200 && response.StatusCode < 300 {
			return nil
		}

		lastErr = fmt.Errorf("server returned error status %d: %s", response.StatusCode, string(respBody))
		// Retry 5xx, give up on anything else
		if response.StatusCode >= 500 && response.StatusCode < 600 {
			continue
		}
		return lastErr
	}

	return fmt.Errorf("failed to send payload after %d attempts: %w", len(f.retryDelays)+1, lastErr)
}

func isRetryableError(err error) bool {
	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "connection reset by peer")
}
