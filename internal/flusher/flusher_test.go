package flusher

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/p-datadog/libdatadog/internal/aggregator"
	models "github.com/p-datadog/libdatadog/internal/model"
	"github.com/p-datadog/libdatadog/internal/service"
)

func newFlusher(t *testing.T, config Config) (*Flusher, *service.MetricsService) {
	t.Helper()
	agg, err := aggregator.New(models.EmptyTags, 64)
	require.NoError(t, err)
	metricService := service.NewMetricsService(agg)
	f := New(metricService, config, zap.NewNop().Sugar())
	// Keep retries fast in tests
	f.retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return f, metricService
}

func decodeGzipJSON(t *testing.T, r *http.Request, v any) {
	t.Helper()
	assert.Equal(t, "gzip", r.Header.Get("Content-Encoding"))
	gzipReader, err := gzip.NewReader(r.Body)
	require.NoError(t, err)
	defer gzipReader.Close()
	require.NoError(t, json.NewDecoder(gzipReader).Decode(v))
}

func TestFlusher_ShipsSeriesAndClears(t *testing.T) {
	var received []models.Serie
	var apiKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("DD-Api-Key")
		decodeGzipJSON(t, r, &received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{
		SeriesURL: server.URL,
		APIKey:    "secret",
		Interval:  time.Second,
	})

	require.NoError(t, metricService.Insert(models.Metric{Name: "requests", Kind: models.Counter, Value: 3}))
	require.NoError(t, f.Flush(context.Background()))

	require.Len(t, received, 1)
	assert.Equal(t, "requests", received[0].Name)
	assert.Equal(t, 3.0, received[0].Value)
	assert.Equal(t, "secret", apiKey)

	// A successful flush resets the aggregator
	assert.Equal(t, 0, metricService.Len())
}

func TestFlusher_ShipsSketches(t *testing.T) {
	var received models.SketchPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeGzipJSON(t, r, &received)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{
		SketchURL: server.URL,
		Interval:  time.Second,
	})

	require.NoError(t, metricService.Insert(models.Metric{Name: "latency", Kind: models.Distribution, Value: 42.5}))
	require.NoError(t, f.Flush(context.Background()))

	require.Len(t, received.Sketches, 1)
	assert.Equal(t, "latency", received.Sketches[0].Name)
	assert.NotEmpty(t, received.Sketches[0].Sketch)
	assert.Equal(t, 0, metricService.Len())
}

func TestFlusher_EmptyAggregatorSkipsShipping(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f, _ := newFlusher(t, Config{SeriesURL: server.URL, SketchURL: server.URL, Interval: time.Second})
	require.NoError(t, f.Flush(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestFlusher_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{SeriesURL: server.URL, Interval: time.Second})
	require.NoError(t, metricService.Insert(models.Metric{Name: "requests", Kind: models.Counter, Value: 1}))

	require.NoError(t, f.Flush(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 0, metricService.Len())
}

func TestFlusher_ClientErrorNotRetriedAndKeepsState(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{SeriesURL: server.URL, Interval: time.Second})
	require.NoError(t, metricService.Insert(models.Metric{Name: "requests", Kind: models.Counter, Value: 1}))

	err := f.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	// Failed flushes keep accumulating for the next attempt
	assert.Equal(t, 1, metricService.Len())
}

func TestFlusher_InsertDuringShipmentSurvives(t *testing.T) {
	var received []models.Serie
	shipping := make(chan struct{})
	proceed := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(shipping)
		<-proceed
		decodeGzipJSON(t, r, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{SeriesURL: server.URL, Interval: time.Second})
	require.NoError(t, metricService.Insert(models.Metric{Name: "before", Kind: models.Counter, Value: 1}))

	flushDone := make(chan error, 1)
	go func() {
		flushDone <- f.Flush(context.Background())
	}()

	// Insert while the payload is held in flight by the upstream
	select {
	case <-shipping:
	case <-time.After(5 * time.Second):
		t.Fatal("flush never reached the upstream")
	}
	require.NoError(t, metricService.Insert(models.Metric{Name: "during", Kind: models.Counter, Value: 2}))
	close(proceed)

	require.NoError(t, <-flushDone)
	require.Len(t, received, 1)
	assert.Equal(t, "before", received[0].Name)

	// The metric inserted mid-shipment is still tracked for the next flush
	series := metricService.Series()
	require.Len(t, series, 1)
	assert.Equal(t, "during", series[0].Name)
	assert.Equal(t, 2.0, series[0].Value)
}

func TestFlusher_FailedShipmentMergesBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{SeriesURL: server.URL, Interval: time.Second})
	require.NoError(t, metricService.Insert(models.Metric{Name: "requests", Kind: models.Counter, Value: 3}))

	require.Error(t, f.Flush(context.Background()))
	require.NoError(t, metricService.Insert(models.Metric{Name: "requests", Kind: models.Counter, Value: 2}))

	// The restored counter and the fresh observation sum up
	series := metricService.Series()
	require.Len(t, series, 1)
	assert.Equal(t, 5.0, series[0].Value)
}

func TestFlusher_RunFinalFlushOnCancel(t *testing.T) {
	var received []models.Serie
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decodeGzipJSON(t, r, &received)
	}))
	defer server.Close()

	f, metricService := newFlusher(t, Config{SeriesURL: server.URL, Interval: time.Hour})
	require.NoError(t, metricService.Insert(models.Metric{Name: "requests", Kind: models.Counter, Value: 1}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("flusher did not stop after cancel")
	}

	require.Len(t, received, 1)
	assert.Equal(t, "requests", received[0].Name)
}
