// Package handler exposes the read-only operational HTTP surface of the
// agent: health, current series and sketch snapshots. Nothing here mutates
// the aggregator.
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/p-datadog/libdatadog/internal/service"
)

func Router(metricService *service.MetricsService, logger *zap.SugaredLogger) chi.Router {
	router := chi.NewRouter()
	router.Use(requestLogger(logger))
	router.Use(middleware.Compress(5))
	router.Use(middleware.StripSlashes)
	router.Use(middleware.Timeout(15 * time.Second))
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		HealthHandler(w, r, metricService)
	})
	router.Get("/series", func(w http.ResponseWriter, r *http.Request) {
		SeriesHandler(w, r, metricService)
	})
	router.Get("/sketches", func(w http.ResponseWriter, r *http.Request) {
		SketchesHandler(w, r, metricService, logger)
	})
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		GetListHandler(w, r, metricService)
	})
	return router
}

func HealthHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"contexts": metricService.Len(),
	})
}

// SeriesHandler returns the current counter and gauge snapshot as JSON.
func SeriesHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(metricService.Series())
}

// SketchesHandler returns the current distribution snapshot as JSON, each
// sketch base64-encoded protobuf.
func SketchesHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService, logger *zap.SugaredLogger) {
	payload, err := metricService.SketchPayload()
	if err != nil {
		logger.Errorf("snapshotting sketches: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

// GetListHandler renders a plain-text listing of all scalar entries.
func GetListHandler(w http.ResponseWriter, r *http.Request, metricService *service.MetricsService) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	for _, serie := range metricService.Series() {
		if serie.Tags != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", serie.Name, serie.Tags, serie.Value)
		} else {
			fmt.Fprintf(w, "%s %v\n", serie.Name, serie.Value)
		}
	}
}
