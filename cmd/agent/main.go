package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/p-datadog/libdatadog/internal/aggregator"
	"github.com/p-datadog/libdatadog/internal/audit"
	"github.com/p-datadog/libdatadog/internal/config"
	"github.com/p-datadog/libdatadog/internal/dogstatsd"
	"github.com/p-datadog/libdatadog/internal/flusher"
	"github.com/p-datadog/libdatadog/internal/handler"
	models "github.com/p-datadog/libdatadog/internal/model"
	"github.com/p-datadog/libdatadog/internal/parser"
	"github.com/p-datadog/libdatadog/internal/service"
	"github.com/p-datadog/libdatadog/internal/telemetry"
)

func main() {
	agentConfig, err := config.NewAgentConfig()
	if err != nil {
		log.Fatal("Failed to parse configuration: ", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to create logger: ", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	agg, err := aggregator.New(agentConfig.DefaultTags, agentConfig.Capacity)
	if err != nil {
		logger.Fatalf("creating aggregator: %v", err)
	}
	metricService := service.NewMetricsService(agg)

	// Drop diagnostics fan out to the structured log and, when configured,
	// a file
	events := make(chan models.DropEvent, 100)
	logSub := make(chan models.DropEvent, 100)
	subs := []chan<- models.DropEvent{logSub}
	go audit.LogSubscriber(logSub, logger)
	if agentConfig.AuditFile != "" {
		fileSub := make(chan models.DropEvent, 100)
		subs = append(subs, fileSub)
		go audit.FileSubscriber(fileSub, agentConfig.AuditFile, logger)
	}
	go audit.Broadcaster(events, subs...)

	reader, err := dogstatsd.NewUDPReader(agentConfig.Host, agentConfig.Port)
	if err != nil {
		logger.Fatalf("starting listener: %v", err)
	}
	server := dogstatsd.NewServer(
		reader,
		metricService,
		parser.New(agentConfig.ScaleSampleRates),
		logger,
		audit.NewDropLogger(events),
	)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			logger.Errorf("listener failed: %v", err)
			cancel()
		}
	}()
	logger.Infof("dogstatsd listening on %s", reader.LocalAddr())

	if agentConfig.SeriesURL != "" || agentConfig.SketchURL != "" {
		metricFlusher := flusher.New(metricService, flusher.Config{
			SeriesURL: agentConfig.SeriesURL,
			SketchURL: agentConfig.SketchURL,
			APIKey:    agentConfig.APIKey,
			Interval:  time.Duration(agentConfig.FlushInterval) * time.Second,
		}, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			metricFlusher.Run(ctx)
		}()
	}

	collector := telemetry.New(metricService, time.Duration(agentConfig.TelemetryInterval)*time.Second, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		collector.Run(ctx)
	}()

	go func() {
		logger.Infof("ops server listening on %s", agentConfig.OpsAddress)
		if err := http.ListenAndServe(agentConfig.OpsAddress, handler.Router(metricService, logger)); err != nil {
			logger.Errorf("ops server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	// Block until signal received or the listener dies
	select {
	case <-sigChan:
	case <-ctx.Done():
	}
	logger.Info("Shutting down...")
	cancel()
	// Closing the socket unblocks the pending read
	reader.Close()
	wg.Wait()
	close(events)
}
