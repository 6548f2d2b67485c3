// Package dogstatsd drives the ingestion pipeline: datagram source, frame
// filter, line parser and aggregator insert, under cooperative
// cancellation.
package dogstatsd

import (
	"context"
	"fmt"
	"net"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/p-datadog/libdatadog/internal/audit"
	internalerrors "github.com/p-datadog/libdatadog/internal/errors"
	models "github.com/p-datadog/libdatadog/internal/model"
	"github.com/p-datadog/libdatadog/internal/parser"
	"github.com/p-datadog/libdatadog/internal/service"
)

// Server owns the datagram source and feeds parsed metrics into the shared
// aggregator through the metrics service.
type Server struct {
	reader  BufferReader
	service *service.MetricsService
	parser  *parser.Parser
	logger  *zap.SugaredLogger
	drops   audit.DropLogger
}

func NewServer(
	reader BufferReader,
	metricService *service.MetricsService,
	lineParser *parser.Parser,
	logger *zap.SugaredLogger,
	drops audit.DropLogger,
) *Server {
	return &Server{
		reader:  reader,
		service: metricService,
		parser:  lineParser,
		logger:  logger,
		drops:   drops,
	}
}

// Run processes datagrams until the context is cancelled or the transport
// fails.
//
// Cancellation is cooperative: it is checked after each datagram, so a
// cancel issued while a read is pending takes effect once that read
// completes. The caller unblocks a pending read at shutdown by closing the
// reader; the resulting read error is then reported as a clean exit. Any
// read error with a live context is fatal and returned, restart being a
// supervisor decision.
func (s *Server) Run(ctx context.Context) error {
	for {
		payload, src, err := s.reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.logger.Info("dogstatsd listener stopped")
				return nil
			}
			return fmt.Errorf("reading datagram: %w", err)
		}
		s.consume(payload, src)
		if ctx.Err() != nil {
			s.logger.Info("dogstatsd listener stopped")
			return nil
		}
	}
}

// consume runs one datagram through filter, parser and aggregator.
//
// Per-line parse failures and capacity drops are logged and reported to
// the drop sink; they never abort the batch. All successfully parsed
// metrics of the datagram are inserted under one lock acquisition.
func (s *Server) consume(payload []byte, src net.Addr) {
	if len(payload) == RecvBufferSize {
		s.logger.Warnw("datagram filled the receive buffer, tail may be truncated", "origin", src.String())
	}
	if !utf8.Valid(payload) {
		s.logger.Warnw("dropping datagram", "origin", src.String(), "reason", internalerrors.ErrInvalidUTF8)
		s.drops.Log(src.String(), "", internalerrors.ErrInvalidUTF8.Error())
		return
	}

	msgs := string(payload)
	s.logger.Debugf("received message: %s from %s", msgs, src)

	var metrics []models.Metric
	for _, line := range parser.SplitLines(msgs) {
		metric, err := s.parser.Parse(line)
		if err != nil {
			s.logger.Errorf("failed to parse metric %s: %v", line, err)
			s.drops.Log(src.String(), line, err.Error())
			continue
		}
		metrics = append(metrics, metric)
	}
	if len(metrics) == 0 {
		return
	}

	for _, err := range s.service.InsertBatch(metrics) {
		s.logger.Warnf("dropping metric: %v", err)
		s.drops.Log(src.String(), "", err.Error())
	}
}
