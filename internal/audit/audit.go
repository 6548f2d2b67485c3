// Package audit distributes drop diagnostics to interested sinks.
//
// The ingestion loop reports every discarded observation (malformed line,
// invalid datagram, capacity overflow) as a DropEvent. Events flow through
// a channel into a broadcaster that fans them out to subscriber channels;
// a slow or absent subscriber never blocks ingestion, events are discarded
// instead.
package audit

import (
	"encoding/json"
	"os"
	"time"

	"go.uber.org/zap"

	models "github.com/p-datadog/libdatadog/internal/model"
)

// DropLogger is the sink the ingestion loop reports discards to.
type DropLogger interface {
	// Log records one dropped observation with its origin and reason.
	Log(origin string, line string, reason string)
}

// dropLogger is a concrete implementation of DropLogger that sends events to a channel.
type dropLogger struct {
	eventChan chan models.DropEvent
}

// NewDropLogger creates a DropLogger that sends events to the provided channel.
func NewDropLogger(eventChan chan models.DropEvent) DropLogger {
	return &dropLogger{
		eventChan: eventChan,
	}
}

// Log sends a drop event with the specified origin, line and reason.
func (d *dropLogger) Log(origin string, line string, reason string) {
	event := models.DropEvent{
		TS:     time.Now().Format(time.RFC3339),
		Origin: origin,
		Line:   line,
		Reason: reason,
	}

	select {
	case d.eventChan <- event:
		// Event sent successfully
	default:
		// Channel is full, drop the event to prevent blocking ingestion
	}
}

// NopLogger discards every event; used where diagnostics are disabled.
type NopLogger struct{}

func (NopLogger) Log(origin string, line string, reason string) {}

// Broadcaster distributes drop events to multiple subscriber channels.
//
// It receives events from a source channel and sends them to all provided
// subscriber channels, discarding per-subscriber when a channel is full.
func Broadcaster(source <-chan models.DropEvent, subs ...chan<- models.DropEvent) {
	for evt := range source {
		for _, subChan := range subs {
			select {
			case subChan <- evt:
				// Event sent successfully
			default:
				// Channel is blocked, discard event for this subscriber
			}
		}
	}
}

// FileSubscriber appends drop events to a file as JSON lines.
func FileSubscriber(events <-chan models.DropEvent, path string, logger *zap.SugaredLogger) {
	for evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			logger.Errorf("FileSubscriber: marshalling event: %v", err)
			continue
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger.Errorf("FileSubscriber: opening %s: %v", path, err)
			continue
		}
		_, err = f.WriteString(string(data) + "\n")
		if err != nil {
			logger.Errorf("FileSubscriber: writing event: %v", err)
		}
		f.Close()
	}
}

// LogSubscriber forwards drop events to the structured logger.
func LogSubscriber(events <-chan models.DropEvent, logger *zap.SugaredLogger) {
	for evt := range events {
		logger.Warnw("dropped observation",
			"origin", evt.Origin,
			"line", evt.Line,
			"reason", evt.Reason,
		)
	}
}
