package audit

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	models "github.com/p-datadog/libdatadog/internal/model"
)

func TestDropLogger(t *testing.T) {
	events := make(chan models.DropEvent, 1)
	logger := NewDropLogger(events)

	logger.Log("127.0.0.1:9000", "metric1:oops|c", "invalid metric value")

	evt := <-events
	assert.Equal(t, "127.0.0.1:9000", evt.Origin)
	assert.Equal(t, "metric1:oops|c", evt.Line)
	assert.Equal(t, "invalid metric value", evt.Reason)
	assert.NotEmpty(t, evt.TS)
}

func TestDropLogger_FullChannel(t *testing.T) {
	events := make(chan models.DropEvent, 1)
	logger := NewDropLogger(events)

	// Second event is discarded instead of blocking
	logger.Log("origin", "line1", "reason")
	logger.Log("origin", "line2", "reason")

	evt := <-events
	assert.Equal(t, "line1", evt.Line)
	assert.Empty(t, events)
}

func TestBroadcaster(t *testing.T) {
	source := make(chan models.DropEvent)
	// Buffered channels to ensure events can be received
	sub1 := make(chan models.DropEvent, 1)
	sub2 := make(chan models.DropEvent, 1)

	go Broadcaster(source, sub1, sub2)

	event := models.DropEvent{
		TS:     time.Now().Format(time.RFC3339),
		Origin: "127.0.0.1:9000",
		Line:   "bad line",
		Reason: "malformed metric line",
	}

	go func() {
		source <- event
		close(source)
	}()

	received1 := <-sub1
	received2 := <-sub2

	// Both subscribers received the same event
	assert.Equal(t, event, received1)
	assert.Equal(t, event, received2)
}

func TestFileSubscriber(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "drops_test_*.log")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())
	defer tmpFile.Close()

	events := make(chan models.DropEvent)
	go FileSubscriber(events, tmpFile.Name(), zap.NewNop().Sugar())

	event := models.DropEvent{
		TS:     time.Now().Format(time.RFC3339),
		Origin: "127.0.0.1:9000",
		Line:   "metric1:one|c",
		Reason: "invalid metric value",
	}
	events <- event
	close(events)

	// Wait for the subscriber to write the line
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(tmpFile.Name())
		return err == nil && len(data) > 0
	}, time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(tmpFile.Name())
	require.NoError(t, err)

	var decoded models.DropEvent
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &decoded))
	assert.Equal(t, event, decoded)
}
