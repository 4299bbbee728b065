package eventlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridebench/dispatchsim/pkg/websocket"
)

func TestRecordAssignsSequence(t *testing.T) {
	r := NewRecorder()
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	first := r.Record(at, EventEvaluationStart, map[string]interface{}{"fleet_size": 3})
	second := r.Record(at.Add(time.Minute), EventRequestArrived, nil)
	third := r.Record(at.Add(2*time.Minute), EventTripCompleted, nil)

	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, int64(3), third.Seq)
	assert.Equal(t, 3, r.Len())

	events := r.Events()
	require.Len(t, events, 3)
	assert.Equal(t, EventEvaluationStart, events[0].Type)
	assert.Equal(t, at, events[0].Timestamp)
	assert.Equal(t, 3, events[0].Payload["fleet_size"])
}

func TestEventsReturnsCopy(t *testing.T) {
	r := NewRecorder()
	r.Record(time.Now(), EventError, nil)

	events := r.Events()
	events[0].Type = EventEvaluationEnd
	assert.Equal(t, EventError, r.Events()[0].Type)
}

func TestRecorderSinkFanout(t *testing.T) {
	var seen []Event
	r := NewRecorder(SinkFunc(func(e Event) {
		seen = append(seen, e)
	}))
	at := time.Now()

	r.Record(at, EventEvaluationStart, nil)

	var late []Event
	r.AddSink(SinkFunc(func(e Event) {
		late = append(late, e)
	}))
	r.Record(at, EventEvaluationEnd, nil)

	assert.Len(t, seen, 2)
	// Sinks attached mid-run only see later events
	require.Len(t, late, 1)
	assert.Equal(t, EventEvaluationEnd, late[0].Type)
}

func TestResetRestartsSequence(t *testing.T) {
	r := NewRecorder()
	r.Record(time.Now(), EventError, nil)
	r.Record(time.Now(), EventError, nil)

	r.Reset()
	assert.Zero(t, r.Len())

	e := r.Record(time.Now(), EventEvaluationStart, nil)
	assert.Equal(t, int64(1), e.Seq)
}

func TestExportJSONRoundTrip(t *testing.T) {
	r := NewRecorder()
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)
	r.Record(at, EventEvaluationStart, map[string]interface{}{"agent": "baseline-nearest"})
	r.Record(at.Add(time.Second), EventError, map[string]interface{}{
		"type":    "AGENT_ROUTE_ERROR",
		"message": "no idle vehicle",
		"context": map[string]interface{}{"request_id": "req-001"},
	})

	data, err := r.ExportJSON()
	require.NoError(t, err)

	parsed, err := ParseLog(data)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, int64(1), parsed[0].Seq)
	assert.Equal(t, EventEvaluationStart, parsed[0].Type)
	assert.True(t, parsed[0].Timestamp.Equal(at))
	assert.Equal(t, "AGENT_ROUTE_ERROR", parsed[1].Payload["type"])

	// Identical logs export byte-identically
	again, err := r.ExportJSON()
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestParseLogRejectsMalformedInput(t *testing.T) {
	_, err := ParseLog([]byte("{not json"))
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	r := NewRecorder()
	r.Record(time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC), EventEvaluationStart, nil)

	path := filepath.Join(t.TempDir(), "events.json")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	parsed, err := ParseLog(data)
	require.NoError(t, err)
	assert.Len(t, parsed, 1)
}

func TestFeedSinkForwardsEvents(t *testing.T) {
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := websocket.NewClient("viewer-1", nil, hub)
	hub.Register <- client
	require.Eventually(t, func() bool {
		return hub.GetClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	r := NewRecorder(NewFeedSink(hub))
	at := time.Date(2025, time.June, 2, 8, 30, 0, 0, time.UTC)
	r.Record(at, EventTripCompleted, map[string]interface{}{"fare": 7.33})

	select {
	case msg := <-client.Send:
		assert.Equal(t, string(EventTripCompleted), msg.Type)
		assert.Equal(t, at, msg.Timestamp)
		assert.Equal(t, int64(1), msg.Data["seq"])
		payload, ok := msg.Data["payload"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, 7.33, payload["fare"])
	case <-time.After(time.Second):
		t.Fatal("expected a feed message")
	}
}
