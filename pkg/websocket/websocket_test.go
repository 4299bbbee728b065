package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	hub := NewHub()

	client := NewClient("viewer-123", nil, hub)

	assert.NotNil(t, client)
	assert.Equal(t, "viewer-123", client.ID)
	assert.Equal(t, hub, client.Hub)
	assert.NotNil(t, client.Send)
}

func TestClientSendMessage(t *testing.T) {
	hub := NewHub()
	client := NewClient("viewer-123", nil, hub)

	msg := &Message{
		Type:      "TRIP_COMPLETED",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"request_id": "req-001",
		},
	}

	client.SendMessage(msg)

	select {
	case received := <-client.Send:
		assert.Equal(t, msg.Type, received.Type)
		assert.Equal(t, "req-001", received.Data["request_id"])
	case <-time.After(100 * time.Millisecond):
		t.Fatal("message not received in channel")
	}
}

func TestClientSendMessageChannelFull(t *testing.T) {
	hub := NewHub()
	client := NewClient("viewer-123", nil, hub)
	client.Send = make(chan *Message, 2)

	for i := 0; i < 5; i++ {
		client.SendMessage(&Message{Type: "EVENT", Data: map[string]interface{}{"i": i}})
	}

	// Overflow frames are dropped; the channel stays open
	assert.Len(t, client.Send, 2)
	assert.NotPanics(t, func() {
		client.SendMessage(&Message{Type: "EVENT"})
	})
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := NewClient("viewer-1", nil, hub)
	hub.Register <- client

	require.Eventually(t, func() bool {
		return hub.GetClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	got, ok := hub.GetClient("viewer-1")
	require.True(t, ok)
	assert.Equal(t, client, got)

	hub.Unregister <- client
	require.Eventually(t, func() bool {
		return hub.GetClientCount() == 0
	}, time.Second, 10*time.Millisecond)

	// Hub closed the send channel
	_, open := <-client.Send
	assert.False(t, open)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	first := NewClient("viewer-1", nil, hub)
	second := NewClient("viewer-2", nil, hub)
	hub.Register <- first
	hub.Register <- second

	require.Eventually(t, func() bool {
		return hub.GetClientCount() == 2
	}, time.Second, 10*time.Millisecond)

	hub.SendToAll(&Message{Type: "VEHICLE_ASSIGNED", Timestamp: time.Now()})

	for _, client := range []*Client{first, second} {
		select {
		case msg := <-client.Send:
			assert.Equal(t, "VEHICLE_ASSIGNED", msg.Type)
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive broadcast", client.ID)
		}
	}
}

func TestHubRunStopsOnContextCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	client := NewClient("viewer-1", nil, hub)
	hub.Register <- client

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop on context cancel")
	}

	_, open := <-client.Send
	assert.False(t, open)
}

func TestMessageMarshalJSON(t *testing.T) {
	ts := time.Date(2025, time.June, 2, 8, 30, 0, 0, time.UTC)
	msg := &Message{
		Type:      "REQUEST_ARRIVED",
		Timestamp: ts,
		Data: map[string]interface{}{
			"request_id": "req-007",
		},
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "REQUEST_ARRIVED", decoded["type"])
	assert.Equal(t, "2025-06-02T08:30:00Z", decoded["timestamp"])
}

func TestMessageUnmarshalJSON(t *testing.T) {
	raw := `{"type":"TRIP_COMPLETED","timestamp":"2025-06-02T08:30:00.5Z","data":{"fare":7.33}}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, "TRIP_COMPLETED", msg.Type)
	assert.Equal(t, time.Date(2025, time.June, 2, 8, 30, 0, 500000000, time.UTC), msg.Timestamp.UTC())
	assert.Equal(t, 7.33, msg.Data["fare"])
}

func TestMessageUnmarshalJSONInvalidTimestamp(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"type":"x","timestamp":"not-a-time"}`), &msg)
	assert.Error(t, err)
}

func TestMessageUnmarshalJSONEmptyTimestamp(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"x","data":{}}`), &msg))
	assert.True(t, msg.Timestamp.IsZero())
}

func TestHandleWebSocketEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws/feed", func(c *gin.Context) {
		HandleWebSocket(c, hub)
	})

	server := httptest.NewServer(router)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/feed"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.GetClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.SendToAll(&Message{
		Type:      "EVALUATION_START",
		Timestamp: time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC),
		Data:      map[string]interface{}{"fleet_size": float64(20)},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "EVALUATION_START", msg.Type)
	assert.Equal(t, float64(20), msg.Data["fleet_size"])
}
