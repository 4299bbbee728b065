package eventlog

import (
	"github.com/ridebench/dispatchsim/pkg/websocket"
)

// FeedSink mirrors the event log onto the live feed hub so connected
// dashboards can watch a run as it happens.
type FeedSink struct {
	hub *websocket.Hub
}

// NewFeedSink wraps a hub as a recorder sink
func NewFeedSink(hub *websocket.Hub) *FeedSink {
	return &FeedSink{hub: hub}
}

// OnEvent implements Sink
func (s *FeedSink) OnEvent(e Event) {
	s.hub.SendToAll(&websocket.Message{
		Type:      string(e.Type),
		Timestamp: e.Timestamp,
		Data: map[string]interface{}{
			"seq":     e.Seq,
			"payload": e.Payload,
		},
	})
}
