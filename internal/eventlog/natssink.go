package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/pkg/eventbus"
	"github.com/ridebench/dispatchsim/pkg/logger"
)

// NATSSink publishes every recorded event to the event bus, one subject per
// event type. Publish failures are logged and dropped; the run never blocks
// on the bus.
type NATSSink struct {
	bus     *eventbus.Bus
	source  string
	timeout time.Duration
}

// NewNATSSink wraps a connected bus as a recorder sink
func NewNATSSink(bus *eventbus.Bus, source string) *NATSSink {
	return &NATSSink{
		bus:     bus,
		source:  source,
		timeout: 5 * time.Second,
	}
}

// OnEvent implements Sink
func (s *NATSSink) OnEvent(e Event) {
	busEvent, err := eventbus.NewEvent(string(e.Type), s.source, e)
	if err != nil {
		logger.Warn("failed to wrap event for bus",
			zap.Int64("seq", e.Seq),
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.bus.Publish(ctx, eventbus.SubjectForType(string(e.Type)), busEvent); err != nil {
		logger.Warn("failed to publish event to bus",
			zap.Int64("seq", e.Seq),
			zap.String("type", string(e.Type)),
			zap.Error(err),
		)
	}
}
