package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// EventType tags a recorded simulation event. Values are wire-stable;
// exported logs are consumed by downstream renderers.
type EventType string

const (
	EventEvaluationStart    EventType = "EVALUATION_START"
	EventEvaluationEnd      EventType = "EVALUATION_END"
	EventVehicleInitialized EventType = "VEHICLE_INITIALIZED"
	EventRequestArrived     EventType = "REQUEST_ARRIVED"
	EventParsingResult      EventType = "PARSING_RESULT"
	EventRoutingDecision    EventType = "ROUTING_DECISION"
	EventVehicleAssigned    EventType = "VEHICLE_ASSIGNED"
	EventTripCompleted      EventType = "TRIP_COMPLETED"
	EventRequestScore       EventType = "REQUEST_SCORE"
	EventError              EventType = "ERROR"
)

// Event is one entry in the evaluation timeline. Seq increases
// monotonically; Timestamp is simulation time, not wall time.
type Event struct {
	Seq       int64                  `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	Type      EventType              `json:"type"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Sink receives every event as it is recorded. Sink failures never
// interrupt a run.
type Sink interface {
	OnEvent(Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(Event)

// OnEvent implements Sink
func (f SinkFunc) OnEvent(e Event) {
	f(e)
}

// Recorder is the append-only event log for one evaluation run
type Recorder struct {
	mu     sync.Mutex
	seq    int64
	events []Event
	sinks  []Sink
}

// NewRecorder creates a recorder fanning out to the given sinks
func NewRecorder(sinks ...Sink) *Recorder {
	return &Recorder{sinks: sinks}
}

// AddSink attaches another sink. Only events recorded afterwards reach it.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Record appends an event at the given simulation time and returns it
func (r *Recorder) Record(at time.Time, eventType EventType, payload map[string]interface{}) Event {
	r.mu.Lock()
	r.seq++
	event := Event{
		Seq:       r.seq,
		Timestamp: at,
		Type:      eventType,
		Payload:   payload,
	}
	r.events = append(r.events, event)
	sinks := r.sinks
	r.mu.Unlock()

	for _, sink := range sinks {
		sink.OnEvent(event)
	}
	return event
}

// Events returns a copy of the recorded log in order
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset clears the log and restarts sequence numbering. Sinks stay attached.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq = 0
	r.events = nil
}

// ExportJSON renders the ordered event array. Identical runs produce
// byte-identical output: map payload keys marshal sorted.
func (r *Recorder) ExportJSON() ([]byte, error) {
	events := r.Events()
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to export event log: %w", err)
	}
	return data, nil
}

// WriteFile exports the event log to a file
func (r *Recorder) WriteFile(path string) error {
	data, err := r.ExportJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write event log: %w", err)
	}
	return nil
}

// ParseLog reads an exported event array back into memory
func ParseLog(data []byte) ([]Event, error) {
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("failed to parse event log: %w", err)
	}
	return events, nil
}
