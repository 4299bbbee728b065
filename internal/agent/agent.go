package agent

import (
	"context"

	"github.com/ridebench/dispatchsim/internal/fleet"
	"github.com/ridebench/dispatchsim/pkg/models"
)

// FleetView is the read-only fleet access handed to agents. The live fleet
// state satisfies it directly; remote calls carry a Snapshot instead.
type FleetView interface {
	Get(id string) (models.Vehicle, bool)
	All() []models.Vehicle
	Available(q fleet.Query) []models.Vehicle
}

// RoutingAgent is the capability set under evaluation: turn request text
// into a structured request, then pick a vehicle for it. Implementations
// must be deterministic for identical inputs within one run.
type RoutingAgent interface {
	// Name identifies the agent in logs and event payloads
	Name() string

	// Parse converts a natural-language request into a structured one.
	// It should always produce some request rather than fail; an error
	// marks the request failed.
	Parse(ctx context.Context, request models.NaturalLanguageRequest, fleetView FleetView) (models.StructuredRequest, error)

	// Route selects a vehicle for a parsed request
	Route(ctx context.Context, parsed models.StructuredRequest, fleetView FleetView) (models.RoutingDecision, error)

	// QueryDistanceAndTime estimates travel between two locations with the
	// same distance model the simulator bills with
	QueryDistanceAndTime(ctx context.Context, from, to models.Location) (miles, minutes float64, err error)
}

// Snapshot is an immutable FleetView over a vehicle list, used when the
// fleet crosses a process boundary.
type Snapshot struct {
	vehicles []models.Vehicle
	byID     map[string]int
}

// NewSnapshot builds a snapshot view over the given vehicles
func NewSnapshot(vehicles []models.Vehicle) *Snapshot {
	s := &Snapshot{
		vehicles: vehicles,
		byID:     make(map[string]int, len(vehicles)),
	}
	for i, v := range vehicles {
		s.byID[v.VehicleID] = i
	}
	return s
}

// Get implements FleetView
func (s *Snapshot) Get(id string) (models.Vehicle, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.Vehicle{}, false
	}
	return s.vehicles[i], true
}

// All implements FleetView
func (s *Snapshot) All() []models.Vehicle {
	out := make([]models.Vehicle, len(s.vehicles))
	copy(out, s.vehicles)
	return out
}

// Available implements FleetView using the same filter as the live fleet
func (s *Snapshot) Available(q fleet.Query) []models.Vehicle {
	return fleet.FilterAvailable(s.All(), q)
}
