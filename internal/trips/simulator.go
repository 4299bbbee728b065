package trips

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/internal/fleet"
	"github.com/ridebench/dispatchsim/internal/pricing"
	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/logger"
	"github.com/ridebench/dispatchsim/pkg/models"
)

// TripStatus tracks which leg of a trip is underway
type TripStatus string

const (
	TripStatusEnRouteToPickup TripStatus = "en_route_to_pickup"
	TripStatusOnTrip          TripStatus = "on_trip"
)

// ActiveTrip is a dispatched trip that has not completed yet
type ActiveTrip struct {
	RequestID string
	VehicleID string
	Status    TripStatus

	Pickup  models.Location
	Dropoff models.Location

	AssignmentTime       time.Time
	EstimatedPickupTime  time.Time
	EstimatedDropoffTime time.Time
	ActualPickupTime     time.Time

	PickupDistance float64
	PickupMinutes  float64
	TripDistance   float64
	TripMinutes    float64
}

// ExecutionResult reports the accepted assignment back to the caller
type ExecutionResult struct {
	EstimatedPickupTime  time.Time
	EstimatedDropoffTime time.Time
	PickupDistanceMiles  float64
	PickupMinutes        float64
	TripDistanceMiles    float64
	TripMinutes          float64
}

// Simulator owns the active trips and drives vehicle movement. All movement
// is teleport-at-event-time: a vehicle is at its last event location until
// the next scheduled event fires.
type Simulator struct {
	fleet  *fleet.State
	oracle geo.Oracle
	fares  *pricing.Calculator

	active    map[string]*ActiveTrip
	byVehicle map[string]string // vehicle_id -> request_id
}

// NewSimulator creates a vehicle simulator over the given fleet
func NewSimulator(fleetState *fleet.State, oracle geo.Oracle, fares *pricing.Calculator) *Simulator {
	return &Simulator{
		fleet:     fleetState,
		oracle:    oracle,
		fares:     fares,
		active:    make(map[string]*ActiveTrip),
		byVehicle: make(map[string]string),
	}
}

// ExecuteRoutingDecision accepts an agent's decision and starts the pickup
// leg. The vehicle must exist and must not already carry an active trip.
func (s *Simulator) ExecuteRoutingDecision(decision models.RoutingDecision, pickup, dropoff models.Location, now time.Time) (*ExecutionResult, error) {
	vehicle, ok := s.fleet.Get(decision.VehicleID)
	if !ok {
		return nil, common.NewAgentRouteError(fmt.Sprintf("vehicle %s does not exist", decision.VehicleID), nil)
	}

	if reqID, busy := s.byVehicle[vehicle.VehicleID]; busy {
		return nil, common.NewVehicleUnavailableError(
			fmt.Sprintf("vehicle %s is already serving request %s", vehicle.VehicleID, reqID))
	}
	if vehicle.Status != models.VehicleStatusIdle && vehicle.Status != models.VehicleStatusEnRouteToPickup {
		return nil, common.NewVehicleUnavailableError(
			fmt.Sprintf("vehicle %s is %s", vehicle.VehicleID, vehicle.Status))
	}

	pickupDistance, pickupMinutes := s.oracle.Query(vehicle.CurrentLocation, pickup)
	tripDistance, tripMinutes := s.oracle.Query(pickup, dropoff)

	estimatedPickup := now.Add(minutesToDuration(pickupMinutes))
	estimatedDropoff := estimatedPickup.Add(minutesToDuration(tripMinutes))

	trip := &ActiveTrip{
		RequestID:            decision.RequestID,
		VehicleID:            vehicle.VehicleID,
		Status:               TripStatusEnRouteToPickup,
		Pickup:               pickup,
		Dropoff:              dropoff,
		AssignmentTime:       now,
		EstimatedPickupTime:  estimatedPickup,
		EstimatedDropoffTime: estimatedDropoff,
		PickupDistance:       pickupDistance,
		PickupMinutes:        pickupMinutes,
		TripDistance:         tripDistance,
		TripMinutes:          tripMinutes,
	}
	s.active[trip.RequestID] = trip
	s.byVehicle[trip.VehicleID] = trip.RequestID

	requestID := trip.RequestID
	if err := s.fleet.UpdateStatus(vehicle.VehicleID, models.VehicleStatusEnRouteToPickup, nil, &requestID); err != nil {
		delete(s.active, trip.RequestID)
		delete(s.byVehicle, trip.VehicleID)
		return nil, err
	}

	logger.Debug("routing decision executed",
		zap.String("request_id", trip.RequestID),
		zap.String("vehicle_id", trip.VehicleID),
		zap.Float64("pickup_distance_miles", pickupDistance),
		zap.Float64("trip_distance_miles", tripDistance),
	)

	return &ExecutionResult{
		EstimatedPickupTime:  estimatedPickup,
		EstimatedDropoffTime: estimatedDropoff,
		PickupDistanceMiles:  pickupDistance,
		PickupMinutes:        pickupMinutes,
		TripDistanceMiles:    tripDistance,
		TripMinutes:          tripMinutes,
	}, nil
}

type scheduledEvent struct {
	at        time.Time
	requestID string
	pickup    bool
}

// AdvanceTime moves the simulation forward by delta and processes every
// pickup and dropoff that comes due, in ascending scheduled order with ties
// broken by request ID. A zero delta drains events due at the current
// instant. Never fails.
func (s *Simulator) AdvanceTime(currentTime time.Time, delta time.Duration) []models.TripResult {
	if delta < 0 {
		delta = 0
	}
	newTime := currentTime.Add(delta)

	var results []models.TripResult
	for {
		evt, ok := s.nextDueEvent(newTime)
		if !ok {
			break
		}
		trip := s.active[evt.requestID]
		if evt.pickup {
			s.processPickup(trip)
			continue
		}
		results = append(results, s.processDropoff(trip, trip.EstimatedDropoffTime))
	}
	return results
}

// nextDueEvent returns the earliest event scheduled at or before deadline.
// Map iteration order never leaks: the minimum is selected by (time,
// request_id).
func (s *Simulator) nextDueEvent(deadline time.Time) (scheduledEvent, bool) {
	var best scheduledEvent
	found := false
	for _, trip := range s.active {
		at := trip.nextEventAt()
		if at.After(deadline) {
			continue
		}
		candidate := scheduledEvent{
			at:        at,
			requestID: trip.RequestID,
			pickup:    trip.Status == TripStatusEnRouteToPickup,
		}
		if !found || candidate.before(best) {
			best = candidate
			found = true
		}
	}
	return best, found
}

func (e scheduledEvent) before(other scheduledEvent) bool {
	if !e.at.Equal(other.at) {
		return e.at.Before(other.at)
	}
	return e.requestID < other.requestID
}

func (t *ActiveTrip) nextEventAt() time.Time {
	if t.Status == TripStatusEnRouteToPickup {
		return t.EstimatedPickupTime
	}
	return t.EstimatedDropoffTime
}

func (s *Simulator) processPickup(trip *ActiveTrip) {
	trip.Status = TripStatusOnTrip
	trip.ActualPickupTime = trip.EstimatedPickupTime

	requestID := trip.RequestID
	if err := s.fleet.UpdateStatus(trip.VehicleID, models.VehicleStatusOnTrip, &trip.Pickup, &requestID); err != nil {
		logger.Error("failed to update vehicle status at pickup",
			zap.String("vehicle_id", trip.VehicleID), zap.Error(err))
	}
	if err := s.fleet.AddTripStats(trip.VehicleID, models.VehicleStats{DeadheadMiles: trip.PickupDistance}); err != nil {
		logger.Error("failed to accumulate deadhead miles",
			zap.String("vehicle_id", trip.VehicleID), zap.Error(err))
	}

	logger.Debug("pickup completed",
		zap.String("request_id", trip.RequestID),
		zap.String("vehicle_id", trip.VehicleID),
		zap.Time("pickup_time", trip.ActualPickupTime),
	)
}

func (s *Simulator) processDropoff(trip *ActiveTrip, completionTime time.Time) models.TripResult {
	fare := s.fares.Fare(trip.TripDistance, trip.TripMinutes)

	noTrip := ""
	if err := s.fleet.UpdateStatus(trip.VehicleID, models.VehicleStatusIdle, &trip.Dropoff, &noTrip); err != nil {
		logger.Error("failed to update vehicle status at dropoff",
			zap.String("vehicle_id", trip.VehicleID), zap.Error(err))
	}
	if err := s.fleet.AddTripStats(trip.VehicleID, models.VehicleStats{
		TripsCompleted: 1,
		RevenueEarned:  fare,
		MilesDriven:    trip.TripDistance,
	}); err != nil {
		logger.Error("failed to accumulate trip stats",
			zap.String("vehicle_id", trip.VehicleID), zap.Error(err))
	}

	delete(s.active, trip.RequestID)
	delete(s.byVehicle, trip.VehicleID)

	logger.Debug("dropoff completed",
		zap.String("request_id", trip.RequestID),
		zap.String("vehicle_id", trip.VehicleID),
		zap.Time("completion_time", completionTime),
	)

	return models.TripResult{
		RequestID:        trip.RequestID,
		VehicleID:        trip.VehicleID,
		ActualPickupTime: trip.ActualPickupTime,
		CompletionTime:   completionTime,
		TripDistance:     trip.TripDistance,
		DeadheadMiles:    trip.PickupDistance,
		TripTimeMinutes:  trip.TripMinutes,
		Fare:             fare,
	}
}

// ForceCompleteAll finalizes every remaining active trip as if it completed
// exactly at the horizon, preserving all bookkeeping. Full fare is billed.
func (s *Simulator) ForceCompleteAll(horizon time.Time) []models.TripResult {
	remaining := make([]*ActiveTrip, 0, len(s.active))
	for _, trip := range s.active {
		remaining = append(remaining, trip)
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].RequestID < remaining[j].RequestID
	})

	if len(remaining) > 0 {
		logger.Info("force completing active trips",
			zap.Int("count", len(remaining)),
			zap.Time("horizon", horizon),
		)
	}

	results := make([]models.TripResult, 0, len(remaining))
	for _, trip := range remaining {
		if trip.Status == TripStatusEnRouteToPickup {
			if trip.EstimatedPickupTime.After(horizon) {
				trip.EstimatedPickupTime = horizon
			}
			s.processPickup(trip)
		}
		results = append(results, s.processDropoff(trip, horizon))
	}
	return results
}

// NextEventTime returns the earliest scheduled pickup or dropoff across all
// active trips, or nil when none are pending.
func (s *Simulator) NextEventTime() *time.Time {
	var min *time.Time
	for _, trip := range s.active {
		at := trip.nextEventAt()
		if min == nil || at.Before(*min) {
			t := at
			min = &t
		}
	}
	return min
}

// ActiveTripCount returns the number of trips still in flight
func (s *Simulator) ActiveTripCount() int {
	return len(s.active)
}

// ActiveTrip returns a copy of the active trip for a request, if any
func (s *Simulator) ActiveTrip(requestID string) (ActiveTrip, bool) {
	trip, ok := s.active[requestID]
	if !ok {
		return ActiveTrip{}, false
	}
	return *trip, true
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
