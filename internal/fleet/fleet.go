package fleet

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/models"
)

// DefaultCapacity is the seat count assigned when initialization does not
// specify one
const DefaultCapacity = 4

// placementJitterDeg spreads generated vehicles around their zone centroid
// so they do not stack on a single point (~0.1 mi).
const placementJitterDeg = 0.0015

// Query narrows an availability search.
type Query struct {
	Center             *models.Location
	RadiusMiles        float64
	MaxCount           int
	WheelchairRequired bool
}

// InitOptions configures fleet initialization.
type InitOptions struct {
	Count           int
	ZoneIDs         []int
	WheelchairRatio float64
	Capacity        int

	// InitialLocations pins vehicle starting points explicitly; when fewer
	// locations than vehicles are given the list is cycled.
	InitialLocations []models.Location
}

// Seed pins one vehicle's starting state explicitly, for scenario files
// that specify the fleet instead of generating it.
type Seed struct {
	VehicleID            string
	Location             models.Location
	WheelchairAccessible bool
	Capacity             int
}

// State is the vehicle catalog for one evaluation run. All mutation goes
// through UpdateStatus and AddTripStats; readers get copies.
type State struct {
	mu       sync.RWMutex
	vehicles map[string]*models.Vehicle
	order    []string

	zones *geo.Registry
	rng   *rand.Rand
}

// NewState creates an empty fleet. The seed drives vehicle placement.
func NewState(zones *geo.Registry, seed int64) *State {
	return &State{
		vehicles: make(map[string]*models.Vehicle),
		zones:    zones,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Initialize populates the fleet. Exactly round(count x wheelchairRatio)
// vehicles are wheelchair accessible. Calling Initialize again replaces the
// fleet.
func (s *State) Initialize(opts InitOptions) error {
	if opts.Count <= 0 {
		return common.NewBadRequestError("fleet size must be positive", nil)
	}

	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	zoneIDs := opts.ZoneIDs
	if len(zoneIDs) == 0 && s.zones != nil {
		zoneIDs = s.zones.IDs()
	}
	if len(opts.InitialLocations) == 0 && len(zoneIDs) == 0 {
		return common.NewBadRequestError("no initial locations and no zones to place vehicles in", nil)
	}

	wheelchairCount := int(math.Round(float64(opts.Count) * opts.WheelchairRatio))

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vehicles = make(map[string]*models.Vehicle, opts.Count)
	s.order = make([]string, 0, opts.Count)

	for i := 0; i < opts.Count; i++ {
		var loc models.Location
		if len(opts.InitialLocations) > 0 {
			loc = opts.InitialLocations[i%len(opts.InitialLocations)]
		} else {
			loc = s.randomPlacement(zoneIDs)
		}

		v := &models.Vehicle{
			VehicleID:            fmt.Sprintf("veh-%03d", i+1),
			CurrentLocation:      loc,
			Status:               models.VehicleStatusIdle,
			WheelchairAccessible: i < wheelchairCount,
			Capacity:             capacity,
		}
		s.vehicles[v.VehicleID] = v
		s.order = append(s.order, v.VehicleID)
	}

	return nil
}

// InitializeFrom replaces the fleet with exactly the given vehicles.
// Vehicles without an ID are named positionally.
func (s *State) InitializeFrom(seeds []Seed) error {
	if len(seeds) == 0 {
		return common.NewBadRequestError("fleet seed list is empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.vehicles = make(map[string]*models.Vehicle, len(seeds))
	s.order = make([]string, 0, len(seeds))

	for i, seed := range seeds {
		id := seed.VehicleID
		if id == "" {
			id = fmt.Sprintf("veh-%03d", i+1)
		}
		if _, exists := s.vehicles[id]; exists {
			return common.NewBadRequestError(fmt.Sprintf("duplicate vehicle id %s", id), nil)
		}

		capacity := seed.Capacity
		if capacity <= 0 {
			capacity = DefaultCapacity
		}

		v := &models.Vehicle{
			VehicleID:            id,
			CurrentLocation:      seed.Location,
			Status:               models.VehicleStatusIdle,
			WheelchairAccessible: seed.WheelchairAccessible,
			Capacity:             capacity,
		}
		s.vehicles[id] = v
		s.order = append(s.order, id)
	}

	return nil
}

func (s *State) randomPlacement(zoneIDs []int) models.Location {
	id := zoneIDs[s.rng.Intn(len(zoneIDs))]
	centroid, ok := s.zones.Centroid(id)
	if !ok {
		centroid = models.Location{Latitude: 40.7549, Longitude: -73.9787}
	}
	centroid.Latitude += (s.rng.Float64()*2 - 1) * placementJitterDeg
	centroid.Longitude += (s.rng.Float64()*2 - 1) * placementJitterDeg
	return centroid
}

// Count returns the fleet size
func (s *State) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns a copy of the vehicle with the given ID
func (s *State) Get(id string) (models.Vehicle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vehicles[id]
	if !ok {
		return models.Vehicle{}, false
	}
	return *v, true
}

// All returns copies of every vehicle in initialization order
func (s *State) All() []models.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Vehicle, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.vehicles[id])
	}
	return out
}

// Available returns vehicles that can accept a new assignment, filtered and
// ordered by the query. A vehicle en route to a pickup is still available;
// its current trip would be reassigned by a smarter dispatcher.
func (s *State) Available(q Query) []models.Vehicle {
	return FilterAvailable(s.All(), q)
}

// UpdateStatus transitions a vehicle, optionally moving it and setting or
// clearing its trip binding. This and AddTripStats are the only mutators.
func (s *State) UpdateStatus(id string, status models.VehicleStatus, location *models.Location, tripID *string) error {
	if !status.IsValid() {
		return common.NewBadRequestError(fmt.Sprintf("unknown vehicle status %q", status), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[id]
	if !ok {
		return common.NewNotFoundError(fmt.Sprintf("vehicle %s not found", id), nil)
	}

	v.Status = status
	if location != nil {
		v.CurrentLocation = *location
	}
	if tripID != nil {
		v.CurrentTripID = *tripID
	}
	return nil
}

// AddTripStats accumulates per-vehicle outcome counters
func (s *State) AddTripStats(id string, delta models.VehicleStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[id]
	if !ok {
		return common.NewNotFoundError(fmt.Sprintf("vehicle %s not found", id), nil)
	}

	v.Stats.TripsCompleted += delta.TripsCompleted
	v.Stats.RevenueEarned += delta.RevenueEarned
	v.Stats.MilesDriven += delta.MilesDriven
	v.Stats.DeadheadMiles += delta.DeadheadMiles
	return nil
}

// Statistics summarizes the fleet
func (s *State) Statistics() models.FleetStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.FleetStats{
		TotalVehicles: len(s.order),
		ByStatus:      make(map[models.VehicleStatus]int),
	}
	for _, id := range s.order {
		v := s.vehicles[id]
		stats.ByStatus[v.Status]++
		stats.TripsCompleted += v.Stats.TripsCompleted
		stats.TotalRevenue += v.Stats.RevenueEarned
		stats.TotalMilesDriven += v.Stats.MilesDriven
		stats.TotalDeadheadMiles += v.Stats.DeadheadMiles
	}
	return stats
}

// FilterAvailable applies an availability query to a vehicle snapshot.
// Shared by the live fleet state and the snapshot views handed to remote
// agents, so both see identical candidate sets.
func FilterAvailable(vehicles []models.Vehicle, q Query) []models.Vehicle {
	out := make([]models.Vehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if v.Status != models.VehicleStatusIdle && v.Status != models.VehicleStatusEnRouteToPickup {
			continue
		}
		if q.WheelchairRequired && !v.WheelchairAccessible {
			continue
		}
		if q.Center != nil && q.RadiusMiles > 0 {
			d := geo.PlanarDistance(q.Center.Latitude, q.Center.Longitude,
				v.CurrentLocation.Latitude, v.CurrentLocation.Longitude)
			if d > q.RadiusMiles {
				continue
			}
		}
		out = append(out, v)
	}

	if q.Center != nil {
		center := *q.Center
		sort.SliceStable(out, func(i, j int) bool {
			di := geo.PlanarDistance(center.Latitude, center.Longitude,
				out[i].CurrentLocation.Latitude, out[i].CurrentLocation.Longitude)
			dj := geo.PlanarDistance(center.Latitude, center.Longitude,
				out[j].CurrentLocation.Latitude, out[j].CurrentLocation.Longitude)
			if di != dj {
				return di < dj
			}
			return out[i].VehicleID < out[j].VehicleID
		})
	}

	if q.MaxCount > 0 && len(out) > q.MaxCount {
		out = out[:q.MaxCount]
	}
	return out
}
