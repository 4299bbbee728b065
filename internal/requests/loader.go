package requests

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/internal/fleet"
	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/logger"
	"github.com/ridebench/dispatchsim/pkg/models"
	"github.com/ridebench/dispatchsim/pkg/validation"
)

// ScenarioVehicle describes one pre-placed vehicle in a scenario file
type ScenarioVehicle struct {
	VehicleID            string  `json:"vehicle_id,omitempty"`
	Latitude             float64 `json:"latitude" validate:"latitude"`
	Longitude            float64 `json:"longitude" validate:"longitude"`
	WheelchairAccessible bool    `json:"wheelchair_accessible,omitempty"`
	Capacity             int     `json:"capacity,omitempty" validate:"gte=0,lte=8"`
}

// Scenario is the on-disk input for an evaluation run. A nil vehicle list
// means the fleet is generated instead of pinned.
type Scenario struct {
	Name      string                          `json:"name,omitempty"`
	Vehicles  []ScenarioVehicle               `json:"vehicles,omitempty"`
	Requests  []models.NaturalLanguageRequest `json:"requests"`
	StartTime *time.Time                      `json:"start_time,omitempty"`
	EndTime   *time.Time                      `json:"end_time,omitempty"`
}

// FleetSeeds converts the scenario's vehicle list into fleet seeds
func (s *Scenario) FleetSeeds() []fleet.Seed {
	seeds := make([]fleet.Seed, 0, len(s.Vehicles))
	for _, v := range s.Vehicles {
		seeds = append(seeds, fleet.Seed{
			VehicleID:            v.VehicleID,
			Location:             models.Location{Latitude: v.Latitude, Longitude: v.Longitude},
			WheelchairAccessible: v.WheelchairAccessible,
			Capacity:             v.Capacity,
		})
	}
	return seeds
}

// Loader reads and validates scenario files, resolving ground-truth
// locations against the zone registry so downstream consumers always see
// coordinates and zone annotations together.
type Loader struct {
	zones *geo.Registry
}

// NewLoader creates a scenario loader backed by the given registry
func NewLoader(zones *geo.Registry) *Loader {
	return &Loader{zones: zones}
}

// LoadFile reads and validates a scenario from disk
func (l *Loader) LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %s: %w", path, err)
	}
	return scenario, nil
}

// Load parses, validates and resolves a scenario document
func (l *Loader) Load(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := json.Unmarshal(data, &scenario); err != nil {
		return nil, common.NewRequestValidationError("scenario JSON is malformed", err)
	}

	for i := range scenario.Vehicles {
		if err := validation.ValidateStruct(&scenario.Vehicles[i]); err != nil {
			return nil, common.NewRequestValidationError(
				fmt.Sprintf("vehicle at index %d is invalid", i), err)
		}
	}

	seen := make(map[string]bool, len(scenario.Requests))
	for i := range scenario.Requests {
		request := &scenario.Requests[i]
		if err := validateScenarioRequest(request, i); err != nil {
			return nil, err
		}
		if seen[request.RequestID] {
			return nil, common.NewRequestValidationError(
				fmt.Sprintf("duplicate request_id %q", request.RequestID), nil)
		}
		seen[request.RequestID] = true

		l.resolveGroundTruth(request)
	}

	logger.Info("scenario loaded",
		zap.String("name", scenario.Name),
		zap.Int("requests", len(scenario.Requests)),
		zap.Int("vehicles", len(scenario.Vehicles)),
	)
	return &scenario, nil
}

func validateScenarioRequest(request *models.NaturalLanguageRequest, index int) error {
	if request.RequestID == "" {
		return common.NewRequestValidationError(
			fmt.Sprintf("request at index %d has no request_id", index), nil)
	}
	if request.RequestTime.IsZero() {
		return common.NewRequestValidationError(
			fmt.Sprintf("request %q has no request_time", request.RequestID), nil)
	}

	if gt := request.GroundTruth; gt != nil {
		if err := validateGroundTruthLocation(gt.Origin, request.RequestID, "origin"); err != nil {
			return err
		}
		if err := validateGroundTruthLocation(gt.Destination, request.RequestID, "destination"); err != nil {
			return err
		}
	}
	return nil
}

func validateGroundTruthLocation(loc models.Location, requestID, which string) error {
	if loc.HasCoordinates() {
		if err := validation.ValidateCoordinates(loc.Latitude, loc.Longitude); err != nil {
			return common.NewRequestValidationError(
				fmt.Sprintf("request %q ground-truth %s is invalid", requestID, which), err)
		}
		return nil
	}
	if loc.ZoneID == nil && loc.ZoneName == "" {
		return common.NewRequestValidationError(
			fmt.Sprintf("request %q ground-truth %s has neither coordinates nor a zone", requestID, which), nil)
	}
	return nil
}

// resolveGroundTruth fills in whichever half of a ground-truth location is
// missing: coordinates from the zone centroid, or the zone from a reverse
// lookup. It also stamps the parent's id and time onto the ground truth.
func (l *Loader) resolveGroundTruth(request *models.NaturalLanguageRequest) {
	gt := request.GroundTruth
	if gt == nil {
		return
	}

	if gt.RequestID == "" {
		gt.RequestID = request.RequestID
	}
	if gt.RequestTime.IsZero() {
		gt.RequestTime = request.RequestTime
	}
	if gt.PassengerCount <= 0 {
		gt.PassengerCount = 1
	}

	gt.Origin = l.resolveLocation(gt.Origin)
	gt.Destination = l.resolveLocation(gt.Destination)
}

func (l *Loader) resolveLocation(loc models.Location) models.Location {
	if l.zones == nil {
		return loc
	}

	if !loc.HasCoordinates() {
		if loc.ZoneID != nil {
			if centroid, ok := l.zones.Centroid(*loc.ZoneID); ok {
				centroid.Address = loc.Address
				centroid.POIName = loc.POIName
				return centroid
			}
		}
		if loc.ZoneName != "" {
			if zone, ok := l.zones.MatchName(loc.ZoneName); ok {
				if centroid, ok := l.zones.Centroid(zone.ID); ok {
					centroid.Address = loc.Address
					centroid.POIName = loc.POIName
					return centroid
				}
			}
		}
		return loc
	}

	if loc.ZoneID == nil {
		if zone, ok := l.zones.ZoneFor(loc.Latitude, loc.Longitude); ok {
			id := zone.ID
			loc.ZoneID = &id
			if loc.ZoneName == "" {
				loc.ZoneName = zone.Name
			}
		}
	}
	return loc
}
