package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ridebench/dispatchsim/internal/fleet"
	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/models"
)

// Fallback zones when the request text mentions nothing recognizable.
// Midtown Center and East Village keep origin and destination distinct.
const (
	fallbackOriginZone      = 161
	fallbackDestinationZone = 79
)

var passengerCountPattern = regexp.MustCompile(`(?i)(?:party of\s+|group of\s+)?(\d+)\s*(?:passengers?|people|riders?|of us)`)

// NearestVehicleAgent is the reference agent: ground-truth passthrough
// parsing with a zone-name fallback, and greedy nearest-idle-vehicle
// routing. It never assigns a busy vehicle.
type NearestVehicleAgent struct {
	oracle geo.Oracle
	zones  *geo.Registry
}

// NewNearestVehicleAgent creates the baseline agent
func NewNearestVehicleAgent(oracle geo.Oracle, zones *geo.Registry) *NearestVehicleAgent {
	return &NearestVehicleAgent{oracle: oracle, zones: zones}
}

// Name implements RoutingAgent
func (a *NearestVehicleAgent) Name() string {
	return "baseline-nearest"
}

// Parse implements RoutingAgent. Ground truth passes through when present;
// otherwise zone names in the text are matched against the registry and
// resolved to centroids. Always returns a usable request.
func (a *NearestVehicleAgent) Parse(ctx context.Context, request models.NaturalLanguageRequest, fleetView FleetView) (models.StructuredRequest, error) {
	if gt := request.GroundTruth; gt != nil {
		parsed := *gt
		parsed.RequestID = request.RequestID
		parsed.RequestTime = request.RequestTime
		return parsed, nil
	}
	return a.parseText(request), nil
}

func (a *NearestVehicleAgent) parseText(request models.NaturalLanguageRequest) models.StructuredRequest {
	text := request.Text
	lower := strings.ToLower(text)

	parsed := models.StructuredRequest{
		RequestID:      request.RequestID,
		RequestTime:    request.RequestTime,
		PassengerCount: 1,
	}

	origin, destination := a.resolveEndpoints(text)
	parsed.Origin = origin
	parsed.Destination = destination

	parsed.WheelchairAccessible = strings.Contains(lower, "wheelchair") ||
		strings.Contains(lower, "accessible")
	parsed.SharedRideOK = strings.Contains(lower, "shared") ||
		strings.Contains(lower, "carpool") ||
		strings.Contains(lower, "pool")
	parsed.HasArrivalConstraint = strings.Contains(lower, "arrive by") ||
		strings.Contains(lower, "there by") ||
		strings.Contains(lower, "no later than")

	if m := passengerCountPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			parsed.PassengerCount = n
		}
	}

	return parsed
}

// resolveEndpoints picks origin and destination from zone mentions in the
// text. One mention after a "to" reads as the destination; defaults fill
// whatever the text leaves open.
func (a *NearestVehicleAgent) resolveEndpoints(text string) (models.Location, models.Location) {
	origin, _ := a.zones.Centroid(fallbackOriginZone)
	destination, _ := a.zones.Centroid(fallbackDestinationZone)

	mentions := a.zones.FindMentions(text)
	switch {
	case len(mentions) >= 2:
		origin = a.centroidOf(mentions[0].Zone)
		destination = a.centroidOf(mentions[1].Zone)
	case len(mentions) == 1:
		m := mentions[0]
		toIdx := strings.LastIndex(strings.ToLower(text[:m.Index]), " to ")
		if toIdx >= 0 {
			destination = a.centroidOf(m.Zone)
		} else {
			origin = a.centroidOf(m.Zone)
		}
	}
	return origin, destination
}

func (a *NearestVehicleAgent) centroidOf(z *geo.Zone) models.Location {
	loc, _ := a.zones.Centroid(z.ID)
	return loc
}

// Route implements RoutingAgent: nearest idle vehicle to the pickup,
// honoring the wheelchair requirement. Vehicles already en route are
// visible but never chosen.
func (a *NearestVehicleAgent) Route(ctx context.Context, parsed models.StructuredRequest, fleetView FleetView) (models.RoutingDecision, error) {
	pickup := a.resolveLocation(parsed.Origin)
	dropoff := a.resolveLocation(parsed.Destination)

	candidates := fleetView.Available(fleet.Query{
		Center:             &pickup,
		WheelchairRequired: parsed.WheelchairAccessible,
	})

	var chosen *models.Vehicle
	for i := range candidates {
		if candidates[i].Status == models.VehicleStatusIdle {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return models.RoutingDecision{}, common.NewAgentRouteError(
			fmt.Sprintf("no idle vehicle available for request %s", parsed.RequestID), nil)
	}

	pickupMiles, pickupMinutes := a.oracle.Query(chosen.CurrentLocation, pickup)
	tripMiles, tripMinutes := a.oracle.Query(pickup, dropoff)

	estimatedPickup := parsed.RequestTime.Add(minutesToDuration(pickupMinutes))
	estimatedDropoff := estimatedPickup.Add(minutesToDuration(tripMinutes))

	return models.RoutingDecision{
		RequestID:                    parsed.RequestID,
		VehicleID:                    chosen.VehicleID,
		EstimatedPickupTime:          estimatedPickup,
		EstimatedDropoffTime:         estimatedDropoff,
		EstimatedPickupDistanceMiles: pickupMiles,
		EstimatedTripDistanceMiles:   tripMiles,
		DecisionRationale: fmt.Sprintf("nearest idle vehicle %s, %.2f mi from pickup",
			chosen.VehicleID, pickupMiles),
	}, nil
}

// QueryDistanceAndTime implements RoutingAgent via the shared oracle
func (a *NearestVehicleAgent) QueryDistanceAndTime(ctx context.Context, from, to models.Location) (float64, float64, error) {
	miles, minutes := a.oracle.Query(from, to)
	return miles, minutes, nil
}

func (a *NearestVehicleAgent) resolveLocation(loc models.Location) models.Location {
	if !loc.HasCoordinates() && loc.ZoneID != nil {
		if centroid, ok := a.zones.Centroid(*loc.ZoneID); ok {
			return centroid
		}
	}
	return loc
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
