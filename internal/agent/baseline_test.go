package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/models"
)

func newBaselineAgent() (*NearestVehicleAgent, geo.Oracle, *geo.Registry) {
	zones := geo.NewRegistry()
	oracle := geo.NewPlanarOracle(30, zones)
	return NewNearestVehicleAgent(oracle, zones), oracle, zones
}

func idleVehicle(id string, lat, lng float64) models.Vehicle {
	return models.Vehicle{
		VehicleID:       id,
		CurrentLocation: models.Location{Latitude: lat, Longitude: lng},
		Status:          models.VehicleStatusIdle,
		Capacity:        4,
	}
}

func TestNearestVehicleAgentName(t *testing.T) {
	a, _, _ := newBaselineAgent()
	assert.Equal(t, "baseline-nearest", a.Name())
}

func TestParseGroundTruthPassthrough(t *testing.T) {
	a, _, zones := newBaselineAgent()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	origin, _ := zones.Centroid(161)
	destination, _ := zones.Centroid(79)
	gt := &models.StructuredRequest{
		RequestID:            "stale-id",
		RequestTime:          at.Add(-time.Hour),
		Origin:               origin,
		Destination:          destination,
		PassengerCount:       2,
		WheelchairAccessible: true,
	}

	parsed, err := a.Parse(context.Background(), models.NaturalLanguageRequest{
		RequestID:   "req-001",
		RequestTime: at,
		Text:        "I need a wheelchair accessible ride",
		GroundTruth: gt,
	}, NewSnapshot(nil))
	require.NoError(t, err)

	// Envelope identity wins over whatever the ground truth carried.
	assert.Equal(t, "req-001", parsed.RequestID)
	assert.True(t, parsed.RequestTime.Equal(at))
	assert.Equal(t, origin, parsed.Origin)
	assert.Equal(t, destination, parsed.Destination)
	assert.Equal(t, 2, parsed.PassengerCount)
	assert.True(t, parsed.WheelchairAccessible)
}

func TestParseTextResolvesZoneMentions(t *testing.T) {
	a, _, _ := newBaselineAgent()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	parsed, err := a.Parse(context.Background(), models.NaturalLanguageRequest{
		RequestID:   "req-002",
		RequestTime: at,
		Text:        "I need a ride from Midtown Center to East Village, there will be 3 of us",
	}, NewSnapshot(nil))
	require.NoError(t, err)

	require.NotNil(t, parsed.Origin.ZoneID)
	require.NotNil(t, parsed.Destination.ZoneID)
	assert.Equal(t, 161, *parsed.Origin.ZoneID)
	assert.Equal(t, 79, *parsed.Destination.ZoneID)
	assert.InDelta(t, 40.7549, parsed.Origin.Latitude, 1e-9)
	assert.InDelta(t, -73.9837, parsed.Destination.Longitude, 1e-9)
	assert.Equal(t, 3, parsed.PassengerCount)
}

func TestParseTextFallsBackToDefaultZones(t *testing.T) {
	a, _, _ := newBaselineAgent()

	parsed, err := a.Parse(context.Background(), models.NaturalLanguageRequest{
		RequestID:   "req-003",
		RequestTime: time.Now(),
		Text:        "pick me up please",
	}, NewSnapshot(nil))
	require.NoError(t, err)

	require.NotNil(t, parsed.Origin.ZoneID)
	require.NotNil(t, parsed.Destination.ZoneID)
	assert.Equal(t, 161, *parsed.Origin.ZoneID)
	assert.Equal(t, 79, *parsed.Destination.ZoneID)
	assert.Equal(t, 1, parsed.PassengerCount)
}

func TestParseTextSingleMention(t *testing.T) {
	a, _, _ := newBaselineAgent()

	t.Run("after to reads as destination", func(t *testing.T) {
		parsed, err := a.Parse(context.Background(), models.NaturalLanguageRequest{
			RequestID:   "req-004",
			RequestTime: time.Now(),
			Text:        "Take me to Gramercy please",
		}, NewSnapshot(nil))
		require.NoError(t, err)

		require.NotNil(t, parsed.Destination.ZoneID)
		assert.Equal(t, 107, *parsed.Destination.ZoneID)
		require.NotNil(t, parsed.Origin.ZoneID)
		assert.Equal(t, 161, *parsed.Origin.ZoneID)
	})

	t.Run("otherwise reads as origin", func(t *testing.T) {
		parsed, err := a.Parse(context.Background(), models.NaturalLanguageRequest{
			RequestID:   "req-005",
			RequestTime: time.Now(),
			Text:        "Leaving from Gramercy, need a cab soon",
		}, NewSnapshot(nil))
		require.NoError(t, err)

		require.NotNil(t, parsed.Origin.ZoneID)
		assert.Equal(t, 107, *parsed.Origin.ZoneID)
		require.NotNil(t, parsed.Destination.ZoneID)
		assert.Equal(t, 79, *parsed.Destination.ZoneID)
	})
}

func TestParseTextConstraintFlags(t *testing.T) {
	a, _, _ := newBaselineAgent()

	tests := []struct {
		name       string
		text       string
		wheelchair bool
		shared     bool
		arrival    bool
		passengers int
	}{
		{
			name:       "plain request",
			text:       "I need a ride downtown",
			passengers: 1,
		},
		{
			name:       "wheelchair keyword",
			text:       "I need a wheelchair van",
			wheelchair: true,
			passengers: 1,
		},
		{
			name:       "accessible keyword",
			text:       "needs to be accessible",
			wheelchair: true,
			passengers: 1,
		},
		{
			name:       "pool keyword",
			text:       "happy to pool with others",
			shared:     true,
			passengers: 1,
		},
		{
			name:       "carpool keyword",
			text:       "a carpool works for me",
			shared:     true,
			passengers: 1,
		},
		{
			name:       "arrive by deadline",
			text:       "I have to arrive by 5pm",
			arrival:    true,
			passengers: 1,
		},
		{
			name:       "no later than deadline",
			text:       "get me there no later than noon",
			arrival:    true,
			passengers: 1,
		},
		{
			name:       "party size",
			text:       "party of 4 people heading out",
			passengers: 4,
		},
		{
			name:       "riders phrasing",
			text:       "2 riders waiting outside",
			passengers: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := a.Parse(context.Background(), models.NaturalLanguageRequest{
				RequestID:   "req-flags",
				RequestTime: time.Now(),
				Text:        tt.text,
			}, NewSnapshot(nil))
			require.NoError(t, err)

			assert.Equal(t, tt.wheelchair, parsed.WheelchairAccessible)
			assert.Equal(t, tt.shared, parsed.SharedRideOK)
			assert.Equal(t, tt.arrival, parsed.HasArrivalConstraint)
			assert.Equal(t, tt.passengers, parsed.PassengerCount)
		})
	}
}

func TestRoutePicksNearestIdleVehicle(t *testing.T) {
	a, oracle, _ := newBaselineAgent()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	enRoute := idleVehicle("veh-enroute", 40.76, -73.98)
	enRoute.Status = models.VehicleStatusEnRouteToPickup
	busy := idleVehicle("veh-busy", 40.76, -73.98)
	busy.Status = models.VehicleStatusOnTrip

	view := NewSnapshot([]models.Vehicle{
		idleVehicle("veh-far", 40.80, -73.98),
		idleVehicle("veh-near", 40.75, -73.98),
		enRoute,
		busy,
	})

	parsed := models.StructuredRequest{
		RequestID:      "req-010",
		RequestTime:    at,
		Origin:         models.Location{Latitude: 40.76, Longitude: -73.98},
		Destination:    models.Location{Latitude: 40.78, Longitude: -73.98},
		PassengerCount: 1,
	}

	decision, err := a.Route(context.Background(), parsed, view)
	require.NoError(t, err)

	// veh-enroute sits on the pickup point but is never chosen; veh-near is
	// the closest idle unit.
	assert.Equal(t, "veh-near", decision.VehicleID)
	assert.Equal(t, "req-010", decision.RequestID)
	assert.InDelta(t, 0.69, decision.EstimatedPickupDistanceMiles, 1e-6)
	assert.InDelta(t, 1.38, decision.EstimatedTripDistanceMiles, 1e-6)
	assert.Contains(t, decision.DecisionRationale, "veh-near")

	pickupMiles, pickupMinutes := oracle.Query(models.Location{Latitude: 40.75, Longitude: -73.98}, parsed.Origin)
	_, tripMinutes := oracle.Query(parsed.Origin, parsed.Destination)
	require.InDelta(t, 0.69, pickupMiles, 1e-6)
	assert.WithinDuration(t, at.Add(time.Duration(pickupMinutes*float64(time.Minute))), decision.EstimatedPickupTime, time.Second)
	assert.WithinDuration(t, decision.EstimatedPickupTime.Add(time.Duration(tripMinutes*float64(time.Minute))), decision.EstimatedDropoffTime, time.Second)
}

func TestRouteResolvesZoneOnlyEndpoints(t *testing.T) {
	a, oracle, zones := newBaselineAgent()

	midtown, _ := zones.Centroid(161)
	eastVillage, _ := zones.Centroid(79)
	view := NewSnapshot([]models.Vehicle{
		idleVehicle("veh-001", midtown.Latitude, midtown.Longitude),
	})

	originZone, destZone := 161, 79
	parsed := models.StructuredRequest{
		RequestID:   "req-011",
		RequestTime: time.Now(),
		Origin:      models.Location{ZoneID: &originZone},
		Destination: models.Location{ZoneID: &destZone},
	}

	decision, err := a.Route(context.Background(), parsed, view)
	require.NoError(t, err)

	assert.Equal(t, "veh-001", decision.VehicleID)
	assert.InDelta(t, 0, decision.EstimatedPickupDistanceMiles, 1e-9)

	wantTripMiles, _ := oracle.Query(midtown, eastVillage)
	assert.InDelta(t, wantTripMiles, decision.EstimatedTripDistanceMiles, 1e-9)
}

func TestRouteHonorsWheelchairRequirement(t *testing.T) {
	a, _, _ := newBaselineAgent()

	ramp := idleVehicle("veh-ramp", 40.80, -73.98)
	ramp.WheelchairAccessible = true
	view := NewSnapshot([]models.Vehicle{
		idleVehicle("veh-plain", 40.76, -73.98),
		ramp,
	})

	parsed := models.StructuredRequest{
		RequestID:            "req-012",
		RequestTime:          time.Now(),
		Origin:               models.Location{Latitude: 40.76, Longitude: -73.98},
		Destination:          models.Location{Latitude: 40.78, Longitude: -73.98},
		WheelchairAccessible: true,
	}

	decision, err := a.Route(context.Background(), parsed, view)
	require.NoError(t, err)
	assert.Equal(t, "veh-ramp", decision.VehicleID)
}

func TestRouteFailsWithoutIdleVehicle(t *testing.T) {
	a, _, _ := newBaselineAgent()

	busy := idleVehicle("veh-busy", 40.76, -73.98)
	busy.Status = models.VehicleStatusOnTrip
	enRoute := idleVehicle("veh-enroute", 40.76, -73.98)
	enRoute.Status = models.VehicleStatusEnRouteToPickup

	parsed := models.StructuredRequest{
		RequestID:   "req-013",
		RequestTime: time.Now(),
		Origin:      models.Location{Latitude: 40.76, Longitude: -73.98},
		Destination: models.Location{Latitude: 40.78, Longitude: -73.98},
	}

	for name, view := range map[string]FleetView{
		"empty fleet":   NewSnapshot(nil),
		"no idle units": NewSnapshot([]models.Vehicle{busy, enRoute}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Route(context.Background(), parsed, view)
			require.Error(t, err)

			appErr, ok := common.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, common.CodeAgentRouteError, appErr.ErrorCode)
			assert.Contains(t, appErr.Message, "req-013")
		})
	}
}

func TestQueryDistanceAndTimeUsesOracle(t *testing.T) {
	a, oracle, _ := newBaselineAgent()

	from := models.Location{Latitude: 40.75, Longitude: -73.98}
	to := models.Location{Latitude: 40.76, Longitude: -73.98}

	miles, minutes, err := a.QueryDistanceAndTime(context.Background(), from, to)
	require.NoError(t, err)

	wantMiles, wantMinutes := oracle.Query(from, to)
	assert.InDelta(t, wantMiles, miles, 1e-9)
	assert.InDelta(t, wantMinutes, minutes, 1e-9)
	assert.InDelta(t, 0.69, miles, 1e-6)
	assert.InDelta(t, 1.38, minutes, 1e-6)
}
