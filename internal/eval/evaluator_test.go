package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridebench/dispatchsim/internal/pricing"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/models"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *geo.Registry) {
	t.Helper()
	registry := geo.NewRegistry()
	return NewEvaluator(registry, pricing.NewCalculator()), registry
}

func centroid(t *testing.T, registry *geo.Registry, zoneID int) models.Location {
	t.Helper()
	loc, ok := registry.Centroid(zoneID)
	require.True(t, ok)
	return loc
}

func labeledRequest(t *testing.T, registry *geo.Registry, id string, at time.Time, originZone, destZone int) models.NaturalLanguageRequest {
	t.Helper()
	return models.NaturalLanguageRequest{
		RequestID:   id,
		RequestTime: at,
		Text:        "test request",
		GroundTruth: &models.StructuredRequest{
			RequestID:      id,
			RequestTime:    at,
			Origin:         centroid(t, registry, originZone),
			Destination:    centroid(t, registry, destZone),
			PassengerCount: 1,
		},
	}
}

func TestEvaluateRequestFullMatch(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	request := labeledRequest(t, registry, "req-001", at, 161, 79)
	parsed := *request.GroundTruth
	result := models.TripResult{
		RequestID:        "req-001",
		VehicleID:        "veh-001",
		ActualPickupTime: at.Add(5 * time.Minute),
		CompletionTime:   at.Add(15 * time.Minute),
		TripDistance:     2.0,
		DeadheadMiles:    1.0,
		Fare:             10.0,
	}

	score := e.EvaluateRequest(request, parsed, models.RoutingDecision{VehicleID: "veh-001"}, result)

	assert.True(t, score.HasGroundTruth)
	assert.True(t, score.ParseCorrect)
	assert.True(t, score.OriginZoneMatch)
	assert.True(t, score.DestinationZoneMatch)
	assert.True(t, score.TimeConstraintMatch)
	assert.True(t, score.SpecialRequirementsMatch)
	assert.Zero(t, score.OriginErrorMiles)
	assert.Zero(t, score.DestinationErrorMiles)
	assert.InDelta(t, 5.0, score.PickupWaitMinutes, 1e-9)
	assert.InDelta(t, 2.0/3.0, score.TripShare, 1e-9)
	assert.InDelta(t, 2.0/3.0, score.PerRequestScore, 1e-9)
	assert.InDelta(t, 10.0, score.Fare, 1e-9)
}

func TestEvaluateRequestParseMiss(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	request := labeledRequest(t, registry, "req-001", at, 161, 79)
	parsed := *request.GroundTruth
	parsed.Destination = centroid(t, registry, 90) // wrong zone

	score := e.EvaluateRequest(request, parsed, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at, CompletionTime: at, TripDistance: 2.0, DeadheadMiles: 1.0, Fare: 10.0,
	})

	assert.True(t, score.OriginZoneMatch)
	assert.False(t, score.DestinationZoneMatch)
	assert.False(t, score.ParseCorrect)
	assert.Greater(t, score.DestinationErrorMiles, 0.0)
	// A wrong parse zeroes the request score regardless of trip efficiency
	assert.Zero(t, score.PerRequestScore)
}

func TestEvaluateRequestResolvesCoordinatesToZones(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	request := labeledRequest(t, registry, "req-001", at, 161, 79)
	// Parsed locations carry coordinates near the centroids but no zone
	// annotations; the registry resolves them.
	parsed := *request.GroundTruth
	parsed.Origin = models.Location{Latitude: 40.7550, Longitude: -73.9788}
	parsed.Destination = models.Location{Latitude: 40.7274, Longitude: -73.9838}

	score := e.EvaluateRequest(request, parsed, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at, CompletionTime: at, TripDistance: 1.0, Fare: 5.0,
	})

	assert.True(t, score.ParseCorrect)
	assert.Greater(t, score.OriginErrorMiles, 0.0)
	assert.Less(t, score.OriginErrorMiles, 0.1)
}

func TestEvaluateRequestWithoutGroundTruth(t *testing.T) {
	e, _ := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	request := models.NaturalLanguageRequest{RequestID: "req-001", RequestTime: at, Text: "unlabeled"}
	score := e.EvaluateRequest(request, models.StructuredRequest{}, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at.Add(3 * time.Minute),
		CompletionTime:   at.Add(10 * time.Minute),
		TripDistance:     3.0,
		DeadheadMiles:    1.0,
		Fare:             12.0,
	})

	assert.False(t, score.HasGroundTruth)
	// Unlabeled requests are scored on trip efficiency alone
	assert.InDelta(t, 0.75, score.PerRequestScore, 1e-9)

	summary := e.Summary()
	assert.Zero(t, summary.RequestsWithGroundTruth)
	assert.Zero(t, summary.ParsingAccuracy)
}

func TestEvaluateRequestConstraintMismatches(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	request := labeledRequest(t, registry, "req-001", at, 161, 79)
	request.GroundTruth.WheelchairAccessible = true
	request.GroundTruth.HasArrivalConstraint = true

	parsed := *request.GroundTruth
	parsed.WheelchairAccessible = false
	parsed.HasArrivalConstraint = false

	score := e.EvaluateRequest(request, parsed, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at, CompletionTime: at, TripDistance: 1.0, Fare: 5.0,
	})

	assert.False(t, score.TimeConstraintMatch)
	assert.False(t, score.SpecialRequirementsMatch)
	// Zone matching is unaffected by constraint mismatches
	assert.True(t, score.ParseCorrect)
}

func TestSummaryAggregates(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	// One correct parse, one wrong parse
	first := labeledRequest(t, registry, "req-001", at, 161, 79)
	e.EvaluateRequest(first, *first.GroundTruth, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at.Add(2 * time.Minute), CompletionTime: at.Add(10 * time.Minute),
		TripDistance: 2.0, DeadheadMiles: 1.0, Fare: 10.0,
	})

	second := labeledRequest(t, registry, "req-002", at.Add(time.Minute), 90, 107)
	wrong := *second.GroundTruth
	wrong.Origin = centroid(t, registry, 161)
	e.EvaluateRequest(second, wrong, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at.Add(4 * time.Minute), CompletionTime: at.Add(12 * time.Minute),
		TripDistance: 3.0, DeadheadMiles: 2.0, Fare: 14.0,
	})

	e.RecordFailure("req-003")

	s := e.Summary()
	assert.Equal(t, 2, s.RequestsEvaluated)
	assert.Equal(t, 1, s.FailedRequests)
	assert.Equal(t, 2, s.RequestsWithGroundTruth)
	assert.InDelta(t, 0.5, s.ParsingAccuracy, 1e-9)
	assert.InDelta(t, 0.5, s.OriginZoneAccuracy, 1e-9)
	assert.InDelta(t, 1.0, s.DestinationZoneAccuracy, 1e-9)

	assert.InDelta(t, 24.0, s.TotalRevenue, 1e-9)
	assert.InDelta(t, 5.0, s.TotalTripMiles, 1e-9)
	assert.InDelta(t, 3.0, s.TotalDeadheadMiles, 1e-9)
	// 3 deadhead miles at the default 0.50/mi
	assert.InDelta(t, 1.5, s.TotalIdleCost, 1e-9)
	assert.InDelta(t, 22.5, s.NetRevenue, 1e-9)
	assert.InDelta(t, 3.0/8.0, s.DeadheadRatio, 1e-9)
	assert.InDelta(t, 24.0/5.0, s.RevenuePerMile, 1e-9)
	assert.InDelta(t, 2.5, s.MeanPickupWait, 1e-9)
	// req-001 scores 2/3, req-002 scores 0, and the failed req-003 counts
	// in the denominator.
	assert.InDelta(t, (2.0/3.0)/3.0, s.MeanRequestScore, 1e-9)

	wantOverall := 100 * (0.6*0.5 + 0.4*(22.5/24.0))
	assert.InDelta(t, wantOverall, s.OverallScore, 1e-9)
}

func TestSummaryEmptyRun(t *testing.T) {
	e, _ := newTestEvaluator(t)

	s := e.Summary()
	assert.Zero(t, s.OverallScore)
	assert.Zero(t, s.RequestsEvaluated)
	assert.Zero(t, s.DeadheadRatio)
	assert.Zero(t, s.RevenuePerMile)
	assert.Zero(t, s.MeanPickupWait)
}

func TestSummaryAllFailures(t *testing.T) {
	e, _ := newTestEvaluator(t)
	e.RecordFailure("req-001")
	e.RecordFailure("req-002")

	s := e.Summary()
	assert.Equal(t, 2, s.FailedRequests)
	assert.Zero(t, s.RequestsEvaluated)
	assert.Zero(t, s.OverallScore)
	assert.Zero(t, s.MeanRequestScore)
}

func TestReset(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	request := labeledRequest(t, registry, "req-001", at, 161, 79)
	e.EvaluateRequest(request, *request.GroundTruth, models.RoutingDecision{}, models.TripResult{
		ActualPickupTime: at, CompletionTime: at, TripDistance: 1.0, Fare: 5.0,
	})
	e.RecordFailure("req-002")
	require.NotEmpty(t, e.Scores())

	e.Reset()
	assert.Empty(t, e.Scores())
	s := e.Summary()
	assert.Zero(t, s.RequestsEvaluated)
	assert.Zero(t, s.FailedRequests)
	assert.Zero(t, s.TotalRevenue)
}

func TestResetReplayMatchesOriginalRun(t *testing.T) {
	e, registry := newTestEvaluator(t)
	at := time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC)

	replay := func() Summary {
		first := labeledRequest(t, registry, "req-001", at, 161, 79)
		e.EvaluateRequest(first, *first.GroundTruth, models.RoutingDecision{VehicleID: "veh-001"}, models.TripResult{
			ActualPickupTime: at.Add(2 * time.Minute), CompletionTime: at.Add(10 * time.Minute),
			TripDistance: 2.0, DeadheadMiles: 1.0, Fare: 10.0,
		})

		second := labeledRequest(t, registry, "req-002", at.Add(time.Minute), 90, 107)
		wrong := *second.GroundTruth
		wrong.Origin = centroid(t, registry, 161)
		e.EvaluateRequest(second, wrong, models.RoutingDecision{VehicleID: "veh-002"}, models.TripResult{
			ActualPickupTime: at.Add(4 * time.Minute), CompletionTime: at.Add(12 * time.Minute),
			TripDistance: 3.0, DeadheadMiles: 2.0, Fare: 14.0,
		})

		e.RecordFailure("req-003")
		return e.Summary()
	}

	original := replay()
	e.Reset()
	assert.Equal(t, original, replay())
}
