package eval

import (
	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/internal/pricing"
	"github.com/ridebench/dispatchsim/pkg/geo"
	"github.com/ridebench/dispatchsim/pkg/logger"
	"github.com/ridebench/dispatchsim/pkg/models"
)

// Score weighting: parsing quality dominates, revenue efficiency fills the
// rest. Both components are monotone, so improving either never lowers the
// overall score.
const (
	parsingWeight = 0.6
	revenueWeight = 0.4
)

// RequestScore is the per-request evaluation detail
type RequestScore struct {
	RequestID string `json:"request_id"`

	HasGroundTruth           bool    `json:"has_ground_truth"`
	ParseCorrect             bool    `json:"parse_correct"`
	OriginZoneMatch          bool    `json:"origin_zone_match"`
	DestinationZoneMatch     bool    `json:"destination_zone_match"`
	OriginErrorMiles         float64 `json:"origin_error_miles"`
	DestinationErrorMiles    float64 `json:"destination_error_miles"`
	TimeConstraintMatch      bool    `json:"time_constraint_match"`
	SpecialRequirementsMatch bool    `json:"special_requirements_match"`

	Fare              float64 `json:"fare"`
	DeadheadMiles     float64 `json:"deadhead_miles"`
	PickupWaitMinutes float64 `json:"pickup_wait_minutes"`
	TripShare         float64 `json:"trip_share"`
	PerRequestScore   float64 `json:"per_request_score"`
}

// Summary is the aggregate outcome of an evaluation run
type Summary struct {
	OverallScore      float64 `json:"overall_score"`
	RequestsEvaluated int     `json:"requests_evaluated"`
	FailedRequests    int     `json:"failed_requests"`

	RequestsWithGroundTruth     int     `json:"requests_with_ground_truth"`
	ParsingAccuracy             float64 `json:"parsing_accuracy"`
	OriginZoneAccuracy          float64 `json:"origin_zone_accuracy"`
	DestinationZoneAccuracy     float64 `json:"destination_zone_accuracy"`
	MeanOriginErrorMiles        float64 `json:"mean_origin_error_miles"`
	MeanDestinationErrorMiles   float64 `json:"mean_destination_error_miles"`
	TimeConstraintAccuracy      float64 `json:"time_constraint_accuracy"`
	SpecialRequirementsAccuracy float64 `json:"special_requirements_accuracy"`

	TotalRevenue       float64 `json:"total_revenue"`
	TotalTripMiles     float64 `json:"total_trip_miles"`
	TotalDeadheadMiles float64 `json:"total_deadhead_miles"`
	TotalIdleCost      float64 `json:"total_idle_cost"`
	NetRevenue         float64 `json:"net_revenue"`
	DeadheadRatio      float64 `json:"deadhead_ratio"`
	RevenuePerMile     float64 `json:"revenue_per_mile"`
	MeanPickupWait     float64 `json:"mean_pickup_wait_minutes"`
	MeanRequestScore   float64 `json:"mean_request_score"`
}

// Evaluator accumulates evaluation metrics over a run. Parsing metrics only
// cover requests that carry ground truth; routing metrics cover every
// completed trip. Aggregates are computed on unrounded values.
type Evaluator struct {
	zones *geo.Registry
	fares *pricing.Calculator

	scores []RequestScore
	failed int

	withGroundTruth  int
	bothZonesMatched int
	originMatched    int
	destMatched      int
	timeMatched      int
	specialMatched   int
	originErrorSum   float64
	destErrorSum     float64

	revenueSum    float64
	tripMilesSum  float64
	deadheadSum   float64
	pickupWaitSum float64
	scoreSum      float64
}

// NewEvaluator creates an evaluator. The registry resolves coordinates to
// zones when a parsed location has no zone annotation.
func NewEvaluator(zones *geo.Registry, fares *pricing.Calculator) *Evaluator {
	return &Evaluator{zones: zones, fares: fares}
}

// Reset wipes all accumulators. Called at the start of every run.
func (e *Evaluator) Reset() {
	*e = Evaluator{zones: e.zones, fares: e.fares}
}

// RecordFailure counts a request that never produced a trip
func (e *Evaluator) RecordFailure(requestID string) {
	e.failed++
	logger.Debug("request marked failed", zap.String("request_id", requestID))
}

// EvaluateRequest scores one completed request and folds it into the
// aggregates
func (e *Evaluator) EvaluateRequest(request models.NaturalLanguageRequest, parsed models.StructuredRequest, decision models.RoutingDecision, result models.TripResult) RequestScore {
	score := RequestScore{
		RequestID:     request.RequestID,
		Fare:          pricing.Round2(result.Fare),
		DeadheadMiles: result.DeadheadMiles,
	}

	score.PickupWaitMinutes = result.ActualPickupTime.Sub(request.RequestTime).Minutes()

	totalMiles := result.TripDistance + result.DeadheadMiles
	if totalMiles > 0 {
		score.TripShare = result.TripDistance / totalMiles
	}

	parseFactor := 1.0
	if gt := request.GroundTruth; gt != nil {
		score.HasGroundTruth = true
		e.withGroundTruth++

		score.OriginZoneMatch = e.zonesMatch(parsed.Origin, gt.Origin)
		score.DestinationZoneMatch = e.zonesMatch(parsed.Destination, gt.Destination)
		score.ParseCorrect = score.OriginZoneMatch && score.DestinationZoneMatch
		score.OriginErrorMiles = locationError(parsed.Origin, gt.Origin)
		score.DestinationErrorMiles = locationError(parsed.Destination, gt.Destination)
		score.TimeConstraintMatch = parsed.HasArrivalConstraint == gt.HasArrivalConstraint
		score.SpecialRequirementsMatch = parsed.WheelchairAccessible == gt.WheelchairAccessible &&
			parsed.SharedRideOK == gt.SharedRideOK

		if score.OriginZoneMatch {
			e.originMatched++
		}
		if score.DestinationZoneMatch {
			e.destMatched++
		}
		if score.ParseCorrect {
			e.bothZonesMatched++
		}
		if score.TimeConstraintMatch {
			e.timeMatched++
		}
		if score.SpecialRequirementsMatch {
			e.specialMatched++
		}
		e.originErrorSum += score.OriginErrorMiles
		e.destErrorSum += score.DestinationErrorMiles

		if !score.ParseCorrect {
			parseFactor = 0
		}
	}

	score.PerRequestScore = parseFactor * score.TripShare

	e.scores = append(e.scores, score)
	e.revenueSum += result.Fare
	e.tripMilesSum += result.TripDistance
	e.deadheadSum += result.DeadheadMiles
	e.pickupWaitSum += score.PickupWaitMinutes
	e.scoreSum += score.PerRequestScore

	return score
}

// zonesMatch compares the zone of a parsed location against ground truth,
// resolving coordinates through the registry when needed
func (e *Evaluator) zonesMatch(parsed, truth models.Location) bool {
	parsedZone, okParsed := e.zoneOf(parsed)
	truthZone, okTruth := e.zoneOf(truth)
	return okParsed && okTruth && parsedZone == truthZone
}

func (e *Evaluator) zoneOf(loc models.Location) (int, bool) {
	if loc.ZoneID != nil {
		return *loc.ZoneID, true
	}
	if e.zones != nil && loc.HasCoordinates() {
		if z, ok := e.zones.ZoneFor(loc.Latitude, loc.Longitude); ok {
			return z.ID, true
		}
	}
	return 0, false
}

// locationError is the great-circle miles between a parsed location and
// ground truth; zero when either side has no coordinates
func locationError(parsed, truth models.Location) float64 {
	if !parsed.HasCoordinates() || !truth.HasCoordinates() {
		return 0
	}
	return geo.Haversine(parsed.Latitude, parsed.Longitude, truth.Latitude, truth.Longitude)
}

// Scores returns the per-request details recorded so far
func (e *Evaluator) Scores() []RequestScore {
	out := make([]RequestScore, len(e.scores))
	copy(out, e.scores)
	return out
}

// Summary computes the aggregate snapshot
func (e *Evaluator) Summary() Summary {
	s := Summary{
		RequestsEvaluated:       len(e.scores),
		FailedRequests:          e.failed,
		RequestsWithGroundTruth: e.withGroundTruth,
		TotalRevenue:            e.revenueSum,
		TotalTripMiles:          e.tripMilesSum,
		TotalDeadheadMiles:      e.deadheadSum,
	}

	if e.withGroundTruth > 0 {
		n := float64(e.withGroundTruth)
		s.ParsingAccuracy = float64(e.bothZonesMatched) / n
		s.OriginZoneAccuracy = float64(e.originMatched) / n
		s.DestinationZoneAccuracy = float64(e.destMatched) / n
		s.MeanOriginErrorMiles = e.originErrorSum / n
		s.MeanDestinationErrorMiles = e.destErrorSum / n
		s.TimeConstraintAccuracy = float64(e.timeMatched) / n
		s.SpecialRequirementsAccuracy = float64(e.specialMatched) / n
	}

	s.TotalIdleCost = e.fares.IdleCost(e.deadheadSum)
	s.NetRevenue = s.TotalRevenue - s.TotalIdleCost

	if totalMiles := e.tripMilesSum + e.deadheadSum; totalMiles > 0 {
		s.DeadheadRatio = e.deadheadSum / totalMiles
	}
	if e.tripMilesSum > 0 {
		s.RevenuePerMile = s.TotalRevenue / e.tripMilesSum
	}
	if n := len(e.scores); n > 0 {
		s.MeanPickupWait = e.pickupWaitSum / float64(n)
	}
	// Failed requests score zero but stay in the mean-score denominator.
	if n := len(e.scores) + e.failed; n > 0 {
		s.MeanRequestScore = e.scoreSum / float64(n)
	}

	s.OverallScore = e.overallScore(s)
	return s
}

// overallScore combines parsing accuracy and net revenue efficiency on a
// 0-100 scale. Runs with no labeled requests are not penalized on the
// parsing component; empty runs score zero.
func (e *Evaluator) overallScore(s Summary) float64 {
	if s.RequestsEvaluated == 0 {
		return 0
	}

	parsing := 1.0
	if e.withGroundTruth > 0 {
		parsing = s.ParsingAccuracy
	}

	efficiency := 0.0
	if s.TotalRevenue > 0 {
		efficiency = s.NetRevenue / s.TotalRevenue
		if efficiency < 0 {
			efficiency = 0
		}
	}

	return 100 * (parsingWeight*parsing + revenueWeight*efficiency)
}
