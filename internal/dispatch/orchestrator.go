package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ridebench/dispatchsim/internal/agent"
	"github.com/ridebench/dispatchsim/internal/eval"
	"github.com/ridebench/dispatchsim/internal/eventlog"
	"github.com/ridebench/dispatchsim/internal/fleet"
	"github.com/ridebench/dispatchsim/internal/pricing"
	"github.com/ridebench/dispatchsim/internal/trips"
	"github.com/ridebench/dispatchsim/pkg/common"
	"github.com/ridebench/dispatchsim/pkg/errors"
	"github.com/ridebench/dispatchsim/pkg/logger"
	"github.com/ridebench/dispatchsim/pkg/models"
	"github.com/ridebench/dispatchsim/pkg/tracing"
)

// DefaultEndPadding extends the horizon past the last request time when no
// explicit end time is given.
const DefaultEndPadding = 120 * time.Minute

const tracerName = "dispatch"

// assignment remembers everything needed to score a request once its trip
// completes
type assignment struct {
	request  models.NaturalLanguageRequest
	parsed   models.StructuredRequest
	decision models.RoutingDecision
}

// Options tune one orchestrator instance
type Options struct {
	// EndPadding is added past the last request time when RunEvaluation is
	// called without an explicit end time. Zero means DefaultEndPadding.
	EndPadding time.Duration
	// InterRequestDelay inserts real wall-clock sleep between requests so a
	// live feed can be watched at human speed. Zero disables pacing.
	InterRequestDelay time.Duration
}

// Orchestrator drives an evaluation run: it owns the simulation clock,
// invokes the routing agent for each request, executes decisions on the
// vehicle simulator and feeds every completed trip through the evaluator.
// Single-threaded: one RunEvaluation at a time.
type Orchestrator struct {
	fleet    *fleet.State
	sim      *trips.Simulator
	eval     *eval.Evaluator
	recorder *eventlog.Recorder

	clock             SimulationClock
	endPadding        time.Duration
	interRequestDelay time.Duration

	assignments map[string]*assignment
}

// NewOrchestrator wires the simulation components together
func NewOrchestrator(fleetState *fleet.State, sim *trips.Simulator, evaluator *eval.Evaluator, recorder *eventlog.Recorder, opts Options) *Orchestrator {
	padding := opts.EndPadding
	if padding <= 0 {
		padding = DefaultEndPadding
	}

	return &Orchestrator{
		fleet:             fleetState,
		sim:               sim,
		eval:              evaluator,
		recorder:          recorder,
		endPadding:        padding,
		interRequestDelay: opts.InterRequestDelay,
		assignments:       make(map[string]*assignment),
	}
}

// Clock returns the current simulation time
func (o *Orchestrator) Clock() time.Time {
	return o.clock.Now()
}

// RunEvaluation executes the full scenario against the given agent and
// returns the evaluation summary. A single bad request never aborts the
// run; it is recorded as an ERROR event and counted as failed.
func (o *Orchestrator) RunEvaluation(ctx context.Context, routingAgent agent.RoutingAgent, requests []models.NaturalLanguageRequest, startTime, endTime *time.Time) (eval.Summary, error) {
	runStart := time.Now()

	sorted := make([]models.NaturalLanguageRequest, len(requests))
	copy(sorted, requests)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].RequestTime.Equal(sorted[j].RequestTime) {
			return sorted[i].RequestTime.Before(sorted[j].RequestTime)
		}
		return sorted[i].RequestID < sorted[j].RequestID
	})

	start, end := o.bounds(sorted, startTime, endTime)

	o.clock.Reset()
	o.clock.Set(start)
	o.eval.Reset()
	o.assignments = make(map[string]*assignment)
	setActiveTrips(0)

	logger.Info("evaluation starting",
		zap.String("agent", routingAgent.Name()),
		zap.Int("request_count", len(sorted)),
		zap.Int("fleet_size", o.fleet.Count()),
		zap.Time("start", start),
		zap.Time("end", end),
	)

	o.recorder.Record(start, eventlog.EventEvaluationStart, map[string]interface{}{
		"agent":         routingAgent.Name(),
		"start_time":    start,
		"end_time":      end,
		"request_count": len(sorted),
		"fleet_size":    o.fleet.Count(),
	})

	for _, vehicle := range o.fleet.All() {
		o.recorder.Record(start, eventlog.EventVehicleInitialized, map[string]interface{}{
			"vehicle_id":            vehicle.VehicleID,
			"location":              vehicle.CurrentLocation,
			"status":                string(vehicle.Status),
			"wheelchair_accessible": vehicle.WheelchairAccessible,
			"capacity":              vehicle.Capacity,
		})
	}

	for i, request := range sorted {
		if i > 0 && o.interRequestDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(o.interRequestDelay):
			}
		}
		o.processRequest(ctx, routingAgent, request)
	}

	o.advanceToWithEvents(end)
	for _, result := range o.sim.ForceCompleteAll(end) {
		o.finalizeTrip(result)
	}
	setActiveTrips(o.sim.ActiveTripCount())

	summary := o.eval.Summary()
	o.recorder.Record(end, eventlog.EventEvaluationEnd, map[string]interface{}{
		"summary": summary,
	})

	recordEvaluationDuration(time.Since(runStart).Seconds())
	logger.Info("evaluation finished",
		zap.Float64("overall_score", summary.OverallScore),
		zap.Int("requests_evaluated", summary.RequestsEvaluated),
		zap.Int("failed_requests", summary.FailedRequests),
	)

	return summary, nil
}

// bounds resolves the run window. start defaults to the first request time,
// end to the last request time plus the configured padding.
func (o *Orchestrator) bounds(sorted []models.NaturalLanguageRequest, startTime, endTime *time.Time) (time.Time, time.Time) {
	var start time.Time
	switch {
	case startTime != nil:
		start = *startTime
	case len(sorted) > 0:
		start = sorted[0].RequestTime
	}

	var end time.Time
	switch {
	case endTime != nil:
		end = *endTime
	case len(sorted) > 0:
		end = sorted[len(sorted)-1].RequestTime.Add(o.endPadding)
	default:
		end = start.Add(o.endPadding)
	}

	if end.Before(start) {
		end = start
	}
	return start, end
}

// processRequest runs one request through the parse, route, execute pipeline.
// Each stage failure is recorded and terminates processing for this request
// only; the span mirrors the already-recorded outcome.
func (o *Orchestrator) processRequest(ctx context.Context, routingAgent agent.RoutingAgent, request models.NaturalLanguageRequest) {
	attrs := []attribute.KeyValue{
		tracing.RequestIDKey.String(request.RequestID),
		tracing.AgentKey.String(routingAgent.Name()),
	}
	_ = tracing.TraceOperation(ctx, tracerName, "dispatch.ProcessRequest", attrs, func(ctx context.Context) error {
		return o.evaluateRequest(ctx, routingAgent, request)
	})
}

func (o *Orchestrator) evaluateRequest(ctx context.Context, routingAgent agent.RoutingAgent, request models.NaturalLanguageRequest) error {
	if err := validateRequest(request); err != nil {
		o.recordError(ctx, err, o.clock.Now(), map[string]interface{}{
			"request_id": request.RequestID,
		})
		o.eval.RecordFailure(request.RequestID)
		recordRequestOutcome("invalid")
		return err
	}

	o.advanceToWithEvents(request.RequestTime)
	now := o.clock.Now()

	arrival := map[string]interface{}{
		"request_id":   request.RequestID,
		"request_time": request.RequestTime,
		"text":         request.Text,
	}
	if request.GroundTruth != nil {
		arrival["ground_truth"] = request.GroundTruth
	}
	o.recorder.Record(now, eventlog.EventRequestArrived, arrival)

	parsed, parseMS, err := o.timedParse(ctx, routingAgent, request)
	if err != nil {
		o.recordError(ctx, err, now, map[string]interface{}{
			"request_id": request.RequestID,
		})
		o.eval.RecordFailure(request.RequestID)
		recordRequestOutcome("parse_failed")
		return err
	}
	o.recorder.Record(now, eventlog.EventParsingResult, map[string]interface{}{
		"request_id":      request.RequestID,
		"parsed":          parsed,
		"parsing_time_ms": parseMS,
	})

	availableCount := len(o.fleet.Available(fleet.Query{}))
	decision, routeMS, err := o.timedRoute(ctx, routingAgent, parsed)
	if err != nil {
		o.recordError(ctx, err, now, map[string]interface{}{
			"request_id": request.RequestID,
		})
		o.eval.RecordFailure(request.RequestID)
		recordRequestOutcome("route_failed")
		return err
	}
	// The active-trip bookkeeping is keyed by request ID; never trust the
	// agent to echo it back correctly.
	decision.RequestID = request.RequestID
	o.recorder.Record(now, eventlog.EventRoutingDecision, map[string]interface{}{
		"request_id":               request.RequestID,
		"decision":                 decision,
		"decision_time_ms":         routeMS,
		"available_vehicles_count": availableCount,
	})

	vehicleBefore, _ := o.fleet.Get(decision.VehicleID)
	result, err := o.executeDecision(ctx, decision, parsed, now)
	if err != nil {
		o.recordError(ctx, err, now, map[string]interface{}{
			"request_id": request.RequestID,
			"vehicle_id": decision.VehicleID,
		})
		o.eval.RecordFailure(request.RequestID)
		recordRequestOutcome("execution_failed")
		return err
	}

	o.recorder.Record(now, eventlog.EventVehicleAssigned, map[string]interface{}{
		"vehicle_id":                decision.VehicleID,
		"request_id":                request.RequestID,
		"assignment_time":           now,
		"vehicle_location":          vehicleBefore.CurrentLocation,
		"pickup_location":           parsed.Origin,
		"estimated_pickup_distance": result.PickupDistanceMiles,
		"estimated_pickup_minutes":  result.PickupMinutes,
	})

	o.assignments[request.RequestID] = &assignment{
		request:  request,
		parsed:   parsed,
		decision: decision,
	}
	setActiveTrips(o.sim.ActiveTripCount())
	return nil
}

func (o *Orchestrator) timedParse(ctx context.Context, routingAgent agent.RoutingAgent, request models.NaturalLanguageRequest) (parsed models.StructuredRequest, elapsedMS float64, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.Parse")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = common.NewAgentParseError(fmt.Sprintf("agent panicked during parse: %v", r), nil)
		}
	}()

	started := time.Now()
	parsed, err = routingAgent.Parse(ctx, request, agent.NewSnapshot(o.fleet.All()))
	elapsed := time.Since(started)
	elapsedMS = float64(elapsed.Microseconds()) / 1000.0
	recordAgentCall("parse", elapsed.Seconds())

	if err != nil {
		tracing.RecordError(ctx, err)
		if _, ok := common.AsAppError(err); !ok {
			err = common.NewAgentParseError("agent parse failed", err)
		}
	}
	return parsed, elapsedMS, err
}

func (o *Orchestrator) timedRoute(ctx context.Context, routingAgent agent.RoutingAgent, parsed models.StructuredRequest) (decision models.RoutingDecision, elapsedMS float64, err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.Route")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = common.NewAgentRouteError(fmt.Sprintf("agent panicked during route: %v", r), nil)
		}
	}()

	started := time.Now()
	decision, err = routingAgent.Route(ctx, parsed, agent.NewSnapshot(o.fleet.All()))
	elapsed := time.Since(started)
	elapsedMS = float64(elapsed.Microseconds()) / 1000.0
	recordAgentCall("route", elapsed.Seconds())

	if err != nil {
		tracing.RecordError(ctx, err)
		if _, ok := common.AsAppError(err); !ok {
			err = common.NewAgentRouteError("agent route failed", err)
		}
	}
	return decision, elapsedMS, err
}

func (o *Orchestrator) executeDecision(ctx context.Context, decision models.RoutingDecision, parsed models.StructuredRequest, now time.Time) (*trips.ExecutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "ExecuteRoutingDecision")
	defer span.End()
	span.SetAttributes(tracing.VehicleIDKey.String(decision.VehicleID))

	result, err := o.sim.ExecuteRoutingDecision(decision, parsed.Origin, parsed.Destination, now)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	span.SetAttributes(tracing.DistanceMilesKey.Float64(result.TripDistanceMiles))
	return result, nil
}

// advanceToWithEvents moves the simulation clock to target, processing every
// scheduled pickup and dropoff on the way so each TripResult is finalized at
// its true scheduled time. Each iteration either advances the clock or
// drains events due at the current instant, so the loop always terminates.
func (o *Orchestrator) advanceToWithEvents(target time.Time) {
	if !o.clock.IsSet() {
		o.clock.Set(target)
		return
	}
	if target.Before(o.clock.Now()) {
		return
	}

	for o.clock.Now().Before(target) {
		now := o.clock.Now()
		next := o.sim.NextEventTime()

		if next == nil || !next.Before(target) {
			o.finalizeAll(o.sim.AdvanceTime(now, target.Sub(now)))
			o.clock.Set(target)
			break
		}
		if next.Before(now) {
			err := common.NewInvalidEventTimeError(fmt.Sprintf(
				"next event at %s precedes current time %s",
				next.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)))
			o.recordError(context.Background(), err, now, map[string]interface{}{
				"next_event_time": *next,
				"current_time":    now,
			})
			o.finalizeAll(o.sim.AdvanceTime(now, target.Sub(now)))
			o.clock.Set(target)
			break
		}
		if next.Equal(now) {
			o.finalizeAll(o.sim.AdvanceTime(now, 0))
			continue
		}
		o.finalizeAll(o.sim.AdvanceTime(now, next.Sub(now)))
		o.clock.Set(*next)
	}
}

func (o *Orchestrator) finalizeAll(results []models.TripResult) {
	for _, result := range results {
		o.finalizeTrip(result)
	}
}

// finalizeTrip emits completion events and scores the request. Events carry
// the trip's true completion time, which the advancement loop guarantees
// never precedes previously recorded events.
func (o *Orchestrator) finalizeTrip(result models.TripResult) {
	a, ok := o.assignments[result.RequestID]
	if !ok {
		logger.Warn("trip completed without assignment record",
			zap.String("request_id", result.RequestID))
		return
	}
	delete(o.assignments, result.RequestID)

	fare := pricing.Round2(result.Fare)
	o.recorder.Record(result.CompletionTime, eventlog.EventTripCompleted, map[string]interface{}{
		"vehicle_id":       result.VehicleID,
		"request_id":       result.RequestID,
		"pickup_time":      result.ActualPickupTime,
		"completion_time":  result.CompletionTime,
		"pickup_location":  a.parsed.Origin,
		"dropoff_location": a.parsed.Destination,
		"trip_distance":    result.TripDistance,
		"deadhead_miles":   result.DeadheadMiles,
		"fare":             fare,
	})

	score := o.eval.EvaluateRequest(a.request, a.parsed, a.decision, result)
	o.recorder.Record(result.CompletionTime, eventlog.EventRequestScore, map[string]interface{}{
		"request_id": result.RequestID,
		"score":      score,
	})

	recordTripCompleted(fare)
	recordRequestOutcome("completed")
	setActiveTrips(o.sim.ActiveTripCount())
}

// recordError logs a recovered failure and appends an ERROR event. The
// payload key "type" carries the stable error code.
func (o *Orchestrator) recordError(ctx context.Context, err error, at time.Time, errCtx map[string]interface{}) {
	code := common.ErrorCodeOf(err)

	logger.Warn("recoverable evaluation error",
		zap.String("error_code", code),
		zap.Any("context", errCtx),
		zap.Error(err),
	)
	errors.CaptureErrorWithContext(ctx, err, errCtx)

	o.recorder.Record(at, eventlog.EventError, map[string]interface{}{
		"type":    code,
		"message": err.Error(),
		"context": errCtx,
	})
}

func validateRequest(request models.NaturalLanguageRequest) error {
	if request.RequestID == "" {
		return common.NewRequestValidationError("request_id is required", nil)
	}
	if request.RequestTime.IsZero() {
		return common.NewRequestValidationError(fmt.Sprintf("request %s has no request_time", request.RequestID), nil)
	}
	return nil
}
