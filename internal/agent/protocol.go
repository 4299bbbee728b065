package agent

import "github.com/ridebench/dispatchsim/pkg/models"

// Wire types for the routing agent HTTP protocol served by agentd.
// Fleet snapshots travel with each call so a remote agent needs no
// shared state with the simulator.

// ParseRequest is the body of POST /v1/agent/parse.
type ParseRequest struct {
	Request models.NaturalLanguageRequest `json:"request" binding:"required"`
	Fleet   []models.Vehicle              `json:"fleet"`
}

// ParseResponse is the data payload returned by /v1/agent/parse.
type ParseResponse struct {
	Parsed models.StructuredRequest `json:"parsed"`
}

// RouteRequest is the body of POST /v1/agent/route.
type RouteRequest struct {
	Parsed models.StructuredRequest `json:"parsed" binding:"required"`
	Fleet  []models.Vehicle         `json:"fleet"`
}

// RouteResponse is the data payload returned by /v1/agent/route.
type RouteResponse struct {
	Decision models.RoutingDecision `json:"decision"`
}

// DistanceRequest is the body of POST /v1/agent/distance.
type DistanceRequest struct {
	From models.Location `json:"from" binding:"required"`
	To   models.Location `json:"to" binding:"required"`
}

// DistanceResponse is the data payload returned by /v1/agent/distance.
type DistanceResponse struct {
	Miles   float64 `json:"miles"`
	Minutes float64 `json:"minutes"`
}
