package models

import (
	"time"
)

// VehicleStatus represents the lifecycle state of a simulated vehicle
type VehicleStatus string

const (
	VehicleStatusIdle            VehicleStatus = "idle"
	VehicleStatusEnRouteToPickup VehicleStatus = "en_route_to_pickup"
	VehicleStatusOnTrip          VehicleStatus = "on_trip"
	VehicleStatusOffline         VehicleStatus = "offline"
)

// IsValid reports whether the status is one of the known states
func (s VehicleStatus) IsValid() bool {
	switch s {
	case VehicleStatusIdle, VehicleStatusEnRouteToPickup, VehicleStatusOnTrip, VehicleStatusOffline:
		return true
	}
	return false
}

// Location represents a point in the service area.
// Coordinates are authoritative; zone fields are annotations that agents may
// fill in when the request text only names a zone.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ZoneID    *int    `json:"zone_id,omitempty"`
	ZoneName  string  `json:"zone_name,omitempty"`
	Address   string  `json:"address,omitempty"`
	POIName   string  `json:"poi_name,omitempty"`
}

// HasCoordinates reports whether the location carries usable coordinates
func (l Location) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// NaturalLanguageRequest is a ride request as it arrives from a customer,
// before any parsing has happened
type NaturalLanguageRequest struct {
	RequestID   string             `json:"request_id"`
	RequestTime time.Time          `json:"request_time"`
	Text        string             `json:"natural_language_text"`
	GroundTruth *StructuredRequest `json:"ground_truth,omitempty"`
}

// StructuredRequest is the machine-readable form of a ride request,
// produced by an agent's parser or supplied as ground truth
type StructuredRequest struct {
	RequestID            string     `json:"request_id"`
	RequestTime          time.Time  `json:"request_time"`
	Origin               Location   `json:"origin"`
	Destination          Location   `json:"destination"`
	RequestedPickupTime  *time.Time `json:"requested_pickup_time,omitempty"`
	RequestedDropoffTime *time.Time `json:"requested_dropoff_time,omitempty"`
	HasArrivalConstraint bool       `json:"has_arrival_constraint"`
	PassengerCount       int        `json:"passenger_count"`
	WheelchairAccessible bool       `json:"wheelchair_accessible"`
	SharedRideOK         bool       `json:"shared_ride_ok"`
	CustomerID           string     `json:"customer_id,omitempty"`
}

// VehicleStats accumulates per-vehicle outcomes over an evaluation run
type VehicleStats struct {
	TripsCompleted int     `json:"trips_completed"`
	RevenueEarned  float64 `json:"revenue_earned"`
	MilesDriven    float64 `json:"miles_driven"`
	DeadheadMiles  float64 `json:"deadhead_miles"`
}

// Vehicle represents a simulated vehicle in the fleet
type Vehicle struct {
	VehicleID            string        `json:"vehicle_id"`
	CurrentLocation      Location      `json:"current_location"`
	Status               VehicleStatus `json:"status"`
	WheelchairAccessible bool          `json:"wheelchair_accessible"`
	Capacity             int           `json:"capacity"`
	CurrentTripID        string        `json:"current_trip_id,omitempty"`
	Stats                VehicleStats  `json:"stats"`
}

// RoutingDecision is an agent's answer to a parsed request: which vehicle
// takes the trip and what the agent expects it to cost in time and distance
type RoutingDecision struct {
	RequestID                    string    `json:"request_id"`
	VehicleID                    string    `json:"vehicle_id"`
	EstimatedPickupTime          time.Time `json:"estimated_pickup_time"`
	EstimatedDropoffTime         time.Time `json:"estimated_dropoff_time"`
	EstimatedPickupDistanceMiles float64   `json:"estimated_pickup_distance_miles"`
	EstimatedTripDistanceMiles   float64   `json:"estimated_trip_distance_miles"`
	DecisionRationale            string    `json:"decision_rationale,omitempty"`
}

// TripResult records a completed trip as observed by the vehicle simulator.
// Fare is carried unrounded; emitters round to cents at the edge.
type TripResult struct {
	RequestID        string    `json:"request_id"`
	VehicleID        string    `json:"vehicle_id"`
	ActualPickupTime time.Time `json:"actual_pickup_time"`
	CompletionTime   time.Time `json:"completion_time"`
	TripDistance     float64   `json:"trip_distance"`
	DeadheadMiles    float64   `json:"deadhead_miles"`
	TripTimeMinutes  float64   `json:"trip_time_minutes"`
	Fare             float64   `json:"fare"`
}

// FleetStats summarizes the fleet at a point in simulated time
type FleetStats struct {
	TotalVehicles      int                   `json:"total_vehicles"`
	ByStatus           map[VehicleStatus]int `json:"by_status"`
	TripsCompleted     int                   `json:"trips_completed"`
	TotalRevenue       float64               `json:"total_revenue"`
	TotalMilesDriven   float64               `json:"total_miles_driven"`
	TotalDeadheadMiles float64               `json:"total_deadhead_miles"`
}
