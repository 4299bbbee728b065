package geo

import (
	"fmt"
	"math"
	"sync"

	"github.com/ridebench/dispatchsim/pkg/models"
)

const (
	// DegreeMiles converts coordinate deltas to road miles: one degree of
	// latitude or longitude counts as 69 statute miles on the planar grid.
	DegreeMiles = 69.0

	// DefaultAvgSpeedMPH is the fleet-wide average speed assumed when
	// converting distance to travel time.
	DefaultAvgSpeedMPH = 30.0

	earthRadiusMiles = 3958.8
)

// Oracle answers distance and travel-time queries between two locations.
// Both the simulator and routing agents query the same oracle, so estimated
// and realized travel always agree.
type Oracle interface {
	Query(from, to models.Location) (miles, minutes float64)
}

// PlanarOracle is the deterministic distance model: straight-line distance on
// a flat lat/lng grid at a fixed average speed. Queries are memoized; repeated
// queries for the same pair are free.
type PlanarOracle struct {
	avgSpeedMPH float64
	zones       *Registry

	mu   sync.RWMutex
	memo map[string]planarResult
}

type planarResult struct {
	miles   float64
	minutes float64
}

// NewPlanarOracle creates an oracle with the given average speed. A non-nil
// registry lets the oracle resolve zone-only locations to centroids.
func NewPlanarOracle(avgSpeedMPH float64, zones *Registry) *PlanarOracle {
	if avgSpeedMPH <= 0 {
		avgSpeedMPH = DefaultAvgSpeedMPH
	}
	return &PlanarOracle{
		avgSpeedMPH: avgSpeedMPH,
		zones:       zones,
		memo:        make(map[string]planarResult),
	}
}

// AvgSpeedMPH returns the speed the oracle converts distance with
func (o *PlanarOracle) AvgSpeedMPH() float64 {
	return o.avgSpeedMPH
}

// Query returns the trip distance in miles and travel time in minutes between
// two locations. Zone-only locations resolve to their zone centroid.
func (o *PlanarOracle) Query(from, to models.Location) (float64, float64) {
	a := o.resolve(from)
	b := o.resolve(to)

	key := pairKey(a, b)
	o.mu.RLock()
	if r, ok := o.memo[key]; ok {
		o.mu.RUnlock()
		return r.miles, r.minutes
	}
	o.mu.RUnlock()

	miles := PlanarDistance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
	minutes := miles / o.avgSpeedMPH * 60.0

	o.mu.Lock()
	o.memo[key] = planarResult{miles: miles, minutes: minutes}
	o.mu.Unlock()

	return miles, minutes
}

func (o *PlanarOracle) resolve(loc models.Location) models.Location {
	if loc.HasCoordinates() || loc.ZoneID == nil || o.zones == nil {
		return loc
	}
	if centroid, ok := o.zones.Centroid(*loc.ZoneID); ok {
		return centroid
	}
	return loc
}

func pairKey(a, b models.Location) string {
	return fmt.Sprintf("%.6f,%.6f|%.6f,%.6f", a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// PlanarDistance returns straight-line miles between two coordinates on the
// flat-grid model. Symmetric and zero for identical points.
func PlanarDistance(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := lat2 - lat1
	dLng := lng2 - lng1
	return math.Sqrt(dLat*dLat+dLng*dLng) * DegreeMiles
}

// Haversine returns the great-circle distance in miles between two points.
// Used for reporting location errors; trip distances use PlanarDistance.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lng1Rad := lng1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lng2Rad := lng2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLng := lng2Rad - lng1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}
