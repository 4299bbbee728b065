package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridebench/dispatchsim/pkg/models"
)

func TestPlanarDistance(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		assert.Zero(t, PlanarDistance(40.75, -73.98, 40.75, -73.98))
	})

	t.Run("symmetric", func(t *testing.T) {
		d1 := PlanarDistance(40.75, -73.98, 40.78, -73.95)
		d2 := PlanarDistance(40.78, -73.95, 40.75, -73.98)
		assert.Equal(t, d1, d2)
	})

	t.Run("scales degrees to miles", func(t *testing.T) {
		// 0.03 degrees of latitude at 69 miles per degree
		d := PlanarDistance(40.75, -73.98, 40.78, -73.98)
		assert.InDelta(t, 2.07, d, 1e-9)
	})

	t.Run("diagonal uses euclidean distance", func(t *testing.T) {
		// 3-4-5 triangle: 0.03 lat, 0.04 lng
		d := PlanarDistance(40.75, -73.98, 40.78, -73.94)
		assert.InDelta(t, 0.05*DegreeMiles, d, 1e-9)
	})
}

func TestPlanarOracleQuery(t *testing.T) {
	oracle := NewPlanarOracle(30.0, nil)

	from := models.Location{Latitude: 40.75, Longitude: -73.98}
	to := models.Location{Latitude: 40.78, Longitude: -73.98}

	miles, minutes := oracle.Query(from, to)
	assert.InDelta(t, 2.07, miles, 1e-9)
	assert.InDelta(t, 4.14, minutes, 1e-9)

	// Memoized queries return identical results
	miles2, minutes2 := oracle.Query(from, to)
	assert.Equal(t, miles, miles2)
	assert.Equal(t, minutes, minutes2)
}

func TestPlanarOracleCustomSpeed(t *testing.T) {
	oracle := NewPlanarOracle(60.0, nil)

	_, minutes := oracle.Query(
		models.Location{Latitude: 40.75, Longitude: -73.98},
		models.Location{Latitude: 40.78, Longitude: -73.98},
	)
	// 2.07 miles at 60 mph
	assert.InDelta(t, 2.07, minutes, 1e-9)
}

func TestPlanarOracleDefaultsInvalidSpeed(t *testing.T) {
	assert.Equal(t, DefaultAvgSpeedMPH, NewPlanarOracle(0, nil).AvgSpeedMPH())
	assert.Equal(t, DefaultAvgSpeedMPH, NewPlanarOracle(-5, nil).AvgSpeedMPH())
}

func TestPlanarOracleResolvesZoneOnlyLocations(t *testing.T) {
	registry := NewRegistry()
	oracle := NewPlanarOracle(30.0, registry)

	midtown := 161
	zoneOnly := models.Location{ZoneID: &midtown}
	centroid, ok := registry.Centroid(midtown)
	require.True(t, ok)

	miles, _ := oracle.Query(zoneOnly, centroid)
	assert.Zero(t, miles)
}

func TestHaversine(t *testing.T) {
	t.Run("zero for identical points", func(t *testing.T) {
		assert.Zero(t, Haversine(40.75, -73.98, 40.75, -73.98))
	})

	t.Run("one degree of latitude", func(t *testing.T) {
		d := Haversine(40.0, -73.98, 41.0, -73.98)
		assert.InDelta(t, 69.09, d, 0.05)
	})

	t.Run("close to planar model inside the service area", func(t *testing.T) {
		h := Haversine(40.7549, -73.9787, 40.7273, -73.9837)
		p := PlanarDistance(40.7549, -73.9787, 40.7273, -73.9837)
		// Longitude compression at 40N makes the models diverge, but
		// within a few miles they should stay in the same ballpark.
		assert.InDelta(t, p, h, p*0.3)
	})
}
