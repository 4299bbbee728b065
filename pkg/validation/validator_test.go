package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scenarioRow struct {
	RequestID string  `validate:"required"`
	Latitude  float64 `validate:"latitude"`
	Longitude float64 `validate:"longitude"`
	Status    string  `validate:"omitempty,vehicle_status"`
}

func TestValidateStructPasses(t *testing.T) {
	err := ValidateStruct(scenarioRow{
		RequestID: "req-001",
		Latitude:  40.7549,
		Longitude: -73.9787,
		Status:    "idle",
	})
	assert.NoError(t, err)
}

func TestValidateStructCollectsFieldFailures(t *testing.T) {
	err := ValidateStruct(scenarioRow{
		Latitude:  95.0,
		Longitude: -200.0,
		Status:    "parked",
	})
	require.Error(t, err)

	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.True(t, ve.HasErrors())
	assert.Len(t, ve.Errors, 4)
	assert.Contains(t, ve.Errors, "RequestID")
	assert.Contains(t, ve.Errors, "Latitude")
	assert.Contains(t, ve.Errors, "Longitude")
	assert.Contains(t, ve.Errors, "Status")
}

func TestValidationErrorRendersFieldsInOrder(t *testing.T) {
	ve := &ValidationError{}
	ve.AddError("longitude", "out of range")
	ve.AddError("latitude", "out of range")

	assert.Equal(t, "validation failed: latitude: out of range; longitude: out of range", ve.Error())
}

func TestValidateCoordinates(t *testing.T) {
	assert.NoError(t, ValidateCoordinates(40.75, -73.98))
	assert.NoError(t, ValidateCoordinates(-90, 180))

	err := ValidateCoordinates(90.5, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latitude")

	err = ValidateCoordinates(0, -180.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longitude")
}
