package pricing

import (
	"math"

	"github.com/ridebench/dispatchsim/pkg/config"
)

// Default fare model constants
const (
	DefaultBaseFare            = 2.50
	DefaultPerMileRate         = 2.50
	DefaultPerMinuteRate       = 0.50
	DefaultDeadheadCostPerMile = 0.50
)

// Calculator computes trip fares and idle repositioning costs from the
// configured fare model
type Calculator struct {
	baseFare            float64
	perMileRate         float64
	perMinuteRate       float64
	deadheadCostPerMile float64
}

// NewCalculator creates a fare calculator with the default constants
func NewCalculator() *Calculator {
	return &Calculator{
		baseFare:            DefaultBaseFare,
		perMileRate:         DefaultPerMileRate,
		perMinuteRate:       DefaultPerMinuteRate,
		deadheadCostPerMile: DefaultDeadheadCostPerMile,
	}
}

// NewCalculatorFromConfig creates a fare calculator from loaded configuration
func NewCalculatorFromConfig(cfg config.PricingConfig) *Calculator {
	c := &Calculator{
		baseFare:            cfg.BaseFare,
		perMileRate:         cfg.PerMileRate,
		perMinuteRate:       cfg.PerMinuteRate,
		deadheadCostPerMile: cfg.DeadheadCostPerMile,
	}
	if c.baseFare <= 0 {
		c.baseFare = DefaultBaseFare
	}
	if c.perMileRate <= 0 {
		c.perMileRate = DefaultPerMileRate
	}
	if c.perMinuteRate <= 0 {
		c.perMinuteRate = DefaultPerMinuteRate
	}
	if c.deadheadCostPerMile < 0 {
		c.deadheadCostPerMile = DefaultDeadheadCostPerMile
	}
	return c
}

// Fare returns the unrounded fare for a trip: base plus per-mile and
// per-minute charges on the revenue leg only. Deadhead is never billed to
// the rider. Callers round with Round2 at emission.
func (c *Calculator) Fare(tripDistanceMiles, tripTimeMinutes float64) float64 {
	return c.baseFare + c.perMileRate*tripDistanceMiles + c.perMinuteRate*tripTimeMinutes
}

// IdleCost returns the operating cost attributed to deadhead miles
func (c *Calculator) IdleCost(deadheadMiles float64) float64 {
	return c.deadheadCostPerMile * deadheadMiles
}

// DeadheadCostPerMile exposes the configured deadhead rate
func (c *Calculator) DeadheadCostPerMile() float64 {
	return c.deadheadCostPerMile
}

// Round2 rounds a monetary value to 2 decimal places
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
