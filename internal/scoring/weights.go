package scoring

import (
	"fmt"
	"math"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// Weights is the composite weighting policy across modules
type Weights struct {
	Energy float64
	Air    float64
	Water  float64
}

// DefaultWeights returns the 0.80 / 0.05 / 0.15 energy, air, water split
func DefaultWeights() Weights {
	return Weights{Energy: 0.80, Air: 0.05, Water: 0.15}
}

// For returns the weight of module m
func (w Weights) For(m catalog.Module) float64 {
	switch m {
	case catalog.ModuleEnergy:
		return w.Energy
	case catalog.ModuleAir:
		return w.Air
	case catalog.ModuleWater:
		return w.Water
	}
	return 0
}

// Validate rejects negative or non-finite weights and an all-zero policy
func (w Weights) Validate() error {
	var total float64
	for _, m := range catalog.Modules {
		v := w.For(m)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("invalid %s weight %v", m, v)
		}
		total += v
	}
	if total == 0 {
		return fmt.Errorf("composite weights sum to zero")
	}
	return nil
}

// Band maps a 0-100 score to its level
func Band(score int) models.Level {
	switch {
	case score >= 80:
		return models.LevelGood
	case score >= 60:
		return models.LevelOK
	case score >= 40:
		return models.LevelWarning
	default:
		return models.LevelCritical
	}
}

// clampScore bounds s to [0, 100] and rounds half away from zero
func clampScore(s float64) int {
	if math.IsNaN(s) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, s))))
}
