package evaluator

import (
	"math"

	"iot-engine/internal/models"
)

// EvaluateAnomaly flags a reading that deviates from its historical
// baseline by at least zThreshold standard deviations. Without a usable
// baseline nothing can be said and the verdict is good.
func EvaluateAnomaly(value float64, baseline models.Baseline, zThreshold float64) models.Verdict {
	if zThreshold <= 0 || !baseline.Usable() || math.IsNaN(value) {
		return models.VerdictGood
	}
	if math.Abs(baseline.ZScore(value)) >= zThreshold {
		return models.VerdictWarning
	}
	return models.VerdictGood
}
