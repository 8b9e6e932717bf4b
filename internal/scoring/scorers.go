package scoring

import (
	"math"

	"iot-engine/internal/models"
)

// Reading is the module-defining value a scorer works from, with the
// metric's historical baseline when one is known
type Reading struct {
	Value    float64
	Baseline models.Baseline
}

// ModuleScorer turns a module reading into a 0-100 score
type ModuleScorer interface {
	Score(r Reading) int
}

// EnergyScorer penalises total power against a nominal capacity:
// 100 - (P / capacity) * 20
type EnergyScorer struct {
	NominalKW float64
}

func (s EnergyScorer) Score(r Reading) int {
	nominal := s.NominalKW
	if nominal <= 0 {
		nominal = 100
	}
	return clampScore(100 - (r.Value/nominal)*20)
}

// AirScorer maps CO2 linearly from the outdoor ambient level (100) to the
// ceiling (0)
type AirScorer struct {
	AmbientPPM float64
	CeilingPPM float64
}

func (s AirScorer) Score(r Reading) int {
	ambient, ceiling := s.AmbientPPM, s.CeilingPPM
	if ambient <= 0 {
		ambient = 400
	}
	if ceiling <= ambient {
		ceiling = ambient + 600
	}
	return clampScore(100 - ((r.Value-ambient)/(ceiling-ambient))*100)
}

// HeuristicWaterScorer scores active flow as normal and no flow as a soft
// floor
type HeuristicWaterScorer struct {
	Active int
	Idle   int
}

// DefaultWaterScorer returns the 85 / 60 heuristic
func DefaultWaterScorer() HeuristicWaterScorer {
	return HeuristicWaterScorer{Active: 85, Idle: 60}
}

func (s HeuristicWaterScorer) Score(r Reading) int {
	if r.Value > 0 {
		return clampScore(float64(s.Active))
	}
	return clampScore(float64(s.Idle))
}

// BaselineWaterScorer scores flow by its distance from the site's own
// history: 100 at the mean, minus PenaltyPerSigma for every standard
// deviation away. Without a usable baseline it defers to Fallback.
type BaselineWaterScorer struct {
	PenaltyPerSigma float64
	Fallback        ModuleScorer
}

// NewBaselineWaterScorer returns a baseline scorer that falls back to the
// 85 / 60 heuristic
func NewBaselineWaterScorer() BaselineWaterScorer {
	return BaselineWaterScorer{PenaltyPerSigma: 25, Fallback: DefaultWaterScorer()}
}

func (s BaselineWaterScorer) Score(r Reading) int {
	if !r.Baseline.Usable() {
		if s.Fallback == nil {
			return DefaultWaterScorer().Score(r)
		}
		return s.Fallback.Score(r)
	}
	penalty := s.PenaltyPerSigma
	if penalty <= 0 {
		penalty = 25
	}
	return clampScore(100 - penalty*math.Abs(r.Baseline.ZScore(r.Value)))
}
