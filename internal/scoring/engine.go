package scoring

import (
	"math"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/liveness"
	"iot-engine/internal/models"
)

// Engine scores modules and blends them into the composite score.
// It keeps no state between calls.
type Engine struct {
	weights Weights
	scorers map[catalog.Module]ModuleScorer
}

// Option customises an Engine
type Option func(*Engine)

// WithScorer replaces the scorer of module m
func WithScorer(m catalog.Module, s ModuleScorer) Option {
	return func(e *Engine) {
		if s != nil {
			e.scorers[m] = s
		}
	}
}

// NewEngine creates an Engine using weights for the composite
func NewEngine(weights Weights, opts ...Option) *Engine {
	e := &Engine{
		weights: weights,
		scorers: map[catalog.Module]ModuleScorer{
			catalog.ModuleEnergy: EnergyScorer{NominalKW: 100},
			catalog.ModuleAir:    AirScorer{AmbientPPM: 400, CeilingPPM: 1000},
			catalog.ModuleWater:  DefaultWaterScorer(),
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Weights returns the composite policy of the engine
func (e *Engine) Weights() Weights {
	return e.weights
}

// ModuleInput is everything known about one module of one site
type ModuleInput struct {
	Module     catalog.Module
	Enabled    bool
	Value      float64
	HasValue   bool
	Liveness   models.Liveness
	LastUpdate time.Time
	Baseline   models.Baseline
}

// ScoreModule scores one module.
//
// A disabled module, a module without a reading and an OFFLINE module score
// 0 and are not live. A STALE module is scored from its last reading but is
// not live.
func (e *Engine) ScoreModule(in ModuleInput) models.ModuleStatus {
	status := models.ModuleStatus{
		Module:   in.Module,
		Enabled:  in.Enabled,
		Level:    Band(0),
		Liveness: models.Offline,
	}
	if !in.LastUpdate.IsZero() {
		t := in.LastUpdate
		status.LastUpdate = &t
	}
	if !in.Enabled || !in.HasValue || math.IsNaN(in.Value) {
		return status
	}

	status.Liveness = in.Liveness
	if in.Liveness == models.Offline || in.Liveness == "" {
		status.Liveness = models.Offline
		return status
	}

	scorer, ok := e.scorers[in.Module]
	if !ok {
		return status
	}
	status.Score = scorer.Score(Reading{Value: in.Value, Baseline: in.Baseline})
	status.Level = Band(status.Score)
	status.IsLive = in.Liveness == models.Live
	return status
}

// Composite blends the enabled modules with the engine weights
// renormalised over the enabled subset. Disabled modules count in neither
// numerator nor denominator. With nothing enabled the composite is 0 and
// not live.
func (e *Engine) Composite(statuses map[catalog.Module]models.ModuleStatus) models.CompositeStatus {
	var weighted, total float64
	live := false
	for _, m := range catalog.Modules {
		status, ok := statuses[m]
		if !ok || !status.Enabled {
			continue
		}
		w := e.weights.For(m)
		if w <= 0 {
			continue
		}
		weighted += w * float64(status.Score)
		total += w
		live = live || status.IsLive
	}
	if total == 0 {
		return models.CompositeStatus{Score: 0, Level: Band(0)}
	}
	score := clampScore(weighted / total)
	return models.CompositeStatus{Score: score, Level: Band(score), IsLive: live}
}

// ScoreSnapshot scores every module of a snapshot. baselines carries the
// historical baseline of a module's defining metric where one is known.
func (e *Engine) ScoreSnapshot(
	snap models.SiteSnapshot,
	enabled models.EnabledModules,
	now time.Time,
	windows liveness.Windows,
	baselines map[catalog.Module]models.Baseline,
) map[catalog.Module]models.ModuleStatus {
	statuses := make(map[catalog.Module]models.ModuleStatus, len(catalog.Modules))
	for _, m := range catalog.Modules {
		value, hasValue := snap.Value(catalog.DefiningKey(m))
		state, last := liveness.ClassifyModule(snap, m, now, windows)
		statuses[m] = e.ScoreModule(ModuleInput{
			Module:     m,
			Enabled:    enabled.Enabled(m),
			Value:      value,
			HasValue:   hasValue,
			Liveness:   state,
			LastUpdate: last,
			Baseline:   baselines[m],
		})
	}
	return statuses
}
