package evaluator

import (
	"math"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// Observer is told about threshold configuration the evaluator had to ignore
type Observer interface {
	MisconfiguredThreshold(key catalog.MetricKey)
}

// Evaluator maps metric values to verdicts using a site's thresholds.
// It holds no state besides the optional observer and is safe for
// concurrent use.
type Evaluator struct {
	obs Observer
}

// New creates an Evaluator. obs may be nil.
func New(obs Observer) *Evaluator {
	return &Evaluator{obs: obs}
}

var plain = &Evaluator{}

// Evaluate is the observer-less form of (*Evaluator).Evaluate
func Evaluate(key catalog.MetricKey, value float64, t models.ThresholdSet) models.Verdict {
	return plain.Evaluate(key, value, t)
}

// Evaluate returns the verdict of one metric value. Unconfigured or
// unusable thresholds always yield good.
func (e *Evaluator) Evaluate(key catalog.MetricKey, value float64, t models.ThresholdSet) models.Verdict {
	spec, ok := catalog.Spec(key)
	if !ok || math.IsNaN(value) {
		return models.VerdictGood
	}

	switch spec.Strategy {
	case catalog.StrategyRange:
		lo, hi := rangeBounds(key, t)
		return e.evaluateRange(key, value, lo, hi)
	case catalog.StrategyDualAscending:
		warning, critical := ascendingBounds(key, t)
		return e.evaluateAscending(key, value, warning, critical)
	case catalog.StrategyCapacity, catalog.StrategyBudget:
		return e.evaluateLimit(key, value, limitFor(key, t))
	}
	return models.VerdictGood
}

// EvaluateSnapshot evaluates every metric of the enabled modules that has a
// value. Metrics without a value are left out: they are indeterminate.
func (e *Evaluator) EvaluateSnapshot(snap models.SiteSnapshot, t models.ThresholdSet, enabled models.EnabledModules) map[catalog.MetricKey]models.Verdict {
	verdicts := make(map[catalog.MetricKey]models.Verdict)
	for _, key := range catalog.Keys() {
		if !enabled.Enabled(key.Module()) {
			continue
		}
		value, ok := snap.Value(key)
		if !ok || math.IsNaN(value) {
			continue
		}
		verdicts[key] = e.Evaluate(key, value, t)
	}
	return verdicts
}

func (e *Evaluator) evaluateRange(key catalog.MetricKey, value float64, lo, hi *float64) models.Verdict {
	if lo != nil && hi != nil && *lo >= *hi {
		e.misconfigured(key)
		return models.VerdictGood
	}
	if lo != nil && value < *lo {
		return models.VerdictWarning
	}
	if hi != nil && value > *hi {
		return models.VerdictWarning
	}
	return models.VerdictGood
}

func (e *Evaluator) evaluateAscending(key catalog.MetricKey, value float64, warning, critical *float64) models.Verdict {
	switch {
	case warning != nil && critical != nil:
		if *warning >= *critical {
			e.misconfigured(key)
			return models.VerdictGood
		}
		if value >= *critical {
			return models.VerdictCritical
		}
		if value >= *warning {
			return models.VerdictWarning
		}
	case critical != nil:
		if value >= *critical {
			return models.VerdictCritical
		}
	case warning != nil:
		if value >= *warning {
			return models.VerdictWarning
		}
	}
	return models.VerdictGood
}

func (e *Evaluator) evaluateLimit(key catalog.MetricKey, value float64, limit *float64) models.Verdict {
	if limit == nil {
		return models.VerdictGood
	}
	if *limit < 0 || math.IsNaN(*limit) {
		e.misconfigured(key)
		return models.VerdictGood
	}
	if value > *limit {
		return models.VerdictCritical
	}
	return models.VerdictGood
}

func (e *Evaluator) misconfigured(key catalog.MetricKey) {
	if e.obs != nil {
		e.obs.MisconfiguredThreshold(key)
	}
}

func rangeBounds(key catalog.MetricKey, t models.ThresholdSet) (*float64, *float64) {
	switch key {
	case catalog.AirTemperature:
		return t.AirTempMinC, t.AirTempMaxC
	case catalog.AirHumidity:
		return t.AirHumidityMinPct, t.AirHumidityMaxPct
	}
	return nil, nil
}

// ascendingBounds returns the (warning, critical) cuts of a metric. A leak
// threshold is a single critical cut.
func ascendingBounds(key catalog.MetricKey, t models.ThresholdSet) (*float64, *float64) {
	switch key {
	case catalog.AirCO2:
		return t.AirCO2WarningPPM, t.AirCO2CriticalPPM
	case catalog.WaterLeakRate:
		return nil, t.WaterLeakThresholdLH
	}
	return nil, nil
}

func limitFor(key catalog.MetricKey, t models.ThresholdSet) *float64 {
	switch key {
	case catalog.EnergyPowerKW:
		return t.EnergyPowerLimitKW
	case catalog.EnergyConsumptionKWh:
		return t.EnergyDailyBudgetKWh
	case catalog.WaterConsumptionLiters:
		return t.WaterDailyBudgetLiters
	}
	return nil
}
