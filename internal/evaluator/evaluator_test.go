package evaluator

import (
	"math"
	"sync"
	"testing"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

type countingObserver struct {
	mu   sync.Mutex
	keys []catalog.MetricKey
}

func (o *countingObserver) MisconfiguredThreshold(key catalog.MetricKey) {
	o.mu.Lock()
	o.keys = append(o.keys, key)
	o.mu.Unlock()
}

func TestUnconfiguredThresholdsAlwaysGood(t *testing.T) {
	values := []float64{-1e9, -1, 0, 1, 1e9, math.MaxFloat64, -math.MaxFloat64}
	for _, key := range catalog.Keys() {
		for _, v := range values {
			if got := Evaluate(key, v, models.ThresholdSet{}); got != models.VerdictGood {
				t.Fatalf("%s=%v without thresholds: expected good, got %s", key, v, got)
			}
		}
	}
}

func TestCO2DualThresholdScenario(t *testing.T) {
	set := models.ThresholdSet{AirCO2WarningPPM: models.Float(1000), AirCO2CriticalPPM: models.Float(1500)}
	cases := map[float64]models.Verdict{
		400:  models.VerdictGood,
		999:  models.VerdictGood,
		1000: models.VerdictWarning,
		1100: models.VerdictWarning,
		1500: models.VerdictCritical,
		1600: models.VerdictCritical,
	}
	for v, want := range cases {
		if got := Evaluate(catalog.AirCO2, v, set); got != want {
			t.Fatalf("co2=%v: expected %s, got %s", v, want, got)
		}
	}
}

func TestDualThresholdPropertyOverManyPairs(t *testing.T) {
	for warning := 100.0; warning < 2000; warning += 137 {
		for critical := warning + 1; critical < warning+1500; critical += 211 {
			set := models.ThresholdSet{AirCO2WarningPPM: models.Float(warning), AirCO2CriticalPPM: models.Float(critical)}
			for _, v := range []float64{warning, (warning + critical) / 2, critical - 0.001, critical, critical + 500} {
				got := Evaluate(catalog.AirCO2, v, set)
				switch {
				case v >= critical && got != models.VerdictCritical:
					t.Fatalf("w=%v c=%v v=%v: expected critical, got %s", warning, critical, v, got)
				case v >= warning && v < critical && got != models.VerdictWarning:
					t.Fatalf("w=%v c=%v v=%v: expected warning, got %s", warning, critical, v, got)
				}
			}
		}
	}
}

func TestSingleBoundIsSoleCut(t *testing.T) {
	onlyWarning := models.ThresholdSet{AirCO2WarningPPM: models.Float(1000)}
	if got := Evaluate(catalog.AirCO2, 5000, onlyWarning); got != models.VerdictWarning {
		t.Fatalf("expected warning with only a warning cut, got %s", got)
	}
	onlyCritical := models.ThresholdSet{AirCO2CriticalPPM: models.Float(1500)}
	if got := Evaluate(catalog.AirCO2, 1200, onlyCritical); got != models.VerdictGood {
		t.Fatalf("expected good below the sole critical cut, got %s", got)
	}
	if got := Evaluate(catalog.AirCO2, 1500, onlyCritical); got != models.VerdictCritical {
		t.Fatalf("expected critical at the sole critical cut, got %s", got)
	}
}

func TestLeakThresholdIsCritical(t *testing.T) {
	set := models.ThresholdSet{WaterLeakThresholdLH: models.Float(5)}
	if got := Evaluate(catalog.WaterLeakRate, 4.9, set); got != models.VerdictGood {
		t.Fatalf("expected good, got %s", got)
	}
	if got := Evaluate(catalog.WaterLeakRate, 5, set); got != models.VerdictCritical {
		t.Fatalf("expected critical, got %s", got)
	}
}

func TestRangeStrategy(t *testing.T) {
	set := models.ThresholdSet{AirTempMinC: models.Float(18), AirTempMaxC: models.Float(26)}
	cases := map[float64]models.Verdict{
		17.9: models.VerdictWarning,
		18:   models.VerdictGood,
		22:   models.VerdictGood,
		26:   models.VerdictGood,
		26.1: models.VerdictWarning,
	}
	for v, want := range cases {
		if got := Evaluate(catalog.AirTemperature, v, set); got != want {
			t.Fatalf("temp=%v: expected %s, got %s", v, want, got)
		}
	}
	humidity := models.ThresholdSet{AirHumidityMaxPct: models.Float(60)}
	if got := Evaluate(catalog.AirHumidity, 70, humidity); got != models.VerdictWarning {
		t.Fatalf("expected warning above the sole max bound, got %s", got)
	}
}

func TestCapacityAndBudget(t *testing.T) {
	set := models.ThresholdSet{
		EnergyPowerLimitKW:     models.Float(100),
		EnergyDailyBudgetKWh:   models.Float(800),
		WaterDailyBudgetLiters: models.Float(2000),
	}
	if got := Evaluate(catalog.EnergyPowerKW, 100, set); got != models.VerdictGood {
		t.Fatalf("power at the limit must be good, got %s", got)
	}
	if got := Evaluate(catalog.EnergyPowerKW, 100.5, set); got != models.VerdictCritical {
		t.Fatalf("power over the limit must be critical, got %s", got)
	}
	if got := Evaluate(catalog.EnergyConsumptionKWh, 900, set); got != models.VerdictCritical {
		t.Fatalf("consumption over budget must be critical, got %s", got)
	}
	if got := Evaluate(catalog.WaterConsumptionLiters, 1999, set); got != models.VerdictGood {
		t.Fatalf("water under budget must be good, got %s", got)
	}
}

func TestMisconfiguredPairsFallBackToGood(t *testing.T) {
	obs := &countingObserver{}
	e := New(obs)
	inverted := models.ThresholdSet{
		AirCO2WarningPPM:  models.Float(1500),
		AirCO2CriticalPPM: models.Float(1000),
		AirTempMinC:       models.Float(30),
		AirTempMaxC:       models.Float(10),
	}
	if got := e.Evaluate(catalog.AirCO2, 5000, inverted); got != models.VerdictGood {
		t.Fatalf("expected good for inverted co2 pair, got %s", got)
	}
	if got := e.Evaluate(catalog.AirTemperature, -40, inverted); got != models.VerdictGood {
		t.Fatalf("expected good for inverted temperature pair, got %s", got)
	}
	if len(obs.keys) != 2 {
		t.Fatalf("expected 2 misconfiguration reports, got %d", len(obs.keys))
	}
}

func TestEvaluateSnapshotSkipsMissingAndDisabled(t *testing.T) {
	now := time.Now()
	snap := models.EmptySnapshot("site", now)
	snap.IsReal = true
	snap.Metrics[catalog.AirCO2] = map[string]models.MetricSample{
		"s1": {Key: catalog.AirCO2, DeviceID: "s1", Value: 1600, SampleTime: now},
	}
	snap.Metrics[catalog.WaterLeakRate] = map[string]models.MetricSample{
		"w1": {Key: catalog.WaterLeakRate, DeviceID: "w1", Value: 50, SampleTime: now},
	}
	set := models.ThresholdSet{
		AirCO2WarningPPM:     models.Float(1000),
		AirCO2CriticalPPM:    models.Float(1500),
		WaterLeakThresholdLH: models.Float(5),
	}

	verdicts := New(nil).EvaluateSnapshot(snap, set, models.EnabledModules{Energy: true, Air: true})
	if verdicts[catalog.AirCO2] != models.VerdictCritical {
		t.Fatalf("expected critical co2 verdict, got %v", verdicts)
	}
	if _, ok := verdicts[catalog.WaterLeakRate]; ok {
		t.Fatal("disabled water module must not be evaluated")
	}
	if _, ok := verdicts[catalog.EnergyPowerKW]; ok {
		t.Fatal("unreported power must be indeterminate, not a verdict")
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	set := models.ThresholdSet{AirCO2WarningPPM: models.Float(1000), AirCO2CriticalPPM: models.Float(1500)}
	for i := 0; i < 100; i++ {
		if Evaluate(catalog.AirCO2, 1100, set) != models.VerdictWarning {
			t.Fatal("evaluation must be idempotent")
		}
	}
}

func TestEvaluateAnomaly(t *testing.T) {
	baseline := models.Baseline{Mean: 50, StdDev: 10, Samples: 500}
	if got := EvaluateAnomaly(75, baseline, 3); got != models.VerdictGood {
		t.Fatalf("z=2.5 under threshold 3 must be good, got %s", got)
	}
	if got := EvaluateAnomaly(80, baseline, 3); got != models.VerdictWarning {
		t.Fatalf("z=3 must be a warning, got %s", got)
	}
	if got := EvaluateAnomaly(20, baseline, 3); got != models.VerdictWarning {
		t.Fatalf("z=-3 must be a warning, got %s", got)
	}
	flat := models.Baseline{Mean: 50, StdDev: 0, Samples: 500}
	if got := EvaluateAnomaly(5000, flat, 3); got != models.VerdictGood {
		t.Fatalf("zero variance baseline must be good, got %s", got)
	}
}
