package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/evaluator"
	"iot-engine/internal/models"
	"iot-engine/internal/scoring"
)

func newSiteService(snaps SnapshotSource, th ThresholdSource, baselines BaselineSource, cfg SiteServiceConfig) *SiteService {
	s := NewSiteService(snaps, th, baselines, evaluator.New(nil), scoring.NewEngine(scoring.DefaultWeights()), cfg, nil)
	s.now = func() time.Time { return now }
	return s
}

func TestEvaluateSiteEndToEnd(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.set("s1",
		sample(catalog.EnergyPowerKW, "main", 120, time.Minute),
		sample(catalog.AirCO2, "iaq", 1100, time.Minute),
	)
	th := &stubThresholds{sets: map[string]models.ThresholdSet{
		"s1": {AirCO2WarningPPM: models.Float(1000), AirCO2CriticalPPM: models.Float(1500)},
	}}
	svc := newSiteService(snaps, th, nil, DefaultSiteServiceConfig())

	site := models.Site{ID: "s1", Modules: models.EnabledModules{Energy: true, Air: true}}
	view, err := svc.Evaluate(context.Background(), site)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	energy := view.Modules[catalog.ModuleEnergy]
	if energy.Score != 76 || energy.Level != models.LevelOK || !energy.IsLive {
		t.Fatalf("unexpected energy status %+v", energy)
	}
	if view.Verdicts[catalog.AirCO2] != models.VerdictWarning {
		t.Fatalf("expected co2 warning, got %v", view.Verdicts)
	}
	if view.Alerts.WarningCount != 1 || view.Alerts.CriticalCount != 0 || !view.Alerts.HasAlerts {
		t.Fatalf("unexpected alerts %+v", view.Alerts)
	}
	if water := view.Modules[catalog.ModuleWater]; water.Enabled || water.Score != 0 {
		t.Fatalf("water is disabled, got %+v", water)
	}
	// (0.80*76 + 0.05*0) / 0.85 = 71.5 -> 72
	if view.Composite.Score != 72 || !view.Composite.IsLive {
		t.Fatalf("unexpected composite %+v", view.Composite)
	}
}

func TestEvaluateSiteUpstreamFailures(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.errs["s1"] = errUpstream
	svc := newSiteService(snaps, &stubThresholds{}, nil, DefaultSiteServiceConfig())

	_, err := svc.Evaluate(context.Background(), models.Site{ID: "s1"})
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageSnapshot || !errors.Is(err, errUpstream) {
		t.Fatalf("expected snapshot stage error, got %v", err)
	}

	svc = newSiteService(newStubSnapshots(), &stubThresholds{err: errUpstream}, nil, DefaultSiteServiceConfig())
	_, err = svc.Evaluate(context.Background(), models.Site{ID: "s1"})
	if !errors.As(err, &se) || se.Stage != StageThresholds {
		t.Fatalf("expected thresholds stage error, got %v", err)
	}
}

func TestEvaluateSiteWithoutTelemetry(t *testing.T) {
	svc := newSiteService(newStubSnapshots(), &stubThresholds{}, nil, DefaultSiteServiceConfig())
	view, err := svc.Evaluate(context.Background(), models.Site{ID: "empty", Modules: models.EnabledModules{Energy: true}})
	if err != nil {
		t.Fatalf("no data must not be an error: %v", err)
	}
	if view.Snapshot.IsReal || view.Alerts.HasAlerts || len(view.Verdicts) != 0 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Modules[catalog.ModuleEnergy].Score != 0 || view.Composite.IsLive {
		t.Fatalf("a module without data must not be scored, got %+v", view.Modules[catalog.ModuleEnergy])
	}
}

func TestEvaluateSitePowerAnomaly(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.set("s1", sample(catalog.EnergyPowerKW, "main", 90, time.Minute))
	th := &stubThresholds{sets: map[string]models.ThresholdSet{
		"s1": {EnergyAnomalyDetectionEnabled: true, EnergyPowerLimitKW: models.Float(200)},
	}}
	baselines := &stubBaselines{baseline: models.Baseline{Mean: 50, StdDev: 10, Samples: 2000}}
	svc := newSiteService(snaps, th, baselines, DefaultSiteServiceConfig())

	view, err := svc.Evaluate(context.Background(), models.Site{ID: "s1", Modules: models.EnabledModules{Energy: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Verdicts[catalog.EnergyPowerKW] != models.VerdictWarning {
		t.Fatalf("expected anomaly warning for z=4, got %v", view.Verdicts[catalog.EnergyPowerKW])
	}
	if len(baselines.filters) != 1 || len(baselines.filters[0].Categories) != 1 {
		t.Fatalf("expected baseline restricted to the general meter, got %+v", baselines.filters)
	}

	th.sets["s1"] = models.ThresholdSet{EnergyPowerLimitKW: models.Float(200)}
	view, _ = svc.Evaluate(context.Background(), models.Site{ID: "s1", Modules: models.EnabledModules{Energy: true}})
	if view.Verdicts[catalog.EnergyPowerKW] != models.VerdictGood {
		t.Fatalf("anomaly detection is off, expected good, got %v", view.Verdicts[catalog.EnergyPowerKW])
	}
}

func TestEvaluateSiteBaselineFailureIsNotFatal(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.set("s1", sample(catalog.EnergyPowerKW, "main", 90, time.Minute))
	th := &stubThresholds{sets: map[string]models.ThresholdSet{"s1": {EnergyAnomalyDetectionEnabled: true}}}
	svc := newSiteService(snaps, th, &stubBaselines{err: errUpstream}, DefaultSiteServiceConfig())

	view, err := svc.Evaluate(context.Background(), models.Site{ID: "s1", Modules: models.EnabledModules{Energy: true}})
	if err != nil {
		t.Fatalf("baseline failure must not fail the evaluation: %v", err)
	}
	if view.Verdicts[catalog.EnergyPowerKW] != models.VerdictGood {
		t.Fatalf("expected good without a baseline, got %v", view.Verdicts[catalog.EnergyPowerKW])
	}
}

func TestEvaluateSiteWaterBaselineScoring(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.set("s1", sample(catalog.WaterFlowRate, "w", 140, time.Minute))
	cfg := DefaultSiteServiceConfig()
	cfg.WaterBaseline = true
	baselines := &stubBaselines{baseline: models.Baseline{Mean: 100, StdDev: 20, Samples: 500}}
	s := NewSiteService(snaps, &stubThresholds{}, baselines, nil,
		scoring.NewEngine(scoring.DefaultWeights(), scoring.WithScorer(catalog.ModuleWater, scoring.NewBaselineWaterScorer())),
		cfg, nil)
	s.now = func() time.Time { return now }

	view, err := s.Evaluate(context.Background(), models.Site{ID: "s1", Modules: models.EnabledModules{Water: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := view.Modules[catalog.ModuleWater].Score; got != 50 {
		t.Fatalf("expected baseline water score 50, got %d", got)
	}
}

func TestEvaluateSiteIsIdempotent(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.set("s1",
		sample(catalog.EnergyPowerKW, "main", 73.3, time.Minute),
		sample(catalog.AirCO2, "a", 650, 12*time.Minute),
		sample(catalog.WaterFlowRate, "w", 2, time.Minute),
	)
	svc := newSiteService(snaps, &stubThresholds{}, nil, DefaultSiteServiceConfig())
	site := models.Site{ID: "s1", Modules: models.EnabledModules{Energy: true, Air: true, Water: true}}

	first, _ := svc.Evaluate(context.Background(), site)
	second, _ := svc.Evaluate(context.Background(), site)
	if first.Composite != second.Composite || first.Alerts != second.Alerts {
		t.Fatalf("evaluation is not idempotent: %+v vs %+v", first.Composite, second.Composite)
	}
	for _, m := range catalog.Modules {
		a, b := first.Modules[m], second.Modules[m]
		if a.Score != b.Score || a.Liveness != b.Liveness {
			t.Fatalf("%s differs between runs: %+v vs %+v", m, a, b)
		}
	}
}

func TestEvaluateSiteIgnoresOfflineReadings(t *testing.T) {
	snaps := newStubSnapshots()
	snaps.set("s1", sample(catalog.EnergyPowerKW, "main", 150, 2*time.Hour))
	th := &stubThresholds{sets: map[string]models.ThresholdSet{
		"s1": {EnergyPowerLimitKW: models.Float(100), EnergyAnomalyDetectionEnabled: true},
	}}
	baselines := &stubBaselines{baseline: models.Baseline{Mean: 50, StdDev: 10, Samples: 2000}}
	svc := newSiteService(snaps, th, baselines, DefaultSiteServiceConfig())
	site := models.Site{ID: "s1", Modules: models.EnabledModules{Energy: true}}

	view, err := svc.Evaluate(context.Background(), site)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := view.Verdicts[catalog.EnergyPowerKW]; ok || view.Alerts.HasAlerts {
		t.Fatalf("an offline reading must not raise alerts, got %v %+v", view.Verdicts, view.Alerts)
	}
	if baselines.calls != 0 {
		t.Fatalf("no anomaly check expected for an offline reading, got %d baseline calls", baselines.calls)
	}

	// a stale reading is still evaluated
	snaps.set("s1", sample(catalog.EnergyPowerKW, "main", 150, 7*time.Minute))
	view, _ = svc.Evaluate(context.Background(), site)
	if view.Verdicts[catalog.EnergyPowerKW] != models.VerdictCritical || view.Alerts.CriticalCount != 1 {
		t.Fatalf("expected a critical verdict for a stale reading, got %v", view.Verdicts)
	}
}
