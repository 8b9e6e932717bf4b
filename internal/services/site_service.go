package services

import (
	"context"
	"log/slog"
	"time"

	"iot-engine/internal/alerts"
	"iot-engine/internal/catalog"
	"iot-engine/internal/evaluator"
	"iot-engine/internal/liveness"
	"iot-engine/internal/models"
	"iot-engine/internal/scoring"
)

// SnapshotSource returns the current snapshot of a site
type SnapshotSource interface {
	GetSnapshot(ctx context.Context, siteID string) (models.SiteSnapshot, error)
}

// ThresholdSource returns the thresholds configured for a site
type ThresholdSource interface {
	GetThresholds(ctx context.Context, siteID string) (models.ThresholdSet, error)
}

// BaselineSource returns the historical distribution of a site metric
type BaselineSource interface {
	BaselineStats(ctx context.Context, siteID string, key catalog.MetricKey, since time.Time, filter models.DeviceFilter) (models.Baseline, error)
}

// SiteEvaluator produces the full view of one site
type SiteEvaluator interface {
	Evaluate(ctx context.Context, site models.Site) (models.SiteView, error)
}

// SiteServiceConfig holds configuration for site evaluation
type SiteServiceConfig struct {
	Windows           liveness.Windows
	AnomalyZThreshold float64
	BaselineDays      int
	// Score water from the site's flow history instead of the heuristic
	WaterBaseline bool
}

// DefaultSiteServiceConfig returns default configuration
func DefaultSiteServiceConfig() SiteServiceConfig {
	return SiteServiceConfig{
		Windows:           liveness.DefaultWindows(),
		AnomalyZThreshold: 3.0,
		BaselineDays:      7,
	}
}

// SiteService runs one evaluation pass for a site: snapshot, thresholds,
// liveness, verdicts, module scores, composite and alert counts. Nothing is
// kept between passes.
type SiteService struct {
	snapshots  SnapshotSource
	thresholds ThresholdSource
	baselines  BaselineSource
	evaluator  *evaluator.Evaluator
	engine     *scoring.Engine
	config     SiteServiceConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewSiteService creates a SiteService. baselines may be nil, which turns
// off anomaly detection and baseline water scoring.
func NewSiteService(
	snapshots SnapshotSource,
	thresholds ThresholdSource,
	baselines BaselineSource,
	eval *evaluator.Evaluator,
	engine *scoring.Engine,
	config SiteServiceConfig,
	logger *slog.Logger,
) *SiteService {
	if eval == nil {
		eval = evaluator.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.Windows == (liveness.Windows{}) {
		config.Windows = liveness.DefaultWindows()
	}
	return &SiteService{
		snapshots:  snapshots,
		thresholds: thresholds,
		baselines:  baselines,
		evaluator:  eval,
		engine:     engine,
		config:     config,
		logger:     logger.With("component", "site_service"),
		now:        time.Now,
	}
}

// Evaluate builds the view of a site. A failing snapshot or threshold read
// is returned as a *StageError.
func (s *SiteService) Evaluate(ctx context.Context, site models.Site) (models.SiteView, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, site.ID)
	if err != nil {
		return models.SiteView{}, &StageError{SiteID: site.ID, Stage: StageSnapshot, Err: err}
	}
	set, err := s.thresholds.GetThresholds(ctx, site.ID)
	if err != nil {
		return models.SiteView{}, &StageError{SiteID: site.ID, Stage: StageThresholds, Err: err}
	}

	now := s.now()
	verdicts := s.evaluator.EvaluateSnapshot(snap, set, site.Modules)
	dropOffline(verdicts, snap, now, s.config.Windows)
	baselines := make(map[catalog.Module]models.Baseline)

	_, powerFresh := verdicts[catalog.EnergyPowerKW]
	if site.Modules.Energy && set.EnergyAnomalyDetectionEnabled && powerFresh {
		if power, ok := snap.Value(catalog.EnergyPowerKW); ok {
			if b, ok := s.baseline(ctx, snap, catalog.EnergyPowerKW, now); ok {
				anomaly := evaluator.EvaluateAnomaly(power, b, s.config.AnomalyZThreshold)
				if anomaly != models.VerdictGood {
					s.logger.Info("power anomaly", "site_id", site.ID, "power_kw", power, "z_score", b.ZScore(power))
				}
				verdicts[catalog.EnergyPowerKW] = verdicts[catalog.EnergyPowerKW].Worse(anomaly)
			}
		}
	}

	if site.Modules.Water && s.config.WaterBaseline && snap.Has(catalog.WaterFlowRate) {
		if b, ok := s.baseline(ctx, snap, catalog.WaterFlowRate, now); ok {
			baselines[catalog.ModuleWater] = b
		}
	}

	modules := s.engine.ScoreSnapshot(snap, site.Modules, now, s.config.Windows, baselines)

	return models.SiteView{
		Site:        site,
		Snapshot:    snap,
		Modules:     modules,
		Composite:   s.engine.Composite(modules),
		Verdicts:    verdicts,
		Alerts:      alerts.Aggregate(verdicts),
		EvaluatedAt: now,
	}, nil
}

// dropOffline removes the verdicts of metrics whose newest sample is OFFLINE
// for its module's window. A reading that old says nothing about the site
// now and is treated as indeterminate.
func dropOffline(verdicts map[catalog.MetricKey]models.Verdict, snap models.SiteSnapshot, now time.Time, windows liveness.Windows) {
	for key := range verdicts {
		latest, _ := snap.LatestSampleTime(key)
		if liveness.Classify(latest, now, windows.For(key.Module())) == models.Offline {
			delete(verdicts, key)
		}
	}
}

// baseline loads the history of key over the configured number of days.
// Failures are logged and leave the metric without a baseline.
func (s *SiteService) baseline(ctx context.Context, snap models.SiteSnapshot, key catalog.MetricKey, now time.Time) (models.Baseline, bool) {
	if s.baselines == nil || !snap.IsReal || s.config.BaselineDays <= 0 {
		return models.Baseline{}, false
	}

	var filter models.DeviceFilter
	if key.Kind() == catalog.Additive {
		for _, sample := range snap.Samples(key) {
			if sample.Category.IsGeneral() {
				filter.Categories = []catalog.DeviceCategory{catalog.CategoryGeneral}
				break
			}
		}
	}

	since := now.Add(-time.Duration(s.config.BaselineDays) * 24 * time.Hour)
	b, err := s.baselines.BaselineStats(ctx, snap.SiteID, key, since, filter)
	if err != nil {
		s.logger.Warn("baseline unavailable", "site_id", snap.SiteID, "metric", key.String(), "error", err)
		return models.Baseline{}, false
	}
	return b, b.Usable()
}
