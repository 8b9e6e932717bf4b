package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"iot-engine/internal/alerts"
	"iot-engine/internal/catalog"
	"iot-engine/internal/hierarchy"
	"iot-engine/internal/models"
)

// AlertRecorder keeps a history of published alert changes
type AlertRecorder interface {
	SaveAlertEvent(ctx context.Context, event models.AlertEvent) error
}

// AlertObserver counts published alert changes
type AlertObserver interface {
	AlertPublished()
}

// AlertServiceConfig holds configuration for alert publishing
type AlertServiceConfig struct {
	PollingInterval time.Duration
	SiteTimeout     time.Duration
	ChannelSize     int
}

// DefaultAlertServiceConfig returns default configuration
func DefaultAlertServiceConfig() AlertServiceConfig {
	return AlertServiceConfig{
		PollingInterval: time.Minute,
		SiteTimeout:     3 * time.Second,
		ChannelSize:     100,
	}
}

// AlertService periodically evaluates every site and emits an AlertEvent
// whenever a site's alert counts change. Only real telemetry can raise
// alerts; a site served with placeholder data counts as alert-free.
type AlertService struct {
	resolver hierarchy.Resolver
	sites    SiteEvaluator
	recorder AlertRecorder
	obs      AlertObserver
	config   AlertServiceConfig
	logger   *slog.Logger
	now      func() time.Time

	sendTimeout time.Duration

	// Output channel for alert events
	AlertChan chan models.AlertEvent

	mu   sync.RWMutex
	last map[string]models.AlertStatus
}

// NewAlertService creates an alert service. recorder and obs may be nil.
func NewAlertService(
	resolver hierarchy.Resolver,
	sites SiteEvaluator,
	recorder AlertRecorder,
	obs AlertObserver,
	config AlertServiceConfig,
	logger *slog.Logger,
) *AlertService {
	if config.PollingInterval <= 0 {
		config.PollingInterval = time.Minute
	}
	if config.SiteTimeout <= 0 {
		config.SiteTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertService{
		resolver:  resolver,
		sites:     sites,
		recorder:  recorder,
		obs:       obs,
		config:    config,
		logger:    logger.With("component", "alert_service"),
		now:       time.Now,
		AlertChan: make(chan models.AlertEvent, config.ChannelSize),
		last:      make(map[string]models.AlertStatus),

		sendTimeout: time.Second,
	}
}

// Start begins the polling loop
func (as *AlertService) Start(ctx context.Context) {
	as.logger.Info("starting polling loop", "interval", as.config.PollingInterval)

	ticker := time.NewTicker(as.config.PollingInterval)
	defer ticker.Stop()

	// Initial poll
	as.PollAllSites(ctx)

	for {
		select {
		case <-ctx.Done():
			as.logger.Info("shutting down")
			close(as.AlertChan)
			return
		case <-ticker.C:
			as.PollAllSites(ctx)
		}
	}
}

// PollAllSites evaluates every known site once
func (as *AlertService) PollAllSites(ctx context.Context) {
	sites, err := as.resolver.ResolveSites(ctx, models.Scope{Kind: models.ScopeAll})
	if err != nil {
		as.logger.Error("failed to resolve sites", "error", err)
		return
	}
	as.logger.Debug("polling sites", "count", len(sites))

	for _, site := range sites {
		if ctx.Err() != nil {
			return
		}
		as.checkSite(ctx, site)
	}
}

// checkSite evaluates one site and emits an event when its alerts changed
func (as *AlertService) checkSite(ctx context.Context, site models.Site) {
	siteCtx, cancel := context.WithTimeout(ctx, as.config.SiteTimeout)
	defer cancel()

	view, err := as.sites.Evaluate(siteCtx, site)
	if err != nil {
		as.logger.Warn("site evaluation failed", "site_id", site.ID, "stage", stageOf(err), "error", err)
		return
	}

	status := view.Alerts
	if !view.Snapshot.IsReal {
		status = models.AlertStatus{}
	}

	as.mu.RLock()
	prev, seen := as.last[site.ID]
	as.mu.RUnlock()

	if seen && !alerts.Changed(prev, status) {
		return
	}

	event := models.AlertEvent{SiteID: site.ID, Alerts: status, Timestamp: as.now()}
	if status.HasAlerts {
		as.logger.Info("site alerts changed", "site_id", site.ID,
			"critical", status.CriticalCount, "warning", status.WarningCount,
			"breaches", breachNames(view.Verdicts))
	}

	// The status is only remembered once published so a dropped event is
	// retried on the next poll.
	select {
	case as.AlertChan <- event:
		if as.obs != nil {
			as.obs.AlertPublished()
		}
	case <-time.After(as.sendTimeout):
		as.logger.Warn("alert channel full, dropping event", "site_id", site.ID)
		return
	case <-ctx.Done():
		return
	}

	as.mu.Lock()
	as.last[site.ID] = status
	as.mu.Unlock()

	if as.recorder != nil {
		if err := as.recorder.SaveAlertEvent(ctx, event); err != nil {
			as.logger.Warn("failed to record alert event", "site_id", site.ID, "error", err)
		}
	}
}

// LastStatus returns the last alert state seen for a site
func (as *AlertService) LastStatus(siteID string) (models.AlertStatus, bool) {
	as.mu.RLock()
	defer as.mu.RUnlock()
	status, ok := as.last[siteID]
	return status, ok
}

func breachNames(verdicts map[catalog.MetricKey]models.Verdict) []string {
	keys := alerts.Breaches(verdicts)
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, k.String())
	}
	return names
}
