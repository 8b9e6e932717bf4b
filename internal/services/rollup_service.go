package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"iot-engine/internal/hierarchy"
	"iot-engine/internal/models"
	"iot-engine/internal/rollup"
)

// RollupObserver records rollup outcomes
type RollupObserver interface {
	SiteFailure(stage string)
	ObserveRollup(scope string, d time.Duration)
}

// RollupServiceConfig holds configuration for scope rollups
type RollupServiceConfig struct {
	Concurrency int
	SiteTimeout time.Duration
}

// DefaultRollupServiceConfig returns default configuration
func DefaultRollupServiceConfig() RollupServiceConfig {
	return RollupServiceConfig{Concurrency: 8, SiteTimeout: 3 * time.Second}
}

// RollupService evaluates every site of a scope and combines the results.
// Sites are fetched independently; a site that fails or times out is left
// out of the totals and reported in the result's failures.
type RollupService struct {
	resolver hierarchy.Resolver
	sites    SiteEvaluator
	config   RollupServiceConfig
	obs      RollupObserver
	logger   *slog.Logger
}

// NewRollupService creates a RollupService. obs may be nil.
func NewRollupService(resolver hierarchy.Resolver, sites SiteEvaluator, config RollupServiceConfig, obs RollupObserver, logger *slog.Logger) *RollupService {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RollupService{
		resolver: resolver,
		sites:    sites,
		config:   config,
		obs:      obs,
		logger:   logger.With("component", "rollup_service"),
	}
}

// Rollup computes the totals of scope. Only a failure to resolve the
// scope's membership, or cancellation of ctx, is returned as an error.
func (s *RollupService) Rollup(ctx context.Context, scope models.Scope) (models.RollupResult, error) {
	start := time.Now()
	members, err := s.resolver.ResolveSites(ctx, scope)
	if err != nil {
		return models.RollupResult{}, fmt.Errorf("resolve %s scope: %w", scope.Kind, err)
	}

	views, failures := s.EvaluateAll(ctx, members)
	if err := ctx.Err(); err != nil {
		return models.RollupResult{}, err
	}

	totals := rollup.Rollup(views, scope)
	totals.SitesTotal = len(members)

	for _, f := range failures {
		s.logger.Warn("site excluded from rollup", "site_id", f.SiteID, "stage", f.Stage, "reason", f.Reason)
		if s.obs != nil {
			s.obs.SiteFailure(f.Stage)
		}
	}
	if s.obs != nil {
		s.obs.ObserveRollup(string(scope.Kind), time.Since(start))
	}

	return models.RollupResult{Scope: scope, Totals: totals, Failures: failures}, nil
}

// EvaluateAll evaluates sites concurrently with bounded parallelism and a
// per-site timeout. Views and failures are ordered by site id.
func (s *RollupService) EvaluateAll(ctx context.Context, sites []models.Site) ([]models.SiteView, []models.SiteFailure) {
	results := make([]*models.SiteView, len(sites))
	errs := make([]error, len(sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, site := range sites {
		i, site := i, site
		g.Go(func() error {
			siteCtx := gctx
			if s.config.SiteTimeout > 0 {
				var cancel context.CancelFunc
				siteCtx, cancel = context.WithTimeout(gctx, s.config.SiteTimeout)
				defer cancel()
			}
			view, err := s.sites.Evaluate(siteCtx, site)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = &view
			return nil
		})
	}
	_ = g.Wait()

	views := make([]models.SiteView, 0, len(sites))
	failures := make([]models.SiteFailure, 0)
	for i, site := range sites {
		if errs[i] != nil {
			failures = append(failures, models.SiteFailure{
				SiteID: site.ID,
				Stage:  stageOf(errs[i]),
				Reason: errs[i].Error(),
			})
			continue
		}
		views = append(views, *results[i])
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Site.ID < views[j].Site.ID })
	sort.Slice(failures, func(i, j int) bool { return failures[i].SiteID < failures[j].SiteID })
	return views, failures
}
