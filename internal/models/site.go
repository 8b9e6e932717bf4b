package models

import (
	"fmt"
	"strings"
	"time"

	"iot-engine/internal/catalog"
)

// EnabledModules flags which monitoring domains a site is instrumented for
type EnabledModules struct {
	Energy bool `json:"energy"`
	Air    bool `json:"air"`
	Water  bool `json:"water"`
}

// Enabled reports whether module m is enabled
func (e EnabledModules) Enabled(m catalog.Module) bool {
	switch m {
	case catalog.ModuleEnergy:
		return e.Energy
	case catalog.ModuleAir:
		return e.Air
	case catalog.ModuleWater:
		return e.Water
	}
	return false
}

// Site is a leaf of the Holding -> Brand -> Site hierarchy
type Site struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	BrandID   string         `json:"brand_id"`
	HoldingID string         `json:"holding_id"`
	Region    string         `json:"region"`
	Modules   EnabledModules `json:"modules"`
}

// ScopeKind is the hierarchy level a rollup is computed for
type ScopeKind string

const (
	ScopeAll     ScopeKind = "all"
	ScopeBrand   ScopeKind = "brand"
	ScopeHolding ScopeKind = "holding"
)

// Scope filters the site set of a rollup
type Scope struct {
	Kind   ScopeKind `json:"kind"`
	ID     string    `json:"id,omitempty"`
	Region string    `json:"region,omitempty"`
}

// Contains reports whether site belongs to the scope
func (s Scope) Contains(site Site) bool {
	switch s.Kind {
	case ScopeBrand:
		if site.BrandID != s.ID {
			return false
		}
	case ScopeHolding:
		if site.HoldingID != s.ID {
			return false
		}
	case ScopeAll, "":
	default:
		return false
	}
	return s.Region == "" || s.Region == site.Region
}

// ParseScopeKind resolves a scope level name
func ParseScopeKind(name string) (ScopeKind, error) {
	switch k := ScopeKind(strings.ToLower(strings.TrimSpace(name))); k {
	case ScopeAll, ScopeBrand, ScopeHolding:
		return k, nil
	case "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("unknown scope %q", name)
}

// SiteView bundles everything computed for one site in one evaluation pass
type SiteView struct {
	Site        Site                            `json:"site"`
	Snapshot    SiteSnapshot                    `json:"snapshot"`
	Modules     map[catalog.Module]ModuleStatus `json:"modules"`
	Composite   CompositeStatus                 `json:"composite"`
	Verdicts    map[catalog.MetricKey]Verdict   `json:"verdicts"`
	Alerts      AlertStatus                     `json:"alerts"`
	EvaluatedAt time.Time                       `json:"evaluated_at"`
}

// RollupTotals is the scope-level summary over a filtered site set
type RollupTotals struct {
	SitesOnline         int     `json:"sites_online"`
	SitesTotal          int     `json:"sites_total"`
	AggregatedEnergyKWh float64 `json:"aggregated_energy_kwh"`
	AvgCO2PPM           float64 `json:"avg_co2_ppm"`
	AlertsCritical      int     `json:"alerts_critical"`
	AlertsWarning       int     `json:"alerts_warning"`
	HasRealData         bool    `json:"has_real_data"`
	AvgCompositeScore   float64 `json:"avg_composite_score"`
}

// SiteFailure records why a site was left out of a rollup
type SiteFailure struct {
	SiteID string `json:"site_id"`
	Stage  string `json:"stage"`
	Reason string `json:"reason"`
}

// RollupResult is a best-effort rollup plus the sites it could not include
type RollupResult struct {
	Scope    Scope         `json:"scope"`
	Totals   RollupTotals  `json:"totals"`
	Failures []SiteFailure `json:"failures"`
}

// AlertEvent is published whenever a site's alert counts change
type AlertEvent struct {
	SiteID    string      `json:"site_id"`
	Alerts    AlertStatus `json:"alerts"`
	Timestamp time.Time   `json:"timestamp"`
}
