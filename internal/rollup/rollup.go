package rollup

import (
	"sort"

	"github.com/shopspring/decimal"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// Rollup combines per-site views into the totals of scope. Views of sites
// outside the scope are ignored.
//
// Only sites with a real snapshot contribute to the online count, the
// aggregates and the alert sums. Additive metrics are summed over the sites
// that report them. Instantaneous metrics are averaged over the sites with
// a live value, so sites without the module never dilute the mean. Sums use
// exact decimal arithmetic over sites in id order, which keeps the result
// identical across runs.
func Rollup(views []models.SiteView, scope models.Scope) models.RollupTotals {
	ordered := make([]models.SiteView, 0, len(views))
	for _, v := range views {
		if scope.Contains(v.Site) {
			ordered = append(ordered, v)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Site.ID < ordered[j].Site.ID
	})

	totals := models.RollupTotals{SitesTotal: len(ordered)}
	energy := decimal.Zero
	co2 := newMean()
	composite := newMean()

	for _, v := range ordered {
		if !v.Snapshot.IsReal {
			continue
		}
		totals.HasRealData = true

		if online(v) {
			totals.SitesOnline++
		}

		if v.Site.Modules.Energy {
			if kwh, ok := v.Snapshot.Value(catalog.EnergyMonthlyKWh); ok {
				energy = energy.Add(decimal.NewFromFloat(kwh))
			}
		}

		if v.Site.Modules.Air && v.Modules[catalog.ModuleAir].IsLive {
			if ppm, ok := v.Snapshot.Value(catalog.AirCO2); ok {
				co2.add(ppm)
			}
		}

		if v.Composite.IsLive {
			composite.add(float64(v.Composite.Score))
		}

		totals.AlertsCritical += v.Alerts.CriticalCount
		totals.AlertsWarning += v.Alerts.WarningCount
	}

	totals.AggregatedEnergyKWh = energy.InexactFloat64()
	totals.AvgCO2PPM = co2.value()
	totals.AvgCompositeScore = composite.value()
	return totals
}

// online reports whether any enabled module of the site is live
func online(v models.SiteView) bool {
	for _, m := range catalog.Modules {
		if !v.Site.Modules.Enabled(m) {
			continue
		}
		if status, ok := v.Modules[m]; ok && status.IsLive {
			return true
		}
	}
	return false
}

type mean struct {
	sum decimal.Decimal
	n   int64
}

func newMean() *mean {
	return &mean{sum: decimal.Zero}
}

func (m *mean) add(v float64) {
	m.sum = m.sum.Add(decimal.NewFromFloat(v))
	m.n++
}

// value returns the arithmetic mean, or 0 without contributions
func (m *mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return m.sum.Div(decimal.NewFromInt(m.n)).InexactFloat64()
}
