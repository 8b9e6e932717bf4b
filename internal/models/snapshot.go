package models

import (
	"sort"
	"time"

	"iot-engine/internal/catalog"
)

// SiteSnapshot is the latest known sample per metric per device of a site.
// A snapshot is built fresh on every read and never mutated afterwards.
type SiteSnapshot struct {
	SiteID     string                                        `json:"site_id"`
	Metrics    map[catalog.MetricKey]map[string]MetricSample `json:"metrics"`
	IsReal     bool                                          `json:"is_real"`
	CapturedAt time.Time                                     `json:"captured_at"`
}

// EmptySnapshot is the well-formed snapshot of a site without telemetry
func EmptySnapshot(siteID string, capturedAt time.Time) SiteSnapshot {
	return SiteSnapshot{
		SiteID:     siteID,
		Metrics:    map[catalog.MetricKey]map[string]MetricSample{},
		CapturedAt: capturedAt,
	}
}

// Samples returns the per-device samples of key ordered by device id
func (s SiteSnapshot) Samples(key catalog.MetricKey) []MetricSample {
	byDevice := s.Metrics[key]
	if len(byDevice) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byDevice))
	for id := range byDevice {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]MetricSample, 0, len(ids))
	for _, id := range ids {
		out = append(out, byDevice[id])
	}
	return out
}

// Has reports whether any device reported key
func (s SiteSnapshot) Has(key catalog.MetricKey) bool {
	return len(s.Metrics[key]) > 0
}

// Value collapses the per-device samples of key into the single site value.
//
// Additive metrics sum the general meters, or every device when the site
// has no general meter. Instantaneous metrics average every device.
// Devices are visited in id order so the result is reproducible.
func (s SiteSnapshot) Value(key catalog.MetricKey) (float64, bool) {
	samples := s.Samples(key)
	if len(samples) == 0 {
		return 0, false
	}

	if key.Kind() == catalog.Instantaneous {
		var sum float64
		for _, sample := range samples {
			sum += sample.Value
		}
		return sum / float64(len(samples)), true
	}

	hasGeneral := false
	for _, sample := range samples {
		if sample.Category.IsGeneral() {
			hasGeneral = true
			break
		}
	}
	var sum float64
	for _, sample := range samples {
		if hasGeneral && !sample.Category.IsGeneral() {
			continue
		}
		sum += sample.Value
	}
	return sum, true
}

// LatestSampleTime returns the most recent sample time of key across devices
func (s SiteSnapshot) LatestSampleTime(key catalog.MetricKey) (time.Time, bool) {
	var latest time.Time
	for _, sample := range s.Metrics[key] {
		if sample.SampleTime.After(latest) {
			latest = sample.SampleTime
		}
	}
	return latest, !latest.IsZero()
}

// HasModuleData reports whether any metric of module m was reported
func (s SiteSnapshot) HasModuleData(m catalog.Module) bool {
	for _, key := range catalog.KeysFor(m) {
		if s.Has(key) {
			return true
		}
	}
	return false
}
