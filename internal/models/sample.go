package models

import (
	"time"

	"iot-engine/internal/catalog"
)

// MetricSample is one device reading of one catalog metric
type MetricSample struct {
	Key        catalog.MetricKey      `json:"key"`
	Value      float64                `json:"value"`
	Unit       string                 `json:"unit"`
	SiteID     string                 `json:"site_id"`
	DeviceID   string                 `json:"device_id"`
	Category   catalog.DeviceCategory `json:"category"`
	SampleTime time.Time              `json:"sample_time"`
}

// Newer reports whether s was sampled after other
func (s MetricSample) Newer(other MetricSample) bool {
	return s.SampleTime.After(other.SampleTime)
}

// DeviceFilter narrows a latest-sample query. Empty fields match everything.
type DeviceFilter struct {
	DeviceIDs  []string                 `json:"device_ids,omitempty"`
	Categories []catalog.DeviceCategory `json:"categories,omitempty"`
}

// Match reports whether s passes the filter
func (f DeviceFilter) Match(s MetricSample) bool {
	if len(f.DeviceIDs) > 0 && !contains(f.DeviceIDs, s.DeviceID) {
		return false
	}
	if len(f.Categories) > 0 {
		c := catalog.NormalizeCategory(string(s.Category))
		for _, want := range f.Categories {
			if catalog.NormalizeCategory(string(want)) == c {
				return true
			}
		}
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
