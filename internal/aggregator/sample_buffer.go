package aggregator

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// ChangeThresholds defines per-metric deltas that count as a significant
// change. Metrics without an entry never trigger the change callback.
type ChangeThresholds map[catalog.MetricKey]float64

// DefaultChangeThresholds returns the deltas used when none are configured
func DefaultChangeThresholds() ChangeThresholds {
	return ChangeThresholds{
		catalog.EnergyPowerKW: 5,
		catalog.AirCO2:        100,
		catalog.WaterLeakRate: 0.5,
	}
}

// DeviceState holds the latest sample per metric of one device
type DeviceState struct {
	DeviceID string
	Category catalog.DeviceCategory
	LastSeen time.Time
	latest   map[catalog.MetricKey]models.MetricSample
}

type siteState struct {
	mu      sync.RWMutex
	devices map[string]*DeviceState
}

// SampleBuffer keeps the latest sample per (site, device, metric) in memory.
// It serves as the metric store when no ClickHouse is configured.
type SampleBuffer struct {
	mu         sync.RWMutex
	sites      map[string]*siteState
	thresholds ChangeThresholds
	logger     *slog.Logger

	// Called outside of any lock when a metric moves by at least its threshold
	onChange func(siteID string, key catalog.MetricKey)
}

// NewSampleBuffer creates an empty buffer
func NewSampleBuffer(thresholds ChangeThresholds, logger *slog.Logger) *SampleBuffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SampleBuffer{
		sites:      make(map[string]*siteState),
		thresholds: thresholds,
		logger:     logger,
	}
}

// SetChangeCallback sets the function called on significant changes
func (b *SampleBuffer) SetChangeCallback(callback func(siteID string, key catalog.MetricKey)) {
	b.onChange = callback
}

func (b *SampleBuffer) getOrCreateSite(siteID string) *siteState {
	b.mu.RLock()
	site, ok := b.sites[siteID]
	b.mu.RUnlock()
	if ok {
		return site
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if site, ok := b.sites[siteID]; ok {
		return site
	}
	site = &siteState{devices: make(map[string]*DeviceState)}
	b.sites[siteID] = site
	return site
}

// Update records s if it is newer than what the buffer holds for its
// (site, device, metric). It reports whether the buffer changed.
func (b *SampleBuffer) Update(s models.MetricSample) bool {
	if s.SiteID == "" || s.DeviceID == "" || !s.Key.Valid() || math.IsNaN(s.Value) {
		return false
	}
	site := b.getOrCreateSite(s.SiteID)

	site.mu.Lock()
	device, ok := site.devices[s.DeviceID]
	if !ok {
		device = &DeviceState{DeviceID: s.DeviceID, latest: make(map[catalog.MetricKey]models.MetricSample)}
		site.devices[s.DeviceID] = device
	}
	previous, hadPrevious := device.latest[s.Key]
	if hadPrevious && !s.Newer(previous) {
		site.mu.Unlock()
		return false
	}
	device.latest[s.Key] = s
	device.Category = s.Category
	if s.SampleTime.After(device.LastSeen) {
		device.LastSeen = s.SampleTime
	}
	site.mu.Unlock()

	if hadPrevious {
		if delta, ok := b.thresholds[s.Key]; ok && math.Abs(s.Value-previous.Value) >= delta {
			b.logger.Info("significant change",
				"site_id", s.SiteID, "device_id", s.DeviceID, "metric", s.Key.String(),
				"value", s.Value, "delta", s.Value-previous.Value)
			if b.onChange != nil {
				b.onChange(s.SiteID, s.Key)
			}
		}
	}
	return true
}

// LatestSamples returns the buffered samples of a site matching filter,
// ordered by device id then metric
func (b *SampleBuffer) LatestSamples(_ context.Context, siteID string, filter models.DeviceFilter) ([]models.MetricSample, error) {
	b.mu.RLock()
	site, ok := b.sites[siteID]
	b.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	site.mu.RLock()
	defer site.mu.RUnlock()

	ids := make([]string, 0, len(site.devices))
	for id := range site.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []models.MetricSample
	for _, id := range ids {
		for _, key := range catalog.Keys() {
			s, ok := site.devices[id].latest[key]
			if ok && filter.Match(s) {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

// Sites returns every site id seen so far, sorted
func (b *SampleBuffer) Sites() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.sites))
	for id := range b.sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Devices returns the devices of a site, sorted by id
func (b *SampleBuffer) Devices(siteID string) []models.Device {
	b.mu.RLock()
	site, ok := b.sites[siteID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}

	site.mu.RLock()
	defer site.mu.RUnlock()
	out := make([]models.Device, 0, len(site.devices))
	for _, d := range site.devices {
		out = append(out, models.Device{DeviceID: d.DeviceID, SiteID: siteID, Category: d.Category, LastSeen: d.LastSeen})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}
