package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type stubSnapshots struct {
	mu    sync.Mutex
	snaps map[string]models.SiteSnapshot
	errs  map[string]error
	delay map[string]time.Duration
}

func newStubSnapshots() *stubSnapshots {
	return &stubSnapshots{
		snaps: map[string]models.SiteSnapshot{},
		errs:  map[string]error{},
		delay: map[string]time.Duration{},
	}
}

func (s *stubSnapshots) GetSnapshot(ctx context.Context, siteID string) (models.SiteSnapshot, error) {
	s.mu.Lock()
	snap, ok := s.snaps[siteID]
	err := s.errs[siteID]
	delay := s.delay[siteID]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return models.SiteSnapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return models.SiteSnapshot{}, err
	}
	if !ok {
		return models.EmptySnapshot(siteID, now), nil
	}
	return snap, nil
}

func (s *stubSnapshots) set(siteID string, samples ...models.MetricSample) {
	snap := models.EmptySnapshot(siteID, now)
	for _, sample := range samples {
		if snap.Metrics[sample.Key] == nil {
			snap.Metrics[sample.Key] = map[string]models.MetricSample{}
		}
		snap.Metrics[sample.Key][sample.DeviceID] = sample
	}
	snap.IsReal = len(samples) > 0
	s.mu.Lock()
	s.snaps[siteID] = snap
	s.mu.Unlock()
}

type stubThresholds struct {
	mu   sync.Mutex
	sets map[string]models.ThresholdSet
	err  error
}

func (s *stubThresholds) GetThresholds(_ context.Context, siteID string) (models.ThresholdSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return models.ThresholdSet{}, s.err
	}
	return s.sets[siteID], nil
}

type stubBaselines struct {
	baseline models.Baseline
	err      error
	calls    int
	filters  []models.DeviceFilter
	mu       sync.Mutex
}

func (s *stubBaselines) BaselineStats(_ context.Context, _ string, _ catalog.MetricKey, _ time.Time, filter models.DeviceFilter) (models.Baseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.filters = append(s.filters, filter)
	return s.baseline, s.err
}

type stubObserver struct {
	mu        sync.Mutex
	failures  map[string]int
	rollups   int
	published int
	ingested  map[catalog.Module]int
}

func newStubObserver() *stubObserver {
	return &stubObserver{failures: map[string]int{}, ingested: map[catalog.Module]int{}}
}

func (o *stubObserver) SiteFailure(stage string) {
	o.mu.Lock()
	o.failures[stage]++
	o.mu.Unlock()
}

func (o *stubObserver) ObserveRollup(string, time.Duration) {
	o.mu.Lock()
	o.rollups++
	o.mu.Unlock()
}

func (o *stubObserver) AlertPublished() {
	o.mu.Lock()
	o.published++
	o.mu.Unlock()
}

func (o *stubObserver) SampleIngested(m catalog.Module) {
	o.mu.Lock()
	o.ingested[m]++
	o.mu.Unlock()
}

func sample(key catalog.MetricKey, device string, value float64, age time.Duration) models.MetricSample {
	return models.MetricSample{
		Key:        key,
		DeviceID:   device,
		Category:   catalog.CategoryGeneral,
		Value:      value,
		SampleTime: now.Add(-age),
	}
}

var errUpstream = errors.New("upstream unreachable")
