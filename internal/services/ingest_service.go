package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// SampleWriter persists telemetry
type SampleWriter interface {
	SaveSamples(ctx context.Context, samples []models.MetricSample) error
	UpsertDevice(ctx context.Context, device models.Device) error
}

// SampleBuffer keeps the latest samples in memory
type SampleBuffer interface {
	Update(s models.MetricSample) bool
}

// SnapshotInvalidator drops cached snapshots
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, siteID string)
}

// IngestObserver counts ingested samples
type IngestObserver interface {
	SampleIngested(m catalog.Module)
}

// IngestServiceConfig holds configuration for the ingest service
type IngestServiceConfig struct {
	ChannelSize   int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultIngestServiceConfig returns default configuration
func DefaultIngestServiceConfig() IngestServiceConfig {
	return IngestServiceConfig{
		ChannelSize:   500,
		BatchSize:     200,
		FlushInterval: 2 * time.Second,
	}
}

// IngestService handles telemetry persistence and fan-out to the in-memory
// buffer and the snapshot cache
type IngestService struct {
	writer      SampleWriter
	buffer      SampleBuffer
	invalidator SnapshotInvalidator
	obs         IngestObserver
	config      IngestServiceConfig
	logger      *slog.Logger

	// Input channel from the MQTT subscriber
	SampleChan chan models.MetricSample

	batch []models.MetricSample

	mu          sync.RWMutex
	seenDevices map[string]time.Time // site/device -> registered at
}

// NewIngestService creates a new ingest service. writer, buffer,
// invalidator and obs may each be nil.
func NewIngestService(
	writer SampleWriter,
	buffer SampleBuffer,
	invalidator SnapshotInvalidator,
	obs IngestObserver,
	config IngestServiceConfig,
	logger *slog.Logger,
) *IngestService {
	if config.BatchSize <= 0 {
		config.BatchSize = 1
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		writer:      writer,
		buffer:      buffer,
		invalidator: invalidator,
		obs:         obs,
		config:      config,
		logger:      logger.With("component", "ingest_service"),
		SampleChan:  make(chan models.MetricSample, config.ChannelSize),
		seenDevices: make(map[string]time.Time),
	}
}

// Start processes samples until ctx is cancelled or the channel is closed.
// Pending samples are flushed before returning.
func (s *IngestService) Start(ctx context.Context) {
	s.logger.Info("starting", "batch_size", s.config.BatchSize, "flush_interval", s.config.FlushInterval)

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-ticker.C:
			s.flush(ctx)
		case sample, ok := <-s.SampleChan:
			if !ok {
				s.shutdown()
				return
			}
			s.process(ctx, sample)
		}
	}
}

func (s *IngestService) shutdown() {
	s.logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.flush(ctx)
	s.logger.Info("shutdown complete")
}

// process handles a single sample
func (s *IngestService) process(ctx context.Context, sample models.MetricSample) {
	if !sample.Key.Valid() || sample.SiteID == "" || sample.DeviceID == "" {
		s.logger.Warn("dropping incomplete sample", "site_id", sample.SiteID, "device_id", sample.DeviceID)
		return
	}
	sample.Category = catalog.NormalizeCategory(string(sample.Category))

	changed := true
	if s.buffer != nil {
		changed = s.buffer.Update(sample)
	}
	// With a writer the store only sees the sample once its batch is
	// flushed, so invalidation waits for the flush.
	if changed && s.writer == nil && s.invalidator != nil {
		s.invalidator.Invalidate(ctx, sample.SiteID)
	}
	if s.obs != nil {
		s.obs.SampleIngested(sample.Key.Module())
	}

	s.registerDevice(ctx, sample)

	if s.writer == nil {
		return
	}
	s.batch = append(s.batch, sample)
	if len(s.batch) >= s.config.BatchSize {
		s.flush(ctx)
	}
}

// flush writes the pending batch and invalidates the cached snapshots of
// its sites. A failed batch is dropped and logged.
func (s *IngestService) flush(ctx context.Context) {
	if s.writer == nil || len(s.batch) == 0 {
		return
	}
	batch := s.batch
	s.batch = nil
	if err := s.writer.SaveSamples(ctx, batch); err != nil {
		s.logger.Error("failed to save samples", "count", len(batch), "error", err)
		return
	}
	s.logger.Debug("saved samples", "count", len(batch))

	if s.invalidator == nil {
		return
	}
	seen := make(map[string]struct{})
	for _, sample := range batch {
		if _, ok := seen[sample.SiteID]; ok {
			continue
		}
		seen[sample.SiteID] = struct{}{}
		s.invalidator.Invalidate(ctx, sample.SiteID)
	}
}

// registerDevice registers a device on its first sample
func (s *IngestService) registerDevice(ctx context.Context, sample models.MetricSample) {
	id := sample.SiteID + "/" + sample.DeviceID

	s.mu.RLock()
	_, seen := s.seenDevices[id]
	s.mu.RUnlock()
	if seen {
		return
	}

	now := time.Now()
	s.mu.Lock()
	s.seenDevices[id] = now
	s.mu.Unlock()

	if s.writer == nil {
		return
	}
	device := models.Device{
		DeviceID:     sample.DeviceID,
		SiteID:       sample.SiteID,
		Category:     sample.Category,
		RegisteredAt: now,
		LastSeen:     sample.SampleTime,
	}
	// Best effort - don't fail if registration fails
	if err := s.writer.UpsertDevice(ctx, device); err != nil {
		s.logger.Warn("failed to register device", "site_id", sample.SiteID, "device_id", sample.DeviceID, "error", err)
	}
}

// KnownDevices returns how many distinct devices have reported
func (s *IngestService) KnownDevices() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.seenDevices)
}
