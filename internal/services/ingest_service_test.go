package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"iot-engine/internal/cache"
	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
	"iot-engine/internal/snapshot"
)

type recordingWriter struct {
	mu      sync.Mutex
	batches [][]models.MetricSample
	devices []models.Device
}

func (w *recordingWriter) SaveSamples(_ context.Context, samples []models.MetricSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]models.MetricSample(nil), samples...))
	return nil
}

func (w *recordingWriter) UpsertDevice(_ context.Context, device models.Device) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.devices = append(w.devices, device)
	return nil
}

func (w *recordingWriter) saved() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

// warehouse only exposes rows that have been saved
type warehouse struct {
	recordingWriter
}

func (w *warehouse) LatestSamples(_ context.Context, siteID string, _ models.DeviceFilter) ([]models.MetricSample, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.MetricSample
	for _, b := range w.batches {
		for _, s := range b {
			if s.SiteID == siteID {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

type changeBuffer struct{ changed bool }

func (b changeBuffer) Update(models.MetricSample) bool { return b.changed }

type recordingInvalidator struct {
	mu    sync.Mutex
	sites []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, siteID string) {
	r.mu.Lock()
	r.sites = append(r.sites, siteID)
	r.mu.Unlock()
}

func siteSample(siteID, device string, key catalog.MetricKey, value float64) models.MetricSample {
	s := sample(key, device, value, 0)
	s.SiteID = siteID
	return s
}

func TestIngestBatchesSamples(t *testing.T) {
	writer := &recordingWriter{}
	obs := newStubObserver()
	svc := NewIngestService(writer, nil, nil, obs, IngestServiceConfig{BatchSize: 2, FlushInterval: time.Hour}, nil)
	ctx := context.Background()

	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 10))
	if writer.saved() != 0 {
		t.Fatalf("a partial batch must not be written yet")
	}
	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 11))
	svc.process(ctx, siteSample("s1", "a1", catalog.AirCO2, 600))
	if len(writer.batches) != 1 || len(writer.batches[0]) != 2 {
		t.Fatalf("expected one full batch, got %d", len(writer.batches))
	}

	svc.flush(ctx)
	if writer.saved() != 3 {
		t.Fatalf("expected 3 saved samples, got %d", writer.saved())
	}
	if obs.ingested[catalog.ModuleEnergy] != 2 || obs.ingested[catalog.ModuleAir] != 1 {
		t.Fatalf("unexpected ingest counts %+v", obs.ingested)
	}
}

func TestIngestRegistersDevicesOnce(t *testing.T) {
	writer := &recordingWriter{}
	svc := NewIngestService(writer, nil, nil, nil, DefaultIngestServiceConfig(), nil)
	ctx := context.Background()

	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 10))
	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyMonthlyKWh, 100))
	svc.process(ctx, siteSample("s2", "m1", catalog.EnergyPowerKW, 10))

	if len(writer.devices) != 2 || svc.KnownDevices() != 2 {
		t.Fatalf("expected 2 device registrations, got %d", len(writer.devices))
	}
}

func TestIngestInvalidatesOnChange(t *testing.T) {
	inv := &recordingInvalidator{}
	ctx := context.Background()

	svc := NewIngestService(nil, changeBuffer{changed: true}, inv, nil, DefaultIngestServiceConfig(), nil)
	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 10))
	if len(inv.sites) != 1 || inv.sites[0] != "s1" {
		t.Fatalf("expected s1 invalidated, got %v", inv.sites)
	}

	svc = NewIngestService(nil, changeBuffer{changed: false}, inv, nil, DefaultIngestServiceConfig(), nil)
	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 10.1))
	if len(inv.sites) != 1 {
		t.Fatalf("an insignificant update must not invalidate, got %v", inv.sites)
	}
}

func TestIngestInvalidatesAfterFlushWhenWriting(t *testing.T) {
	store := &warehouse{}
	reader := snapshot.NewReader(store, snapshot.WithCache(cache.NewMemory[models.SiteSnapshot](time.Minute, nil)))
	svc := NewIngestService(store, changeBuffer{changed: true}, reader, nil,
		IngestServiceConfig{BatchSize: 100, FlushInterval: time.Hour}, nil)
	ctx := context.Background()

	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 10))
	before, err := reader.GetSnapshot(ctx, "s1")
	if err != nil || before.IsReal {
		t.Fatalf("unflushed sample must not be visible yet, real=%v err=%v", before.IsReal, err)
	}

	svc.flush(ctx)
	after, err := reader.GetSnapshot(ctx, "s1")
	if err != nil || !after.IsReal {
		t.Fatalf("expected the flushed sample after invalidation, real=%v err=%v", after.IsReal, err)
	}
}

func TestIngestInvalidatesEachFlushedSiteOnce(t *testing.T) {
	inv := &recordingInvalidator{}
	svc := NewIngestService(&recordingWriter{}, changeBuffer{changed: true}, inv, nil,
		IngestServiceConfig{BatchSize: 100, FlushInterval: time.Hour}, nil)
	ctx := context.Background()

	svc.process(ctx, siteSample("s1", "m1", catalog.EnergyPowerKW, 10))
	svc.process(ctx, siteSample("s2", "m1", catalog.EnergyPowerKW, 10))
	svc.process(ctx, siteSample("s1", "a1", catalog.AirCO2, 600))
	if len(inv.sites) != 0 {
		t.Fatalf("nothing may be invalidated before the flush, got %v", inv.sites)
	}
	svc.flush(ctx)
	if len(inv.sites) != 2 || inv.sites[0] != "s1" || inv.sites[1] != "s2" {
		t.Fatalf("expected s1 and s2 invalidated once, got %v", inv.sites)
	}
}

func TestIngestDropsIncompleteSamples(t *testing.T) {
	writer := &recordingWriter{}
	svc := NewIngestService(writer, nil, nil, nil, IngestServiceConfig{BatchSize: 1}, nil)
	ctx := context.Background()

	svc.process(ctx, siteSample("", "m1", catalog.EnergyPowerKW, 10))
	svc.process(ctx, siteSample("s1", "", catalog.EnergyPowerKW, 10))
	svc.process(ctx, siteSample("s1", "m1", catalog.MetricKey(200), 10))
	if writer.saved() != 0 || len(writer.devices) != 0 {
		t.Fatalf("incomplete samples must be dropped")
	}
}

func TestIngestFlushesOnShutdown(t *testing.T) {
	writer := &recordingWriter{}
	svc := NewIngestService(writer, nil, nil, nil, IngestServiceConfig{ChannelSize: 4, BatchSize: 100, FlushInterval: time.Hour}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()

	svc.SampleChan <- siteSample("s1", "m1", catalog.EnergyPowerKW, 10)
	svc.SampleChan <- siteSample("s1", "w1", catalog.WaterFlowRate, 3)
	close(svc.SampleChan)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("ingest loop did not stop")
	}
	cancel()
	if writer.saved() != 2 {
		t.Fatalf("expected pending samples flushed, got %d", writer.saved())
	}
}
