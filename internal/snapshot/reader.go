package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"iot-engine/internal/cache"
	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// ErrReadTimeout is returned when a snapshot read outlives the read timeout
var ErrReadTimeout = errors.New("snapshot read timed out")

// MetricStore is the read side of the telemetry store
type MetricStore interface {
	LatestSamples(ctx context.Context, siteID string, filter models.DeviceFilter) ([]models.MetricSample, error)
}

// PlaceholderSource supplies demo metrics for sites without telemetry
type PlaceholderSource interface {
	Placeholder(ctx context.Context, siteID string) ([]models.MetricSample, bool)
}

// PlaceholderFunc adapts a function to PlaceholderSource
type PlaceholderFunc func(ctx context.Context, siteID string) ([]models.MetricSample, bool)

func (f PlaceholderFunc) Placeholder(ctx context.Context, siteID string) ([]models.MetricSample, bool) {
	return f(ctx, siteID)
}

// Reader builds site snapshots from the metric store through a short TTL
// read-through cache. Concurrent misses for one site share a single store
// read; a caller waits at most the read timeout for it.
type Reader struct {
	store        MetricStore
	cache        cache.Store[models.SiteSnapshot]
	placeholders PlaceholderSource
	readTimeout  time.Duration
	logger       *slog.Logger
	now          func() time.Time
	group        singleflight.Group
}

// Option customises a Reader
type Option func(*Reader)

// WithCache enables the read-through cache
func WithCache(c cache.Store[models.SiteSnapshot]) Option {
	return func(r *Reader) { r.cache = c }
}

// WithPlaceholders fills snapshots of sites without telemetry with demo data
func WithPlaceholders(p PlaceholderSource) Option {
	return func(r *Reader) { r.placeholders = p }
}

// WithReadTimeout bounds a single store read
func WithReadTimeout(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.readTimeout = d
		}
	}
}

// WithLogger sets the reader logger
func WithLogger(l *slog.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *Reader) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReader creates a Reader over store
func NewReader(store MetricStore, opts ...Option) *Reader {
	r := &Reader{
		store:       store,
		readTimeout: 2 * time.Second,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetSnapshot returns the latest known sample per metric per device of a
// site. A site without telemetry yields a well-formed snapshot with
// IsReal=false and no error. Errors are reserved for store failures and
// timeouts. The returned snapshot is shared and must not be modified.
func (r *Reader) GetSnapshot(ctx context.Context, siteID string) (models.SiteSnapshot, error) {
	if siteID == "" {
		return models.EmptySnapshot(siteID, r.now()), nil
	}
	if r.cache != nil {
		if snap, ok := r.cache.Get(ctx, siteID); ok {
			return snap, nil
		}
	}

	ch := r.group.DoChan(siteID, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.readTimeout)
		defer cancel()
		snap, err := r.fetch(fetchCtx, siteID)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			r.cache.Set(fetchCtx, siteID, snap)
		}
		return snap, nil
	})

	timer := time.NewTimer(r.readTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.SiteSnapshot{}, res.Err
		}
		return res.Val.(models.SiteSnapshot), nil
	case <-timer.C:
		return models.SiteSnapshot{}, fmt.Errorf("site %s: %w", siteID, ErrReadTimeout)
	case <-ctx.Done():
		return models.SiteSnapshot{}, ctx.Err()
	}
}

// Invalidate drops the cached snapshot of a site
func (r *Reader) Invalidate(ctx context.Context, siteID string) {
	if r.cache != nil {
		r.cache.Delete(ctx, siteID)
	}
}

func (r *Reader) fetch(ctx context.Context, siteID string) (models.SiteSnapshot, error) {
	samples, err := r.store.LatestSamples(ctx, siteID, models.DeviceFilter{})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return models.SiteSnapshot{}, fmt.Errorf("site %s: %w", siteID, ErrReadTimeout)
		}
		return models.SiteSnapshot{}, fmt.Errorf("latest samples for site %s: %w", siteID, err)
	}

	snap := Build(siteID, samples, r.now())
	if snap.IsReal || r.placeholders == nil {
		return snap, nil
	}

	demo, ok := r.placeholders.Placeholder(ctx, siteID)
	if !ok {
		return snap, nil
	}
	r.logger.Debug("serving placeholder snapshot", "site_id", siteID, "samples", len(demo))
	placeholder := Build(siteID, demo, snap.CapturedAt)
	placeholder.IsReal = false
	return placeholder, nil
}

// Build assembles a fresh snapshot from raw samples, keeping the newest
// sample per (metric, device). Samples of other sites, unknown metrics and
// non-finite values are dropped. IsReal is set when any sample survives.
func Build(siteID string, samples []models.MetricSample, capturedAt time.Time) models.SiteSnapshot {
	snap := models.EmptySnapshot(siteID, capturedAt)
	for _, s := range samples {
		if !s.Key.Valid() || math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		if s.SiteID != "" && s.SiteID != siteID {
			continue
		}
		s.SiteID = siteID
		s.Category = catalog.NormalizeCategory(string(s.Category))
		if s.Unit == "" {
			s.Unit = s.Key.Unit()
		}

		byDevice, ok := snap.Metrics[s.Key]
		if !ok {
			byDevice = make(map[string]models.MetricSample)
			snap.Metrics[s.Key] = byDevice
		}
		if prev, ok := byDevice[s.DeviceID]; ok && !s.Newer(prev) {
			continue
		}
		byDevice[s.DeviceID] = s
	}
	snap.IsReal = len(snap.Metrics) > 0
	return snap
}
