package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"iot-engine/internal/catalog"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Collectors groups the engine's Prometheus collectors. It implements the
// cache and evaluator observers.
type Collectors struct {
	cacheLookups    *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	misconfigured   *prometheus.CounterVec
	rollupDuration  *prometheus.HistogramVec
	alertsPublished prometheus.Counter
	samplesIngested *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iot_engine",
			Subsystem: "snapshot",
			Name:      "cache_lookups_total",
			Help:      "Snapshot cache lookups by result",
		}, []string{"result"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iot_engine",
			Subsystem: "rollup",
			Name:      "site_failures_total",
			Help:      "Sites left out of a rollup by failing stage",
		}, []string{"stage"}),
		misconfigured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iot_engine",
			Subsystem: "evaluator",
			Name:      "misconfigured_thresholds_total",
			Help:      "Evaluations that ignored an unusable threshold pair",
		}, []string{"metric"}),
		rollupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "iot_engine",
			Subsystem: "rollup",
			Name:      "duration_seconds",
			Help:      "Latency distribution of scope rollups",
			Buckets:   histogramBuckets,
		}, []string{"scope"}),
		alertsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "iot_engine",
			Subsystem: "alerts",
			Name:      "published_total",
			Help:      "Alert state changes handed to the publisher",
		}),
		samplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "iot_engine",
			Subsystem: "ingest",
			Name:      "samples_total",
			Help:      "Telemetry samples ingested by module",
		}, []string{"module"}),
	}
	if reg == nil {
		return c
	}

	c.cacheLookups = register(reg, c.cacheLookups)
	c.fetchFailures = register(reg, c.fetchFailures)
	c.misconfigured = register(reg, c.misconfigured)
	c.rollupDuration = register(reg, c.rollupDuration)
	c.alertsPublished = register(reg, c.alertsPublished)
	c.samplesIngested = register(reg, c.samplesIngested)
	return c
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) T {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return collector
}

func (c *Collectors) CacheHit() {
	c.cacheLookups.WithLabelValues("hit").Inc()
}

func (c *Collectors) CacheMiss() {
	c.cacheLookups.WithLabelValues("miss").Inc()
}

func (c *Collectors) MisconfiguredThreshold(key catalog.MetricKey) {
	c.misconfigured.WithLabelValues(key.String()).Inc()
}

// SiteFailure counts a site excluded from a rollup
func (c *Collectors) SiteFailure(stage string) {
	c.fetchFailures.WithLabelValues(stage).Inc()
}

// ObserveRollup records how long a rollup of the given scope kind took
func (c *Collectors) ObserveRollup(scope string, d time.Duration) {
	c.rollupDuration.WithLabelValues(scope).Observe(d.Seconds())
}

// AlertPublished counts one published alert state change
func (c *Collectors) AlertPublished() {
	c.alertsPublished.Inc()
}

// SampleIngested counts one ingested sample
func (c *Collectors) SampleIngested(m catalog.Module) {
	c.samplesIngested.WithLabelValues(string(m)).Inc()
}
