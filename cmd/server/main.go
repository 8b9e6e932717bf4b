package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"iot-engine/internal/aggregator"
	"iot-engine/internal/api"
	"iot-engine/internal/cache"
	"iot-engine/internal/catalog"
	"iot-engine/internal/database"
	"iot-engine/internal/evaluator"
	"iot-engine/internal/hierarchy"
	"iot-engine/internal/liveness"
	"iot-engine/internal/metrics"
	"iot-engine/internal/models"
	"iot-engine/internal/mqtt"
	"iot-engine/internal/scoring"
	"iot-engine/internal/services"
	"iot-engine/internal/snapshot"
	"iot-engine/internal/thresholds"
	"iot-engine/pkg/config"
	"iot-engine/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New("iot-engine", logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(log)

	log.Info("starting telemetry engine", "metric_store", cfg.MetricStore, "http_addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collectors := metrics.New(prometheus.DefaultRegisterer)

	// === Metric store ===
	buffer := aggregator.NewSampleBuffer(aggregator.ChangeThresholds{
		catalog.EnergyPowerKW: cfg.ChangeDeltaPowerKW,
		catalog.AirCO2:        cfg.ChangeDeltaCO2PPM,
		catalog.WaterLeakRate: cfg.ChangeDeltaLeakLH,
	}, log.With("component", "sample_buffer"))

	var (
		store     snapshot.MetricStore = buffer
		writer    services.SampleWriter
		baselines services.BaselineSource
		recorder  services.AlertRecorder
	)
	if cfg.MetricStore != "memory" {
		db, err := database.NewClickHouseDB(ctx, database.Options{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDB,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePass,
		}, log)
		if err != nil {
			fatal(log, "failed to initialize ClickHouse", err)
		}
		defer db.Close()
		store, writer, baselines, recorder = db, db, db, db
	}

	// === Thresholds and site hierarchy ===
	var (
		thresholdStore thresholds.Store
		resolver       hierarchy.Resolver
		discovered     *hierarchy.Static
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			fatal(log, "failed to connect to PostgreSQL", err)
		}
		defer pool.Close()

		pgThresholds := thresholds.NewPostgres(pool)
		pgSites := hierarchy.NewPostgres(pool)
		if err := pgThresholds.InitSchema(ctx); err != nil {
			fatal(log, "failed to initialize thresholds schema", err)
		}
		if err := pgSites.InitSchema(ctx); err != nil {
			fatal(log, "failed to initialize hierarchy schema", err)
		}
		thresholdStore, resolver = pgThresholds, pgSites
	} else {
		log.Warn("DATABASE_URL not set, thresholds and sites are kept in memory")
		discovered = hierarchy.NewStatic()
		thresholdStore, resolver = thresholds.NewMemory(), discovered
	}

	// === Snapshot reader ===
	var snapshotCache cache.Store[models.SiteSnapshot] = cache.NewMemory[models.SiteSnapshot](cfg.SnapshotCacheTTL, collectors)
	if cfg.RedisAddr != "" {
		shared, err := cache.NewRedis[models.SiteSnapshot](cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "iot-engine:snapshot:",
			TTL:      cfg.SnapshotCacheTTL,
		}, collectors, log.With("component", "redis_cache"))
		if err != nil {
			log.Warn("redis unavailable, using the local snapshot cache only", "addr", cfg.RedisAddr, "error", err)
		} else {
			defer shared.Close()
			snapshotCache = cache.NewTiered[models.SiteSnapshot](snapshotCache, shared)
		}
	}

	readerOpts := []snapshot.Option{
		snapshot.WithCache(snapshotCache),
		snapshot.WithReadTimeout(cfg.SiteReadTimeout),
		snapshot.WithLogger(log.With("component", "snapshot_reader")),
	}
	if cfg.DemoData {
		readerOpts = append(readerOpts, snapshot.WithPlaceholders(snapshot.NewDemo(nil)))
	}
	reader := snapshot.NewReader(store, readerOpts...)

	// === Evaluation ===
	weights := scoring.Weights{Energy: cfg.WeightEnergy, Air: cfg.WeightAir, Water: cfg.WeightWater}
	if err := weights.Validate(); err != nil {
		log.Warn("invalid composite weights, using defaults", "error", err)
		weights = scoring.DefaultWeights()
	}
	var scoringOpts []scoring.Option
	waterBaseline := cfg.WaterScorer == "baseline" && baselines != nil
	if waterBaseline {
		scoringOpts = append(scoringOpts, scoring.WithScorer(catalog.ModuleWater, scoring.NewBaselineWaterScorer()))
	}
	engine := scoring.NewEngine(weights, scoringOpts...)

	siteService := services.NewSiteService(reader, thresholdStore, baselines, evaluator.New(collectors), engine,
		services.SiteServiceConfig{
			Windows: liveness.Windows{
				Energy: cfg.FreshnessEnergy,
				Air:    cfg.FreshnessAir,
				Water:  cfg.FreshnessWater,
			},
			AnomalyZThreshold: cfg.AnomalyZThreshold,
			BaselineDays:      cfg.BaselineDays,
			WaterBaseline:     waterBaseline,
		}, log)

	rollupService := services.NewRollupService(resolver, siteService, services.RollupServiceConfig{
		Concurrency: cfg.RollupConcurrency,
		SiteTimeout: cfg.SiteReadTimeout + time.Second,
	}, collectors, log)

	// === Ingest and alerting ===
	ingestConfig := services.DefaultIngestServiceConfig()
	ingestConfig.ChannelSize = cfg.IngestChannelSize
	ingestService := services.NewIngestService(writer, buffer, reader, collectors, ingestConfig, log)
	go ingestService.Start(ctx)

	alertService := services.NewAlertService(resolver, siteService, recorder, collectors, services.AlertServiceConfig{
		PollingInterval: cfg.AlertPollInterval,
		SiteTimeout:     cfg.SiteReadTimeout + time.Second,
		ChannelSize:     cfg.AlertChannelSize,
	}, log)

	// === MQTT ===
	mqttClient, err := mqtt.NewClient(mqtt.ClientConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, log)
	if err != nil {
		fatal(log, "failed to initialize MQTT client", err)
	}
	defer mqttClient.Close()

	telemetryChan := make(chan models.MetricSample, cfg.IngestChannelSize)
	subscriber := mqtt.NewSubscriber(mqttClient.GetNativeClient(), mqtt.SubscriberConfig{
		TelemetryTopic: cfg.MQTTTopicTelemetry,
	}, telemetryChan, log)
	if err := subscriber.SubscribeAll(); err != nil {
		fatal(log, "failed to subscribe to MQTT topics", err)
	}
	go forwardSamples(ctx, telemetryChan, ingestService.SampleChan, discovered, log)

	publisher := mqtt.NewPublisher(mqttClient.GetNativeClient(), mqtt.PublisherConfig{
		AlertTopic: cfg.MQTTTopicAlerts,
	}, alertService.AlertChan, log)
	go publisher.Start(ctx)
	go alertService.Start(ctx)

	// === HTTP ===
	server := api.NewServer(api.Deps{
		Snapshots:  reader,
		Sites:      resolver,
		Evaluator:  siteService,
		Thresholds: thresholdStore,
		Rollups:    rollupService,
	}, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	log.Info("telemetry engine is running",
		"telemetry_topic", cfg.MQTTTopicTelemetry,
		"alert_topic", cfg.MQTTTopicAlerts,
		"water_scorer", cfg.WaterScorer,
		"demo_data", cfg.DemoData)

	<-ctx.Done()

	// === Graceful shutdown ===
	log.Info("shutdown signal received, stopping services")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "error", err)
	}

	// Give the ingest loop time to flush its last batch
	time.Sleep(2 * time.Second)
	log.Info("shutdown complete")
}

// forwardSamples moves telemetry from the MQTT subscriber to the ingest
// service. When sites are kept in memory, every reporting site is
// registered on its first sample.
func forwardSamples(ctx context.Context, in <-chan models.MetricSample, out chan<- models.MetricSample, sites *hierarchy.Static, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sample := <-in:
			if sites != nil && sites.Discover(sample.SiteID) {
				log.Info("discovered site", "site_id", sample.SiteID)
			}
			select {
			case out <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
