package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// MQTT Configuration
	MQTTBroker         string
	MQTTClientID       string
	MQTTUsername       string
	MQTTPassword       string
	MQTTTopicTelemetry string
	MQTTTopicAlerts    string

	// ClickHouse Configuration
	ClickHouseAddr string
	ClickHouseDB   string
	ClickHouseUser string
	ClickHousePass string

	// Metric store backend: clickhouse or memory
	MetricStore string

	// PostgreSQL (thresholds and site hierarchy); empty keeps both in memory
	DatabaseURL string

	// Redis shared snapshot cache; empty address disables it
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// HTTP and logging
	HTTPAddr string
	LogLevel string

	// Snapshot reads and rollups
	SnapshotCacheTTL  time.Duration
	SiteReadTimeout   time.Duration
	RollupConcurrency int

	// Freshness windows per module
	FreshnessEnergy time.Duration
	FreshnessAir    time.Duration
	FreshnessWater  time.Duration

	// Composite weights
	WeightEnergy float64
	WeightAir    float64
	WeightWater  float64

	// Water scoring strategy: heuristic or baseline
	WaterScorer string

	// Anomaly detection
	AnomalyZThreshold float64
	BaselineDays      int

	// Alert publishing
	AlertPollInterval time.Duration

	// Change detection deltas for the in-memory buffer
	ChangeDeltaPowerKW float64
	ChangeDeltaCO2PPM  float64
	ChangeDeltaLeakLH  float64

	// Channel sizes
	IngestChannelSize int
	AlertChannelSize  int

	// Serve demo metrics for sites without telemetry
	DemoData bool
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		MQTTBroker:         getEnv("MQTT_BROKER", "tcp://localhost:1883"),
		MQTTClientID:       getEnv("MQTT_CLIENT_ID", "iot-engine"),
		MQTTUsername:       getEnv("MQTT_USERNAME", ""),
		MQTTPassword:       getEnv("MQTT_PASSWORD", ""),
		MQTTTopicTelemetry: getEnv("MQTT_TOPIC_TELEMETRY", "telemetry/+/+/+"),
		MQTTTopicAlerts:    getEnv("MQTT_TOPIC_ALERTS", "alerts/{site_id}"),

		ClickHouseAddr: getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDB:   getEnv("CLICKHOUSE_DB", "iot"),
		ClickHouseUser: getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePass: getEnv("CLICKHOUSE_PASS", ""),

		MetricStore: getEnv("METRIC_STORE", "clickhouse"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SnapshotCacheTTL:  getEnvDuration("SNAPSHOT_CACHE_TTL", 15*time.Second),
		SiteReadTimeout:   getEnvDuration("SITE_READ_TIMEOUT", 2*time.Second),
		RollupConcurrency: getEnvInt("ROLLUP_CONCURRENCY", 8),

		FreshnessEnergy: getEnvDuration("FRESHNESS_ENERGY", 5*time.Minute),
		FreshnessAir:    getEnvDuration("FRESHNESS_AIR", 10*time.Minute),
		FreshnessWater:  getEnvDuration("FRESHNESS_WATER", 15*time.Minute),

		WeightEnergy: getEnvFloat("WEIGHT_ENERGY", 0.80),
		WeightAir:    getEnvFloat("WEIGHT_AIR", 0.05),
		WeightWater:  getEnvFloat("WEIGHT_WATER", 0.15),

		WaterScorer: getEnv("WATER_SCORER", "heuristic"),

		AnomalyZThreshold: getEnvFloat("ANOMALY_Z_THRESHOLD", 3.0),
		BaselineDays:      getEnvInt("BASELINE_DAYS", 7),

		AlertPollInterval: getEnvDuration("ALERT_POLL_INTERVAL", time.Minute),

		ChangeDeltaPowerKW: getEnvFloat("CHANGE_DELTA_POWER_KW", 5),
		ChangeDeltaCO2PPM:  getEnvFloat("CHANGE_DELTA_CO2_PPM", 100),
		ChangeDeltaLeakLH:  getEnvFloat("CHANGE_DELTA_LEAK_LH", 0.5),

		IngestChannelSize: getEnvInt("INGEST_CHANNEL_SIZE", 500),
		AlertChannelSize:  getEnvInt("ALERT_CHANNEL_SIZE", 100),

		DemoData: getEnvBool("DEMO_DATA", false),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as int, using default: %v", key, err)
		return defaultValue
	}
	return intValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Warning: failed to parse %s as float, using default: %v", key, err)
		return defaultValue
	}
	return floatValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as bool, using default: %v", key, err)
		return defaultValue
	}
	return boolValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	durationValue, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: failed to parse %s as duration, using default: %v", key, err)
		return defaultValue
	}
	return durationValue
}
