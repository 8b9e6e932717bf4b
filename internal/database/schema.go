package database

// SQL schemas for all ClickHouse tables

const (
	// MetricSamplesTableSQL creates the raw telemetry table
	MetricSamplesTableSQL = `
		CREATE TABLE IF NOT EXISTS metric_samples (
			sample_time DateTime64(3),
			site_id String,
			device_id String,
			category LowCardinality(String),
			metric_key LowCardinality(String),
			value Float64,
			unit LowCardinality(String)
		) ENGINE = MergeTree()
		ORDER BY (site_id, metric_key, device_id, sample_time)
		PARTITION BY toYYYYMM(sample_time)
	`

	// DeviceRegistryTableSQL creates the device_registry table
	DeviceRegistryTableSQL = `
		CREATE TABLE IF NOT EXISTS device_registry (
			site_id String,
			device_id String,
			category LowCardinality(String),
			registered_at DateTime64(3),
			last_seen DateTime64(3)
		) ENGINE = ReplacingMergeTree(last_seen)
		ORDER BY (site_id, device_id)
	`

	// AlertEventsTableSQL creates the alert_events table, one row per
	// published change of a site's alert counts
	AlertEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS alert_events (
			timestamp DateTime64(3),
			site_id String,
			critical_count UInt32,
			warning_count UInt32
		) ENGINE = MergeTree()
		ORDER BY (site_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		MetricSamplesTableSQL,
		DeviceRegistryTableSQL,
		AlertEventsTableSQL,
	}
}
