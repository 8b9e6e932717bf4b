package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// ClickHouseDB is the telemetry store: raw samples, the device registry
// and the alert history
type ClickHouseDB struct {
	conn     driver.Conn
	logger   *slog.Logger
	lookback time.Duration
}

// Options holds the ClickHouse connection settings
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	// How far back LatestSamples looks for a device's last reading
	Lookback time.Duration
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, opts Options, logger *slog.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connected to ClickHouse", "addr", opts.Addr)

	lookback := opts.Lookback
	if lookback <= 0 {
		lookback = 35 * 24 * time.Hour
	}
	db := &ClickHouseDB{conn: conn, logger: logger, lookback: lookback}

	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return db, nil
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	db.logger.Info("database schema initialized")
	return nil
}

// SaveSample saves a single metric sample
func (db *ClickHouseDB) SaveSample(ctx context.Context, s models.MetricSample) error {
	query := `
		INSERT INTO metric_samples (sample_time, site_id, device_id, category, metric_key, value, unit)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	err := db.conn.Exec(ctx, query,
		s.SampleTime,
		s.SiteID,
		s.DeviceID,
		string(s.Category),
		s.Key.String(),
		s.Value,
		s.Unit,
	)
	if err != nil {
		return fmt.Errorf("failed to insert metric sample: %w", err)
	}
	return nil
}

// SaveSamples saves samples in one batch
func (db *ClickHouseDB) SaveSamples(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	batch, err := db.conn.PrepareBatch(ctx, "INSERT INTO metric_samples (sample_time, site_id, device_id, category, metric_key, value, unit)")
	if err != nil {
		return fmt.Errorf("failed to prepare sample batch: %w", err)
	}
	for _, s := range samples {
		if err := batch.Append(s.SampleTime, s.SiteID, s.DeviceID, string(s.Category), s.Key.String(), s.Value, s.Unit); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append sample: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send sample batch: %w", err)
	}
	return nil
}

// UpsertDevice inserts or updates a device in the registry
func (db *ClickHouseDB) UpsertDevice(ctx context.Context, device models.Device) error {
	query := `
		INSERT INTO device_registry (site_id, device_id, category, registered_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
	`
	err := db.conn.Exec(ctx, query,
		device.SiteID,
		device.DeviceID,
		string(device.Category),
		device.RegisteredAt,
		device.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

// LatestSamples returns the most recent sample per (device, metric) of a
// site within the lookback window
func (db *ClickHouseDB) LatestSamples(ctx context.Context, siteID string, filter models.DeviceFilter) ([]models.MetricSample, error) {
	query := `
		SELECT
			device_id,
			metric_key,
			argMax(category, sample_time) AS category,
			argMax(value, sample_time) AS value,
			argMax(unit, sample_time) AS unit,
			max(sample_time) AS latest
		FROM metric_samples
		WHERE site_id = ? AND sample_time >= ?
	`
	args := []any{siteID, time.Now().Add(-db.lookback)}
	if len(filter.DeviceIDs) > 0 {
		query += " AND device_id IN (?)"
		args = append(args, filter.DeviceIDs)
	}
	query += " GROUP BY device_id, metric_key ORDER BY device_id, metric_key"

	rows, err := db.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest samples: %w", err)
	}
	defer rows.Close()

	var out []models.MetricSample
	for rows.Next() {
		var (
			deviceID, metricKey, category, unit string
			value                               float64
			latest                              time.Time
		)
		if err := rows.Scan(&deviceID, &metricKey, &category, &value, &unit, &latest); err != nil {
			return nil, fmt.Errorf("failed to scan latest sample: %w", err)
		}
		key, err := catalog.ParseKey(metricKey)
		if err != nil {
			db.logger.Warn("skipping unknown metric key", "site_id", siteID, "metric", metricKey)
			continue
		}
		s := models.MetricSample{
			Key:        key,
			Value:      value,
			Unit:       unit,
			SiteID:     siteID,
			DeviceID:   deviceID,
			Category:   catalog.NormalizeCategory(category),
			SampleTime: latest,
		}
		if filter.Match(s) {
			out = append(out, s)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate latest samples: %w", err)
	}
	return out, nil
}

// BaselineStats returns the mean and population standard deviation of a
// site-level metric since the given time. Samples are bucketed per five
// minutes; devices are summed within a bucket for additive metrics and
// averaged for instantaneous ones.
func (db *ClickHouseDB) BaselineStats(ctx context.Context, siteID string, key catalog.MetricKey, since time.Time, filter models.DeviceFilter) (models.Baseline, error) {
	combine := "sum"
	if key.Kind() == catalog.Instantaneous {
		combine = "avg"
	}

	where := "site_id = ? AND metric_key = ? AND sample_time >= ?"
	args := []any{siteID, key.String(), since}
	if len(filter.Categories) > 0 {
		categories := make([]string, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			categories = append(categories, string(c))
		}
		where += " AND category IN (?)"
		args = append(args, categories)
	}

	query := fmt.Sprintf(`
		SELECT
			avg(site_value) AS mean,
			stddevPop(site_value) AS std,
			count() AS samples
		FROM (
			SELECT bucket, %s(device_value) AS site_value
			FROM (
				SELECT toStartOfFiveMinutes(sample_time) AS bucket, device_id, avg(value) AS device_value
				FROM metric_samples
				WHERE %s
				GROUP BY bucket, device_id
			)
			GROUP BY bucket
		)
	`, combine, where)

	var (
		mean, std float64
		samples   uint64
	)
	if err := db.conn.QueryRow(ctx, query, args...).Scan(&mean, &std, &samples); err != nil {
		return models.Baseline{}, fmt.Errorf("failed to calculate baseline for %s: %w", key, err)
	}
	if samples == 0 {
		return models.Baseline{}, nil
	}
	return models.Baseline{Mean: mean, StdDev: std, Samples: samples}, nil
}

// SaveAlertEvent records a published change of a site's alert counts
func (db *ClickHouseDB) SaveAlertEvent(ctx context.Context, event models.AlertEvent) error {
	query := `
		INSERT INTO alert_events (timestamp, site_id, critical_count, warning_count)
		VALUES (?, ?, ?, ?)
	`
	err := db.conn.Exec(ctx, query,
		event.Timestamp,
		event.SiteID,
		uint32(event.Alerts.CriticalCount),
		uint32(event.Alerts.WarningCount),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert event: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		if err := db.conn.Close(); err != nil {
			return fmt.Errorf("failed to close ClickHouse connection: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
