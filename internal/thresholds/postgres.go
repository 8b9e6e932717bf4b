package thresholds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"iot-engine/internal/models"
)

const siteThresholdsTableSQL = `
	CREATE TABLE IF NOT EXISTS site_thresholds (
		site_id TEXT PRIMARY KEY,
		energy_power_limit_kw DOUBLE PRECISION,
		energy_daily_budget_kwh DOUBLE PRECISION,
		energy_anomaly_detection_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		air_temp_min_c DOUBLE PRECISION,
		air_temp_max_c DOUBLE PRECISION,
		air_humidity_min_pct DOUBLE PRECISION,
		air_humidity_max_pct DOUBLE PRECISION,
		air_co2_warning_ppm DOUBLE PRECISION,
		air_co2_critical_ppm DOUBLE PRECISION,
		water_leak_threshold_lh DOUBLE PRECISION,
		water_daily_budget_liters DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// Postgres stores threshold sets in PostgreSQL
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a Postgres threshold store
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ Store = (*Postgres)(nil)

// InitSchema creates the thresholds table if it doesn't exist
func (p *Postgres) InitSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, siteThresholdsTableSQL); err != nil {
		return fmt.Errorf("failed to create site_thresholds table: %w", err)
	}
	return nil
}

// GetThresholds loads the set of a site. A missing row is an empty set.
func (p *Postgres) GetThresholds(ctx context.Context, siteID string) (models.ThresholdSet, error) {
	const query = `SELECT energy_power_limit_kw, energy_daily_budget_kwh, energy_anomaly_detection_enabled,
		air_temp_min_c, air_temp_max_c, air_humidity_min_pct, air_humidity_max_pct,
		air_co2_warning_ppm, air_co2_critical_ppm, water_leak_threshold_lh, water_daily_budget_liters
		FROM site_thresholds WHERE site_id = $1`

	var set models.ThresholdSet
	err := p.pool.QueryRow(ctx, query, siteID).Scan(
		&set.EnergyPowerLimitKW,
		&set.EnergyDailyBudgetKWh,
		&set.EnergyAnomalyDetectionEnabled,
		&set.AirTempMinC,
		&set.AirTempMaxC,
		&set.AirHumidityMinPct,
		&set.AirHumidityMaxPct,
		&set.AirCO2WarningPPM,
		&set.AirCO2CriticalPPM,
		&set.WaterLeakThresholdLH,
		&set.WaterDailyBudgetLiters,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ThresholdSet{}, nil
		}
		return models.ThresholdSet{}, fmt.Errorf("failed to load thresholds for %s: %w", siteID, err)
	}
	return set, nil
}

// PutThresholds validates and upserts the set of a site
func (p *Postgres) PutThresholds(ctx context.Context, siteID string, set models.ThresholdSet) error {
	if strings.TrimSpace(siteID) == "" {
		return errors.New("site id required")
	}
	if err := Validate(set); err != nil {
		return err
	}

	const query = `INSERT INTO site_thresholds (site_id, energy_power_limit_kw, energy_daily_budget_kwh,
		energy_anomaly_detection_enabled, air_temp_min_c, air_temp_max_c, air_humidity_min_pct, air_humidity_max_pct,
		air_co2_warning_ppm, air_co2_critical_ppm, water_leak_threshold_lh, water_daily_budget_liters, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (site_id) DO UPDATE SET
			energy_power_limit_kw = EXCLUDED.energy_power_limit_kw,
			energy_daily_budget_kwh = EXCLUDED.energy_daily_budget_kwh,
			energy_anomaly_detection_enabled = EXCLUDED.energy_anomaly_detection_enabled,
			air_temp_min_c = EXCLUDED.air_temp_min_c,
			air_temp_max_c = EXCLUDED.air_temp_max_c,
			air_humidity_min_pct = EXCLUDED.air_humidity_min_pct,
			air_humidity_max_pct = EXCLUDED.air_humidity_max_pct,
			air_co2_warning_ppm = EXCLUDED.air_co2_warning_ppm,
			air_co2_critical_ppm = EXCLUDED.air_co2_critical_ppm,
			water_leak_threshold_lh = EXCLUDED.water_leak_threshold_lh,
			water_daily_budget_liters = EXCLUDED.water_daily_budget_liters,
			updated_at = now()`

	_, err := p.pool.Exec(ctx, query,
		siteID,
		set.EnergyPowerLimitKW,
		set.EnergyDailyBudgetKWh,
		set.EnergyAnomalyDetectionEnabled,
		set.AirTempMinC,
		set.AirTempMaxC,
		set.AirHumidityMinPct,
		set.AirHumidityMaxPct,
		set.AirCO2WarningPPM,
		set.AirCO2CriticalPPM,
		set.WaterLeakThresholdLH,
		set.WaterDailyBudgetLiters,
	)
	if err != nil {
		return fmt.Errorf("failed to store thresholds for %s: %w", siteID, err)
	}
	return nil
}
