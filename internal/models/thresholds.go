package models

// ThresholdSet holds the operating limits configured for a site.
// A nil field means the limit is not configured.
type ThresholdSet struct {
	EnergyPowerLimitKW            *float64 `json:"energy_power_limit_kw,omitempty"`
	EnergyDailyBudgetKWh          *float64 `json:"energy_daily_budget_kwh,omitempty"`
	EnergyAnomalyDetectionEnabled bool     `json:"energy_anomaly_detection_enabled"`
	AirTempMinC                   *float64 `json:"air_temp_min_c,omitempty"`
	AirTempMaxC                   *float64 `json:"air_temp_max_c,omitempty"`
	AirHumidityMinPct             *float64 `json:"air_humidity_min_pct,omitempty"`
	AirHumidityMaxPct             *float64 `json:"air_humidity_max_pct,omitempty"`
	AirCO2WarningPPM              *float64 `json:"air_co2_warning_ppm,omitempty"`
	AirCO2CriticalPPM             *float64 `json:"air_co2_critical_ppm,omitempty"`
	WaterLeakThresholdLH          *float64 `json:"water_leak_threshold_lh,omitempty"`
	WaterDailyBudgetLiters        *float64 `json:"water_daily_budget_liters,omitempty"`
}

// Float returns a pointer to v, for building threshold sets
func Float(v float64) *float64 {
	return &v
}
