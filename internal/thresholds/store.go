package thresholds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"iot-engine/internal/models"
)

// ErrInvalidThresholds is returned when a threshold set violates its invariants
var ErrInvalidThresholds = errors.New("thresholds: invalid configuration")

// Store reads and writes per-site operating limits. A site without stored
// thresholds has an empty set, which is not an error.
type Store interface {
	GetThresholds(ctx context.Context, siteID string) (models.ThresholdSet, error)
	PutThresholds(ctx context.Context, siteID string, set models.ThresholdSet) error
}

// Validate checks the write-time invariants: min < max, warning < critical,
// and non-negative limits and budgets.
func Validate(set models.ThresholdSet) error {
	var problems []string

	if set.AirTempMinC != nil && set.AirTempMaxC != nil && *set.AirTempMinC >= *set.AirTempMaxC {
		problems = append(problems, "air temperature min must be below max")
	}
	if set.AirHumidityMinPct != nil && set.AirHumidityMaxPct != nil && *set.AirHumidityMinPct >= *set.AirHumidityMaxPct {
		problems = append(problems, "air humidity min must be below max")
	}
	if set.AirCO2WarningPPM != nil && set.AirCO2CriticalPPM != nil && *set.AirCO2WarningPPM >= *set.AirCO2CriticalPPM {
		problems = append(problems, "co2 warning must be below critical")
	}

	limits := []struct {
		name  string
		value *float64
	}{
		{"energy power limit", set.EnergyPowerLimitKW},
		{"energy daily budget", set.EnergyDailyBudgetKWh},
		{"water leak threshold", set.WaterLeakThresholdLH},
		{"water daily budget", set.WaterDailyBudgetLiters},
	}
	for _, l := range limits {
		if l.value != nil && *l.value < 0 {
			problems = append(problems, l.name+" must not be negative")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidThresholds, strings.Join(problems, "; "))
	}
	return nil
}

// Memory is an in-process Store
type Memory struct {
	mu   sync.RWMutex
	sets map[string]models.ThresholdSet
}

// NewMemory creates an empty in-memory threshold store
func NewMemory() *Memory {
	return &Memory{sets: make(map[string]models.ThresholdSet)}
}

var _ Store = (*Memory)(nil)

// GetThresholds returns the stored set or an empty one
func (m *Memory) GetThresholds(_ context.Context, siteID string) (models.ThresholdSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[siteID], nil
}

// PutThresholds validates and stores set
func (m *Memory) PutThresholds(_ context.Context, siteID string, set models.ThresholdSet) error {
	if strings.TrimSpace(siteID) == "" {
		return errors.New("site id required")
	}
	if err := Validate(set); err != nil {
		return err
	}
	m.mu.Lock()
	m.sets[siteID] = set
	m.mu.Unlock()
	return nil
}
