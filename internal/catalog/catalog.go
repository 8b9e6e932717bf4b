package catalog

import (
	"fmt"
	"strings"
)

// Module is an independently enabled monitoring domain of a site
type Module string

const (
	ModuleEnergy Module = "energy"
	ModuleAir    Module = "air"
	ModuleWater  Module = "water"
)

// Modules lists every module in evaluation order
var Modules = []Module{ModuleEnergy, ModuleAir, ModuleWater}

// namespace returns the metric key prefix used on the wire for a module
func (m Module) namespace() string {
	if m == ModuleAir {
		return "iaq"
	}
	return string(m)
}

// Kind decides how values combine across devices and sites
type Kind int

const (
	// Additive values are summed (power, consumption)
	Additive Kind = iota
	// Instantaneous values are averaged (temperature, CO2, humidity)
	Instantaneous
)

func (k Kind) String() string {
	if k == Additive {
		return "additive"
	}
	return "instantaneous"
}

// Strategy selects how a metric is compared against site thresholds
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyRange
	StrategyDualAscending
	StrategyCapacity
	StrategyBudget
)

// MetricKey is the closed set of telemetry quantities the engine understands
type MetricKey uint8

const (
	EnergyPowerKW MetricKey = iota + 1
	EnergyConsumptionKWh
	EnergyMonthlyKWh
	AirCO2
	AirTemperature
	AirHumidity
	WaterFlowRate
	WaterLeakRate
	WaterConsumptionLiters
)

// MetricSpec describes one catalog entry
type MetricSpec struct {
	Key      MetricKey
	Module   Module
	Name     string
	Unit     string
	Kind     Kind
	Strategy Strategy
}

var specs = map[MetricKey]MetricSpec{
	EnergyPowerKW:          {EnergyPowerKW, ModuleEnergy, "power_kw", "kW", Additive, StrategyCapacity},
	EnergyConsumptionKWh:   {EnergyConsumptionKWh, ModuleEnergy, "consumption_kwh", "kWh", Additive, StrategyBudget},
	EnergyMonthlyKWh:       {EnergyMonthlyKWh, ModuleEnergy, "monthly_kwh", "kWh", Additive, StrategyNone},
	AirCO2:                 {AirCO2, ModuleAir, "co2", "ppm", Instantaneous, StrategyDualAscending},
	AirTemperature:         {AirTemperature, ModuleAir, "temperature", "°C", Instantaneous, StrategyRange},
	AirHumidity:            {AirHumidity, ModuleAir, "humidity", "%", Instantaneous, StrategyRange},
	WaterFlowRate:          {WaterFlowRate, ModuleWater, "flow_rate", "L/h", Additive, StrategyNone},
	WaterLeakRate:          {WaterLeakRate, ModuleWater, "leak_rate", "L/h", Additive, StrategyDualAscending},
	WaterConsumptionLiters: {WaterConsumptionLiters, ModuleWater, "consumption_liters", "L", Additive, StrategyBudget},
}

var byName = func() map[string]MetricKey {
	m := make(map[string]MetricKey, len(specs))
	for key := range specs {
		m[key.String()] = key
	}
	return m
}()

// Keys returns every catalog key in declaration order
func Keys() []MetricKey {
	keys := make([]MetricKey, 0, len(specs))
	for k := EnergyPowerKW; k <= WaterConsumptionLiters; k++ {
		keys = append(keys, k)
	}
	return keys
}

// Spec returns the catalog entry for key
func Spec(key MetricKey) (MetricSpec, bool) {
	s, ok := specs[key]
	return s, ok
}

// Valid reports whether key belongs to the catalog
func (k MetricKey) Valid() bool {
	_, ok := specs[k]
	return ok
}

// Module returns the module the key belongs to
func (k MetricKey) Module() Module {
	return specs[k].Module
}

// Kind returns the aggregation kind of the key
func (k MetricKey) Kind() Kind {
	return specs[k].Kind
}

// Unit returns the canonical unit of the key
func (k MetricKey) Unit() string {
	return specs[k].Unit
}

// String renders the key as "<module>.<name>"
func (k MetricKey) String() string {
	s, ok := specs[k]
	if !ok {
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
	return s.Module.namespace() + "." + s.Name
}

// ParseKey resolves a namespaced metric name. Names are case-sensitive.
func ParseKey(name string) (MetricKey, error) {
	key, ok := byName[strings.TrimSpace(name)]
	if !ok {
		return 0, fmt.Errorf("unknown metric key %q", name)
	}
	return key, nil
}

// MarshalText lets MetricKey be used as a JSON object key
func (k MetricKey) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown metric key %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses a namespaced metric name
func (k *MetricKey) UnmarshalText(text []byte) error {
	key, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = key
	return nil
}

// DefiningKey returns the metric whose freshness decides whether a module is live
func DefiningKey(m Module) MetricKey {
	switch m {
	case ModuleEnergy:
		return EnergyPowerKW
	case ModuleAir:
		return AirCO2
	case ModuleWater:
		return WaterFlowRate
	}
	return 0
}

// KeysFor returns the catalog keys of a module
func KeysFor(m Module) []MetricKey {
	var keys []MetricKey
	for _, k := range Keys() {
		if specs[k].Module == m {
			keys = append(keys, k)
		}
	}
	return keys
}

// ParseModule resolves a module name
func ParseModule(name string) (Module, error) {
	switch Module(strings.ToLower(strings.TrimSpace(name))) {
	case ModuleEnergy:
		return ModuleEnergy, nil
	case ModuleAir, "iaq":
		return ModuleAir, nil
	case ModuleWater:
		return ModuleWater, nil
	}
	return "", fmt.Errorf("unknown module %q", name)
}
