package catalog

import (
	"encoding/json"
	"testing"
)

func TestParseKeyRoundTrip(t *testing.T) {
	for _, key := range Keys() {
		parsed, err := ParseKey(key.String())
		if err != nil {
			t.Fatalf("parse %s: %v", key, err)
		}
		if parsed != key {
			t.Fatalf("expected %s, got %s", key, parsed)
		}
	}
}

func TestParseKeyRejectsTypos(t *testing.T) {
	for _, name := range []string{"energy.power", "iaq.CO2", "air.co2", "", "water.flowrate"} {
		if _, err := ParseKey(name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
}

func TestKeyNamespaces(t *testing.T) {
	cases := map[MetricKey]string{
		EnergyPowerKW: "energy.power_kw",
		AirCO2:        "iaq.co2",
		WaterFlowRate: "water.flow_rate",
	}
	for key, want := range cases {
		if key.String() != want {
			t.Fatalf("expected %s, got %s", want, key.String())
		}
	}
}

func TestAggregationKinds(t *testing.T) {
	if EnergyPowerKW.Kind() != Additive {
		t.Fatalf("power must be additive")
	}
	if AirCO2.Kind() != Instantaneous || AirTemperature.Kind() != Instantaneous || AirHumidity.Kind() != Instantaneous {
		t.Fatalf("air metrics must be instantaneous")
	}
}

func TestDefiningKeyBelongsToModule(t *testing.T) {
	for _, m := range Modules {
		key := DefiningKey(m)
		if key.Module() != m {
			t.Fatalf("defining key %s does not belong to %s", key, m)
		}
	}
}

func TestMetricKeyAsJSONMapKey(t *testing.T) {
	in := map[MetricKey]float64{AirCO2: 420, EnergyPowerKW: 12.5}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out map[MetricKey]float64
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[AirCO2] != 420 || out[EnergyPowerKW] != 12.5 {
		t.Fatalf("unexpected decoded map %v", out)
	}
}

func TestNormalizeCategory(t *testing.T) {
	if NormalizeCategory("") != CategoryGeneral || NormalizeCategory(" Total ") != CategoryGeneral {
		t.Fatalf("empty and total labels must map to general")
	}
	if NormalizeCategory("HVAC") != CategoryHVAC {
		t.Fatalf("expected hvac")
	}
	if NormalizeCategory("compressor") != CategoryOther {
		t.Fatalf("expected other")
	}
}
