package snapshot

import (
	"context"
	"hash/fnv"
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// DemoDeviceID is the device id carried by placeholder samples
const DemoDeviceID = "demo"

// Demo generates stable placeholder metrics for sites without telemetry.
// Values depend only on the site id so repeated reads agree.
type Demo struct {
	now func() time.Time
}

// NewDemo creates a Demo placeholder source. now may be nil.
func NewDemo(now func() time.Time) *Demo {
	if now == nil {
		now = time.Now
	}
	return &Demo{now: now}
}

func (d *Demo) Placeholder(_ context.Context, siteID string) ([]models.MetricSample, bool) {
	if siteID == "" {
		return nil, false
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(siteID))
	seed := float64(h.Sum32()%1000) / 1000

	at := d.now()
	values := []struct {
		key   catalog.MetricKey
		value float64
	}{
		{catalog.EnergyPowerKW, 40 + seed*120},
		{catalog.EnergyMonthlyKWh, 20000 + seed*60000},
		{catalog.AirCO2, 450 + seed*450},
		{catalog.AirTemperature, 20 + seed*4},
		{catalog.AirHumidity, 40 + seed*15},
		{catalog.WaterFlowRate, 50 + seed*250},
	}
	out := make([]models.MetricSample, 0, len(values))
	for _, v := range values {
		out = append(out, models.MetricSample{
			SiteID:     siteID,
			DeviceID:   DemoDeviceID,
			Category:   catalog.CategoryGeneral,
			Key:        v.key,
			Value:      v.value,
			Unit:       v.key.Unit(),
			SampleTime: at,
		})
	}
	return out, true
}
