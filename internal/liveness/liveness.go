package liveness

import (
	"time"

	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// Windows holds the expected reporting interval of each module
type Windows struct {
	Energy time.Duration
	Air    time.Duration
	Water  time.Duration
}

// DefaultWindows returns the reporting intervals used when none are configured
func DefaultWindows() Windows {
	return Windows{
		Energy: 5 * time.Minute,
		Air:    10 * time.Minute,
		Water:  15 * time.Minute,
	}
}

// For returns the freshness window of module m
func (w Windows) For(m catalog.Module) time.Duration {
	switch m {
	case catalog.ModuleEnergy:
		return w.Energy
	case catalog.ModuleAir:
		return w.Air
	case catalog.ModuleWater:
		return w.Water
	}
	return 0
}

// Classify grades a sample by age:
//
//	age <= window            LIVE
//	window < age <= 2*window STALE
//	otherwise                OFFLINE
//
// A zero sample time is OFFLINE. Samples from the future count as age 0.
func Classify(sampleTime, now time.Time, window time.Duration) models.Liveness {
	if sampleTime.IsZero() {
		return models.Offline
	}
	age := now.Sub(sampleTime)
	if age < 0 {
		age = 0
	}
	switch {
	case age <= window:
		return models.Live
	case age <= 2*window:
		return models.Stale
	default:
		return models.Offline
	}
}

// ClassifyModule grades module m of a snapshot using the newest sample of its
// defining metric. A module without that metric is OFFLINE.
func ClassifyModule(snap models.SiteSnapshot, m catalog.Module, now time.Time, windows Windows) (models.Liveness, time.Time) {
	latest, ok := snap.LatestSampleTime(catalog.DefiningKey(m))
	if !ok {
		return models.Offline, time.Time{}
	}
	return Classify(latest, now, windows.For(m)), latest
}
