package models

import (
	"time"

	"iot-engine/internal/catalog"
)

// Verdict is the outcome of evaluating one metric against its thresholds
type Verdict string

const (
	VerdictGood     Verdict = "good"
	VerdictWarning  Verdict = "warning"
	VerdictCritical Verdict = "critical"
)

func (v Verdict) severity() int {
	switch v {
	case VerdictCritical:
		return 2
	case VerdictWarning:
		return 1
	}
	return 0
}

// Worse returns the more severe of v and other
func (v Verdict) Worse(other Verdict) Verdict {
	if other.severity() > v.severity() {
		return other
	}
	return v
}

// Level is the four-step band of a score
type Level string

const (
	LevelGood     Level = "GOOD"
	LevelOK       Level = "OK"
	LevelWarning  Level = "WARNING"
	LevelCritical Level = "CRITICAL"
)

// Liveness classifies how recent a module's telemetry is
type Liveness string

const (
	Live    Liveness = "LIVE"
	Stale   Liveness = "STALE"
	Offline Liveness = "OFFLINE"
)

// ModuleStatus is the score of one module in one evaluation pass
type ModuleStatus struct {
	Module     catalog.Module `json:"module"`
	Enabled    bool           `json:"enabled"`
	Score      int            `json:"score"`
	Level      Level          `json:"level"`
	IsLive     bool           `json:"is_live"`
	Liveness   Liveness       `json:"liveness"`
	LastUpdate *time.Time     `json:"last_update,omitempty"`
}

// CompositeStatus is the weighted blend of the enabled modules
type CompositeStatus struct {
	Score  int   `json:"score"`
	Level  Level `json:"level"`
	IsLive bool  `json:"is_live"`
}

// AlertStatus counts threshold breaches of a site
type AlertStatus struct {
	CriticalCount int  `json:"critical_count"`
	WarningCount  int  `json:"warning_count"`
	HasAlerts     bool `json:"has_alerts"`
}
