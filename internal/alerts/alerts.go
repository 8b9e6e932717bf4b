package alerts

import (
	"iot-engine/internal/catalog"
	"iot-engine/internal/models"
)

// Aggregate counts the warning and critical verdicts of one site. Metrics
// without a verdict are indeterminate and are not counted.
func Aggregate(verdicts map[catalog.MetricKey]models.Verdict) models.AlertStatus {
	var status models.AlertStatus
	for _, v := range verdicts {
		switch v {
		case models.VerdictCritical:
			status.CriticalCount++
		case models.VerdictWarning:
			status.WarningCount++
		}
	}
	status.HasAlerts = status.CriticalCount+status.WarningCount > 0
	return status
}

// Breaches lists the metrics with a warning or critical verdict in catalog
// order
func Breaches(verdicts map[catalog.MetricKey]models.Verdict) []catalog.MetricKey {
	var keys []catalog.MetricKey
	for _, key := range catalog.Keys() {
		if v, ok := verdicts[key]; ok && v != models.VerdictGood {
			keys = append(keys, key)
		}
	}
	return keys
}

// Changed reports whether two alert states differ
func Changed(prev, next models.AlertStatus) bool {
	return prev != next
}
