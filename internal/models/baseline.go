package models

// Baseline summarises the historical distribution of a metric
type Baseline struct {
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Samples uint64  `json:"samples"`
}

// Usable reports whether the baseline can normalise a deviation
func (b Baseline) Usable() bool {
	return b.Samples > 1 && b.StdDev > 0
}

// ZScore returns (value - mean) / stddev, or 0 when the baseline is unusable
func (b Baseline) ZScore(value float64) float64 {
	if !b.Usable() {
		return 0
	}
	return (value - b.Mean) / b.StdDev
}
