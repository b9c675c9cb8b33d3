package models

// NoMetricsKey is the only key of the snapshot that stands for "no prior run".
const NoMetricsKey = "nometrics"

// MetricsSnapshot maps metric names (AUC, Accuracy, ...) to their values for one training run.
// A nil snapshot is "absent"; an empty non-nil snapshot means the lookup failed.
type MetricsSnapshot map[string]float64

// NoMetrics returns the sentinel snapshot recorded when no result exists yet.
func NoMetrics() MetricsSnapshot {
	return MetricsSnapshot{NoMetricsKey: 0}
}

// IsNoMetrics reports whether s is the "no prior run" sentinel.
func (s MetricsSnapshot) IsNoMetrics() bool {
	if len(s) != 1 {
		return false
	}
	_, ok := s[NoMetricsKey]
	return ok
}
