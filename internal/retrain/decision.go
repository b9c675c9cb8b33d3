package retrain

import (
	"fmt"
	"math"

	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// tolerance absorbs float64 rounding in prior + prior*minImprovement, so a new
// value equal to the required value on paper still deploys.
const tolerance = 1e-9

// ShouldDeploy applies the deploy decision rule to the prior and new metrics.
//
// It returns false when metric is empty, minImprovement is zero or next is nil,
// and true when prior is nil (no baseline yet). Otherwise it deploys iff
// next[metric] >= prior[metric] * (1 + minImprovement). A metric missing from
// either snapshot is an error, never "no improvement".
func ShouldDeploy(metric string, minImprovement float64, prior, next models.MetricsSnapshot) (bool, error) {
	if metric == "" || minImprovement == 0 || next == nil {
		return false, nil
	}
	if prior == nil {
		return true, nil
	}

	p, ok := prior[metric]
	if !ok {
		return false, fmt.Errorf("%w: %q not in prior metrics", ErrMetricNotFound, metric)
	}
	n, ok := next[metric]
	if !ok {
		return false, fmt.Errorf("%w: %q not in new metrics", ErrMetricNotFound, metric)
	}

	required := p + p*minImprovement
	return n >= required-tolerance*math.Max(1, math.Abs(required)), nil
}

// Baseline converts a stored snapshot into the prior used by ShouldDeploy.
// The "no prior run" sentinel becomes nil; everything else passes through.
func Baseline(snapshot models.MetricsSnapshot) models.MetricsSnapshot {
	if snapshot.IsNoMetrics() {
		return nil
	}
	return snapshot
}
