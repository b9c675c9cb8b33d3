package handler

import (
	"context"
	"net/http"

	"github.com/kiranshivaraju/retrainer/internal/api/response"
	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// ResultsReader reads the newest training result.
type ResultsReader interface {
	LatestMetrics(ctx context.Context) models.MetricsSnapshot
}

type latestResultsResponse struct {
	HasResult bool                   `json:"has_result"`
	Metrics   models.MetricsSnapshot `json:"metrics"`
}

// NewLatestResultsHandler returns an http.HandlerFunc for GET /api/v1/results/latest.
func NewLatestResultsHandler(res ResultsReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := res.LatestMetrics(r.Context())
		switch {
		case snap.IsNoMetrics():
			response.JSON(w, latestResultsResponse{HasResult: false, Metrics: models.MetricsSnapshot{}})
		case len(snap) == 0:
			response.Error(w, http.StatusServiceUnavailable, "RESULTS_UNAVAILABLE",
				"Latest results could not be read from storage", nil)
		default:
			response.JSON(w, latestResultsResponse{HasResult: true, Metrics: snap})
		}
	}
}
