package handler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiranshivaraju/retrainer/internal/api/handler"
	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResults struct {
	snap models.MetricsSnapshot
}

func (f fakeResults) LatestMetrics(_ context.Context) models.MetricsSnapshot {
	return f.snap
}

func getLatest(t *testing.T, snap models.MetricsSnapshot) *httptest.ResponseRecorder {
	t.Helper()
	h := handler.NewLatestResultsHandler(fakeResults{snap: snap})
	req := httptest.NewRequest("GET", "/api/v1/results/latest", nil)
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestLatestResults(t *testing.T) {
	w := getLatest(t, models.MetricsSnapshot{"AUC": 0.81, "Accuracy": 0.9})

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, true, data["has_result"])
	assert.Equal(t, 0.81, data["metrics"].(map[string]any)["AUC"])
}

func TestLatestResults_NoPriorRun(t *testing.T) {
	w := getLatest(t, models.NoMetrics())

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]any)
	assert.Equal(t, false, data["has_result"])
	assert.Empty(t, data["metrics"])
}

func TestLatestResults_StorageFailure(t *testing.T) {
	w := getLatest(t, models.MetricsSnapshot{})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "RESULTS_UNAVAILABLE", errCode(t, w))
}
