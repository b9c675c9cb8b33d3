package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/retrainer/internal/api/response"
	"github.com/kiranshivaraju/retrainer/internal/retrain"
	"github.com/kiranshivaraju/retrainer/internal/store"
	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/kiranshivaraju/retrainer/pkg/sqlquery"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Runner starts retraining runs and reports their cached status.
type Runner interface {
	TriggerRun(ctx context.Context, params retrain.RunParams) (*models.Run, error)
	RunStatus(ctx context.Context, id uuid.UUID) (string, bool, error)
}

// Endpoints resolves the publish endpoints a triggered run deploys to.
type Endpoints struct {
	Primary   models.PublishEndpoint
	Secondary *models.PublishEndpoint
}

type triggerRunRequest struct {
	Source           string            `json:"source"`
	TrainingBlob     string            `json:"training_blob"`
	Query            string            `json:"query"`
	UseStoredQuery   bool              `json:"use_stored_query"`
	QueryDate        string            `json:"query_date"`
	GlobalParameters map[string]string `json:"global_parameters"`
	Metric           string            `json:"metric"`
	MinImprovement   float64           `json:"min_improvement"`
	Force            bool              `json:"force"`
	Secondary        bool              `json:"secondary"`
}

type triggerRunResponse struct {
	RunID     uuid.UUID `json:"run_id"`
	Status    string    `json:"status"`
	ModelName string    `json:"model_name"`
	PollURL   string    `json:"poll_url"`
}

// NewTriggerRunHandler returns an http.HandlerFunc for POST /api/v1/runs.
func NewTriggerRunHandler(svc Runner, eps Endpoints) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		var source models.DataSource
		if req.Source != "" {
			parsed, err := models.ParseDataSource(req.Source)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
				return
			}
			source = parsed
		}
		if source == models.SourceUploadedFile && req.TrainingBlob == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"training_blob is required when source is uploaded_file", nil)
			return
		}
		if req.Metric == "" && !req.Force {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "metric is required", nil)
			return
		}
		if req.QueryDate != "" {
			if _, err := time.Parse(sqlquery.DateLayout, req.QueryDate); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "query_date must be formatted as YYYY-MM-DD", nil)
				return
			}
		}

		endpoints := []models.PublishEndpoint{eps.Primary}
		if req.Secondary {
			if eps.Secondary == nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "no secondary endpoint is configured", nil)
				return
			}
			endpoints = append(endpoints, *eps.Secondary)
		}

		run, err := svc.TriggerRun(r.Context(), retrain.RunParams{
			Source:           source,
			TrainingBlob:     req.TrainingBlob,
			Query:            req.Query,
			UseStoredQuery:   req.UseStoredQuery,
			QueryDate:        req.QueryDate,
			GlobalParameters: req.GlobalParameters,
			Metric:           req.Metric,
			MinImprovement:   req.MinImprovement,
			Force:            req.Force,
			Endpoints:        endpoints,
		})
		if err != nil {
			if errors.Is(err, retrain.ErrRunInProgress) {
				response.Error(w, http.StatusConflict, "RUN_IN_PROGRESS",
					"A retraining run is already in progress", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to start retraining run", nil)
			return
		}

		response.Accepted(w, triggerRunResponse{
			RunID:     run.ID,
			Status:    run.Status,
			ModelName: run.ModelName,
			PollURL:   "/api/v1/runs/" + run.ID.String(),
		})
	}
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/runs/{runID}.
// Without a ledger only the cached status is available.
func NewGetRunHandler(st store.Store, svc Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_RUN_ID", "run ID must be a UUID", nil)
			return
		}

		if st == nil {
			status, ok, err := svc.RunStatus(r.Context(), id)
			if err != nil {
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load run status", nil)
				return
			}
			if !ok {
				response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found", nil)
				return
			}
			response.JSON(w, map[string]any{"id": id, "status": status})
			return
		}

		run, err := st.GetRun(r.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "RUN_NOT_FOUND", "Run not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load run", nil)
			return
		}
		response.JSON(w, run)
	}
}

// NewListRunsHandler returns an http.HandlerFunc for GET /api/v1/runs.
func NewListRunsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		status := q.Get("status")
		switch status {
		case "", models.RunStatusPending, models.RunStatusRunning, models.RunStatusCompleted, models.RunStatusFailed:
		default:
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"status must be one of pending, running, completed, failed", nil)
			return
		}

		page := queryInt(q.Get("page"), 1)
		if page < 1 {
			page = 1
		}
		limit := queryInt(q.Get("limit"), defaultLimit)
		if limit < 1 {
			limit = defaultLimit
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		runs, total, err := st.ListRuns(r.Context(), store.RunFilter{Status: status, Page: page, Limit: limit})
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list runs", nil)
			return
		}
		if runs == nil {
			runs = []*models.Run{}
		}
		response.Collection(w, runs, response.NewPaginationMeta(page, limit, total))
	}
}

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
