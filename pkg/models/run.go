package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one retraining attempt as recorded in the run history ledger.
// Callers trigger a run and poll GET /api/v1/runs/{run_id} until status is completed or failed.
type Run struct {
	ID           uuid.UUID       `db:"id"            json:"id"`
	JobID        *string         `db:"job_id"        json:"job_id,omitempty"`
	Source       DataSource      `db:"source"        json:"source"`
	TrainingBlob *string         `db:"training_blob" json:"training_blob,omitempty"`
	ModelName    string          `db:"model_name"    json:"model_name"`
	Status       string          `db:"status"        json:"status"`
	JobStatus    *string         `db:"job_status"    json:"job_status,omitempty"`
	Outcome      *string         `db:"outcome"       json:"outcome,omitempty"`
	MetricName   string          `db:"metric_name"   json:"metric_name"`
	PriorValue   *float64        `db:"prior_value"   json:"prior_value,omitempty"`
	NewValue     *float64        `db:"new_value"     json:"new_value,omitempty"`
	Metrics      MetricsSnapshot `db:"metrics"       json:"metrics,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	StartedAt    *time.Time      `db:"started_at"    json:"started_at,omitempty"`
	CompletedAt  *time.Time      `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"    json:"updated_at"`
	Deployments  []DeployOutcome `db:"deployments"   json:"deployments,omitempty"`
}
