package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/retrainer/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the run history ledger. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, int, error)
	// UpdateRunStatus moves a run to status, rejecting transitions the lifecycle does not allow.
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error
	// UpdateRun records progress without changing the run status.
	UpdateRun(ctx context.Context, id uuid.UUID, opts ...RunUpdateOption) error
}

type RunFilter struct {
	Status string
	Page   int
	Limit  int
}

type runUpdateParams struct {
	ErrorMessage *string
	JobID        *string
	JobStatus    *string
	Outcome      *string
	PriorValue   *float64
	NewValue     *float64
	Metrics      models.MetricsSnapshot
	Deployments  []models.DeployOutcome
}

type RunUpdateOption func(*runUpdateParams)

func WithErrorMessage(msg string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithJobID(id models.JobID) RunUpdateOption {
	return func(p *runUpdateParams) {
		s := string(id)
		p.JobID = &s
	}
}

func WithJobStatus(st models.JobStatus) RunUpdateOption {
	return func(p *runUpdateParams) {
		s := st.String()
		p.JobStatus = &s
	}
}

func WithOutcome(outcome string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.Outcome = &outcome
	}
}

// WithComparison records the metric values the deploy decision compared.
func WithComparison(prior, next *float64) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.PriorValue = prior
		p.NewValue = next
	}
}

func WithMetrics(m models.MetricsSnapshot) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.Metrics = m
	}
}

func WithDeployments(d []models.DeployOutcome) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.Deployments = d
	}
}
