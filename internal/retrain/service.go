// Package retrain orchestrates one retraining run: upload, queue, start, poll,
// compare metrics and deploy.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/retrainer/internal/batch"
	"github.com/kiranshivaraju/retrainer/internal/cache"
	"github.com/kiranshivaraju/retrainer/internal/metrics"
	"github.com/kiranshivaraju/retrainer/internal/results"
	"github.com/kiranshivaraju/retrainer/internal/store"
	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/kiranshivaraju/retrainer/pkg/sqlquery"
)

const statusTTL = 24 * time.Hour

// RunParams describes one retraining run.
type RunParams struct {
	// Source defaults to uploaded_file when a training file or blob is given,
	// external_query otherwise.
	Source models.DataSource
	// TrainingFile is a local file to upload. It wins over TrainingBlob.
	TrainingFile string
	// TrainingBlob names a training set already in the container.
	TrainingBlob string
	Query        string
	// UseStoredQuery loads the query saved in the container when Query is empty.
	UseStoredQuery bool
	// QueryDate, when set, replaces every date literal in the query.
	QueryDate        string
	GlobalParameters map[string]string

	Metric         string
	MinImprovement float64
	// Force deploys regardless of the metric comparison.
	Force bool
	// Endpoints overrides the service's default publish endpoints.
	Endpoints []models.PublishEndpoint
	OnStatus  func(models.JobStatus)
}

// RunReport summarizes a completed run.
type RunReport struct {
	RunID       uuid.UUID
	JobID       models.JobID
	ModelName   string
	FinalStatus models.JobStatus
	Prior       models.MetricsSnapshot
	Metrics     models.MetricsSnapshot
	Deploy      bool
	Outcomes    []models.DeployOutcome
}

// Outcome folds the per-endpoint outcomes into one: not_improved when nothing was
// attempted, deployed when every endpoint took the model, deploy_failed otherwise.
func (r *RunReport) Outcome() models.DeployOutcomeKind {
	if !r.Deploy {
		return models.OutcomeNotImproved
	}
	for _, o := range r.Outcomes {
		if o.Kind != models.OutcomeDeployed {
			return models.OutcomeDeployFailed
		}
	}
	return models.OutcomeDeployed
}

// Service runs retraining workflows against one results container.
// store may be nil, in which case runs are not recorded.
type Service struct {
	results   *results.Store
	jobs      batch.Client
	store     store.Store
	cache     cache.Cache
	metrics   *metrics.Collector
	policy    PollPolicy
	endpoints []models.PublishEndpoint
	now       func() time.Time
}

// NewService creates a new Service. endpoints are used by runs that do not name their own.
func NewService(res *results.Store, jobs batch.Client, st store.Store, ca cache.Cache, mc *metrics.Collector, policy PollPolicy, endpoints []models.PublishEndpoint) *Service {
	return &Service{
		results:   res,
		jobs:      jobs,
		store:     st,
		cache:     ca,
		metrics:   mc,
		policy:    policy,
		endpoints: endpoints,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes a retraining run and blocks until it completes.
// Deploy failures are reported per endpoint in the RunReport, not as an error.
func (s *Service) Run(ctx context.Context, params RunParams) (*RunReport, error) {
	run, err := s.newRun(params)
	if err != nil {
		return nil, err
	}
	if err := s.lock(ctx, run.ID); err != nil {
		return nil, err
	}
	defer s.unlock(run.ID)

	if s.store != nil {
		if err := s.store.CreateRun(ctx, run); err != nil {
			slog.Warn("recording run failed", "run_id", run.ID, "error", err)
		}
	}
	_ = s.cache.SetRunStatus(ctx, run.ID, models.RunStatusPending, statusTTL)

	return s.execute(ctx, run, params)
}

// TriggerRun records a pending run and executes it in a background goroutine.
// Returns the run immediately, or ErrRunInProgress if the container is busy.
func (s *Service) TriggerRun(ctx context.Context, params RunParams) (*models.Run, error) {
	run, err := s.newRun(params)
	if err != nil {
		return nil, err
	}
	if err := s.lock(ctx, run.ID); err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.CreateRun(ctx, run); err != nil {
			s.unlock(run.ID)
			return nil, fmt.Errorf("creating run: %w", err)
		}
	}
	_ = s.cache.SetRunStatus(ctx, run.ID, models.RunStatusPending, statusTTL)

	go s.runInBackground(run, params)

	return run, nil
}

// runInBackground recovers from panics and always releases the container lock.
func (s *Service) runInBackground(run *models.Run, params RunParams) {
	ctx := context.Background()
	defer s.unlock(run.ID)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in retraining run", "error", r, "run_id", run.ID)
			s.fail(ctx, run.ID, fmt.Errorf("panic: %v", r))
		}
	}()

	if _, err := s.execute(ctx, run, params); err != nil {
		slog.Error("retraining run failed", "run_id", run.ID, "error", err)
	}
}

// RunStatus returns the cached lifecycle status of a run.
func (s *Service) RunStatus(ctx context.Context, id uuid.UUID) (string, bool, error) {
	return s.cache.GetRunStatus(ctx, id)
}

func (s *Service) newRun(params RunParams) (*models.Run, error) {
	now := s.now()
	run := &models.Run{
		ID:         uuid.New(),
		Source:     resolveSource(params),
		ModelName:  s.results.NewModelName(now),
		Status:     models.RunStatusPending,
		MetricName: params.Metric,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := models.ParseDataSource(string(run.Source)); err != nil {
		return nil, err
	}

	switch {
	case params.TrainingFile != "":
		name := filepath.Base(params.TrainingFile)
		run.TrainingBlob = &name
	case params.TrainingBlob != "":
		name := params.TrainingBlob
		run.TrainingBlob = &name
	}
	return run, nil
}

func resolveSource(params RunParams) models.DataSource {
	if params.Source != "" {
		return params.Source
	}
	if params.TrainingFile != "" || params.TrainingBlob != "" {
		return models.SourceUploadedFile
	}
	return models.SourceExternalQuery
}

func (s *Service) lockTTL() time.Duration {
	if s.policy.Timeout > 0 {
		return s.policy.Timeout + 10*time.Minute
	}
	return 6 * time.Hour
}

func (s *Service) lock(ctx context.Context, runID uuid.UUID) error {
	ok, err := s.cache.AcquireLock(ctx, cache.RunLockKey(s.results.Container()), runID.String(), s.lockTTL())
	if err != nil {
		return fmt.Errorf("acquiring run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	return nil
}

func (s *Service) unlock(runID uuid.UUID) {
	if err := s.cache.ReleaseLock(context.Background(), cache.RunLockKey(s.results.Container()), runID.String()); err != nil {
		slog.Warn("releasing run lock failed", "run_id", runID, "error", err)
	}
}

func (s *Service) execute(ctx context.Context, run *models.Run, params RunParams) (*RunReport, error) {
	started := time.Now()
	s.metrics.RunStarted()
	s.setStatus(ctx, run.ID, models.RunStatusRunning)

	report, err := s.retrain(ctx, run, params)
	if err != nil {
		s.metrics.RunFinished(models.RunStatusFailed, time.Since(started).Seconds())
		s.fail(ctx, run.ID, err)
		return nil, err
	}

	outcome := string(report.Outcome())
	s.metrics.RunFinished(outcome, time.Since(started).Seconds())

	var prior, next *float64
	if v, ok := report.Prior[params.Metric]; ok {
		prior = &v
	}
	if v, ok := report.Metrics[params.Metric]; ok {
		next = &v
	}
	s.setStatus(ctx, run.ID, models.RunStatusCompleted,
		store.WithOutcome(outcome),
		store.WithComparison(prior, next),
		store.WithMetrics(report.Metrics),
		store.WithDeployments(report.Outcomes))

	slog.Info("retraining run completed",
		"run_id", run.ID,
		"job_id", report.JobID,
		"model", report.ModelName,
		"outcome", outcome,
	)
	return report, nil
}

func (s *Service) retrain(ctx context.Context, run *models.Run, params RunParams) (*RunReport, error) {
	report := &RunReport{RunID: run.ID, ModelName: run.ModelName}

	report.Prior = Baseline(s.results.LatestMetrics(ctx))
	if report.Prior != nil && len(report.Prior) == 0 {
		slog.Warn("prior metrics unavailable", "container", s.results.Container())
	}

	var training *models.BlobReference
	switch {
	case params.TrainingFile != "":
		ref, err := s.results.UploadTrainingFile(ctx, params.TrainingFile)
		if err != nil {
			return nil, err
		}
		training = &ref
	case params.TrainingBlob != "":
		ref, err := s.results.LocateTrainingBlob(ctx, params.TrainingBlob)
		if err != nil {
			return nil, err
		}
		training = &ref
	}

	query, err := s.resolveQuery(ctx, params)
	if err != nil {
		return nil, err
	}

	id, err := s.jobs.Queue(ctx, batch.QueueParams{
		Source:           run.Source,
		TrainingBlob:     training,
		Query:            query,
		GlobalParameters: params.GlobalParameters,
		ModelName:        run.ModelName,
	})
	if err != nil {
		return nil, fmt.Errorf("queueing job: %w", err)
	}
	report.JobID = id
	s.record(ctx, run.ID, store.WithJobID(id))
	slog.Info("retraining job queued", "run_id", run.ID, "job_id", id, "model", run.ModelName)

	if err := s.jobs.Start(ctx, id); err != nil {
		return nil, fmt.Errorf("starting job %s: %w", id, err)
	}

	st, err := s.waitForStatus(ctx, id, params.OnStatus)
	if st != nil {
		report.FinalStatus = st.StatusCode
		s.record(ctx, run.ID, store.WithJobStatus(st.StatusCode))
	}
	if err != nil {
		return nil, err
	}
	if st.StatusCode != models.StatusFinished {
		return nil, fmt.Errorf("%w: job %s ended %s: %s", ErrJobFailed, id, st.StatusCode, st.Details)
	}

	next := s.results.RunMetrics(ctx, run.ModelName)
	if len(next) == 0 {
		slog.Warn("no metrics for finished job", "job_id", id, "model", run.ModelName)
		next = nil
	} else {
		s.metrics.SetMetrics(next)
	}
	report.Metrics = next

	deploy := params.Force
	if !deploy {
		deploy, err = ShouldDeploy(params.Metric, params.MinImprovement, report.Prior, next)
		if err != nil {
			return nil, err
		}
	}
	report.Deploy = deploy

	endpoints := params.Endpoints
	if len(endpoints) == 0 {
		endpoints = s.endpoints
	}
	report.Outcomes = s.publish(ctx, id, deploy, endpoints)

	return report, nil
}

func (s *Service) resolveQuery(ctx context.Context, params RunParams) (string, error) {
	query := params.Query
	if query == "" && params.UseStoredQuery {
		stored, ok := s.results.LoadQuery(ctx)
		if !ok {
			return "", fmt.Errorf("%w: stored query %s", results.ErrNotFound, results.QueryBlobName)
		}
		query = stored
	}
	if query != "" && params.QueryDate != "" {
		rewritten, err := sqlquery.Rewriter{}.ReplaceDate(query, params.QueryDate)
		if err != nil {
			return "", err
		}
		query = rewritten
	}
	return query, nil
}

// publish deploys to each endpoint in order. A failed endpoint does not stop the rest.
func (s *Service) publish(ctx context.Context, id models.JobID, deploy bool, endpoints []models.PublishEndpoint) []models.DeployOutcome {
	outcomes := make([]models.DeployOutcome, 0, len(endpoints))
	for _, ep := range endpoints {
		var o models.DeployOutcome
		switch {
		case !deploy:
			o = models.NotImproved(ep.Name)
		default:
			if err := s.jobs.Deploy(ctx, ep, id); err != nil {
				slog.Error("deploy failed", "endpoint", ep.Name, "job_id", id, "error", err)
				o = models.DeployFailed(ep.Name, err)
			} else {
				slog.Info("model deployed", "endpoint", ep.Name, "job_id", id)
				o = models.Deployed(ep.Name)
			}
		}
		s.metrics.RecordDeploy(ep.Name, string(o.Kind))
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (s *Service) setStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.RunUpdateOption) {
	_ = s.cache.SetRunStatus(ctx, id, status, statusTTL)
	if s.store == nil {
		return
	}
	if err := s.store.UpdateRunStatus(ctx, id, status, opts...); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("updating run status failed", "run_id", id, "status", status, "error", err)
	}
}

func (s *Service) record(ctx context.Context, id uuid.UUID, opts ...store.RunUpdateOption) {
	if s.store == nil {
		return
	}
	if err := s.store.UpdateRun(ctx, id, opts...); err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("recording run progress failed", "run_id", id, "error", err)
	}
}

// fail marks a run failed. It uses a fresh context so a cancelled run can still be recorded.
func (s *Service) fail(ctx context.Context, id uuid.UUID, cause error) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	s.setStatus(ctx, id, models.RunStatusFailed, store.WithErrorMessage(cause.Error()))
}
