package retrain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/retrainer/internal/batch"
	"github.com/kiranshivaraju/retrainer/internal/batch/mock"
	"github.com/kiranshivaraju/retrainer/internal/blobstore"
	"github.com/kiranshivaraju/retrainer/internal/cache"
	"github.com/kiranshivaraju/retrainer/internal/metrics"
	"github.com/kiranshivaraju/retrainer/internal/results"
	"github.com/kiranshivaraju/retrainer/internal/store"
	"github.com/kiranshivaraju/retrainer/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct {
	mu            sync.Mutex
	runs          map[uuid.UUID]*models.Run
	statusUpdates []statusUpdate
	progress      int
	createRunErr  error
}

type statusUpdate struct {
	ID     uuid.UUID
	Status string
}

func newMockStore() *mockStore {
	return &mockStore{runs: make(map[uuid.UUID]*models.Run)}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) CreateRun(_ context.Context, run *models.Run) error {
	if s.createRunErr != nil {
		return s.createRunErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *mockStore) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return run, nil
}

func (s *mockStore) ListRuns(_ context.Context, _ store.RunFilter) ([]*models.Run, int, error) {
	return nil, 0, nil
}

func (s *mockStore) UpdateRunStatus(_ context.Context, id uuid.UUID, status string, _ ...store.RunUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusUpdates = append(s.statusUpdates, statusUpdate{ID: id, Status: status})
	return nil
}

func (s *mockStore) UpdateRun(_ context.Context, _ uuid.UUID, _ ...store.RunUpdateOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress++
	return nil
}

func (s *mockStore) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.statusUpdates))
	for _, u := range s.statusUpdates {
		out = append(out, u.Status)
	}
	return out
}

// --- helpers ---

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

var testEndpoints = []models.PublishEndpoint{
	{Name: "primary", URL: "https://example.com/ep1", Key: "k1"},
	{Name: "secondary", URL: "https://example.com/ep2", Key: "k2"},
}

type fixture struct {
	svc    *Service
	bucket *blobstore.MemoryBucket
	jobs   *mock.MockClient
	cache  *cache.LocalCache
}

func newTestService(t *testing.T, jobs batch.Client, policy PollPolicy) *Service {
	t.Helper()
	res := results.New(blobstore.NewMemoryBucket("retrain"), "conn", "retrainer-")
	return NewService(res, jobs, nil, cache.NewLocalCache(), metrics.NewCollector(), policy, testEndpoints)
}

// newFixture wires a Service whose scripted job writes newMetrics when started.
func newFixture(t *testing.T, st store.Store, newMetrics string, statuses ...models.JobStatus) *fixture {
	t.Helper()

	bucket := blobstore.NewMemoryBucket("retrain")
	res := results.New(bucket, "conn", "retrainer-")
	jobs := mock.NewMockClient("job-1", statuses...)
	if newMetrics != "" {
		jobs.StartFunc = func(ctx context.Context, _ models.JobID) error {
			return bucket.Put(ctx, res.NewModelName(fixedNow)+".csv", []byte(newMetrics))
		}
	}

	ca := cache.NewLocalCache()
	svc := NewService(res, jobs, st, ca, metrics.NewCollector(),
		PollPolicy{Interval: time.Millisecond, MaxAttempts: 20}, testEndpoints)
	svc.now = func() time.Time { return fixedNow }

	return &fixture{svc: svc, bucket: bucket, jobs: jobs, cache: ca}
}

func (f *fixture) seedPrior(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, f.bucket.Put(context.Background(), "retrainer-20240101T000000Z.csv", []byte(text)))
}

func writeTrainingFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o600))
	return path
}

// --- tests ---

func TestRun_DeploysWhenImproved(t *testing.T) {
	f := newFixture(t, nil, "AUC,Accuracy\n0.85,0.9\n", models.StatusRunning, models.StatusFinished)
	f.seedPrior(t, "AUC,Accuracy\n0.80,0.88\n")

	report, err := f.svc.Run(context.Background(), RunParams{
		TrainingFile:   writeTrainingFile(t),
		Metric:         "AUC",
		MinImprovement: 0.02,
	})
	require.NoError(t, err)

	assert.True(t, report.Deploy)
	assert.Equal(t, models.JobID("job-1"), report.JobID)
	assert.Equal(t, "retrainer-20250601T120000Z", report.ModelName)
	assert.Equal(t, models.StatusFinished, report.FinalStatus)
	assert.Equal(t, 0.80, report.Prior["AUC"])
	assert.Equal(t, 0.85, report.Metrics["AUC"])
	assert.Equal(t, []models.DeployOutcome{models.Deployed("primary"), models.Deployed("secondary")}, report.Outcomes)
	assert.Equal(t, models.OutcomeDeployed, report.Outcome())

	queued := f.jobs.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, models.SourceUploadedFile, queued[0].Source)
	require.NotNil(t, queued[0].TrainingBlob)
	assert.Equal(t, "/retrain/train.csv", queued[0].TrainingBlob.RelativeLocation)
	assert.Equal(t, "retrainer-20250601T120000Z", queued[0].ModelName)
	assert.Len(t, f.jobs.Deployed(), 2)

	ok, err := f.bucket.Exists(context.Background(), "train.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_NotImproved(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.81\n", models.StatusFinished)
	f.seedPrior(t, "AUC\n0.80\n")

	report, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.NoError(t, err)

	assert.False(t, report.Deploy)
	assert.Equal(t, []models.DeployOutcome{models.NotImproved("primary"), models.NotImproved("secondary")}, report.Outcomes)
	assert.Equal(t, models.OutcomeNotImproved, report.Outcome())
	assert.Empty(t, f.jobs.Deployed())
	assert.Equal(t, models.SourceExternalQuery, f.jobs.Queued()[0].Source)
}

func TestRun_FirstRunDeploys(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.50\n", models.StatusFinished)

	report, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.NoError(t, err)

	assert.Nil(t, report.Prior)
	assert.True(t, report.Deploy)
	assert.Equal(t, models.OutcomeDeployed, report.Outcome())
}

func TestRun_ForceDeploysWithoutImprovement(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.70\n", models.StatusFinished)
	f.seedPrior(t, "AUC\n0.80\n")

	report, err := f.svc.Run(context.Background(), RunParams{
		Metric:    "AUC",
		Force:     true,
		Endpoints: testEndpoints[:1],
	})
	require.NoError(t, err)

	assert.True(t, report.Deploy)
	assert.Equal(t, []models.DeployOutcome{models.Deployed("primary")}, report.Outcomes)
}

func TestRun_DeployFailureIsReportedPerEndpoint(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.95\n", models.StatusFinished)
	f.seedPrior(t, "AUC\n0.80\n")
	f.jobs.DeployFunc = func(_ context.Context, ep models.PublishEndpoint, _ models.JobID) error {
		if ep.Name == "primary" {
			return batch.ErrDeployRejected
		}
		return nil
	}

	report, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, models.OutcomeDeployFailed, report.Outcomes[0].Kind)
	assert.Contains(t, report.Outcomes[0].Reason, batch.ErrDeployRejected.Error())
	assert.Equal(t, models.Deployed("secondary"), report.Outcomes[1])
	assert.Equal(t, models.OutcomeDeployFailed, report.Outcome())
}

func TestRun_JobFailed(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusRunning, models.StatusFailed)

	_, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFailed))
	assert.Contains(t, err.Error(), "mock job failed")
	assert.Empty(t, f.jobs.Deployed())
}

func TestRun_PollTimeout(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusRunning)
	f.svc.policy = PollPolicy{Interval: time.Millisecond, MaxAttempts: 3}

	_, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	assert.True(t, errors.Is(err, ErrPollTimeout))
	assert.Equal(t, 3, f.jobs.Polls())
	assert.Empty(t, f.jobs.Deployed())
}

func TestRun_FinishedWithoutOwnMetricsDoesNotDeploy(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusFinished)
	f.seedPrior(t, "AUC\n0.80\n")

	report, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: -0.01})
	require.NoError(t, err)

	assert.Equal(t, 0.80, report.Prior["AUC"])
	assert.Nil(t, report.Metrics)
	assert.False(t, report.Deploy)
	assert.Equal(t, models.OutcomeNotImproved, report.Outcome())
	assert.Empty(t, f.jobs.Deployed())
}

func TestRun_MissingMetricPropagates(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.95\n", models.StatusFinished)
	f.seedPrior(t, "AUC\n0.80\n")

	_, err := f.svc.Run(context.Background(), RunParams{Metric: "F1", MinImprovement: 0.02})
	assert.True(t, errors.Is(err, ErrMetricNotFound))
	assert.Empty(t, f.jobs.Deployed())
}

func TestRun_MissingTrainingFileDoesNotQueue(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusFinished)

	_, err := f.svc.Run(context.Background(), RunParams{
		TrainingFile: filepath.Join(t.TempDir(), "missing.csv"),
		Metric:       "AUC",
	})
	assert.True(t, errors.Is(err, results.ErrNotFound))
	assert.Empty(t, f.jobs.Queued())
}

func TestRun_UnsupportedTrainingBlob(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusFinished)

	_, err := f.svc.Run(context.Background(), RunParams{TrainingBlob: "train.parquet", Metric: "AUC"})
	assert.True(t, errors.Is(err, results.ErrNotFound))
	assert.Empty(t, f.jobs.Queued())
}

func TestRun_StoredQueryWithDate(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.9\n", models.StatusFinished)
	require.NoError(t, f.bucket.Put(context.Background(), results.QueryBlobName,
		[]byte("select * from sales where day > '2015-01-01'")))

	_, err := f.svc.Run(context.Background(), RunParams{
		UseStoredQuery: true,
		QueryDate:      "2025-05-31",
		Metric:         "AUC",
		MinImprovement: 0.02,
	})
	require.NoError(t, err)

	queued := f.jobs.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, "select * from sales where day > '2025-05-31'", queued[0].Query)
}

func TestRun_MissingStoredQuery(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusFinished)

	_, err := f.svc.Run(context.Background(), RunParams{UseStoredQuery: true, Metric: "AUC"})
	assert.True(t, errors.Is(err, results.ErrNotFound))
	assert.Empty(t, f.jobs.Queued())
}

func TestRun_LockHeld(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusFinished)
	ok, err := f.cache.AcquireLock(context.Background(), cache.RunLockKey("retrain"), "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Run(context.Background(), RunParams{Metric: "AUC"})
	assert.True(t, errors.Is(err, ErrRunInProgress))
	assert.Empty(t, f.jobs.Queued())
}

func TestRun_ReleasesLock(t *testing.T) {
	f := newFixture(t, nil, "AUC\n0.9\n", models.StatusFinished)

	_, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.NoError(t, err)

	ok, err := f.cache.AcquireLock(context.Background(), cache.RunLockKey("retrain"), "next", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_RecordsLedger(t *testing.T) {
	st := newMockStore()
	f := newFixture(t, st, "AUC\n0.9\n", models.StatusFinished)

	report, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.NoError(t, err)

	run, err := st.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, "retrainer-20250601T120000Z", run.ModelName)
	assert.Equal(t, "AUC", run.MetricName)
	assert.Equal(t, []string{models.RunStatusRunning, models.RunStatusCompleted}, st.statuses())
	assert.Equal(t, 2, st.progress, "job id and job status recorded")

	status, ok, err := f.cache.GetRunStatus(context.Background(), report.RunID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.RunStatusCompleted, status)
}

func TestRun_FailureMarksRunFailed(t *testing.T) {
	st := newMockStore()
	f := newFixture(t, st, "", models.StatusFailed)

	_, err := f.svc.Run(context.Background(), RunParams{Metric: "AUC"})
	require.Error(t, err)
	assert.Equal(t, []string{models.RunStatusRunning, models.RunStatusFailed}, st.statuses())
}

func TestTriggerRun_CompletesInBackground(t *testing.T) {
	st := newMockStore()
	f := newFixture(t, st, "AUC\n0.9\n", models.StatusRunning, models.StatusFinished)

	run, err := f.svc.TriggerRun(context.Background(), RunParams{Metric: "AUC", MinImprovement: 0.02})
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	assert.Equal(t, models.SourceExternalQuery, run.Source)

	assert.Eventually(t, func() bool {
		status, ok, _ := f.svc.RunStatus(context.Background(), run.ID)
		return ok && status == models.RunStatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		ok, _ := f.cache.AcquireLock(context.Background(), cache.RunLockKey("retrain"), "next", time.Minute)
		return ok
	}, 2*time.Second, 5*time.Millisecond, "lock released after run")
}

func TestTriggerRun_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusRunning)
	f.svc.policy = PollPolicy{Interval: 10 * time.Millisecond, Timeout: 500 * time.Millisecond}

	_, err := f.svc.TriggerRun(context.Background(), RunParams{Metric: "AUC"})
	require.NoError(t, err)

	_, err = f.svc.TriggerRun(context.Background(), RunParams{Metric: "AUC"})
	assert.True(t, errors.Is(err, ErrRunInProgress))
}

func TestTriggerRun_CreateRunFailureReleasesLock(t *testing.T) {
	st := newMockStore()
	st.createRunErr = errors.New("db down")
	f := newFixture(t, st, "", models.StatusFinished)

	_, err := f.svc.TriggerRun(context.Background(), RunParams{Metric: "AUC"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")

	ok, err := f.cache.AcquireLock(context.Background(), cache.RunLockKey("retrain"), "next", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTriggerRun_InvalidSource(t *testing.T) {
	f := newFixture(t, nil, "", models.StatusFinished)

	_, err := f.svc.TriggerRun(context.Background(), RunParams{Source: "ftp"})
	assert.Error(t, err)
}

func TestRunReport_Outcome(t *testing.T) {
	assert.Equal(t, models.OutcomeNotImproved, (&RunReport{}).Outcome())
	assert.Equal(t, models.OutcomeDeployed, (&RunReport{Deploy: true}).Outcome())
	assert.Equal(t, models.OutcomeDeployFailed, (&RunReport{
		Deploy:   true,
		Outcomes: []models.DeployOutcome{models.DeployFailed("a", errors.New("x"))},
	}).Outcome())
}
