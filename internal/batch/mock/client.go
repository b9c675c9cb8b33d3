// Package mock provides a scripted batch.Client for tests and dry runs.
package mock

import (
	"context"
	"sync"

	"github.com/kiranshivaraju/retrainer/internal/batch"
	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// MockClient satisfies batch.Client for testing.
// Unset funcs fall back to the scripted defaults.
type MockClient struct {
	QueueFunc  func(ctx context.Context, params batch.QueueParams) (models.JobID, error)
	StartFunc  func(ctx context.Context, id models.JobID) error
	StatusFunc func(ctx context.Context, id models.JobID) (*models.BatchStatus, error)
	DeployFunc func(ctx context.Context, endpoint models.PublishEndpoint, id models.JobID) error

	mu       sync.Mutex
	jobID    models.JobID
	statuses []models.JobStatus
	polls    int
	queued   []batch.QueueParams
	started  []models.JobID
	deployed []models.PublishEndpoint
}

func (m *MockClient) Queue(ctx context.Context, params batch.QueueParams) (models.JobID, error) {
	m.mu.Lock()
	m.queued = append(m.queued, params)
	m.mu.Unlock()

	if m.QueueFunc != nil {
		return m.QueueFunc(ctx, params)
	}
	if params.Source == models.SourceUploadedFile && params.TrainingBlob == nil {
		return "", batch.ErrPrecondition
	}
	return m.jobID, nil
}

func (m *MockClient) Start(ctx context.Context, id models.JobID) error {
	m.mu.Lock()
	m.started = append(m.started, id)
	m.mu.Unlock()

	if m.StartFunc != nil {
		return m.StartFunc(ctx, id)
	}
	return nil
}

// Status walks the scripted status sequence, repeating the last entry once exhausted.
func (m *MockClient) Status(ctx context.Context, id models.JobID) (*models.BatchStatus, error) {
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := models.StatusNotStarted
	if len(m.statuses) > 0 {
		i := m.polls
		if i >= len(m.statuses) {
			i = len(m.statuses) - 1
		}
		st = m.statuses[i]
	}
	m.polls++

	return statusFor(st), nil
}

func (m *MockClient) Deploy(ctx context.Context, endpoint models.PublishEndpoint, id models.JobID) error {
	m.mu.Lock()
	m.deployed = append(m.deployed, endpoint)
	m.mu.Unlock()

	if m.DeployFunc != nil {
		return m.DeployFunc(ctx, endpoint, id)
	}
	return nil
}

// Queued returns the params of every Queue call.
func (m *MockClient) Queued() []batch.QueueParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]batch.QueueParams(nil), m.queued...)
}

// Started returns the ids passed to Start.
func (m *MockClient) Started() []models.JobID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.JobID(nil), m.started...)
}

// Deployed returns the endpoints passed to Deploy, including failed attempts.
func (m *MockClient) Deployed() []models.PublishEndpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PublishEndpoint(nil), m.deployed...)
}

// Polls returns the number of scripted Status calls served.
func (m *MockClient) Polls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls
}

func statusFor(st models.JobStatus) *models.BatchStatus {
	out := &models.BatchStatus{StatusCode: st}
	if st == models.StatusFinished {
		out.Results = map[string]models.BlobReference{
			models.OutputModel: {
				BaseLocation:     "https://mock.blob.core.windows.net/",
				RelativeLocation: "retrain/mock.ilearner",
				SasBlobToken:     "?sv=mock",
			},
		}
	}
	if st == models.StatusFailed {
		out.Details = "mock job failed"
	}
	return out
}

// NewMockClient returns a MockClient that queues job id and reports statuses in order.
func NewMockClient(id models.JobID, statuses ...models.JobStatus) *MockClient {
	return &MockClient{jobID: id, statuses: statuses}
}

// NewFailingClient returns a MockClient whose every call returns err.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		QueueFunc: func(_ context.Context, _ batch.QueueParams) (models.JobID, error) {
			return "", err
		},
		StartFunc: func(_ context.Context, _ models.JobID) error {
			return err
		},
		StatusFunc: func(_ context.Context, _ models.JobID) (*models.BatchStatus, error) {
			return nil, err
		},
		DeployFunc: func(_ context.Context, _ models.PublishEndpoint, _ models.JobID) error {
			return err
		},
	}
}

// NewStuckClient returns a MockClient whose job never leaves Running.
func NewStuckClient(id models.JobID) *MockClient {
	return NewMockClient(id, models.StatusRunning)
}

// Compile-time check that MockClient implements batch.Client.
var _ batch.Client = (*MockClient)(nil)
