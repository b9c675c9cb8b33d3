// Package batch talks to the remote batch-execution service that runs retraining
// jobs, and to the publish endpoints that serve retrained models.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kiranshivaraju/retrainer/pkg/models"
)

// APIVersion is appended to every training endpoint request.
const APIVersion = "2.0"

// Sentinel errors for batch service failures.
var (
	ErrPrecondition       = errors.New("training set not referenced")
	ErrTransport          = errors.New("batch service unreachable")
	ErrTimeout            = errors.New("batch service timeout")
	ErrSubmissionRejected = errors.New("job submission rejected")
	ErrStartRejected      = errors.New("job start rejected")
	ErrJobNotFinished     = errors.New("job not finished")
	ErrNoModelOutput      = errors.New("job produced no model output")
	ErrDeployRejected     = errors.New("deploy rejected")
)

// Client is the interface for the batch training and publish endpoints.
type Client interface {
	Queue(ctx context.Context, params QueueParams) (models.JobID, error)
	Start(ctx context.Context, id models.JobID) error
	Status(ctx context.Context, id models.JobID) (*models.BatchStatus, error)
	Deploy(ctx context.Context, endpoint models.PublishEndpoint, id models.JobID) error
}

// QueueParams describes one retraining submission.
type QueueParams struct {
	Source models.DataSource
	// TrainingBlob is required when Source is models.SourceUploadedFile.
	TrainingBlob *models.BlobReference
	// Query, when set, is sent as the query global parameter.
	Query            string
	GlobalParameters map[string]string
	// ModelName names both outputs of the job.
	ModelName string
}

// Options configures an HTTPClient.
type Options struct {
	URL              string
	Key              string
	Container        string
	ConnectionString string
	QueryParameter   string
	Timeout          time.Duration
}

// HTTPClient implements Client over the batch service REST API.
type HTTPClient struct {
	baseURL    string
	key        string
	container  string
	connStr    string
	queryParam string
	client     *http.Client
}

// NewHTTPClient creates a new batch service client.
func NewHTTPClient(opts Options) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(opts.URL, "/"),
		key:        opts.Key,
		container:  opts.Container,
		connStr:    opts.ConnectionString,
		queryParam: opts.QueryParameter,
		client:     &http.Client{Timeout: opts.Timeout},
	}
}

// BuildRequest assembles the submission body for params.
// Outputs always name a model artifact and a metrics file after params.ModelName.
func (c *HTTPClient) BuildRequest(params QueueParams) (models.TrainingJobRequest, error) {
	req := models.TrainingJobRequest{
		GlobalParameters: make(map[string]string, len(params.GlobalParameters)+1),
		Outputs: map[string]models.BlobReference{
			models.OutputModel: {
				ConnectionString: c.connStr,
				RelativeLocation: fmt.Sprintf("/%s/%s.ilearner", c.container, params.ModelName),
			},
			models.OutputMetrics: {
				ConnectionString: c.connStr,
				RelativeLocation: fmt.Sprintf("/%s/%s.csv", c.container, params.ModelName),
			},
		},
	}

	if params.Source == models.SourceUploadedFile {
		if params.TrainingBlob == nil || params.TrainingBlob.RelativeLocation == "" {
			return models.TrainingJobRequest{}, ErrPrecondition
		}
		in := *params.TrainingBlob
		req.Input = &in
	}

	for k, v := range params.GlobalParameters {
		req.GlobalParameters[k] = v
	}
	if params.Query != "" && c.queryParam != "" {
		req.GlobalParameters[c.queryParam] = params.Query
	}

	return req, nil
}

func (c *HTTPClient) Queue(ctx context.Context, params QueueParams) (models.JobID, error) {
	body, err := c.BuildRequest(params)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding job request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.jobsURL(), c.key, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", fmt.Errorf("%w: status %d: %s", ErrSubmissionRejected, resp.StatusCode, snippet(resp.Body))
	}

	var id string
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		return "", fmt.Errorf("%w: decoding job id: %v", ErrSubmissionRejected, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty job id", ErrSubmissionRejected)
	}

	return models.JobID(id), nil
}

func (c *HTTPClient) Start(ctx context.Context, id models.JobID) error {
	resp, err := c.do(ctx, http.MethodPost, c.jobsURL(string(id), "start"), c.key, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: job %s: status %d: %s", ErrStartRejected, id, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

func (c *HTTPClient) Status(ctx context.Context, id models.JobID) (*models.BatchStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, c.jobsURL(string(id)), c.key, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, fmt.Errorf("%w: job %s: status %d: %s", ErrTransport, id, resp.StatusCode, snippet(resp.Body))
	}

	var st models.BatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: decoding job status: %v", ErrTransport, err)
	}
	return &st, nil
}

// Deploy points endpoint at the model produced by job id.
// The job must have finished and reported a model output.
func (c *HTTPClient) Deploy(ctx context.Context, endpoint models.PublishEndpoint, id models.JobID) error {
	st, err := c.Status(ctx, id)
	if err != nil {
		return err
	}
	if st.StatusCode != models.StatusFinished {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotFinished, id, st.StatusCode)
	}

	model, ok := st.Results[models.OutputModel]
	if !ok {
		return fmt.Errorf("%w: job %s", ErrNoModelOutput, id)
	}

	payload, err := json.Marshal(models.ResourceLocations{
		Resources: []models.ResourceLocation{{
			Name: endpoint.Name,
			Location: models.BlobReference{
				BaseLocation:     model.BaseLocation,
				RelativeLocation: model.RelativeLocation,
				SasBlobToken:     model.SasBlobToken,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("encoding resource locations: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPatch, endpoint.URL, endpoint.Key, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return fmt.Errorf("%w: %s: status %d: %s", ErrDeployRejected, endpoint.Name, resp.StatusCode, snippet(resp.Body))
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, u, key string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	return resp, nil
}

func (c *HTTPClient) jobsURL(segments ...string) string {
	u := c.baseURL
	for _, s := range segments {
		u += "/" + url.PathEscape(s)
	}
	return u + "?api-version=" + APIVersion
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// snippet returns the start of a response body for error messages.
func snippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

// classifyError maps transport-level errors to sentinel errors.
// Timeouts wrap both ErrTimeout and ErrTransport.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w: %v", ErrTransport, ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w: %v", ErrTransport, ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrTransport, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
