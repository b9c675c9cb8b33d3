// Package models contains shared data models used across the retrainer codebase.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// JobID is the opaque handle returned by the batch service when a job is queued.
type JobID string

// JobStatus is the lifecycle state of a remote retraining job.
// The ordinal values match the batch service's wire encoding.
type JobStatus int

const (
	StatusNotStarted JobStatus = iota
	StatusRunning
	StatusFailed
	StatusCancelled
	StatusFinished
)

var jobStatusNames = [...]string{"NotStarted", "Running", "Failed", "Cancelled", "Finished"}

func (s JobStatus) String() string {
	if s < 0 || int(s) >= len(jobStatusNames) {
		return fmt.Sprintf("JobStatus(%d)", int(s))
	}
	return jobStatusNames[s]
}

// IsTerminal reports whether the job will make no further progress.
func (s JobStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusFinished
}

// ParseJobStatus converts a status name (case-insensitive) to a JobStatus.
func ParseJobStatus(name string) (JobStatus, error) {
	for i, n := range jobStatusNames {
		if strings.EqualFold(n, name) {
			return JobStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown job status %q", name)
}

func (s JobStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts either the status name or its integer ordinal.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		parsed, err := ParseJobStatus(name)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}

	var ordinal int
	if err := json.Unmarshal(data, &ordinal); err != nil {
		return fmt.Errorf("job status must be a string or integer: %s", string(data))
	}
	if ordinal < 0 || ordinal >= len(jobStatusNames) {
		return fmt.Errorf("job status ordinal out of range: %d", ordinal)
	}
	*s = JobStatus(ordinal)
	return nil
}

// DataSource selects where the retraining job reads its training data from.
type DataSource string

const (
	// SourceUploadedFile references a blob uploaded or located before queueing.
	SourceUploadedFile DataSource = "uploaded_file"
	// SourceExternalQuery lets the experiment read its own hosted dataset or query.
	SourceExternalQuery DataSource = "external_query"
)

// ParseDataSource validates a data source name.
func ParseDataSource(s string) (DataSource, error) {
	switch DataSource(s) {
	case SourceUploadedFile, SourceExternalQuery:
		return DataSource(s), nil
	default:
		return "", fmt.Errorf("unknown data source %q: must be one of %s, %s", s, SourceUploadedFile, SourceExternalQuery)
	}
}

// Output names the batch service uses for the two retraining outputs.
const (
	OutputMetrics = "output1"
	OutputModel   = "output2"
)

// TrainingJobRequest is the batch execution request body.
type TrainingJobRequest struct {
	Input            *BlobReference           `json:"Input,omitempty"`
	GlobalParameters map[string]string        `json:"GlobalParameters"`
	Outputs          map[string]BlobReference `json:"Outputs"`
}

// BatchStatus is the batch service's view of a submitted job.
type BatchStatus struct {
	StatusCode JobStatus                `json:"StatusCode"`
	Results    map[string]BlobReference `json:"Results,omitempty"`
	Details    string                   `json:"Details,omitempty"`
}
