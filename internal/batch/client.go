// Package batch provides the client interface to the remote job backend.
//
// The backend is an opaque collaborator: jobs are submitted against a queue
// and a job definition, and observed purely through describe polling. Jobs
// run to completion on the backend regardless of what the local process does;
// there is no cancellation primitive.
package batch

import "context"

// Status is the backend-reported state of a job.
type Status string

const (
	StatusSubmitted Status = "SUBMITTED"
	StatusPending   Status = "PENDING"
	StatusRunnable  Status = "RUNNABLE"
	StatusStarting  Status = "STARTING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether the status is one of the two terminal states.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Known reports whether the status belongs to the recognized state set.
// An unknown status is unrecoverable for collection.
func (s Status) Known() bool {
	switch s {
	case StatusSubmitted, StatusPending, StatusRunnable, StatusStarting,
		StatusRunning, StatusSucceeded, StatusFailed:
		return true
	}
	return false
}

// SubmitInput describes one job submission.
type SubmitInput struct {
	JobName       string
	JobQueue      string
	JobDefinition string
	Command       []string
}

// Client talks to the job backend.
type Client interface {
	// SubmitJob submits a job and returns its backend-assigned id.
	SubmitJob(ctx context.Context, in SubmitInput) (string, error)
	// DescribeJob returns the current status of a job.
	DescribeJob(ctx context.Context, jobID string) (Status, error)
}
