package mast

import (
	"context"
	"fmt"
	"log"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/batch-mast/orchestrator/internal/batch"
	"github.com/batch-mast/orchestrator/internal/dataset"
	"github.com/batch-mast/orchestrator/internal/results"
)

// ComputeOptions controls one unit submission.
type ComputeOptions struct {
	// Block polls the job until terminal and fetches results on success.
	Block bool
	// Workspace reuses an already-staged workspace (matrix and metadata are
	// not re-uploaded, only the manifest). Empty allocates a fresh one.
	Workspace string
}

// ComputeResult describes one submitted (or attempted) unit.
type ComputeResult struct {
	Workspace string
	JobID     string // empty when submission failed
	JobName   string
	SubmitErr error          // the logged submission failure, if any
	Table     *results.Table // set only for blocking submissions that succeeded
}

// Compute stages one computation unit and submits a backend job for it.
// Submission failures are logged, not returned: the caller sees an empty
// JobID and must treat the unit as unsubmitted. Staging failures are real
// errors.
func (r *Runner) Compute(ctx context.Context, d *dataset.Dataset, keys []string, group, covs string, opts ComputeOptions) (*ComputeResult, error) {
	workspace := opts.Workspace
	reuse := workspace != ""
	if !reuse {
		workspace = path.Join("mast", uuid.NewString())
	}

	manifestKey, err := r.stage(ctx, d, workspace, keys, group, covs, reuse)
	if err != nil {
		return nil, err
	}

	res := &ComputeResult{
		Workspace: workspace,
		JobName:   jobName(group, covs),
	}
	res.JobID, res.SubmitErr = r.submit(ctx, manifestKey, res.JobName)

	if opts.Block && res.JobID != "" {
		status, err := r.waitTerminal(ctx, res.JobID)
		if err != nil {
			return res, err
		}
		if status == batch.StatusSucceeded {
			table, err := r.fetchResults(ctx, workspace)
			if err != nil {
				return res, err
			}
			res.Table = table
		}
	}
	return res, nil
}

// submit sends one job to the backend. Errors are logged and returned with
// an empty job id; there is no automatic retry.
func (r *Runner) submit(ctx context.Context, manifestKey, name string) (string, error) {
	log.Printf("[Runner] submitting job %s to the job queue %s", name, r.cfg.JobQueue)
	jobID, err := r.client.SubmitJob(ctx, batch.SubmitInput{
		JobName:       name,
		JobQueue:      r.cfg.JobQueue,
		JobDefinition: r.cfg.JobDefinition,
		Command:       []string{path.Join(r.cfg.Bucket, manifestKey)},
	})
	if err != nil {
		log.Printf("[Runner] submit error for %s: %v", name, err)
		return "", err
	}
	log.Printf("[Runner] submitted job %s %s to the job queue %s", name, jobID, r.cfg.JobQueue)
	return jobID, nil
}

// waitTerminal polls a single job at the configured status wait until it
// reaches a terminal state.
func (r *Runner) waitTerminal(ctx context.Context, jobID string) (batch.Status, error) {
	for {
		status, err := r.client.DescribeJob(ctx, jobID)
		if err != nil {
			return "", err
		}
		if !status.Known() {
			return "", fmt.Errorf("status %q not managed for job %s", status, jobID)
		}
		if status.Terminal() {
			return status, nil
		}
		if err := sleepCtx(ctx, r.cfg.StatusWait); err != nil {
			return "", err
		}
	}
}

// jobName builds the backend job name from the group and covariate strings,
// keeping only alphanumeric characters of each.
func jobName(group, covs string) string {
	return fmt.Sprintf("mast-%s-%s", alnum(group), alnum(covs))
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
