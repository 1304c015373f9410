// Package mast orchestrates out-of-process MAST differential-expression
// jobs: it partitions a dataset into per-group computation units, stages
// each unit's inputs to the blob store, submits one backend job per unit,
// polls the backend until every tracked job terminates, and aggregates the
// fetched results with significance filtering.
//
// The statistical model itself runs in the remote worker image; the local
// process only sequences the two external collaborators.
package mast

import (
	"context"
	"log"
	"time"

	"github.com/batch-mast/orchestrator/internal/batch"
	"github.com/batch-mast/orchestrator/internal/blobstore"
	"github.com/batch-mast/orchestrator/internal/dataset"
	"github.com/batch-mast/orchestrator/internal/ledger"
	"github.com/batch-mast/orchestrator/internal/results"
)

// Config contains runner settings.
type Config struct {
	JobQueue      string
	JobDefinition string
	Bucket        string
	// PollInterval is the sleep between collection rounds. Zero means "do
	// not wait": collection yields nothing.
	PollInterval time.Duration
	// StatusWait is the poll interval for blocking single-job waits.
	StatusWait time.Duration
	// Jobs is the parallelism hint written into the manifest for the worker.
	Jobs int
}

// Runner coordinates staging, submission, collection and aggregation.
type Runner struct {
	cfg    Config
	store  blobstore.Store
	client batch.Client
	ledger *ledger.Ledger // optional, nil disables recording
}

// New creates a runner. led may be nil.
func New(cfg Config, store blobstore.Store, client batch.Client, led *ledger.Ledger) *Runner {
	if cfg.StatusWait <= 0 {
		cfg.StatusWait = 60 * time.Second
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = 1
	}
	return &Runner{cfg: cfg, store: store, client: client, ledger: led}
}

// Stratification partitions the dataset along one obs column into the named
// groups, each becoming an independent computation unit.
type Stratification struct {
	By     string
	Groups []string
}

// RunOptions contains the parameters of one differential-expression run.
type RunOptions struct {
	// Keys are the obs columns staged as per-cell metadata.
	Keys []string
	// Group is the grouping variable the model contrasts.
	Group string
	// FDR and LFC are the top-hits significance and effect-size thresholds.
	FDR float64
	LFC float64
	// Covariates is the "+a+b" covariate string; cleaned per unit.
	Covariates string
	// Strata are the parallel stratifying dimensions; empty runs the whole
	// dataset as a single unit.
	Strata []Stratification
	// MinPerc scales the prevalence filter; zero disables filtering.
	MinPerc float64
	// MinPercPerGroup overrides MinPerc per stratum group.
	MinPercPerGroup map[string]float64
	// OnTotal references the filter to the total cell count instead of the
	// smallest group.
	OnTotal bool
	// MinCellsLimit floors the prevalence threshold (default 3).
	MinCellsLimit int
}

// Stratum is the aggregated output of one stratifying dimension. By is empty
// for unstratified runs.
type Stratum struct {
	By      string
	Results map[string]*results.Table
	Top     map[string]map[string][]string
}

// Run executes a differential-expression run, invoking yield once per
// stratifying dimension (once total when unstratified) after that
// dimension's jobs have all been collected. Any unrecoverable error is
// wrapped in a *CollectionError carrying the job records never reconciled.
//
// n_genes is always assumed as covariate in the model formula.
func (r *Runner) Run(ctx context.Context, d *dataset.Dataset, opts RunOptions, yield func(Stratum) error) error {
	limit := opts.MinCellsLimit
	if limit == 0 {
		limit = 3
	}

	if len(opts.Strata) == 0 {
		dd := d
		if opts.MinPerc > 0 {
			minCells := MinCells(dd, opts.Group, opts.MinPerc, opts.OnTotal, limit)
			log.Printf("[Runner] filtering genes detected in fewer than %v cells", minCells)
			dd = dd.FilterGenes(minCells)
		}

		inflight := make(map[string]JobRecord)
		if dd.NGenes() > 0 {
			if err := r.launch(ctx, inflight, dd, opts, "", "Sheet0"); err != nil {
				return &CollectionError{Err: err, InFlight: inflight}
			}
		} else {
			log.Printf("[Runner] not enough genes, computation skipped")
		}

		de, top, err := r.prepOutput(ctx, inflight, opts.LFC, opts.FDR)
		if err != nil {
			return &CollectionError{Err: err, InFlight: inflight}
		}
		return yield(Stratum{Results: de, Top: top})
	}

	for _, strat := range opts.Strata {
		inflight := make(map[string]JobRecord)
		for _, b := range strat.Groups {
			sub := d.Subset(strat.By, b)

			minPerc := opts.MinPerc
			if v, ok := opts.MinPercPerGroup[b]; ok {
				minPerc = v
			}
			if minPerc > 0 {
				minCells := MinCells(sub, opts.Group, minPerc, opts.OnTotal, limit)
				log.Printf("[Runner] filtering genes detected in fewer than %v cells", minCells)
				sub = sub.FilterGenes(minCells)
			}

			// Units without at least two groups of 3+ cells, or with no
			// genes left, lack statistical power and are skipped.
			enoughGroups := sub.GroupsWithAtLeast(opts.Group, 3) > 1
			enoughGenes := sub.NGenes() > 0
			if !enoughGroups || !enoughGenes {
				log.Printf("[Runner] computation for %s skipped", b)
				continue
			}

			if err := r.launch(ctx, inflight, sub, opts, strat.By, b); err != nil {
				return &CollectionError{Err: err, InFlight: inflight}
			}
		}

		de, top, err := r.prepOutput(ctx, inflight, opts.LFC, opts.FDR)
		if err != nil {
			return &CollectionError{Err: err, InFlight: inflight}
		}
		if err := yield(Stratum{By: strat.By, Results: de, Top: top}); err != nil {
			return err
		}
	}
	return nil
}

// launch stages and submits one unit, tracking it in inflight when the
// submission produced a job id.
func (r *Runner) launch(ctx context.Context, inflight map[string]JobRecord, d *dataset.Dataset, opts RunOptions, by, sheet string) error {
	covs := CleanCovariates(d, opts.Covariates, opts.Group, by)
	res, err := r.Compute(ctx, d, opts.Keys, opts.Group, covs, ComputeOptions{})
	if err != nil {
		return err
	}

	r.recordSubmission(res, sheet, by)

	if res.JobID == "" {
		// Submission failure was already logged; the unit is dropped from
		// tracking with no retry.
		return nil
	}
	inflight[res.JobID] = JobRecord{Group: sheet, Workspace: res.Workspace}
	return nil
}

// prepOutput collects every tracked job and aggregates the successful ones.
func (r *Runner) prepOutput(ctx context.Context, inflight map[string]JobRecord, lfc, fdr float64) (map[string]*results.Table, map[string]map[string][]string, error) {
	de := make(map[string]*results.Table)
	err := r.Collect(ctx, inflight, r.cfg.PollInterval, func(ev Event) error {
		switch ev.Status {
		case batch.StatusSucceeded:
			de[ev.Record.Group] = ev.Table
			r.recordTerminal(ev.JobID, ev.Status, "")
		case batch.StatusFailed:
			log.Printf("[Runner] job failed: group %s", ev.Record.Group)
			r.recordTerminal(ev.JobID, ev.Status, "job failed on backend")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return de, results.TopHits(de, lfc, fdr), nil
}

func (r *Runner) recordSubmission(res *ComputeResult, sheet, by string) {
	if r.ledger == nil {
		return
	}
	e := ledger.Entry{
		JobID:     res.JobID,
		JobName:   res.JobName,
		Group:     sheet,
		Stratum:   by,
		Workspace: res.Workspace,
		Status:    ledger.StatusSubmitted,
	}
	if res.JobID == "" {
		e.Status = ledger.StatusSubmitFailed
		if res.SubmitErr != nil {
			e.Error = res.SubmitErr.Error()
		}
	}
	if err := r.ledger.RecordSubmission(e); err != nil {
		log.Printf("[Runner] ledger record error: %v", err)
	}
}

func (r *Runner) recordTerminal(jobID string, status batch.Status, errMsg string) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordTerminal(jobID, string(status), errMsg); err != nil {
		log.Printf("[Runner] ledger update error: %v", err)
	}
}
