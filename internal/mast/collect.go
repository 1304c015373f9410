package mast

import (
	"context"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/batch-mast/orchestrator/internal/batch"
	"github.com/batch-mast/orchestrator/internal/results"
)

// JobRecord tracks one in-flight remote job.
type JobRecord struct {
	Group     string // sheet/group label the unit's results are keyed by
	Workspace string // blob store key prefix holding the unit's files
}

// Event is one collected terminal job. Table is set only for succeeded jobs.
type Event struct {
	JobID  string
	Status batch.Status
	Record JobRecord
	Table  *results.Table
}

// Collect polls every job in inflight until the map is empty, emitting one
// Event per job as it reaches a terminal state. Succeeded jobs have their
// result table fetched from the unit's workspace before emission; failed
// jobs emit with a nil table. A job id is removed from inflight exactly once,
// at its first observed terminal status, and is never emitted again.
//
// A zero (or negative) interval means "do not wait": Collect returns
// immediately with no emissions, even when inflight is non-empty.
//
// A status outside the known state set is unrecoverable and fails the whole
// collection. The caller owns inflight; on error it still holds the jobs
// never reconciled.
func (r *Runner) Collect(ctx context.Context, inflight map[string]JobRecord, interval time.Duration, emit func(Event) error) error {
	if interval <= 0 {
		return nil
	}

	for len(inflight) > 0 {
		if err := sleepCtx(ctx, interval); err != nil {
			return err
		}

		// Snapshot ids so removal during the round is well-defined.
		ids := make([]string, 0, len(inflight))
		for id := range inflight {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			status, err := r.client.DescribeJob(ctx, id)
			if err != nil {
				return err
			}
			if !status.Known() {
				return fmt.Errorf("status %q not managed for job %s", status, id)
			}

			switch status {
			case batch.StatusSucceeded:
				rec := inflight[id]
				table, err := r.fetchResults(ctx, rec.Workspace)
				if err != nil {
					return err
				}
				delete(inflight, id)
				if err := emit(Event{JobID: id, Status: status, Record: rec, Table: table}); err != nil {
					return err
				}
			case batch.StatusFailed:
				rec := inflight[id]
				delete(inflight, id)
				if err := emit(Event{JobID: id, Status: status, Record: rec}); err != nil {
					return err
				}
			}
			// Non-terminal statuses stay in the map for the next round.
		}
	}
	return nil
}

// fetchResults downloads and parses a unit's output table.
func (r *Runner) fetchResults(ctx context.Context, workspace string) (*results.Table, error) {
	data, err := r.store.Get(ctx, path.Join(workspace, "out.csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results from %s: %w", workspace, err)
	}
	return results.Parse(data)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
