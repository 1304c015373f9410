package mast

import (
	"context"
	"fmt"
	"log"
	"math"
	"path"
	"strings"

	"github.com/batch-mast/orchestrator/internal/dataset"
)

// MinCells computes the feature-detection threshold for the prevalence
// filter: max(minPerc * referenceCells, limit), where referenceCells is the
// total cell count (onTotal) or the smallest per-group cell count.
func MinCells(d *dataset.Dataset, group string, minPerc float64, onTotal bool, limit int) float64 {
	ref := d.MinGroupCount(group)
	if onTotal {
		ref = d.NCells()
	}
	return math.Max(minPerc*float64(ref), float64(limit))
}

// CleanCovariates rebuilds a "+a+b" covariate string for one unit, dropping
// the stratifying variable, the group variable and any covariate with a
// single observed level in this unit.
func CleanCovariates(d *dataset.Dataset, covs, group, by string) string {
	var out strings.Builder
	for _, c := range strings.Split(covs, "+") {
		if c == "" || c == group || (by != "" && c == by) {
			continue
		}
		if d.NUnique(c) > 1 {
			out.WriteString("+")
			out.WriteString(c)
		}
	}
	return out.String()
}

// stage serializes and uploads a unit's inputs under workspace, returning
// the manifest key. When reuse is set, the matrix and metadata already exist
// in the workspace and only the manifest is rewritten.
func (r *Runner) stage(ctx context.Context, d *dataset.Dataset, workspace string, keys []string, group, covs string, reuse bool) (string, error) {
	if !reuse {
		norm := d.NormalizeCPMLog2()
		mat, err := dataset.MarshalMatrixZst(norm)
		if err != nil {
			return "", fmt.Errorf("failed to serialize matrix: %w", err)
		}
		log.Printf("[Runner] uploading matrix (%dx%d) to %s", d.NCells(), d.NGenes(), workspace)
		if err := r.store.Put(ctx, path.Join(workspace, "mat.tsv.zst"), mat); err != nil {
			return "", fmt.Errorf("failed to upload matrix: %w", err)
		}

		cdat, err := dataset.MarshalObsCSV(d, keys)
		if err != nil {
			return "", fmt.Errorf("failed to serialize metadata: %w", err)
		}
		log.Printf("[Runner] uploading metadata to %s", workspace)
		if err := r.store.Put(ctx, path.Join(workspace, "cdat.csv"), cdat); err != nil {
			return "", fmt.Errorf("failed to upload metadata: %w", err)
		}
	}

	manifest := renderManifest(r.cfg.Bucket, workspace, group, covs, r.cfg.Jobs)
	manifestKey := path.Join(workspace, "manifest.txt")
	log.Printf("[Runner] uploading manifest to %s", workspace)
	if err := r.store.Put(ctx, manifestKey, []byte(manifest)); err != nil {
		return "", fmt.Errorf("failed to upload manifest: %w", err)
	}
	return manifestKey, nil
}

// renderManifest produces the newline-separated KEY=VALUE manifest the
// worker image reads.
func renderManifest(bucket, workspace, group, covs string, jobs int) string {
	lines := []string{
		fmt.Sprintf("WORKSPACE=%s", path.Join(bucket, workspace)),
		"BATCH_INDEX_OFFSET=0",
		"CDAT=cdat.csv",
		"MAT=mat.tsv.zst",
		fmt.Sprintf("GROUP=%s", group),
		"OUT_NAME=out.csv",
		fmt.Sprintf("MODEL='~group+n_genes%s'", covs),
		fmt.Sprintf("JOBS=%d", jobs),
	}
	return strings.Join(lines, "\n") + "\n"
}
