package mast

import (
	"context"
	"strings"
	"testing"
)

func TestCleanCovariates(t *testing.T) {
	d := sampleDataset()

	// batch has a single level and is dropped; age survives.
	if got := CleanCovariates(d, "+age+batch", "condition", ""); got != "+age" {
		t.Errorf("expected +age, got %q", got)
	}
	// The group variable never survives.
	if got := CleanCovariates(d, "+condition+age", "condition", ""); got != "+age" {
		t.Errorf("expected +age, got %q", got)
	}
	// The stratifying variable never survives.
	if got := CleanCovariates(d, "+tissue+age", "condition", "tissue"); got != "+age" {
		t.Errorf("expected +age, got %q", got)
	}
	// Empty covariates stay empty.
	if got := CleanCovariates(d, "", "condition", ""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestMinCells(t *testing.T) {
	d := sampleDataset() // 8 cells, condition groups A=4, B=4

	// On total: max(0.5*8, 3) = 4.
	if got := MinCells(d, "condition", 0.5, true, 3); got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
	// On min group: max(0.5*4, 3) = 3 (floored).
	if got := MinCells(d, "condition", 0.5, false, 3); got != 3 {
		t.Errorf("expected floor 3, got %v", got)
	}
	// Floor does not apply when the scaled value is larger.
	if got := MinCells(d, "condition", 1.0, false, 3); got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
}

func TestRenderManifest(t *testing.T) {
	m := renderManifest("scratch", "mast/abc", "condition", "+age", 4)
	want := "WORKSPACE=scratch/mast/abc\n" +
		"BATCH_INDEX_OFFSET=0\n" +
		"CDAT=cdat.csv\n" +
		"MAT=mat.tsv.zst\n" +
		"GROUP=condition\n" +
		"OUT_NAME=out.csv\n" +
		"MODEL='~group+n_genes+age'\n" +
		"JOBS=4\n"
	if m != want {
		t.Errorf("unexpected manifest:\n%s", m)
	}
}

func TestStage(t *testing.T) {
	store := newFakeStore()
	r := newTestRunner(store, newFakeClient(), nil)
	d := sampleDataset()

	key, err := r.stage(context.Background(), d, "mast/abc", []string{"condition", "age"}, "condition", "+age", false)
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}
	if key != "mast/abc/manifest.txt" {
		t.Errorf("unexpected manifest key: %s", key)
	}

	for _, want := range []string{"mast/abc/mat.tsv.zst", "mast/abc/cdat.csv", "mast/abc/manifest.txt"} {
		if _, err := store.Get(context.Background(), want); err != nil {
			t.Errorf("expected %s staged: %v", want, err)
		}
	}

	manifest, _ := store.Get(context.Background(), key)
	if !strings.Contains(string(manifest), "GROUP=condition") {
		t.Errorf("manifest missing group: %s", manifest)
	}
}

func TestStageReuseSkipsData(t *testing.T) {
	store := newFakeStore()
	r := newTestRunner(store, newFakeClient(), nil)
	d := sampleDataset()

	_, err := r.stage(context.Background(), d, "mast/reused", nil, "condition", "", true)
	if err != nil {
		t.Fatalf("stage failed: %v", err)
	}

	keys := store.keys()
	if len(keys) != 1 || keys[0] != "mast/reused/manifest.txt" {
		t.Errorf("reuse must stage only the manifest, got %v", keys)
	}
}

func TestJobName(t *testing.T) {
	if got := jobName("cell type", "+age+batch"); got != "mast-celltype-agebatch" {
		t.Errorf("unexpected job name %q", got)
	}
}
