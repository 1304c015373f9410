package dataset

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func sample() *Dataset {
	return &Dataset{
		Cells: []string{"c1", "c2", "c3", "c4", "c5"},
		Genes: []string{"g1", "g2", "g3"},
		Counts: [][]float64{
			{4, 0, 1},
			{2, 0, 0},
			{0, 0, 3},
			{1, 2, 0},
			{3, 0, 0},
		},
		Obs: map[string][]string{
			"condition": {"A", "A", "B", "B", "B"},
			"batch":     {"b1", "b1", "b1", "b1", "b1"},
			"tissue":    {"liver", "liver", "lung", "lung", "liver"},
		},
	}
}

func TestValueCounts(t *testing.T) {
	d := sample()
	counts := d.ValueCounts("condition")
	if counts["A"] != 2 || counts["B"] != 3 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if d.MinGroupCount("condition") != 2 {
		t.Errorf("expected min group count 2, got %d", d.MinGroupCount("condition"))
	}
	if d.NUnique("batch") != 1 {
		t.Errorf("expected 1 batch level, got %d", d.NUnique("batch"))
	}
}

func TestGroupsWithAtLeast(t *testing.T) {
	d := sample()
	if got := d.GroupsWithAtLeast("condition", 3); got != 1 {
		t.Errorf("expected 1 group with >=3 cells, got %d", got)
	}
	if got := d.GroupsWithAtLeast("condition", 2); got != 2 {
		t.Errorf("expected 2 groups with >=2 cells, got %d", got)
	}
}

func TestFilterGenes(t *testing.T) {
	d := sample()
	// Detection counts: g1 in 4 cells, g2 in 1, g3 in 2.
	f := d.FilterGenes(2)
	if f.NGenes() != 2 {
		t.Fatalf("expected 2 genes, got %d (%v)", f.NGenes(), f.Genes)
	}
	if f.Genes[0] != "g1" || f.Genes[1] != "g3" {
		t.Errorf("unexpected genes: %v", f.Genes)
	}
	if f.Counts[0][1] != 1 {
		t.Errorf("expected g3 count 1 for c1, got %v", f.Counts[0][1])
	}
	// Threshold above every detection count empties the matrix.
	if d.FilterGenes(5).NGenes() != 0 {
		t.Error("expected no genes past threshold 5")
	}
	// Original is untouched.
	if d.NGenes() != 3 {
		t.Error("FilterGenes mutated its receiver")
	}
}

func TestSubset(t *testing.T) {
	d := sample()
	s := d.Subset("tissue", "liver")
	if s.NCells() != 3 {
		t.Fatalf("expected 3 liver cells, got %d", s.NCells())
	}
	if s.Cells[2] != "c5" {
		t.Errorf("unexpected cells: %v", s.Cells)
	}
	if s.Obs["condition"][2] != "B" {
		t.Errorf("obs not subset in row order: %v", s.Obs["condition"])
	}
	if s.Counts[2][0] != 3 {
		t.Errorf("counts not subset: %v", s.Counts[2])
	}
}

func TestNormalizeCPMLog2(t *testing.T) {
	d := &Dataset{
		Cells:  []string{"c1"},
		Genes:  []string{"g1", "g2"},
		Counts: [][]float64{{1, 3}},
		Obs:    map[string][]string{},
	}
	n := d.NormalizeCPMLog2()

	// c1 total is 4, so g1 becomes log2(1 + 0.25e6).
	want := math.Log2(1 + 0.25e6)
	if math.Abs(n.Counts[0][0]-want) > 1e-9 {
		t.Errorf("expected %v, got %v", want, n.Counts[0][0])
	}
	// Raw layer untouched.
	if d.Counts[0][0] != 1 {
		t.Error("NormalizeCPMLog2 mutated its receiver")
	}
}

func TestNormalizeEmptyCell(t *testing.T) {
	d := &Dataset{
		Cells:  []string{"c1"},
		Genes:  []string{"g1"},
		Counts: [][]float64{{0}},
		Obs:    map[string][]string{},
	}
	n := d.NormalizeCPMLog2()
	if n.Counts[0][0] != 0 {
		t.Errorf("expected 0 for empty cell, got %v", n.Counts[0][0])
	}
}

func TestMatrixZstRoundTrip(t *testing.T) {
	d := sample()
	data, err := MarshalMatrixZst(d)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	got, err := UnmarshalMatrixZst(data)
	if err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.NCells() != d.NCells() || got.NGenes() != d.NGenes() {
		t.Fatalf("shape mismatch: %dx%d", got.NCells(), got.NGenes())
	}
	if got.Counts[3][1] != 2 {
		t.Errorf("unexpected value: %v", got.Counts[3][1])
	}
}

func TestMarshalObsCSV(t *testing.T) {
	d := sample()
	data, err := MarshalObsCSV(d, []string{"condition", "tissue"})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := "index,condition,tissue\nc1,A,liver\nc2,A,liver\nc3,B,lung\nc4,B,lung\nc5,B,liver\n"
	if string(data) != want {
		t.Errorf("unexpected csv:\n%s", data)
	}

	if _, err := MarshalObsCSV(d, []string{"nope"}); err == nil {
		t.Error("expected error for missing obs column")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	matPath := filepath.Join(dir, "mat.tsv")
	obsPath := filepath.Join(dir, "obs.csv")

	mat := "index\tg1\tg2\nc1\t1\t0\nc2\t0\t2\n"
	obs := "index,condition\nc1,A\nc2,B\n"
	if err := os.WriteFile(matPath, []byte(mat), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(obsPath, []byte(obs), 0644); err != nil {
		t.Fatal(err)
	}

	d, err := Load(matPath, obsPath)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if d.NCells() != 2 || d.NGenes() != 2 {
		t.Fatalf("unexpected shape %dx%d", d.NCells(), d.NGenes())
	}
	if d.Obs["condition"][1] != "B" {
		t.Errorf("unexpected obs: %v", d.Obs["condition"])
	}
}

func TestLoadCellMismatch(t *testing.T) {
	dir := t.TempDir()
	matPath := filepath.Join(dir, "mat.tsv")
	obsPath := filepath.Join(dir, "obs.csv")

	if err := os.WriteFile(matPath, []byte("index\tg1\nc1\t1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(obsPath, []byte("index,condition\ncX,A\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(matPath, obsPath); err == nil {
		t.Error("expected error for mismatched cell index")
	}
}
