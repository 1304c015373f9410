// Package dataset holds the in-memory single-cell expression matrix and
// per-cell metadata, plus the filtering and partitioning operations the
// orchestrator applies before staging a computation unit.
package dataset

import (
	"fmt"
	"math"
)

// Dataset is a cells×genes counts matrix with per-cell metadata columns.
type Dataset struct {
	Cells  []string
	Genes  []string
	Counts [][]float64 // Counts[cell][gene], raw counts layer
	Obs    map[string][]string
}

// NCells returns the number of cells.
func (d *Dataset) NCells() int { return len(d.Cells) }

// NGenes returns the number of genes.
func (d *Dataset) NGenes() int { return len(d.Genes) }

// Validate checks internal consistency.
func (d *Dataset) Validate() error {
	if len(d.Counts) != len(d.Cells) {
		return fmt.Errorf("dataset: %d count rows for %d cells", len(d.Counts), len(d.Cells))
	}
	for i, row := range d.Counts {
		if len(row) != len(d.Genes) {
			return fmt.Errorf("dataset: row %d has %d values for %d genes", i, len(row), len(d.Genes))
		}
	}
	for col, vals := range d.Obs {
		if len(vals) != len(d.Cells) {
			return fmt.Errorf("dataset: obs column %q has %d values for %d cells", col, len(vals), len(d.Cells))
		}
	}
	return nil
}

// ValueCounts returns the number of cells per level of an obs column.
func (d *Dataset) ValueCounts(col string) map[string]int {
	counts := make(map[string]int)
	for _, v := range d.Obs[col] {
		counts[v]++
	}
	return counts
}

// MinGroupCount returns the smallest level count of an obs column, or 0 when
// the column is empty or absent.
func (d *Dataset) MinGroupCount(col string) int {
	min := 0
	first := true
	for _, n := range d.ValueCounts(col) {
		if first || n < min {
			min = n
			first = false
		}
	}
	return min
}

// NUnique returns the number of distinct levels of an obs column.
func (d *Dataset) NUnique(col string) int {
	return len(d.ValueCounts(col))
}

// GroupsWithAtLeast returns how many levels of an obs column have at least n
// cells.
func (d *Dataset) GroupsWithAtLeast(col string, n int) int {
	count := 0
	for _, c := range d.ValueCounts(col) {
		if c >= n {
			count++
		}
	}
	return count
}

// DetectionCounts returns, per gene, the number of cells with a nonzero count.
func (d *Dataset) DetectionCounts() []int {
	counts := make([]int, len(d.Genes))
	for _, row := range d.Counts {
		for g, v := range row {
			if v != 0 {
				counts[g]++
			}
		}
	}
	return counts
}

// FilterGenes returns a copy keeping only genes detected in at least minCells
// cells.
func (d *Dataset) FilterGenes(minCells float64) *Dataset {
	det := d.DetectionCounts()
	keep := make([]int, 0, len(d.Genes))
	for g := range d.Genes {
		if float64(det[g]) >= minCells {
			keep = append(keep, g)
		}
	}

	genes := make([]string, len(keep))
	for i, g := range keep {
		genes[i] = d.Genes[g]
	}
	counts := make([][]float64, len(d.Counts))
	for c, row := range d.Counts {
		nr := make([]float64, len(keep))
		for i, g := range keep {
			nr[i] = row[g]
		}
		counts[c] = nr
	}

	return &Dataset{
		Cells:  append([]string(nil), d.Cells...),
		Genes:  genes,
		Counts: counts,
		Obs:    copyObs(d.Obs, nil),
	}
}

// Subset returns a copy keeping only cells whose obs column equals value.
func (d *Dataset) Subset(col, value string) *Dataset {
	keep := make([]int, 0, len(d.Cells))
	for c, v := range d.Obs[col] {
		if v == value {
			keep = append(keep, c)
		}
	}

	cells := make([]string, len(keep))
	counts := make([][]float64, len(keep))
	for i, c := range keep {
		cells[i] = d.Cells[c]
		counts[i] = append([]float64(nil), d.Counts[c]...)
	}

	return &Dataset{
		Cells:  cells,
		Genes:  append([]string(nil), d.Genes...),
		Counts: counts,
		Obs:    copyObs(d.Obs, keep),
	}
}

// NormalizeCPMLog2 returns a copy with each cell scaled to one million total
// counts and values transformed to log2(1+x), the staging transform the MAST
// worker expects.
func (d *Dataset) NormalizeCPMLog2() *Dataset {
	counts := make([][]float64, len(d.Counts))
	for c, row := range d.Counts {
		total := 0.0
		for _, v := range row {
			total += v
		}
		scale := 0.0
		if total > 0 {
			scale = 1e6 / total
		}
		nr := make([]float64, len(row))
		for g, v := range row {
			nr[g] = math.Log2(1 + v*scale)
		}
		counts[c] = nr
	}

	return &Dataset{
		Cells:  append([]string(nil), d.Cells...),
		Genes:  append([]string(nil), d.Genes...),
		Counts: counts,
		Obs:    copyObs(d.Obs, nil),
	}
}

// copyObs copies obs columns; a nil keep copies all rows, otherwise only the
// indexed rows in order.
func copyObs(obs map[string][]string, keep []int) map[string][]string {
	out := make(map[string][]string, len(obs))
	for col, vals := range obs {
		if keep == nil {
			out[col] = append([]string(nil), vals...)
			continue
		}
		nv := make([]string, len(keep))
		for i, c := range keep {
			nv[i] = vals[c]
		}
		out[col] = nv
	}
	return out
}
