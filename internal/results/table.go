// Package results parses per-unit MAST output tables and computes the
// top-hits significance filter over aggregated results.
package results

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Table is one unit's MAST output: a row-identifier index and numeric
// columns. Per fitted covariate the worker emits a "<cov>_coef" and a
// "<cov>_fdr" column pair.
type Table struct {
	Index   []string
	Columns []string
	Values  [][]float64 // Values[row][col]
}

// Parse reads a result table from CSV bytes. The first column is the row
// identifier; all remaining columns must be numeric (NaN allowed).
func Parse(data []byte) (*Table, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse result table: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("result table is empty")
	}

	t := &Table{Columns: append([]string(nil), records[0][1:]...)}
	for i, rec := range records[1:] {
		if len(rec) != len(t.Columns)+1 {
			return nil, fmt.Errorf("result row %d has %d fields, expected %d", i, len(rec), len(t.Columns)+1)
		}
		t.Index = append(t.Index, rec[0])
		row := make([]float64, len(t.Columns))
		for c, s := range rec[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("result row %d column %q: %w", i, t.Columns[c], err)
			}
			row[c] = v
		}
		t.Values = append(t.Values, row)
	}
	return t, nil
}

// Column returns the values of a named column.
func (t *Table) Column(name string) ([]float64, bool) {
	for c, col := range t.Columns {
		if col != name {
			continue
		}
		vals := make([]float64, len(t.Values))
		for r, row := range t.Values {
			vals[r] = row[c]
		}
		return vals, true
	}
	return nil, false
}

// Covariates lists the covariates fitted in a table, identified by the
// "_coef" column naming convention.
func (t *Table) Covariates() []string {
	var covs []string
	for _, col := range t.Columns {
		if strings.HasSuffix(col, "_coef") {
			covs = append(covs, strings.TrimSuffix(col, "_coef"))
		}
	}
	return covs
}

// TopHits filters aggregated results per group and covariate: rows with
// fdr below the threshold and coefficient above the log-fold-change
// threshold, ordered by fdr ascending then coefficient descending. Only row
// identifiers are retained.
func TopHits(de map[string]*Table, lfc, fdr float64) map[string]map[string][]string {
	top := make(map[string]map[string][]string, len(de))
	for group, t := range de {
		top[group] = make(map[string][]string)
		for _, cov := range t.Covariates() {
			fdrs, okF := t.Column(cov + "_fdr")
			coefs, okC := t.Column(cov + "_coef")
			if !okF || !okC {
				continue
			}

			var rows []int
			for r := range t.Index {
				if fdrs[r] < fdr && coefs[r] > lfc {
					rows = append(rows, r)
				}
			}
			sort.SliceStable(rows, func(i, j int) bool {
				if fdrs[rows[i]] != fdrs[rows[j]] {
					return fdrs[rows[i]] < fdrs[rows[j]]
				}
				return coefs[rows[i]] > coefs[rows[j]]
			})

			ids := make([]string, len(rows))
			for i, r := range rows {
				ids[i] = t.Index[r]
			}
			top[group][cov] = ids
		}
	}
	return top
}
