// Package export writes aggregated differential-expression results to
// spreadsheet workbooks.
package export

import (
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/batch-mast/orchestrator/internal/results"
)

// WriteResults writes one workbook with a sheet per group containing the
// full result table (row identifiers in the first column).
func WriteResults(de map[string]*results.Table, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, group := range sortedKeys(de) {
		sheet, err := addSheet(f, i, group)
		if err != nil {
			return err
		}

		t := de[group]
		if err := setRow(f, sheet, 1, append([]string{""}, t.Columns...)); err != nil {
			return err
		}
		for r, id := range t.Index {
			cell, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, id); err != nil {
				return err
			}
			for c, v := range t.Values[r] {
				cell, err := excelize.CoordinatesToCellName(c+2, r+2)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return err
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// WriteTopHits writes the companion workbook: a sheet per group, covariates
// as columns, passing row identifiers listed downward. Short columns are
// left blank.
func WriteTopHits(top map[string]map[string][]string, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, group := range sortedKeys(top) {
		sheet, err := addSheet(f, i, group)
		if err != nil {
			return err
		}

		covs := sortedKeys(top[group])
		if err := setRow(f, sheet, 1, covs); err != nil {
			return err
		}
		for c, cov := range covs {
			for r, id := range top[group][cov] {
				cell, err := excelize.CoordinatesToCellName(c+1, r+2)
				if err != nil {
					return err
				}
				if err := f.SetCellValue(sheet, cell, id); err != nil {
					return err
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// addSheet reuses the default sheet for the first group and creates the
// rest.
func addSheet(f *excelize.File, i int, name string) (string, error) {
	if i == 0 {
		if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
			return "", err
		}
		return name, nil
	}
	if _, err := f.NewSheet(name); err != nil {
		return "", err
	}
	return name, nil
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	for c, v := range values {
		if v == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(c+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
