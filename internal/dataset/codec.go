package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// MarshalMatrixZst serializes the matrix as a tab-separated table (cell index
// first, one column per gene) compressed with zstd for staging.
func MarshalMatrixZst(d *Dataset) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	w := csv.NewWriter(enc)
	w.Comma = '\t'

	header := append([]string{"index"}, d.Genes...)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	rec := make([]string, 1+len(d.Genes))
	for c, row := range d.Counts {
		rec[0] = d.Cells[c]
		for g, v := range row {
			rec[g+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalMatrixZst is the inverse of MarshalMatrixZst. The worker image is
// the usual consumer; the orchestrator uses it in tests only.
func UnmarshalMatrixZst(data []byte) (*Dataset, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer dec.Close()

	r := csv.NewReader(dec)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	return fromRecords(records)
}

// MarshalObsCSV serializes the selected obs columns as CSV with the cell
// index first, the shape the worker expects for cdat.csv.
func MarshalObsCSV(d *Dataset, keys []string) ([]byte, error) {
	for _, k := range keys {
		if _, ok := d.Obs[k]; !ok {
			return nil, fmt.Errorf("obs column %q not present", k)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(append([]string{"index"}, keys...)); err != nil {
		return nil, err
	}
	rec := make([]string, 1+len(keys))
	for c, cell := range d.Cells {
		rec[0] = cell
		for i, k := range keys {
			rec[i+1] = d.Obs[k][c]
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Load reads a dataset from a matrix file (TSV, cell index first, one column
// per gene) and an obs metadata file (CSV, cell index first). Cell order must
// match between the two files.
func Load(matPath, obsPath string) (*Dataset, error) {
	matData, err := os.ReadFile(matPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix: %w", err)
	}
	r := csv.NewReader(bytes.NewReader(matData))
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse matrix: %w", err)
	}
	d, err := fromRecords(records)
	if err != nil {
		return nil, err
	}

	obsData, err := os.ReadFile(obsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read obs metadata: %w", err)
	}
	obsRecords, err := csv.NewReader(bytes.NewReader(obsData)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse obs metadata: %w", err)
	}
	if len(obsRecords) == 0 {
		return nil, fmt.Errorf("obs metadata is empty")
	}
	if len(obsRecords)-1 != len(d.Cells) {
		return nil, fmt.Errorf("obs metadata has %d rows for %d cells", len(obsRecords)-1, len(d.Cells))
	}

	cols := obsRecords[0][1:]
	d.Obs = make(map[string][]string, len(cols))
	for i, col := range cols {
		vals := make([]string, len(d.Cells))
		for r, rec := range obsRecords[1:] {
			if rec[0] != d.Cells[r] {
				return nil, fmt.Errorf("obs row %d: cell %q does not match matrix cell %q", r, rec[0], d.Cells[r])
			}
			vals[r] = rec[i+1]
		}
		d.Obs[strings.TrimSpace(col)] = vals
	}

	return d, d.Validate()
}

func fromRecords(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("matrix is empty")
	}
	genes := records[0][1:]
	d := &Dataset{
		Genes: append([]string(nil), genes...),
		Obs:   make(map[string][]string),
	}
	for i, rec := range records[1:] {
		if len(rec) != len(genes)+1 {
			return nil, fmt.Errorf("matrix row %d has %d fields, expected %d", i, len(rec), len(genes)+1)
		}
		d.Cells = append(d.Cells, rec[0])
		row := make([]float64, len(genes))
		for g, s := range rec[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("matrix row %d gene %q: %w", i, genes[g], err)
			}
			row[g] = v
		}
		d.Counts = append(d.Counts, row)
	}
	return d, nil
}
