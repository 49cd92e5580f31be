package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/mchmarny/triage/pkg/batch"
)

const (
	ColumnPatientID  = "patient_id"
	ColumnConditions = "conditions"
	ColumnScore      = "score"
	ColumnPriority   = "priority"
	ColumnReviewTime = "estimated_review_time"

	// DefaultFileName is the name used for downloaded results.
	DefaultFileName = "prioritised_patients.csv"

	utf8BOM = "\ufeff"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrEmpty         = errors.New("no header row")

	// RequiredColumns must be present in every input table.
	RequiredColumns = []string{ColumnPatientID, ColumnConditions}

	// DerivedColumns are appended to every output table.
	DerivedColumns = []string{ColumnScore, ColumnPriority, ColumnReviewTime}
)

// Table is a patient table with its original columns.
type Table struct {
	Header []string
	Rows   [][]string

	idCol         int
	conditionsCol int
}

// ReadCSV reads a patient table. The header row is required and must
// contain the patient_id and conditions columns. Short rows are padded.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("error reading header: %w", err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], utf8BOM))
	}

	t := &Table{
		Header:        header,
		Rows:          make([][]string, 0),
		idCol:         slices.Index(header, ColumnPatientID),
		conditionsCol: slices.Index(header, ColumnConditions),
	}

	for _, c := range RequiredColumns {
		if !slices.Contains(header, c) {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading row %d: %w", len(t.Rows)+1, err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", len(t.Rows)+1, len(rec), len(header))
		}
		t.Rows = append(t.Rows, pad(rec, len(header)))
	}

	return t, nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Patients converts each row to a patient record, preserving order.
func (t *Table) Patients() []batch.PatientRecord {
	list := make([]batch.PatientRecord, len(t.Rows))
	for i, row := range t.Rows {
		list[i] = batch.NewPatientRecord(row[t.idCol], row[t.conditionsCol])
	}
	return list
}

// OutputHeader returns the original header plus any derived column it does
// not already carry.
func (t *Table) OutputHeader() []string {
	h := slices.Clone(t.Header)
	for _, c := range DerivedColumns {
		if !slices.Contains(h, c) {
			h = append(h, c)
		}
	}
	return h
}

// OutputRows merges the scored values into the original rows. Derived
// columns already present in the input are overwritten in place.
func (t *Table) OutputRows(scored []batch.ScoredRecord) ([][]string, error) {
	if len(scored) != len(t.Rows) {
		return nil, fmt.Errorf("scored rows (%d) do not match table rows (%d)", len(scored), len(t.Rows))
	}

	header := t.OutputHeader()
	scoreCol := slices.Index(header, ColumnScore)
	priorityCol := slices.Index(header, ColumnPriority)
	reviewCol := slices.Index(header, ColumnReviewTime)

	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out := pad(slices.Clone(row), len(header))
		out[scoreCol] = strconv.Itoa(scored[i].Score)
		out[priorityCol] = scored[i].Priority.String()
		out[reviewCol] = scored[i].ReviewTime.String()
		rows[i] = out
	}
	return rows, nil
}

// WriteCSV writes the table with the scored columns.
func WriteCSV(w io.Writer, t *Table, scored []batch.ScoredRecord) error {
	rows, err := t.OutputRows(scored)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(t.OutputHeader()); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("error writing rows: %w", err)
	}
	return nil
}

// Records returns one column-name keyed record per row for structured
// output formats.
func Records(t *Table, scored []batch.ScoredRecord) ([]*Record, error) {
	rows, err := t.OutputRows(scored)
	if err != nil {
		return nil, err
	}

	header := t.OutputHeader()
	list := make([]*Record, len(rows))
	for i, row := range rows {
		cols := make(map[string]string, len(header))
		for j, h := range header {
			if slices.Contains(DerivedColumns, h) || slices.Contains(RequiredColumns, h) {
				continue
			}
			cols[h] = row[j]
		}
		list[i] = &Record{
			ScoredRecord: scored[i],
			Columns:      cols,
		}
	}
	return list, nil
}

// Record is a scored row plus the original input columns that are not part
// of the scoring contract.
type Record struct {
	batch.ScoredRecord `yaml:",inline"`
	Columns            map[string]string `json:"columns,omitempty" yaml:"columns,omitempty"`
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}
