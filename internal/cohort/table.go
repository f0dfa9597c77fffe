// File: internal/cohort/table.go
package cohort

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMissingValue is wrapped when a required cell is empty.
	ErrMissingValue = errors.New("missing value")
	// ErrNotFinite is wrapped when a numeric cell parses to NaN or an infinity.
	ErrNotFinite = errors.New("value is not finite")
)

// Row is one visit record of the cleaned table. Rows are immutable views.
type Row struct {
	// Number is the 1-based data row number in the source file (header excluded).
	Number int
	values []string
	index  map[Field]int
}

// Raw returns the trimmed cell for f.
func (r Row) Raw(f Field) string {
	i, ok := r.index[f]
	if !ok || i >= len(r.values) {
		return ""
	}
	return strings.TrimSpace(r.values[i])
}

// PatientID returns the patient identifier of the row.
func (r Row) PatientID() string {
	return r.Raw(FieldPatientID)
}

// Float parses f as a finite float64. Failures come back as *FeatureDerivationError.
func (r Row) Float(f Field) (float64, error) {
	raw := r.Raw(f)
	if raw == "" {
		return 0, r.derivationError(f, raw, ErrMissingValue)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, r.derivationError(f, raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, r.derivationError(f, raw, ErrNotFinite)
	}
	return v, nil
}

// VisitTime returns the chronological ordinal of the row.
func (r Row) VisitTime() (float64, error) {
	return r.Float(FieldVisitTime)
}

func (r Row) derivationError(f Field, raw string, err error) error {
	return &FeatureDerivationError{PatientID: r.PatientID(), Row: r.Number, Field: f, Value: raw, Err: err}
}

// PatientRows is the partition of the table belonging to one patient, in file order.
type PatientRows struct {
	ID   string
	Rows []Row
}

// Table is the loaded visit table with rows partitioned by patient.
type Table struct {
	source   string
	rows     []Row
	patients []PatientRows
}

// Open loads the table at path. A path that cannot be opened yields *DataUnavailableError.
func Open(path string, columns ColumnMap, delimiter rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataUnavailableError{Path: path, Err: err}
	}
	defer f.Close()

	return Read(f, path, columns, delimiter)
}

// Read loads a table from r. source is only used for error messages.
func Read(r io.Reader, source string, columns ColumnMap, delimiter rune) (*Table, error) {
	if columns == nil {
		columns = DefaultColumns()
	}
	if delimiter == 0 {
		delimiter = ','
	}

	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, &DataUnavailableError{Path: source, Err: fmt.Errorf("read header: %w", err)}
	}

	index, err := resolveHeader(header, columns)
	if err != nil {
		return nil, err
	}

	t := &Table{source: source}
	byPatient := make(map[string]int)

	for n := 1; ; n++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataUnavailableError{Path: source, Err: fmt.Errorf("row %d: %w", n, err)}
		}

		row := Row{Number: n, values: record, index: index}
		pid := row.PatientID()
		if pid == "" {
			return nil, row.derivationError(FieldPatientID, "", ErrMissingValue)
		}

		t.rows = append(t.rows, row)
		pos, seen := byPatient[pid]
		if !seen {
			pos = len(t.patients)
			byPatient[pid] = pos
			t.patients = append(t.patients, PatientRows{ID: pid})
		}
		t.patients[pos].Rows = append(t.patients[pos].Rows, row)
	}

	return t, nil
}

// resolveHeader locates every required field in the header row.
func resolveHeader(header []string, columns ColumnMap) (map[Field]int, error) {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if _, dup := positions[h]; !dup {
			positions[h] = i
		}
	}

	index := make(map[Field]int, len(RequiredFields))
	schemaErr := &SchemaError{}
	for _, f := range RequiredFields {
		name := columns[f]
		pos, ok := positions[name]
		if name == "" || !ok {
			schemaErr.Missing = append(schemaErr.Missing, f)
			schemaErr.Headers = append(schemaErr.Headers, name)
			continue
		}
		index[f] = pos
	}
	if len(schemaErr.Missing) > 0 {
		return nil, schemaErr
	}
	return index, nil
}

// Source returns the path or name the table was read from.
func (t *Table) Source() string { return t.source }

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns every row in file order.
func (t *Table) Rows() []Row { return t.rows }

// Patients returns the per-patient partitions in order of first appearance.
func (t *Table) Patients() []PatientRows { return t.patients }
