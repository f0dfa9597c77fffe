package cohort

import (
	"fmt"
	"strings"
)

// DataUnavailableError reports that the input table could not be opened or read.
type DataUnavailableError struct {
	Path string
	Err  error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("input table %q is unavailable: %v", e.Path, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// SchemaError reports required columns missing from the table header.
type SchemaError struct {
	Missing []Field
	// Headers are the physical names that were looked for, aligned with Missing.
	Headers []string
}

func (e *SchemaError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, f := range e.Missing {
		parts[i] = fmt.Sprintf("%s (header %q)", f, e.Headers[i])
	}
	return "input table is missing required columns: " + strings.Join(parts, ", ")
}

// FeatureDerivationError reports a required value that is missing or not numeric for a
// row that must produce a node.
type FeatureDerivationError struct {
	PatientID string
	// Row is the 1-based data row number (the header is not counted).
	Row   int
	Field Field
	Value string
	Err   error
}

func (e *FeatureDerivationError) Error() string {
	return fmt.Sprintf("cannot derive features for patient %q (row %d): field %s has value %q: %v",
		e.PatientID, e.Row, e.Field, e.Value, e.Err)
}

func (e *FeatureDerivationError) Unwrap() error { return e.Err }
