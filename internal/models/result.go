package models

import (
	"fmt"
)

// Percentile is the growth magnitude at which coverage first reached a
// threshold. The zero value means the threshold was never reached.
type Percentile struct {
	// Value is the growth magnitude in mm, only meaningful when Found is set
	Value float64

	// Found is false when coverage never reached the threshold inside the
	// swept growth range
	Found bool
}

// NotFound is the percentile of a threshold that was never crossed
var NotFound = Percentile{}

// At returns a found percentile at v mm
func At(v float64) Percentile {
	return Percentile{Value: v, Found: true}
}

// String renders the value with one decimal, or N/A
func (p Percentile) String() string {
	if !p.Found {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", p.Value)
}

// SweepResultRow holds the P90/P95/P99 growth for one
// (systematic error, random error) pair
type SweepResultRow struct {
	// SystematicError and RandomError are the nominal values from the sweep
	// grid, before any near-zero clamping
	SystematicError float64
	RandomError     float64

	P90 Percentile
	P95 Percentile
	P99 Percentile
}

// Percentiles returns P90, P95 and P99 in that order
func (r SweepResultRow) Percentiles() [3]Percentile {
	return [3]Percentile{r.P90, r.P95, r.P99}
}

// SweepResultTable is the ordered output of a sweep: systematic error major,
// random error minor. Rows are never changed once appended.
type SweepResultTable struct {
	// RunID identifies the sweep that produced the table in logs
	RunID string

	Rows []SweepResultRow
}

// NewSweepResultTable creates an empty table for the given run
func NewSweepResultTable(runID string) *SweepResultTable {
	return &SweepResultTable{
		RunID: runID,
		Rows:  make([]SweepResultRow, 0),
	}
}

// Append adds rows at the end of the table
func (t *SweepResultTable) Append(rows ...SweepResultRow) {
	t.Rows = append(t.Rows, rows...)
}

// Len returns the number of rows
func (t *SweepResultTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}
