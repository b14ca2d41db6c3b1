package margin

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"margincalc/internal/models"
)

// ThresholdSummary describes one percentile column of a result table
type ThresholdSummary struct {
	Threshold float64

	// Found is the number of rows in which the threshold was reached
	Found int

	// Mean, Min and Max are taken over the rows where it was reached.
	// They are zero when Found is zero.
	Mean float64
	Min  float64
	Max  float64
}

// Summary condenses a result table for reporting
type Summary struct {
	Rows       int
	Thresholds [3]ThresholdSummary
}

// Summarize computes per-threshold statistics of table
func Summarize(table *models.SweepResultTable) Summary {
	summary := Summary{Rows: table.Len()}
	for i, threshold := range Thresholds {
		summary.Thresholds[i].Threshold = threshold
		if table == nil {
			continue
		}

		var values []float64
		for _, row := range table.Rows {
			if p := row.Percentiles()[i]; p.Found {
				values = append(values, p.Value)
			}
		}
		if len(values) == 0 {
			continue
		}
		summary.Thresholds[i].Found = len(values)
		summary.Thresholds[i].Mean = stat.Mean(values, nil)
		summary.Thresholds[i].Min = floats.Min(values)
		summary.Thresholds[i].Max = floats.Max(values)
	}
	return summary
}
