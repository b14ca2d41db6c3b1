package margin

import (
	"testing"

	"margincalc/internal/models"
)

func TestSummarize(t *testing.T) {
	table := models.NewSweepResultTable("test")
	table.Append(
		models.SweepResultRow{P90: models.At(0.2), P95: models.At(0.4), P99: models.At(1.0)},
		models.SweepResultRow{P90: models.At(0.6), P95: models.At(0.8), P99: models.NotFound},
		models.SweepResultRow{P90: models.NotFound, P95: models.NotFound, P99: models.NotFound},
	)

	summary := Summarize(table)
	if summary.Rows != 3 {
		t.Errorf("Expected 3 rows, got %d", summary.Rows)
	}

	p90 := summary.Thresholds[0]
	if p90.Threshold != 0.90 || p90.Found != 2 {
		t.Errorf("Unexpected P90 summary %+v", p90)
	}
	if diff := p90.Mean - 0.4; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("Expected P90 mean 0.4, got %v", p90.Mean)
	}
	if p90.Min != 0.2 || p90.Max != 0.6 {
		t.Errorf("Expected P90 range [0.2, 0.6], got [%v, %v]", p90.Min, p90.Max)
	}

	p99 := summary.Thresholds[2]
	if p99.Found != 1 || p99.Mean != 1.0 || p99.Max != 1.0 {
		t.Errorf("Unexpected P99 summary %+v", p99)
	}
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)
	if summary.Rows != 0 {
		t.Errorf("Expected 0 rows, got %d", summary.Rows)
	}
	for _, ts := range summary.Thresholds {
		if ts.Found != 0 || ts.Mean != 0 {
			t.Errorf("Expected empty summary, got %+v", ts)
		}
	}
	if summary.Thresholds[1].Threshold != 0.95 {
		t.Errorf("Thresholds should be labelled even when empty")
	}
}
