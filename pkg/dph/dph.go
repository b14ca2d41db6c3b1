// Package dph reduces a dose population histogram to a single coverage
// fraction.
//
// A dose population histogram (DPH) is a series of 101 samples: sample p
// holds the dose metric (D98, in percent of the reference dose) reached by
// p percent of the simulated patient population. The margin sweep reads the
// sample at index 97 and divides it by 100.
package dph

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// CanonicalIndex is the population sample read as coverage
	CanonicalIndex = 97

	// Scale converts the percent sample into a fraction
	Scale = 100.0

	// ValueComponent is the column holding the dose value when a series
	// line carries more than one component
	ValueComponent = 1
)

// ErrShortSeries is returned when a series ends before CanonicalIndex
var ErrShortSeries = errors.New("dph: series too short")

// Coverage returns series[CanonicalIndex] / Scale
func Coverage(series []float64) (float64, error) {
	if len(series) <= CanonicalIndex {
		return 0, fmt.Errorf("%w: %d samples, need at least %d", ErrShortSeries, len(series), CanonicalIndex+1)
	}
	return series[CanonicalIndex] / Scale, nil
}

// ParseSeries reads one sample per line. Fields on a line may be separated
// by commas or whitespace; a single field is the value itself, otherwise the
// value is the field at ValueComponent. Blank lines and lines starting with
// '#' are skipped.
func ParseSeries(r io.Reader) ([]float64, error) {
	var series []float64
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.FieldsFunc(text, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		if len(fields) == 0 {
			return nil, fmt.Errorf("dph: line %d: no sample in %q", line, text)
		}
		field := fields[0]
		if len(fields) > ValueComponent {
			field = fields[ValueComponent]
		}

		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("dph: line %d: invalid sample %q: %w", line, field, err)
		}
		series = append(series, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dph: reading series: %w", err)
	}
	return series, nil
}

// Stats summarises a series for diagnostics
type Stats struct {
	Len  int
	Min  float64
	Mean float64
	Max  float64
}

// Describe computes Stats for series. An empty series yields zero Stats.
func Describe(series []float64) Stats {
	if len(series) == 0 {
		return Stats{}
	}
	return Stats{
		Len:  len(series),
		Min:  floats.Min(series),
		Mean: stat.Mean(series, nil),
		Max:  floats.Max(series),
	}
}
