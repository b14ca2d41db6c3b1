package models

import (
	"fmt"
	"math"
	"strings"
)

// ScaleFactor converts physical values in mm into the integer units the
// sweep loops step over. 0.5mm is 5 units, 0.2mm is 2 units.
const ScaleFactor = 10

// MinErrorSD is the smallest systematic or random error handed to a coverage
// evaluator. Motion simulation cannot draw from a zero-width distribution.
const MinErrorSD = 0.0001

// GrowthMode selects how the dose distribution is grown at each sweep step
type GrowthMode int

const (
	// Dilation expands the dose by an absolute distance in mm on each axis
	Dilation GrowthMode = iota

	// Scaling multiplies the dose extent by a per-axis factor derived from
	// the region of interest radius
	Scaling
)

// String returns the name used in configuration files and on the command line
func (m GrowthMode) String() string {
	switch m {
	case Dilation:
		return "Dilation"
	case Scaling:
		return "Scaling"
	default:
		return fmt.Sprintf("GrowthMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the known growth modes
func (m GrowthMode) Valid() bool {
	return m == Dilation || m == Scaling
}

// ParseGrowthMode parses a growth mode name, ignoring case
func ParseGrowthMode(s string) (GrowthMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dilation":
		return Dilation, nil
	case "scaling":
		return Scaling, nil
	default:
		return Dilation, fmt.Errorf("unknown growth mode %q: expected Dilation or Scaling", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m GrowthMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("unknown growth mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *GrowthMode) UnmarshalText(text []byte) error {
	parsed, err := ParseGrowthMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ROIRadius holds the region of interest radius along each axis in mm
type ROIRadius struct {
	X, Y, Z float64
}

// Axes returns the radii in X, Y, Z order
func (r ROIRadius) Axes() [3]float64 {
	return [3]float64{r.X, r.Y, r.Z}
}

// SweepConfiguration describes one margin sweep. It is read-only for the
// duration of a run.
type SweepConfiguration struct {
	// SystematicErrorMax is the exclusive upper bound of the systematic error sweep in mm
	SystematicErrorMax float64

	// RandomErrorMax is the exclusive upper bound of the random error sweep in mm
	RandomErrorMax float64

	// GrowthMax is the exclusive upper bound of the dose growth sweep in mm
	GrowthMax float64

	// SystematicStep is the systematic error increment in mm
	SystematicStep float64

	// RandomStep is the random error increment in mm
	RandomStep float64

	// GrowthStep is the dose growth increment in mm
	GrowthStep float64

	// GrowthMode selects dilation or scaling of the dose distribution
	GrowthMode GrowthMode

	// ROIRadius is only used under Scaling
	ROIRadius ROIRadius

	// NumberOfSimulations and NumberOfFractions are forwarded to the
	// coverage evaluator untouched
	NumberOfSimulations int
	NumberOfFractions   int
}

// DefaultSweepConfiguration returns the settings the margin calculator
// starts with: 0.5mm error ranges, 5mm of dilation, 10mm ROI radii,
// 100 simulations of a single fraction.
func DefaultSweepConfiguration() SweepConfiguration {
	return SweepConfiguration{
		SystematicErrorMax:  0.5,
		RandomErrorMax:      0.5,
		GrowthMax:           5,
		SystematicStep:      0.5,
		RandomStep:          0.5,
		GrowthStep:          0.2,
		GrowthMode:          Dilation,
		ROIRadius:           ROIRadius{X: 10, Y: 10, Z: 10},
		NumberOfSimulations: 100,
		NumberOfFractions:   1,
	}
}

// ScaledLimit converts an exclusive physical upper bound into scaled units.
// The result is rounded to a micro-unit so 0.6*10 compares equal to 6.
func ScaledLimit(max float64) float64 {
	return math.Round(max*ScaleFactor*1e6) / 1e6
}

// ScaledStep converts a physical step into whole scaled units
func ScaledStep(step float64) int {
	return int(math.Round(step * ScaleFactor))
}

// Physical converts a scaled loop index back into mm
func Physical(index int) float64 {
	return float64(index) / ScaleFactor
}

// ScaledIndices returns 0, step, 2*step, ... strictly below the scaled limit
// of max. It returns nil when step does not scale to a positive integer.
func ScaledIndices(max, step float64) []int {
	s := ScaledStep(step)
	if s <= 0 {
		return nil
	}
	limit := ScaledLimit(max)
	var indices []int
	for i := 0; float64(i) < limit; i += s {
		indices = append(indices, i)
	}
	return indices
}

// GrowthAt returns the per-axis growth passed to the evaluator for growth
// index k. Dilation yields k/10 mm on every axis. Scaling yields
// (k/10 + radius) / radius for each axis.
func (c SweepConfiguration) GrowthAt(k int) [3]float64 {
	mm := Physical(k)
	if c.GrowthMode == Scaling {
		radius := c.ROIRadius.Axes()
		var growth [3]float64
		for axis, r := range radius {
			growth[axis] = (mm + r) / r
		}
		return growth
	}
	return [3]float64{mm, mm, mm}
}

// ClampErrorSD raises error magnitudes below MinErrorSD to MinErrorSD
func ClampErrorSD(v float64) float64 {
	if math.Abs(v) < MinErrorSD {
		return MinErrorSD
	}
	return v
}
