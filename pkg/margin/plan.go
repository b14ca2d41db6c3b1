package margin

import (
	"math"

	"margincalc/internal/models"
)

// Thresholds are the coverage levels reported as P90, P95 and P99
var Thresholds = [3]float64{0.90, 0.95, 0.99}

// Pair is one (systematic error, random error) grid point in scaled units
type Pair struct {
	SystematicIndex int
	RandomIndex     int
}

// Systematic returns the nominal systematic error in mm
func (p Pair) Systematic() float64 {
	return models.Physical(p.SystematicIndex)
}

// Random returns the nominal random error in mm
func (p Pair) Random() float64 {
	return models.Physical(p.RandomIndex)
}

// SweepPlan is the full iteration order of a sweep: every pair, in output
// row order, is swept over the same growth indices.
type SweepPlan struct {
	Pairs         []Pair
	GrowthIndices []int
}

// Evaluations returns the number of evaluator calls a complete sweep makes
func (p SweepPlan) Evaluations() int {
	return len(p.Pairs) * len(p.GrowthIndices)
}

// Plan validates cfg and lays out the sweep without evaluating anything
func Plan(cfg models.SweepConfiguration) (SweepPlan, error) {
	if err := Validate(cfg); err != nil {
		return SweepPlan{}, err
	}

	systematic := models.ScaledIndices(cfg.SystematicErrorMax, cfg.SystematicStep)
	random := models.ScaledIndices(cfg.RandomErrorMax, cfg.RandomStep)

	plan := SweepPlan{
		Pairs:         make([]Pair, 0, len(systematic)*len(random)),
		GrowthIndices: models.ScaledIndices(cfg.GrowthMax, cfg.GrowthStep),
	}
	for _, i := range systematic {
		for _, j := range random {
			plan.Pairs = append(plan.Pairs, Pair{SystematicIndex: i, RandomIndex: j})
		}
	}
	return plan, nil
}

// Validate checks cfg against the rules a sweep needs. Every failure wraps
// ErrInvalidConfiguration.
func Validate(cfg models.SweepConfiguration) error {
	ranges := []struct {
		name string
		max  float64
		step float64
	}{
		{"systematic error", cfg.SystematicErrorMax, cfg.SystematicStep},
		{"random error", cfg.RandomErrorMax, cfg.RandomStep},
		{"growth", cfg.GrowthMax, cfg.GrowthStep},
	}
	for _, r := range ranges {
		if math.IsNaN(r.max) || math.IsInf(r.max, 0) || r.max <= 0 {
			return invalidf("%s range must be positive, got %v", r.name, r.max)
		}
		if math.IsNaN(r.step) || math.IsInf(r.step, 0) || r.step <= 0 {
			return invalidf("%s step must be positive, got %v", r.name, r.step)
		}
		if models.ScaledStep(r.step) <= 0 {
			return invalidf("%s step %v is below the %vmm resolution", r.name, r.step, 1.0/models.ScaleFactor)
		}
	}

	if !cfg.GrowthMode.Valid() {
		return invalidf("unknown growth mode %v", cfg.GrowthMode)
	}
	if cfg.GrowthMode == models.Scaling {
		for axis, r := range cfg.ROIRadius.Axes() {
			if math.IsNaN(r) || r <= 0 {
				return invalidf("ROI radius %c must be positive under Scaling, got %v", "XYZ"[axis], r)
			}
		}
	}

	if cfg.NumberOfSimulations < 0 {
		return invalidf("number of simulations must not be negative, got %d", cfg.NumberOfSimulations)
	}
	if cfg.NumberOfFractions < 0 {
		return invalidf("number of fractions must not be negative, got %d", cfg.NumberOfFractions)
	}
	return nil
}
