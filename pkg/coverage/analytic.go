// Package coverage provides CoverageEvaluator implementations for the
// margin sweep.
package coverage

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"margincalc/internal/models"
	"margincalc/pkg/margin"
)

// Analytic estimates coverage from a Gaussian population model instead of
// simulating dose. Per axis the target displacement is normal with
// SD sqrt(Σ² + σ²/fractions); the target is covered on that axis when the
// displacement stays within the growth margin. Coverage is the product of
// the three axis probabilities.
//
// It gives a fast, deterministic first estimate of a margin table before
// running the full simulation pipeline.
type Analytic struct {
	// ROIRadius converts Scaling factors back to margins in mm
	ROIRadius models.ROIRadius
}

// NewAnalytic creates an analytic evaluator for the given ROI radii
func NewAnalytic(radius models.ROIRadius) *Analytic {
	return &Analytic{ROIRadius: radius}
}

// Evaluate implements margin.CoverageEvaluator
func (a *Analytic) Evaluate(ctx context.Context, q margin.CoverageQuery) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	fractions := q.NumberOfFractions
	if fractions < 1 {
		fractions = 1
	}
	sd := math.Sqrt(q.SystematicError*q.SystematicError + q.RandomError*q.RandomError/float64(fractions))
	if sd <= 0 || math.IsNaN(sd) {
		return 0, fmt.Errorf("coverage: invalid error SD %v", sd)
	}

	radius := a.ROIRadius.Axes()
	coverage := 1.0
	for axis, g := range q.Growth {
		m := g
		if q.Mode == models.Scaling {
			if radius[axis] <= 0 {
				return 0, fmt.Errorf("coverage: ROI radius %c must be positive under Scaling", "XYZ"[axis])
			}
			m = (g - 1) * radius[axis]
		}
		if m <= 0 {
			return 0, nil
		}
		coverage *= 2*distuv.UnitNormal.CDF(m/sd) - 1
	}
	return math.Max(0, math.Min(1, coverage)), nil
}
