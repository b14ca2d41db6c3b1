package margin

import (
	"context"

	"margincalc/internal/models"
)

// CoverageQuery is one point of the sweep as seen by an evaluator.
// SystematicError and RandomError are already clamped to models.MinErrorSD.
type CoverageQuery struct {
	SystematicError float64
	RandomError     float64

	// Growth is the per-axis growth in X, Y, Z order: mm under Dilation,
	// a dimensionless factor under Scaling
	Growth [3]float64

	Mode models.GrowthMode

	NumberOfSimulations int
	NumberOfFractions   int
}

// CoverageEvaluator returns the coverage fraction in [0, 1] for a query.
// Implementations own every resource they need for a call and release it
// before returning.
type CoverageEvaluator interface {
	Evaluate(ctx context.Context, q CoverageQuery) (float64, error)
}

// EvaluatorFunc adapts a plain function to CoverageEvaluator
type EvaluatorFunc func(ctx context.Context, q CoverageQuery) (float64, error)

// Evaluate calls f(ctx, q)
func (f EvaluatorFunc) Evaluate(ctx context.Context, q CoverageQuery) (float64, error) {
	return f(ctx, q)
}
