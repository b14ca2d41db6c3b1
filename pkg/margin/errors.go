package margin

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned before any evaluator call when the
	// sweep ranges, steps or ROI radii cannot produce a valid sweep.
	ErrInvalidConfiguration = errors.New("margin: invalid configuration")

	// ErrEvaluatorFailure marks errors coming from a CoverageEvaluator.
	ErrEvaluatorFailure = errors.New("margin: coverage evaluator failed")

	// ErrCoverageOutOfRange is reported when an evaluator returns NaN or a
	// value outside [0, 1].
	ErrCoverageOutOfRange = errors.New("margin: coverage fraction out of range")
)

// EvaluatorError wraps an evaluator failure with the query that caused it
type EvaluatorError struct {
	Query CoverageQuery
	Err   error
}

func (e *EvaluatorError) Error() string {
	return fmt.Sprintf("margin: coverage evaluator failed at systematic=%g random=%g growth=%v: %v",
		e.Query.SystematicError, e.Query.RandomError, e.Query.Growth, e.Err)
}

func (e *EvaluatorError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrEvaluatorFailure) hold for every EvaluatorError
func (e *EvaluatorError) Is(target error) bool {
	return target == ErrEvaluatorFailure
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
}
