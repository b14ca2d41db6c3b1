// Package margin sweeps systematic error, random error and dose growth to
// find the smallest growth at which dose coverage reaches 90%, 95% and 99%.
package margin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"margincalc/internal/models"
)

// Params holds the execution settings of an Engine. They do not change the
// result of a sweep, only how it is computed and reported.
type Params struct {
	// Workers is the number of (systematic, random) pairs swept concurrently.
	// Values below 2 sweep pairs one after another.
	Workers int

	// Logger receives run and per-row diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Progress, when set, is called after every completed row with the
	// number of rows done and the total. Calls never overlap.
	Progress func(done, total int)
}

// Engine runs margin sweeps
type Engine struct {
	params *Params
	logger *slog.Logger
}

// NewEngine creates an engine with the provided parameters. A nil params
// sweeps sequentially and logs to slog.Default().
func NewEngine(params *Params) *Engine {
	if params == nil {
		params = &Params{}
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params: params,
		logger: logger,
	}
}

// errAborted stops rows that come after a failed row in a parallel sweep
var errAborted = errors.New("margin: row aborted after earlier failure")

// Run sweeps cfg with evaluator and returns the result table.
//
// On an evaluator failure or cancellation the sweep stops and Run returns
// the rows completed before the failing row together with the error. The
// returned table is always a prefix of the full sweep in row order.
func (e *Engine) Run(ctx context.Context, cfg models.SweepConfiguration, evaluator CoverageEvaluator) (*models.SweepResultTable, error) {
	plan, err := Plan(cfg)
	if err != nil {
		return nil, err
	}
	if evaluator == nil {
		return nil, invalidf("no coverage evaluator")
	}

	table := models.NewSweepResultTable(uuid.New().String())
	logger := e.logger.With("run", table.RunID)
	logger.Info("margin sweep started",
		"pairs", len(plan.Pairs),
		"growth_steps", len(plan.GrowthIndices),
		"evaluations", plan.Evaluations(),
		"mode", cfg.GrowthMode.String(),
		"workers", e.workers())

	start := time.Now()
	var rows []models.SweepResultRow
	if e.workers() > 1 {
		rows, err = e.runParallel(ctx, logger, cfg, plan, evaluator)
	} else {
		rows, err = e.runSequential(ctx, logger, cfg, plan, evaluator)
	}
	table.Append(rows...)

	if err != nil {
		logger.Error("margin sweep stopped",
			"rows", table.Len(),
			"total_rows", len(plan.Pairs),
			"elapsed", time.Since(start),
			"error", err)
		return table, err
	}
	logger.Info("margin sweep completed", "rows", table.Len(), "elapsed", time.Since(start))
	return table, nil
}

func (e *Engine) workers() int {
	if e.params.Workers < 1 {
		return 1
	}
	return e.params.Workers
}

func (e *Engine) reportProgress(done, total int) {
	if e.params.Progress != nil {
		e.params.Progress(done, total)
	}
}

func (e *Engine) runSequential(ctx context.Context, logger *slog.Logger, cfg models.SweepConfiguration, plan SweepPlan, evaluator CoverageEvaluator) ([]models.SweepResultRow, error) {
	rows := make([]models.SweepResultRow, 0, len(plan.Pairs))
	for _, pair := range plan.Pairs {
		row, err := sweepRow(ctx, cfg, pair, plan.GrowthIndices, evaluator, ctx.Err)
		if err != nil {
			return rows, wrapStop(err)
		}
		logRow(logger, row)
		rows = append(rows, row)
		e.reportProgress(len(rows), len(plan.Pairs))
	}
	return rows, nil
}

// runParallel sweeps pairs on a worker pool. Every row is written into the
// slot of its pair index, so completion order does not affect row order.
func (e *Engine) runParallel(ctx context.Context, logger *slog.Logger, cfg models.SweepConfiguration, plan SweepPlan, evaluator CoverageEvaluator) ([]models.SweepResultRow, error) {
	total := len(plan.Pairs)
	rows := make([]models.SweepResultRow, total)
	done := make([]bool, total)

	// Pairs after the lowest failed index are abandoned. Pairs before it
	// keep running so the returned prefix reaches the failure.
	var failedAt atomic.Int64
	failedAt.Store(int64(total))

	type rowResult struct {
		index int
		row   models.SweepResultRow
		err   error
	}
	jobs := make(chan int)
	results := make(chan rowResult)

	var wg sync.WaitGroup
	for w := 0; w < e.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				keepGoing := func() error {
					if int64(idx) > failedAt.Load() {
						return errAborted
					}
					return ctx.Err()
				}
				row, err := sweepRow(ctx, cfg, plan.Pairs[idx], plan.GrowthIndices, evaluator, keepGoing)
				results <- rowResult{index: idx, row: row, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for idx := 0; idx < total; idx++ {
			if int64(idx) > failedAt.Load() {
				return
			}
			select {
			case jobs <- idx:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	firstErrIdx := total
	completed := 0
	for res := range results {
		if res.err != nil {
			if errors.Is(res.err, errAborted) {
				continue
			}
			if res.index < firstErrIdx {
				firstErr = res.err
				firstErrIdx = res.index
			}
			for {
				cur := failedAt.Load()
				if int64(res.index) >= cur || failedAt.CompareAndSwap(cur, int64(res.index)) {
					break
				}
			}
			continue
		}
		rows[res.index] = res.row
		done[res.index] = true
		logRow(logger, res.row)
		completed++
		e.reportProgress(completed, total)
	}

	prefix := 0
	for prefix < total && done[prefix] {
		prefix++
	}
	if firstErr == nil && prefix < total {
		// Only cancellation stops dispatch without a row error.
		firstErr = ctx.Err()
		if firstErr == nil {
			firstErr = fmt.Errorf("margin: sweep stopped at row %d", prefix)
		}
	}
	if firstErr != nil {
		return rows[:prefix], wrapStop(firstErr)
	}
	return rows, nil
}

// sweepRow sweeps the growth indices for one pair and records the first
// growth at which each threshold is crossed. keepGoing is consulted before
// every evaluator call.
func sweepRow(ctx context.Context, cfg models.SweepConfiguration, pair Pair, growth []int, evaluator CoverageEvaluator, keepGoing func() error) (models.SweepResultRow, error) {
	row := models.SweepResultRow{
		SystematicError: pair.Systematic(),
		RandomError:     pair.Random(),
	}
	columns := [3]*models.Percentile{&row.P90, &row.P95, &row.P99}

	query := CoverageQuery{
		SystematicError:     models.ClampErrorSD(row.SystematicError),
		RandomError:         models.ClampErrorSD(row.RandomError),
		Mode:                cfg.GrowthMode,
		NumberOfSimulations: cfg.NumberOfSimulations,
		NumberOfFractions:   cfg.NumberOfFractions,
	}

	previous := 0.0
	for _, k := range growth {
		if err := keepGoing(); err != nil {
			return row, err
		}

		query.Growth = cfg.GrowthAt(k)
		current, err := evaluator.Evaluate(ctx, query)
		if err != nil {
			return row, &EvaluatorError{Query: query, Err: err}
		}
		if math.IsNaN(current) || current < 0 || current > 1 {
			return row, &EvaluatorError{Query: query, Err: fmt.Errorf("%w: %v", ErrCoverageOutOfRange, current)}
		}

		for i, threshold := range Thresholds {
			if !columns[i].Found && previous < threshold && threshold <= current {
				*columns[i] = models.At(models.Physical(k))
			}
		}
		previous = current
	}
	return row, nil
}

func wrapStop(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("margin: sweep cancelled: %w", err)
	}
	return err
}

func logRow(logger *slog.Logger, row models.SweepResultRow) {
	logger.Debug("margin row",
		"systematic", row.SystematicError,
		"random", row.RandomError,
		"p90", row.P90.String(),
		"p95", row.P95.String(),
		"p99", row.P99.String())
}
