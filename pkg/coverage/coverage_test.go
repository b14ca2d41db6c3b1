package coverage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"margincalc/internal/models"
	"margincalc/pkg/dph"
	"margincalc/pkg/margin"
)

func dilationQuery(sys, rnd, growth float64) margin.CoverageQuery {
	return margin.CoverageQuery{
		SystematicError:     sys,
		RandomError:         rnd,
		Growth:              [3]float64{growth, growth, growth},
		Mode:                models.Dilation,
		NumberOfSimulations: 100,
		NumberOfFractions:   1,
	}
}

func TestAnalytic_MonotoneInGrowth(t *testing.T) {
	a := NewAnalytic(models.ROIRadius{X: 10, Y: 10, Z: 10})
	ctx := context.Background()

	previous := 0.0
	for k := 0; k <= 100; k += 2 {
		v, err := a.Evaluate(ctx, dilationQuery(1.0, 1.0, float64(k)/10))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, previous, "k=%d", k)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		previous = v
	}
	assert.Greater(t, previous, 0.99)
}

func TestAnalytic_ZeroGrowth(t *testing.T) {
	a := NewAnalytic(models.ROIRadius{X: 10, Y: 10, Z: 10})
	v, err := a.Evaluate(context.Background(), dilationQuery(0.5, 0.5, 0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestAnalytic_LargerErrorsNeedMoreMargin(t *testing.T) {
	a := NewAnalytic(models.ROIRadius{X: 10, Y: 10, Z: 10})
	ctx := context.Background()

	small, err := a.Evaluate(ctx, dilationQuery(0.5, 0.5, 2))
	require.NoError(t, err)
	large, err := a.Evaluate(ctx, dilationQuery(2, 2, 2))
	require.NoError(t, err)
	assert.Greater(t, small, large)

	// More fractions average out random error.
	single := dilationQuery(0.5, 2, 1)
	many := single
	many.NumberOfFractions = 30
	v1, err := a.Evaluate(ctx, single)
	require.NoError(t, err)
	v30, err := a.Evaluate(ctx, many)
	require.NoError(t, err)
	assert.Greater(t, v30, v1)
}

func TestAnalytic_ScalingMatchesDilation(t *testing.T) {
	radius := models.ROIRadius{X: 10, Y: 8, Z: 12}
	a := NewAnalytic(radius)
	ctx := context.Background()

	for _, mm := range []float64{0.4, 1.0, 2.2, 4.8} {
		dilated, err := a.Evaluate(ctx, dilationQuery(1, 1, mm))
		require.NoError(t, err)

		q := dilationQuery(1, 1, 0)
		q.Mode = models.Scaling
		q.Growth = [3]float64{(mm + radius.X) / radius.X, (mm + radius.Y) / radius.Y, (mm + radius.Z) / radius.Z}
		scaled, err := a.Evaluate(ctx, q)
		require.NoError(t, err)

		assert.InDelta(t, dilated, scaled, 1e-9, "mm=%v", mm)
	}
}

func TestAnalytic_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewAnalytic(models.ROIRadius{X: 1, Y: 1, Z: 1}).Evaluate(ctx, dilationQuery(1, 1, 1))
	assert.ErrorIs(t, err, context.Canceled)

	q := dilationQuery(1, 1, 1.1)
	q.Mode = models.Scaling
	_, err = NewAnalytic(models.ROIRadius{}).Evaluate(context.Background(), q)
	assert.Error(t, err)

	_, err = NewAnalytic(models.ROIRadius{}).Evaluate(context.Background(), dilationQuery(0, 0, 1))
	assert.Error(t, err)
}

func TestAnalytic_WithEngine(t *testing.T) {
	cfg := models.DefaultSweepConfiguration()
	cfg.SystematicErrorMax = 2.0
	cfg.RandomErrorMax = 1.0
	cfg.GrowthMax = 10

	engine := margin.NewEngine(&margin.Params{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	table, err := engine.Run(context.Background(), cfg, NewAnalytic(cfg.ROIRadius))
	require.NoError(t, err)
	require.Equal(t, 8, table.Len())

	previousP95 := -1.0
	for _, row := range table.Rows {
		require.True(t, row.P90.Found && row.P95.Found, "row %+v", row)
		assert.LessOrEqual(t, row.P90.Value, row.P95.Value)
		if row.P99.Found {
			assert.LessOrEqual(t, row.P95.Value, row.P99.Value)
		}
		if row.RandomError == 0 {
			// Systematic error grows down the table.
			assert.GreaterOrEqual(t, row.P95.Value, previousP95)
			previousP95 = row.P95.Value
		}
	}
}

type countingEvaluator struct {
	calls int
	err   error
}

func (c *countingEvaluator) Evaluate(_ context.Context, q margin.CoverageQuery) (float64, error) {
	c.calls++
	if c.err != nil {
		return 0, c.err
	}
	return q.Growth[0] / 10, nil
}

func TestCached(t *testing.T) {
	next := &countingEvaluator{}
	cached := NewCached(next)
	ctx := context.Background()

	q := dilationQuery(1, 1, 2)
	for i := 0; i < 3; i++ {
		v, err := cached.Evaluate(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, 0.2, v)
	}
	_, err := cached.Evaluate(ctx, dilationQuery(1, 1, 4))
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
	hits, misses := cached.Stats()
	assert.Equal(t, 2, hits)
	assert.Equal(t, 2, misses)
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	next := &countingEvaluator{err: errors.New("scene busy")}
	cached := NewCached(next)

	q := dilationQuery(1, 1, 2)
	_, err := cached.Evaluate(context.Background(), q)
	require.Error(t, err)

	next.err = nil
	v, err := cached.Evaluate(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)
	assert.Equal(t, 2, next.calls)
}

func TestQueryArgs(t *testing.T) {
	q := dilationQuery(0.0001, 0.5, 1.2)
	q.NumberOfSimulations = 250
	q.NumberOfFractions = 5

	assert.Equal(t, []string{
		"--systematic=0.0001",
		"--random=0.5",
		"--growth-x=1.2",
		"--growth-y=1.2",
		"--growth-z=1.2",
		"--mode=Dilation",
		"--simulations=250",
		"--fractions=5",
	}, QueryArgs(q))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not available on windows")
	}
	path := filepath.Join(t.TempDir(), "evaluator.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCommand(t *testing.T) {
	script := writeScript(t, `
for arg in "$@"; do
  case "$arg" in
    --mode=Dilation) ;;
    --mode=*) echo "unexpected $arg" >&2; exit 2 ;;
  esac
done
i=0
while [ $i -le 100 ]; do
  echo "$i, 95"
  i=$((i+1))
done
`)

	c := NewCommand(script)
	c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	v, err := c.Evaluate(context.Background(), dilationQuery(1, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, 0.95, v)
}

func TestCommand_Failure(t *testing.T) {
	script := writeScript(t, "echo 'histogram failed' >&2\nexit 3\n")

	_, err := NewCommand(script).Evaluate(context.Background(), dilationQuery(1, 1, 2))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "histogram failed")
}

func TestCommand_ShortOutput(t *testing.T) {
	script := writeScript(t, "echo 0, 99\necho 1, 98\n")

	_, err := NewCommand(script).Evaluate(context.Background(), dilationQuery(1, 1, 2))
	assert.ErrorIs(t, err, dph.ErrShortSeries)
}

func TestCommand_NotConfigured(t *testing.T) {
	_, err := (&Command{}).Evaluate(context.Background(), dilationQuery(1, 1, 2))
	assert.Error(t, err)
}
