package coverage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"margincalc/pkg/dph"
	"margincalc/pkg/margin"
)

// Command evaluates coverage by running an external program once per query.
// The program receives the query as flags after Args:
//
//	--systematic=S --random=R --growth-x=X --growth-y=Y --growth-z=Z
//	--mode=Dilation|Scaling --simulations=N --fractions=F
//
// and prints a dose population histogram on stdout, one sample per line
// (see dph.ParseSeries). Every resource the program allocates is released
// when it exits.
type Command struct {
	Path string
	Args []string

	// Logger defaults to slog.Default()
	Logger *slog.Logger
}

// NewCommand creates a command evaluator
func NewCommand(path string, args ...string) *Command {
	return &Command{Path: path, Args: args}
}

// Evaluate implements margin.CoverageEvaluator
func (c *Command) Evaluate(ctx context.Context, q margin.CoverageQuery) (float64, error) {
	if c.Path == "" {
		return 0, fmt.Errorf("coverage: no evaluator command configured")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	args := append(append([]string{}, c.Args...), QueryArgs(q)...)
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return 0, fmt.Errorf("coverage: %s: %w: %s", c.Path, err, msg)
		}
		return 0, fmt.Errorf("coverage: %s: %w", c.Path, err)
	}

	series, err := dph.ParseSeries(&stdout)
	if err != nil {
		return 0, fmt.Errorf("coverage: %s output: %w", c.Path, err)
	}
	value, err := dph.Coverage(series)
	if err != nil {
		return 0, fmt.Errorf("coverage: %s output: %w", c.Path, err)
	}

	stats := dph.Describe(series)
	logger.Debug("dose population histogram",
		"command", c.Path,
		"samples", stats.Len,
		"min", stats.Min,
		"mean", stats.Mean,
		"max", stats.Max,
		"coverage", value)
	return value, nil
}

// QueryArgs renders q as command line flags
func QueryArgs(q margin.CoverageQuery) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []string{
		"--systematic=" + f(q.SystematicError),
		"--random=" + f(q.RandomError),
		"--growth-x=" + f(q.Growth[0]),
		"--growth-y=" + f(q.Growth[1]),
		"--growth-z=" + f(q.Growth[2]),
		"--mode=" + q.Mode.String(),
		"--simulations=" + strconv.Itoa(q.NumberOfSimulations),
		"--fractions=" + strconv.Itoa(q.NumberOfFractions),
	}
}
