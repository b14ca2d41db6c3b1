package coverage

import (
	"context"
	"sync"

	"margincalc/pkg/margin"
)

// Cached memoizes another evaluator. Identical queries are evaluated once;
// errors are not cached. Safe for concurrent use.
type Cached struct {
	next margin.CoverageEvaluator

	mu     sync.Mutex
	values map[margin.CoverageQuery]float64
	hits   int
	misses int
}

// NewCached wraps next
func NewCached(next margin.CoverageEvaluator) *Cached {
	return &Cached{
		next:   next,
		values: make(map[margin.CoverageQuery]float64),
	}
}

// Evaluate implements margin.CoverageEvaluator
func (c *Cached) Evaluate(ctx context.Context, q margin.CoverageQuery) (float64, error) {
	c.mu.Lock()
	if v, ok := c.values[q]; ok {
		c.hits++
		c.mu.Unlock()
		return v, nil
	}
	c.misses++
	c.mu.Unlock()

	v, err := c.next.Evaluate(ctx, q)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.values[q] = v
	c.mu.Unlock()
	return v, nil
}

// Stats returns the number of cache hits and misses so far
func (c *Cached) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
