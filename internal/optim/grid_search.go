package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/experiment"
)

// Objective scores one parameter assignment. Lower is better.
type Objective func(ctx context.Context, params map[string]float64) (float64, error)

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Best is the outcome of a search.
type Best struct {
	Params map[string]float64
	Value  float64
	Trials int
	Failed int
}

// Search evaluates every point of the grid. Points whose objective fails are
// counted and skipped; the search fails only if none succeeded or ctx ends.
func (g *GridSearch) Search(ctx context.Context, objective Objective) (*Best, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, fmt.Errorf("optim: %d parameter names for %d ranges", len(g.paramNames), len(g.ranges))
	}

	best := &Best{Value: math.Inf(1)}
	var lastErr error
	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(current map[string]float64) {
		best.Trials++
		val, err := objective(ctx, current)
		if err != nil {
			best.Failed++
			lastErr = err
			return
		}
		if val < best.Value {
			best.Value = val
			best.Params = make(map[string]float64, len(current))
			for k, v := range current {
				best.Params[k] = v
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if best.Params == nil {
		if lastErr != nil {
			return nil, fmt.Errorf("optim: no grid point succeeded: %w", lastErr)
		}
		return nil, errors.New("optim: empty grid")
	}
	return best, nil
}

func (g *GridSearch) searchRecursive(ctx context.Context, depth int, current map[string]float64, visit func(map[string]float64)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		visit(current)
		return nil
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		if err := g.searchRecursive(ctx, depth+1, current, visit); err != nil {
			return err
		}
	}
	delete(current, name)
	return nil
}

// ExperimentObjective runs an experiment built from base with the gains
// applied and scores it by the named metric.
func ExperimentObjective(base *config.Config, reg *experiment.Registry, metric string) Objective {
	return func(ctx context.Context, params map[string]float64) (float64, error) {
		cfg := base.Clone()
		if err := Apply(cfg, params); err != nil {
			return 0, err
		}

		exp := experiment.New(cfg)
		if err := exp.Setup(reg); err != nil {
			return 0, err
		}
		result, err := exp.Run(ctx)
		if err != nil {
			return 0, err
		}
		val, ok := result.Metrics[metric]
		if !ok {
			return 0, fmt.Errorf("optim: unknown metric %q", metric)
		}
		return val, nil
	}
}

// Apply writes named tuning parameters into cfg.
func Apply(cfg *config.Config, params map[string]float64) error {
	for name, val := range params {
		switch name {
		case "kp":
			cfg.Gains.Kp = val
		case "kw":
			cfg.Gains.Kw = val
		case "dmin":
			cfg.Dmin = val
		case "r_distance":
			cfg.RDistance = val
		default:
			return fmt.Errorf("optim: unknown parameter %q", name)
		}
	}
	return nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
