package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/control"
	"github.com/san-kum/poseloop/internal/dynamo"
	"github.com/san-kum/poseloop/internal/integrators"
	"github.com/san-kum/poseloop/internal/metrics"
)

// TimeoutPenalty scales the run duration into the time-to-goal score of runs
// that never reach the goal.
const TimeoutPenalty = 2.0

type Registry struct {
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		integrators: make(map[string]func() dynamo.Integrator),
	}

	r.integrators["unicycle"] = func() dynamo.Integrator { return integrators.NewUnicycle() }
	r.integrators["midpoint"] = r.integrators["unicycle"]
	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }

	return r
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	if name == "" {
		name = config.DefaultIntegrator
	}
	fn, ok := r.integrators[name]
	if !ok {
		return nil, fmt.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetController builds the strategy named by cfg with its integrator.
func (r *Registry) GetController(cfg *config.Config) (dynamo.Controller, error) {
	s, err := cfg.StrategyKind()
	if err != nil {
		return nil, err
	}
	integ, err := r.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}

	opts := []control.Option{control.WithIntegrator(integ)}
	if cfg.NormalizeApproach {
		opts = append(opts, control.WithNormalizedApproach())
	}
	return control.New(s, cfg.Params(), cfg.WheelParams(), opts...)
}

func (r *Registry) DefaultMetrics(cfg *config.Config) []dynamo.Metric {
	return metrics.Defaults(cfg.RefPose, TimeoutPenalty*cfg.Duration)
}
