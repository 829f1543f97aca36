package experiment

import (
	"context"
	"fmt"

	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/sim"
)

// Experiment is one configured offline run.
type Experiment struct {
	cfg       *config.Config
	simulator *sim.Simulator
}

func New(cfg *config.Config) *Experiment {
	return &Experiment{cfg: cfg}
}

// Setup validates the configuration and builds the controller, the
// simulator and its default metrics.
func (e *Experiment) Setup(reg *Registry, opts ...sim.DriverOption) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	ctrl, err := reg.GetController(e.cfg)
	if err != nil {
		return err
	}

	e.simulator = sim.New(ctrl, opts...)
	for _, m := range reg.DefaultMetrics(e.cfg) {
		e.simulator.AddMetric(m)
	}
	return nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not setup")
	}
	return e.simulator.Run(ctx, e.cfg.StartPose, sim.DefaultConfig())
}

func (e *Experiment) Config() *config.Config { return e.cfg }
