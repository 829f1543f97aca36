package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// Simulator closes the loop offline: the controller's own integrated pose is
// the only pose source, so a run is fully deterministic.
type Simulator struct {
	ctrl      dynamo.Controller
	metrics   []dynamo.Metric
	observers []dynamo.Observer
	opts      []DriverOption
}

func New(ctrl dynamo.Controller, opts ...DriverOption) *Simulator {
	return &Simulator{
		ctrl:      ctrl,
		metrics:   make([]dynamo.Metric, 0),
		observers: make([]dynamo.Observer, 0),
		opts:      opts,
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

type recorder struct {
	result *Result
}

func (r *recorder) OnStep(_ dynamo.RuntimeState, u dynamo.Command, next dynamo.RuntimeState) {
	r.result.Commands = append(r.result.Commands, u)
	r.result.Poses = append(r.result.Poses, next.Pose)
	r.result.Times = append(r.result.Times, next.Elapsed)
	r.result.Phases = append(r.result.Phases, next.Phase)
}

type metricObserver struct {
	m       dynamo.Metric
	started bool
}

func (o *metricObserver) OnStep(prev dynamo.RuntimeState, u dynamo.Command, next dynamo.RuntimeState) {
	if !o.started {
		if st, ok := o.m.(dynamo.Starter); ok {
			st.Start(prev)
		}
		o.started = true
	}
	o.m.Observe(next, u)
}

func (s *Simulator) Run(ctx context.Context, start dynamo.Pose, cfg Config) (*Result, error) {
	ts, err := s.validateConfig(cfg)
	if err != nil {
		return nil, err
	}
	if !start.IsValid() {
		return nil, fmt.Errorf("start pose %s: %w", start, dynamo.ErrInvalidState)
	}
	start.Theta = dynamo.NormalizeAngle(start.Theta)

	maxSteps := cfg.MaxSteps
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	result := &Result{
		Start:    start,
		Poses:    make([]dynamo.Pose, 0, 256),
		Commands: make([]dynamo.Command, 0, 256),
		Times:    make([]float64, 0, 256),
		Phases:   make([]dynamo.Phase, 0, 256),
		Metrics:  make(map[string]float64),
	}
	result.Poses = append(result.Poses, start)
	result.Times = append(result.Times, 0)
	result.Phases = append(result.Phases, dynamo.PhaseApproach)

	for _, m := range s.metrics {
		m.Reset()
	}

	drv, err := NewDriver(s.ctrl, StaticSource{Pose: start}, Discard, ts, s.opts...)
	if err != nil {
		return nil, err
	}
	drv.AddObserver(&recorder{result: result})
	for _, m := range s.metrics {
		drv.AddObserver(&metricObserver{m: m})
	}
	for _, o := range s.observers {
		drv.AddObserver(o)
	}

	for i := 0; i < maxSteps && !drv.Terminal(); i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if _, err := drv.Tick(ctx); err != nil {
			return result, err
		}
	}

	final := drv.State()
	result.Outcome = final.Outcome
	result.Steps = drv.Ticks()
	if r, ok := s.ctrl.(dynamo.Referenced); ok {
		result.FinalDistance = dynamo.Distance(final.Pose, r.Ref())
	}
	for _, m := range s.metrics {
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

// validateConfig checks cfg and returns the controller's sampling period.
func (s *Simulator) validateConfig(cfg Config) (float64, error) {
	if s.ctrl == nil {
		return 0, fmt.Errorf("simulator: no controller")
	}
	p, ok := s.ctrl.(dynamo.Periodic)
	if !ok {
		return 0, fmt.Errorf("simulator: controller has no sampling period: %w", dynamo.ErrInvalidConfig)
	}
	if ts := p.Period(); !(ts > 0) {
		return 0, &dynamo.ConfigError{Field: "ts", Value: ts, Reason: "must be positive"}
	}
	if cfg.MaxSteps < 0 {
		return 0, &dynamo.ConfigError{Field: "max_steps", Value: float64(cfg.MaxSteps), Reason: "must not be negative"}
	}
	return p.Period(), nil
}
