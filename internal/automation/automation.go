package automation

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/poseloop/internal/config"
	"github.com/san-kum/poseloop/internal/experiment"
	"github.com/san-kum/poseloop/internal/optim"
	"github.com/san-kum/poseloop/internal/sim"
	"github.com/san-kum/poseloop/internal/storage"
)

// Scenario is a scripted batch of independent maneuvers.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep starts from a preset and applies the fields set in Config.
type ScenarioStep struct {
	Name   string    `yaml:"name"`
	Preset string    `yaml:"preset"`
	Config yaml.Node `yaml:"config"`
	SaveAs string    `yaml:"save_as"`
}

type StepResult struct {
	Name   string
	Config *config.Config
	Result *sim.Result
	RunID  string
}

// LoadScenario loads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if len(scenario.Steps) == 0 {
		return nil, fmt.Errorf("scenario %q: no steps", scenario.Name)
	}
	return &scenario, nil
}

// StepConfig resolves the configuration of one step.
func (s *ScenarioStep) StepConfig() (*config.Config, error) {
	name := s.Preset
	if name == "" {
		name = "default"
	}
	cfg := config.GetPreset(name)
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset: %s", name)
	}
	if s.Config.Kind != 0 {
		if err := s.Config.Decode(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runner executes scenarios and sweeps. Store may be nil, in which case
// save_as is ignored.
type Runner struct {
	Registry *experiment.Registry
	Store    *storage.Store
	Logger   *log.Logger
}

func NewRunner(reg *experiment.Registry, st *storage.Store, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Runner{Registry: reg, Store: st, Logger: logger}
}

func (r *Runner) run(ctx context.Context, cfg *config.Config) (*sim.Result, error) {
	exp := experiment.New(cfg)
	if err := exp.Setup(r.Registry); err != nil {
		return nil, err
	}
	return exp.Run(ctx)
}

// RunScenario executes all steps in order and stops at the first failure.
func (r *Runner) RunScenario(ctx context.Context, scenario *Scenario) ([]StepResult, error) {
	results := make([]StepResult, 0, len(scenario.Steps))

	for i, step := range scenario.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step%d", i+1)
		}

		cfg, err := step.StepConfig()
		if err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		r.Logger.Printf("scenario: step %d/%d %s: %s from %s", i+1, len(scenario.Steps), name, cfg.Strategy, cfg.StartPose)

		result, err := r.run(ctx, cfg)
		if err != nil {
			return results, fmt.Errorf("step %d (%s) run: %w", i+1, name, err)
		}

		sr := StepResult{Name: name, Config: cfg, Result: result}
		if step.SaveAs != "" && r.Store != nil {
			info := storage.RunInfo{
				Label:      step.SaveAs,
				Strategy:   cfg.Strategy,
				Integrator: cfg.Integrator,
				Ts:         cfg.Ts,
				Duration:   cfg.Duration,
				Seed:       cfg.Seed,
				Ref:        cfg.RefPose,
			}
			if sr.RunID, err = r.Store.Save(info, result); err != nil {
				return results, fmt.Errorf("step %d (%s) save: %w", i+1, name, err)
			}
		}
		r.Logger.Printf("scenario: step %d %s: %s after %.2fs", i+1, name, result.Outcome, result.Duration())

		results = append(results, sr)
	}

	return results, nil
}

// ParameterSweep varies one tuning parameter over an evenly spaced range.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

type SweepResult struct {
	ParamValue    float64
	Outcome       string
	TimeToGoal    float64
	FinalDistance float64
	PathLength    float64
}

func (r *Runner) RunSweep(ctx context.Context, sweep *ParameterSweep) ([]SweepResult, error) {
	if sweep.NumSteps < 1 {
		return nil, fmt.Errorf("sweep: need at least one step, got %d", sweep.NumSteps)
	}

	values := optim.Linspace(sweep.ParamMin, sweep.ParamMax, sweep.NumSteps)
	results := make([]SweepResult, 0, len(values))

	for i, val := range values {
		cfg := sweep.Base.Clone()
		if err := optim.Apply(cfg, map[string]float64{sweep.ParamName: val}); err != nil {
			return nil, err
		}

		result, err := r.run(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("sweep %s=%.4f: %w", sweep.ParamName, val, err)
		}

		results = append(results, SweepResult{
			ParamValue:    val,
			Outcome:       result.Outcome.String(),
			TimeToGoal:    result.Metrics["time_to_goal"],
			FinalDistance: result.FinalDistance,
			PathLength:    result.Metrics["path_length"],
		})

		r.Logger.Printf("sweep: %d/%d %s=%.4f %s", i+1, len(values), sweep.ParamName, val, result.Outcome)
	}

	return results, nil
}
