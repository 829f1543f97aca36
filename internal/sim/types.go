package sim

import "github.com/san-kum/poseloop/internal/dynamo"

const DefaultMaxSteps = 100000

// Config bounds an offline run. The sampling period comes from the
// controller.
type Config struct {
	MaxSteps int
}

func DefaultConfig() Config {
	return Config{
		MaxSteps: DefaultMaxSteps,
	}
}

// Result is the recorded trajectory of one offline run. Index 0 of Poses,
// Times and Phases is the start; Commands[i] moved Poses[i] to Poses[i+1].
type Result struct {
	Start         dynamo.Pose
	Poses         []dynamo.Pose
	Commands      []dynamo.Command
	Times         []float64
	Phases        []dynamo.Phase
	Outcome       dynamo.Outcome
	Steps         int
	FinalDistance float64
	Metrics       map[string]float64
}

// Final returns the last recorded pose.
func (r *Result) Final() dynamo.Pose {
	if len(r.Poses) == 0 {
		return r.Start
	}
	return r.Poses[len(r.Poses)-1]
}

// Duration is the simulated time covered by the run.
func (r *Result) Duration() float64 {
	if len(r.Times) == 0 {
		return 0
	}
	return r.Times[len(r.Times)-1]
}
