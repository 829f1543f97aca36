package dynamo

import (
	"context"
	"fmt"
	"math"
)

// Pose is the planar configuration of the robot. Theta is in (-π, π].
type Pose struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

func (p Pose) IsValid() bool {
	for _, v := range [3]float64{p.X, p.Y, p.Theta} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (p Pose) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Theta)
}

// Command is a linear/angular velocity pair.
type Command struct {
	V float64 `json:"v"`
	W float64 `json:"w"`
}

// Stop is the zero command.
var Stop = Command{}

// Phase is the control phase of the via-point strategy.
type Phase int

const (
	PhaseApproach Phase = iota
	PhaseFinalHeading
)

func (p Phase) String() string {
	switch p {
	case PhaseApproach:
		return "APPROACH"
	case PhaseFinalHeading:
		return "FINAL_HEADING"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Outcome records why a maneuver ended.
type Outcome int

const (
	OutcomeRunning Outcome = iota
	OutcomeGoalReached
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRunning:
		return "running"
	case OutcomeGoalReached:
		return "goal_reached"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// RuntimeState is everything that changes during a maneuver. It is owned by
// the driver and passed by value through Controller.Step.
type RuntimeState struct {
	Pose     Pose
	HavePose bool
	Elapsed  float64
	Phase    Phase
	Outcome  Outcome
}

// Terminal reports whether the maneuver has ended.
func (s RuntimeState) Terminal() bool {
	return s.Outcome != OutcomeRunning
}

// Controller computes one tick of a regulation strategy. Implementations
// must not retain st; the returned state replaces it.
type Controller interface {
	Step(st RuntimeState) (RuntimeState, Command)
}

// Referenced is implemented by controllers that regulate toward a target pose.
type Referenced interface {
	Ref() Pose
}

// Periodic is implemented by controllers that advance time by a fixed
// sampling period on every step.
type Periodic interface {
	Period() float64
}

type Integrator interface {
	Step(q Pose, u Command, ts float64) Pose
}

// PoseSource delivers the most recent pose estimate, if any.
type PoseSource interface {
	Latest() (Pose, bool)
}

// ActuatorSink accepts one command per tick. No acknowledgment is expected.
type ActuatorSink interface {
	Send(ctx context.Context, u Command) error
}

// Metric accumulates a scalar over a run. Observe receives each command
// together with the state it produced.
type Metric interface {
	Name() string
	Observe(st RuntimeState, u Command)
	Value() float64
	Reset()
}

// Starter is implemented by metrics that also need the state a run
// starts from.
type Starter interface {
	Start(st RuntimeState)
}

// Observer is notified after every tick with the state the command was
// computed from and the resulting state.
type Observer interface {
	OnStep(prev RuntimeState, u Command, next RuntimeState)
}
