package control

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

const (
	DefaultDuration  = 10.0
	DefaultRDistance = 1.3
	DefaultKp        = 0.5
	DefaultKw        = 0.7
	DefaultDmin      = 0.7
	DefaultTs        = 0.02
)

// DefaultRef is the reference pose used when none is configured.
var DefaultRef = dynamo.Pose{X: 3, Y: 6, Theta: 0}

// Params configures the closed-loop strategies. It is fixed for a run.
type Params struct {
	Ref       dynamo.Pose
	Kp        float64 // distance to linear velocity
	Kw        float64 // heading error to angular velocity
	Dmin      float64 // goal tolerance
	RDistance float64 // via-point offset / corridor half-width
	Duration  float64 // seconds
	Ts        float64 // sampling period, seconds
}

func DefaultParams() Params {
	return Params{
		Ref:       DefaultRef,
		Kp:        DefaultKp,
		Kw:        DefaultKw,
		Dmin:      DefaultDmin,
		RDistance: DefaultRDistance,
		Duration:  DefaultDuration,
		Ts:        DefaultTs,
	}
}

func (p Params) Validate() error {
	fields := []struct {
		name string
		val  float64
	}{
		{"ref.x", p.Ref.X}, {"ref.y", p.Ref.Y}, {"ref.theta", p.Ref.Theta},
		{"kp", p.Kp}, {"kw", p.Kw}, {"dmin", p.Dmin},
		{"r_distance", p.RDistance}, {"duration", p.Duration}, {"ts", p.Ts},
	}
	for _, f := range fields {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return &dynamo.ConfigError{Field: f.name, Value: f.val, Reason: "must be finite"}
		}
	}
	if p.Dmin <= 0 {
		return &dynamo.ConfigError{Field: "dmin", Value: p.Dmin, Reason: "must be positive"}
	}
	if p.Ts <= 0 {
		return &dynamo.ConfigError{Field: "ts", Value: p.Ts, Reason: "must be positive"}
	}
	if p.Duration <= 0 {
		return &dynamo.ConfigError{Field: "duration", Value: p.Duration, Reason: "must be positive"}
	}
	if p.RDistance < 0 {
		return &dynamo.ConfigError{Field: "r_distance", Value: p.RDistance, Reason: "must not be negative"}
	}
	return nil
}

// checkEnd applies the termination rules shared by the closed-loop
// strategies: time budget first, then goal tolerance.
func checkEnd(p Params, st dynamo.RuntimeState) (dynamo.RuntimeState, float64, bool) {
	if st.Elapsed > p.Duration {
		st.Outcome = dynamo.OutcomeTimeout
		return st, 0, true
	}
	d := dynamo.Distance(st.Pose, p.Ref)
	if d < p.Dmin {
		st.Outcome = dynamo.OutcomeGoalReached
		return st, d, true
	}
	return st, d, false
}
