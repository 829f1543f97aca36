package control

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

const (
	DefaultWheelRadius = 0.3
	DefaultAxleLength  = 1.25
	DefaultWheelSpeed  = 12.0
)

// WheelParams configures the open-loop wheel-speed mode.
type WheelParams struct {
	Radius   float64 // wheel radius, m
	Axle     float64 // distance between wheels, m
	Left     float64 // rad/s
	Right    float64 // rad/s
	Duration float64
	Ts       float64
}

func DefaultWheelParams() WheelParams {
	return WheelParams{
		Radius:   DefaultWheelRadius,
		Axle:     DefaultAxleLength,
		Left:     DefaultWheelSpeed,
		Right:    DefaultWheelSpeed,
		Duration: DefaultDuration,
		Ts:       DefaultTs,
	}
}

func (w WheelParams) Validate() error {
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"wheels.radius", w.Radius}, {"wheels.axle", w.Axle},
		{"wheels.left", w.Left}, {"wheels.right", w.Right},
		{"duration", w.Duration}, {"ts", w.Ts},
	} {
		if math.IsNaN(f.val) || math.IsInf(f.val, 0) {
			return &dynamo.ConfigError{Field: f.name, Value: f.val, Reason: "must be finite"}
		}
	}
	if w.Radius <= 0 {
		return &dynamo.ConfigError{Field: "wheels.radius", Value: w.Radius, Reason: "must be positive"}
	}
	if w.Axle <= 0 {
		return &dynamo.ConfigError{Field: "wheels.axle", Value: w.Axle, Reason: "must be positive"}
	}
	if w.Ts <= 0 {
		return &dynamo.ConfigError{Field: "ts", Value: w.Ts, Reason: "must be positive"}
	}
	if w.Duration <= 0 {
		return &dynamo.ConfigError{Field: "duration", Value: w.Duration, Reason: "must be positive"}
	}
	return nil
}

// Body converts wheel speeds to the body-frame command.
func (w WheelParams) Body() dynamo.Command {
	return dynamo.Command{
		V: w.Radius / 2 * (w.Right + w.Left),
		W: w.Radius / w.Axle * (w.Right - w.Left),
	}
}

// Wheels drives at fixed wheel speeds until the time budget runs out.
type Wheels struct {
	w     WheelParams
	integ dynamo.Integrator
}

func NewWheels(w WheelParams, opts ...Option) (*Wheels, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Wheels{w: w, integ: o.integ}, nil
}

func (c *Wheels) Period() float64 { return c.w.Ts }

func (c *Wheels) Step(st dynamo.RuntimeState) (dynamo.RuntimeState, dynamo.Command) {
	if st.Terminal() {
		return st, dynamo.Stop
	}
	if st.Elapsed > c.w.Duration {
		st.Outcome = dynamo.OutcomeTimeout
		return st, dynamo.Stop
	}

	u := c.w.Body()
	st.Pose = c.integ.Step(st.Pose, u, c.w.Ts)
	st.Elapsed += c.w.Ts
	return st, u
}
