package control

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// Direction regulates toward the reference pose along a corridor of
// half-width RDistance around the reference heading.
type Direction struct {
	p     Params
	integ dynamo.Integrator
}

func NewDirection(p Params, opts ...Option) (*Direction, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Direction{p: p, integ: o.integ}, nil
}

func (d *Direction) Ref() dynamo.Pose { return d.p.Ref }

func (d *Direction) Params() Params { return d.p }

func (d *Direction) Period() float64 { return d.p.Ts }

func (d *Direction) Step(st dynamo.RuntimeState) (dynamo.RuntimeState, dynamo.Command) {
	if st.Terminal() {
		return st, dynamo.Stop
	}
	st, dist, done := checkEnd(d.p, st)
	if done {
		return st, dynamo.Stop
	}

	q := st.Pose
	ePhi := d.headingError(q, dist)
	u := dynamo.Command{V: d.p.Kp * dist, W: d.p.Kw * ePhi}

	st.Pose = d.integ.Step(q, u, d.p.Ts)
	st.Elapsed += d.p.Ts
	return st, u
}

// headingError blends "aim at the reference point" with "aim along the
// corridor edge", picking whichever angular offset is smaller.
func (d *Direction) headingError(q dynamo.Pose, dist float64) float64 {
	beta := corridorAngle(d.p.RDistance, dist)
	phiR := dynamo.Bearing(q, d.p.Ref)
	alpha := dynamo.NormalizeAngle(phiR - d.p.Ref.Theta)
	if alpha < 0 {
		beta = -beta
	}

	if math.Abs(alpha) < math.Abs(beta) {
		return dynamo.NormalizeAngle(phiR - q.Theta + alpha)
	}
	return dynamo.NormalizeAngle(phiR - q.Theta + beta)
}

// corridorAngle is atan(r/dist) with dist == 0 taken as the π/2 limit.
func corridorAngle(r, dist float64) float64 {
	if dist <= 0 {
		return math.Pi / 2
	}
	return math.Atan(r / dist)
}
