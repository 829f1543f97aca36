package control

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// ViaPoint first drives to a point RDistance behind the reference pose along
// its heading, then regulates the final heading while closing the distance.
//
// The phase moves APPROACH -> FINAL_HEADING once and never back. The switch
// is decided from the pose at the start of a tick; that tick still steers
// toward the via-point and the next one runs the final-heading law.
type ViaPoint struct {
	p          Params
	via        dynamo.Pose
	integ      dynamo.Integrator
	normalized bool
}

func NewViaPoint(p Params, opts ...Option) (*ViaPoint, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &ViaPoint{
		p:          p,
		via:        viaPoint(p.Ref, p.RDistance),
		integ:      o.integ,
		normalized: o.normalizedApproach,
	}, nil
}

func viaPoint(ref dynamo.Pose, r float64) dynamo.Pose {
	return dynamo.Pose{
		X:     ref.X - r*math.Cos(ref.Theta),
		Y:     ref.Y - r*math.Sin(ref.Theta),
		Theta: ref.Theta,
	}
}

func (c *ViaPoint) Ref() dynamo.Pose { return c.p.Ref }

// Via returns the intermediate waypoint.
func (c *ViaPoint) Via() dynamo.Pose { return c.via }

func (c *ViaPoint) Params() Params { return c.p }

func (c *ViaPoint) Period() float64 { return c.p.Ts }

func (c *ViaPoint) Step(st dynamo.RuntimeState) (dynamo.RuntimeState, dynamo.Command) {
	if st.Terminal() {
		return st, dynamo.Stop
	}
	st, dist, done := checkEnd(c.p, st)
	if done {
		return st, dynamo.Stop
	}

	q := st.Pose
	var ePhi float64
	switch st.Phase {
	case dynamo.PhaseApproach:
		if dynamo.Distance(q, c.via) < c.p.Dmin {
			st.Phase = dynamo.PhaseFinalHeading
		}
		ePhi = dynamo.Bearing(q, c.via) - q.Theta
		if c.normalized {
			ePhi = dynamo.NormalizeAngle(ePhi)
		}
	default:
		ePhi = c.p.Ref.Theta - q.Theta
	}

	u := dynamo.Command{V: c.p.Kp * dist, W: c.p.Kw * ePhi}

	st.Pose = c.integ.Step(q, u, c.p.Ts)
	st.Elapsed += c.p.Ts
	return st, u
}
