package integrators

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// Unicycle advances a differential-drive pose with the heading taken at the
// middle of the step, which removes most of the Euler bias on arcs.
type Unicycle struct{}

func NewUnicycle() *Unicycle {
	return &Unicycle{}
}

func (u *Unicycle) Step(q dynamo.Pose, cmd dynamo.Command, ts float64) dynamo.Pose {
	thetaMid := q.Theta + ts*cmd.W/2
	return dynamo.Pose{
		X:     q.X + ts*cmd.V*math.Cos(thetaMid),
		Y:     q.Y + ts*cmd.V*math.Sin(thetaMid),
		Theta: dynamo.NormalizeAngle(q.Theta + ts*cmd.W),
	}
}
