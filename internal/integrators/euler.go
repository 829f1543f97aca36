package integrators

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(q dynamo.Pose, cmd dynamo.Command, ts float64) dynamo.Pose {
	return dynamo.Pose{
		X:     q.X + ts*cmd.V*math.Cos(q.Theta),
		Y:     q.Y + ts*cmd.V*math.Sin(q.Theta),
		Theta: dynamo.NormalizeAngle(q.Theta + ts*cmd.W),
	}
}
