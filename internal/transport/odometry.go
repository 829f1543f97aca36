package transport

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Odometry is the pose message published by the robot.
type Odometry struct {
	Position    Vector3    `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// Twist is the velocity command consumed by the robot base.
type Twist struct {
	Linear  Vector3 `json:"linear"`
	Angular Vector3 `json:"angular"`
}

// DecodeOdometry reduces an odometry message to a planar pose.
func DecodeOdometry(data []byte) (dynamo.Pose, error) {
	var odom Odometry
	if err := json.Unmarshal(data, &odom); err != nil {
		return dynamo.Pose{}, fmt.Errorf("decode odometry: %w", err)
	}

	o := odom.Orientation
	norm := math.Sqrt(o.X*o.X + o.Y*o.Y + o.Z*o.Z + o.W*o.W)
	if norm < 1e-9 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return dynamo.Pose{}, fmt.Errorf("orientation norm %g: %w", norm, dynamo.ErrInvalidState)
	}

	q := dynamo.Pose{
		X:     odom.Position.X,
		Y:     odom.Position.Y,
		Theta: dynamo.YawFromQuaternion(o.X/norm, o.Y/norm, o.Z/norm, o.W/norm),
	}
	if !q.IsValid() {
		return dynamo.Pose{}, fmt.Errorf("pose %s: %w", q, dynamo.ErrInvalidState)
	}
	return q, nil
}

func EncodeTwist(u dynamo.Command) ([]byte, error) {
	return json.Marshal(Twist{
		Linear:  Vector3{X: u.V},
		Angular: Vector3{Z: u.W},
	})
}
