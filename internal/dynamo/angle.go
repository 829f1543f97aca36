package dynamo

import "math"

const twoPi = 2 * math.Pi

// NormalizeAngle wraps x into (-π, π].
//
// The remainder keeps the sign of x and is exact, so values already inside
// the interval are returned unchanged and the function is idempotent.
// NaN and Inf are not handled.
func NormalizeAngle(x float64) float64 {
	r := math.Mod(x, twoPi)
	if r > math.Pi {
		r -= twoPi
	} else if r <= -math.Pi {
		r += twoPi
	}
	return r
}

// AngleDiff returns the wrapped difference a - b.
func AngleDiff(a, b float64) float64 {
	return NormalizeAngle(a - b)
}

// Distance is the planar Euclidean distance between two poses.
func Distance(a, b Pose) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Bearing is the direction of the vector from a to b.
func Bearing(a, b Pose) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// YawFromQuaternion reduces an orientation quaternion (x, y, z, w) to its
// yaw angle. Roll and pitch are discarded: the robot moves in the plane.
func YawFromQuaternion(x, y, z, w float64) float64 {
	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	return math.Atan2(sinyCosp, cosyCosp)
}
