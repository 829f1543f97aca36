// Package dynamo provides the core primitives for pose regulation of a
// differential-drive robot.
//
// The package defines the fundamental types and interfaces shared by the
// controllers, integrators and the control loop driver:
//
//   - [Pose]: planar configuration (x, y, heading)
//   - [Command]: linear/angular velocity pair sent to the actuators
//   - [RuntimeState]: elapsed time, phase and outcome of a maneuver
//   - [Controller]: per-tick step function over [RuntimeState]
//   - [PoseSource] and [ActuatorSink]: the I/O boundaries of the loop
//
// # Example
//
//	ctrl, _ := control.NewDirection(control.DefaultParams())
//	st := dynamo.RuntimeState{Pose: dynamo.Pose{}, HavePose: true}
//	st, u := ctrl.Step(st)
//
// # Angles
//
// Every heading produced by this module lies in (-π, π]; use
// [NormalizeAngle] when deriving a heading from arbitrary arithmetic.
//
// # Thread Safety
//
// Controllers are configuration-only and may be shared between goroutines.
// RuntimeState values are plain data and are copied on every step.
package dynamo
