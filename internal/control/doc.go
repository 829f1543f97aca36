// Package control provides pose-regulation strategies for a
// differential-drive robot.
//
// Strategies implement the [dynamo.Controller] interface and carry only
// their configuration; all per-run data lives in [dynamo.RuntimeState]:
//
//   - [Direction]: steers onto an approach corridor around the reference heading
//   - [ViaPoint]: two-phase regulation through a point behind the reference
//   - [Wheels]: fixed left/right wheel speeds, open loop
//
// # Usage
//
//	ctrl, err := control.New(control.StrategyDirection, control.DefaultParams(), control.DefaultWheelParams())
//	st := dynamo.RuntimeState{Pose: start, HavePose: true}
//	for !st.Terminal() {
//	    var u dynamo.Command
//	    st, u = ctrl.Step(st)
//	}
//
// Every strategy checks the time budget before anything else and emits
// [dynamo.Stop] on the tick that ends the maneuver.
package control
