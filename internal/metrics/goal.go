package metrics

import "github.com/san-kum/poseloop/internal/dynamo"

// TimeToGoal reports the elapsed time at which the goal was reached. Runs
// that never reach it score the penalty value.
type TimeToGoal struct {
	name    string
	penalty float64
	reached float64
	done    bool
}

func NewTimeToGoal(penalty float64) *TimeToGoal {
	return &TimeToGoal{name: "time_to_goal", penalty: penalty}
}

func (g *TimeToGoal) Name() string { return g.name }

func (g *TimeToGoal) Observe(st dynamo.RuntimeState, u dynamo.Command) {
	if !g.done && st.Outcome == dynamo.OutcomeGoalReached {
		g.reached = st.Elapsed
		g.done = true
	}
}

func (g *TimeToGoal) Value() float64 {
	if !g.done {
		return g.penalty
	}
	return g.reached
}

func (g *TimeToGoal) Reset() {
	g.reached = 0
	g.done = false
}

// Defaults returns the metrics attached to every recorded run.
func Defaults(ref dynamo.Pose, penalty float64) []dynamo.Metric {
	return []dynamo.Metric{
		NewControlEffort(),
		NewPathLength(),
		NewHeadingError(ref),
		NewTimeToGoal(penalty),
	}
}
