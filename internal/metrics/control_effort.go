package metrics

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// ControlEffort is the mean of |v| + |w| over all ticks.
type ControlEffort struct {
	name    string
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort {
	return &ControlEffort{
		name: "control_effort",
	}
}

func (c *ControlEffort) Name() string {
	return c.name
}

func (c *ControlEffort) Observe(st dynamo.RuntimeState, u dynamo.Command) {
	c.sum += math.Abs(u.V) + math.Abs(u.W)
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() {
	c.sum = 0
	c.samples = 0
}
