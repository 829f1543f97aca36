package metrics

import (
	"math"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// PathLength sums the distance travelled between ticks.
type PathLength struct {
	name   string
	length float64
	last   dynamo.Pose
	seen   bool
}

func NewPathLength() *PathLength {
	return &PathLength{name: "path_length"}
}

func (p *PathLength) Name() string { return p.name }

func (p *PathLength) Observe(st dynamo.RuntimeState, u dynamo.Command) {
	if p.seen {
		p.length += dynamo.Distance(p.last, st.Pose)
	}
	p.last = st.Pose
	p.seen = true
}

// Start anchors the first segment at the start pose.
func (p *PathLength) Start(st dynamo.RuntimeState) {
	p.last = st.Pose
	p.seen = true
}

func (p *PathLength) Value() float64 { return p.length }

func (p *PathLength) Reset() {
	p.length = 0
	p.seen = false
}

// HeadingError is the absolute wrapped difference between the last observed
// heading and the reference heading.
type HeadingError struct {
	name string
	ref  dynamo.Pose
	last float64
}

func NewHeadingError(ref dynamo.Pose) *HeadingError {
	return &HeadingError{name: "heading_error", ref: ref}
}

func (h *HeadingError) Name() string { return h.name }

func (h *HeadingError) Observe(st dynamo.RuntimeState, u dynamo.Command) {
	h.last = math.Abs(dynamo.AngleDiff(h.ref.Theta, st.Pose.Theta))
}

func (h *HeadingError) Value() float64 { return h.last }

func (h *HeadingError) Reset() { h.last = 0 }
