package sim_test

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/poseloop/internal/control"
	"github.com/san-kum/poseloop/internal/dynamo"
	"github.com/san-kum/poseloop/internal/sim"
)

// feed is a pose source whose sample can be replaced between ticks.
type feed struct {
	mu   sync.Mutex
	pose dynamo.Pose
	ok   bool
}

func (f *feed) Set(q dynamo.Pose) {
	f.mu.Lock()
	f.pose, f.ok = q, true
	f.mu.Unlock()
}

func (f *feed) Latest() (dynamo.Pose, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pose, f.ok
}

var errStopRejected = errors.New("stop rejected")

// stopGate records commands but rejects the stop command the first
// failures times; a negative count rejects it forever.
type stopGate struct {
	sim.Recorder

	mu       sync.Mutex
	failures int
	attempts int
}

func (g *stopGate) Send(ctx context.Context, u dynamo.Command) error {
	if u == dynamo.Stop {
		g.mu.Lock()
		g.attempts++
		reject := g.failures != 0
		if g.failures > 0 {
			g.failures--
		}
		g.mu.Unlock()
		if reject {
			return errStopRejected
		}
	}
	return g.Recorder.Send(ctx, u)
}

func (g *stopGate) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// startStates keeps the state each tick was computed from.
type startStates struct {
	states []dynamo.RuntimeState
}

func (s *startStates) OnStep(prev dynamo.RuntimeState, _ dynamo.Command, _ dynamo.RuntimeState) {
	s.states = append(s.states, prev)
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		src    *feed
		sink   *sim.Recorder
		params control.Params
		drv    *sim.Driver
	)

	newDriver := func(ctrl dynamo.Controller, opts ...sim.DriverOption) *sim.Driver {
		d, err := sim.NewDriver(ctrl, src, sink, params.Ts, opts...)
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	BeforeEach(func() {
		ctx = context.Background()
		src = &feed{}
		sink = &sim.Recorder{}
		params = control.DefaultParams()

		ctrl, err := control.NewDirection(params)
		Expect(err).NotTo(HaveOccurred())
		drv = newDriver(ctrl)
	})

	Context("before any pose arrives", func() {
		It("skips the tick without sending", func() {
			u, err := drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(Equal(dynamo.Stop))
			Expect(drv.Skipped()).To(Equal(1))
			Expect(drv.Ticks()).To(Equal(0))
			Expect(sink.Commands()).To(BeEmpty())
			Expect(drv.Terminal()).To(BeFalse())
		})
	})

	Context("with a pose", func() {
		BeforeEach(func() {
			src.Set(dynamo.Pose{})
		})

		It("forwards the controller command", func() {
			u, err := drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.V).To(BeNumerically(">", 0))
			Expect(sink.Commands()).To(ConsistOf(u))
			Expect(drv.State().Elapsed).To(BeNumerically("~", params.Ts, 1e-12))
		})

		It("keeps its integrated pose over later external samples", func() {
			_, err := drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			integrated := drv.State().Pose

			src.Set(dynamo.Pose{X: -50, Y: -50})
			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(dynamo.Distance(drv.State().Pose, integrated)).To(BeNumerically("<", 0.2))
		})

		It("re-reads the source every tick when told to trust it", func() {
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			drv = newDriver(ctrl, sim.WithTrustSource())

			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())

			src.Set(dynamo.Pose{X: 3.1, Y: 6.1})
			u, err := drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(Equal(dynamo.Stop))
			Expect(drv.Outcome()).To(Equal(dynamo.OutcomeGoalReached))
		})

		It("runs the default scenario to the goal", func() {
			for i := 0; i < 1000 && !drv.Terminal(); i++ {
				_, err := drv.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(drv.Outcome()).To(Equal(dynamo.OutcomeGoalReached))
			Expect(dynamo.Distance(drv.State().Pose, params.Ref)).To(BeNumerically("<", params.Dmin))
			Expect(drv.State().Elapsed).To(BeNumerically("<=", params.Duration))
		})
	})

	Context("with a malformed pose", func() {
		It("drops non-finite samples until a valid one arrives", func() {
			src.Set(dynamo.Pose{X: math.NaN(), Y: 1})
			u, err := drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(u).To(Equal(dynamo.Stop))
			Expect(drv.Rejected()).To(Equal(1))
			Expect(drv.Skipped()).To(Equal(1))
			Expect(drv.State().HavePose).To(BeFalse())
			Expect(sink.Commands()).To(BeEmpty())

			src.Set(dynamo.Pose{X: 1, Theta: math.Inf(1)})
			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.Rejected()).To(Equal(2))

			src.Set(dynamo.Pose{})
			u, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.V).To(BeNumerically(">", 0))
			Expect(drv.Ticks()).To(Equal(1))
		})

		It("keeps the last good pose when a trusted source goes bad", func() {
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			drv = newDriver(ctrl, sim.WithTrustSource())

			src.Set(dynamo.Pose{X: 1, Y: 1})
			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			before := drv.State().Pose

			src.Set(dynamo.Pose{X: math.NaN()})
			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.Rejected()).To(Equal(1))
			Expect(drv.State().Pose.IsValid()).To(BeTrue())
			Expect(dynamo.Distance(drv.State().Pose, before)).To(BeNumerically("<", 0.2))
		})

		It("wraps the heading before the controller sees it", func() {
			for _, theta := range []float64{-math.Pi, 3 * math.Pi, -5 * math.Pi} {
				starts := &startStates{}
				ctrl, err := control.NewDirection(params)
				Expect(err).NotTo(HaveOccurred())
				drv = newDriver(ctrl, sim.WithObserver(starts))

				src.Set(dynamo.Pose{Theta: theta})
				_, err = drv.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(starts.states).To(HaveLen(1))
				Expect(starts.states[0].Pose.Theta).To(BeNumerically("~", math.Pi, 1e-9))
			}
		})

		It("steers the same way for equivalent headings", func() {
			command := func(theta float64) dynamo.Command {
				ctrl, err := control.NewViaPoint(params)
				Expect(err).NotTo(HaveOccurred())
				f := &feed{}
				f.Set(dynamo.Pose{Theta: theta})
				d, err := sim.NewDriver(ctrl, f, sim.Discard, params.Ts)
				Expect(err).NotTo(HaveOccurred())
				u, err := d.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
				return u
			}

			wrapped := command(-math.Pi / 2)
			unwrapped := command(3 * math.Pi / 2)
			Expect(unwrapped.V).To(BeNumerically("~", wrapped.V, 1e-9))
			Expect(unwrapped.W).To(BeNumerically("~", wrapped.W, 1e-9))
		})
	})

	Context("once terminal", func() {
		BeforeEach(func() {
			src.Set(dynamo.Pose{X: 3.2, Y: 5.8})
			_, err := drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.Terminal()).To(BeTrue())
		})

		It("sends a single stop and then stays silent", func() {
			for i := 0; i < 5; i++ {
				u, err := drv.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(u).To(Equal(dynamo.Stop))
			}
			Expect(sink.Commands()).To(Equal([]dynamo.Command{dynamo.Stop}))
		})

		It("repeats the stop when configured", func() {
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			sink = &sim.Recorder{}
			drv = newDriver(ctrl, sim.WithRepeatStop())

			for i := 0; i < 3; i++ {
				_, err := drv.Tick(ctx)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(sink.Commands()).To(HaveLen(3))
			for _, u := range sink.Commands() {
				Expect(u).To(Equal(dynamo.Stop))
			}
		})
	})

	Context("with a failing sink", func() {
		It("returns the wrapped error", func() {
			boom := errors.New("bus off")
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			d, err := sim.NewDriver(ctrl, src, sim.SinkFunc(func(context.Context, dynamo.Command) error {
				return boom
			}), params.Ts)
			Expect(err).NotTo(HaveOccurred())

			src.Set(dynamo.Pose{})
			_, err = d.Tick(ctx)
			Expect(err).To(MatchError(boom))
		})
	})

	Context("via-point strategy", func() {
		It("reports FINAL_HEADING on the tick after the via-point is reached", func() {
			ctrl, err := control.NewViaPoint(params)
			Expect(err).NotTo(HaveOccurred())
			drv = newDriver(ctrl)
			via := ctrl.Via()
			src.Set(dynamo.Pose{X: via.X - 0.71, Y: via.Y})

			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.State().Phase).To(Equal(dynamo.PhaseApproach))
			Expect(dynamo.Distance(drv.State().Pose, via)).To(BeNumerically("<", params.Dmin))

			_, err = drv.Tick(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(drv.State().Phase).To(Equal(dynamo.PhaseFinalHeading))
		})
	})

	Describe("Run", func() {
		It("stops at the goal and logs it", func() {
			var buf bytes.Buffer
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			drv = newDriver(ctrl, sim.WithLogger(log.New(&buf, "", 0)), sim.WithLogEvery(10))
			src.Set(dynamo.Pose{X: 2, Y: 5.5})

			runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(drv.Run(runCtx, time.Millisecond)).To(Succeed())

			Expect(drv.Outcome()).To(Equal(dynamo.OutcomeGoalReached))
			Expect(buf.String()).To(ContainSubstring("goal reached"))
			cmds := sink.Commands()
			Expect(cmds[len(cmds)-1]).To(Equal(dynamo.Stop))
		})

		It("retries a stop the sink rejected at the goal", func() {
			gate := &stopGate{failures: 1}
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			d, err := sim.NewDriver(ctrl, src, gate, params.Ts)
			Expect(err).NotTo(HaveOccurred())
			src.Set(dynamo.Pose{X: 2, Y: 5.5})

			runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			Expect(d.Run(runCtx, time.Millisecond)).To(Succeed())

			Expect(d.Outcome()).To(Equal(dynamo.OutcomeGoalReached))
			Expect(gate.Attempts()).To(Equal(2))
			cmds := gate.Commands()
			Expect(cmds[len(cmds)-1]).To(Equal(dynamo.Stop))
		})

		It("fails when the stop never gets through", func() {
			gate := &stopGate{failures: -1}
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			d, err := sim.NewDriver(ctrl, src, gate, params.Ts)
			Expect(err).NotTo(HaveOccurred())
			src.Set(dynamo.Pose{X: 2, Y: 5.5})

			runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			err = d.Run(runCtx, time.Millisecond)
			Expect(err).To(MatchError(errStopRejected))
			Expect(gate.Attempts()).To(Equal(2))
			Expect(gate.Commands()).NotTo(ContainElement(dynamo.Stop))
		})

		It("logs a stop that fails on cancel", func() {
			var buf bytes.Buffer
			gate := &stopGate{failures: -1}
			ctrl, err := control.NewDirection(params)
			Expect(err).NotTo(HaveOccurred())
			d, err := sim.NewDriver(ctrl, src, gate, params.Ts, sim.WithLogger(log.New(&buf, "", 0)))
			Expect(err).NotTo(HaveOccurred())

			runCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			Expect(d.Run(runCtx, time.Millisecond)).To(MatchError(dynamo.ErrNoPose))
			Expect(gate.Attempts()).To(Equal(1))
			Expect(buf.String()).To(ContainSubstring("stop on exit"))
		})

		It("reports a missing pose when canceled early", func() {
			runCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()

			err := drv.Run(runCtx, time.Millisecond)
			Expect(err).To(MatchError(dynamo.ErrNoPose))
			Expect(sink.Commands()).To(Equal([]dynamo.Command{dynamo.Stop}))
		})

		It("sends a stop when canceled mid-maneuver", func() {
			src.Set(dynamo.Pose{X: -100, Y: -100})
			runCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
			defer cancel()

			err := drv.Run(runCtx, time.Millisecond)
			Expect(errors.Is(err, context.DeadlineExceeded)).To(BeTrue())
			cmds := sink.Commands()
			Expect(len(cmds)).To(BeNumerically(">", 1))
			Expect(cmds[len(cmds)-1]).To(Equal(dynamo.Stop))
		})
	})

	It("rejects a non-positive sampling period", func() {
		ctrl, err := control.NewDirection(params)
		Expect(err).NotTo(HaveOccurred())
		_, err = sim.NewDriver(ctrl, src, sink, 0)
		Expect(err).To(MatchError(dynamo.ErrInvalidConfig))
	})
})
