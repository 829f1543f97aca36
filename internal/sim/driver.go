package sim

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// Driver is the control loop: it owns the runtime state and the pose cache,
// runs one controller step per tick and forwards the command to the sink.
//
// Ticks must not overlap. Run serializes them; callers driving Tick
// directly must do the same.
type Driver struct {
	ctrl dynamo.Controller
	src  dynamo.PoseSource
	sink dynamo.ActuatorSink
	ts   float64

	state     dynamo.RuntimeState
	observers []dynamo.Observer
	logger    *log.Logger

	trustSource bool
	repeatStop  bool
	logEvery    int

	ticks    int
	skipped  int
	rejected int
}

type DriverOption func(*Driver)

// WithTrustSource makes every tick start from the latest external pose
// instead of the controller's integrated estimate.
func WithTrustSource() DriverOption {
	return func(d *Driver) { d.trustSource = true }
}

// WithRepeatStop re-sends the stop command on every tick after the
// maneuver has ended.
func WithRepeatStop() DriverOption {
	return func(d *Driver) { d.repeatStop = true }
}

func WithLogger(l *log.Logger) DriverOption {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithLogEvery logs progress every n ticks; 0 disables progress lines.
func WithLogEvery(n int) DriverOption {
	return func(d *Driver) { d.logEvery = n }
}

func WithObserver(o dynamo.Observer) DriverOption {
	return func(d *Driver) { d.observers = append(d.observers, o) }
}

func NewDriver(ctrl dynamo.Controller, src dynamo.PoseSource, sink dynamo.ActuatorSink, ts float64, opts ...DriverOption) (*Driver, error) {
	if ctrl == nil || src == nil || sink == nil {
		return nil, fmt.Errorf("driver: controller, pose source and sink are required")
	}
	if ts <= 0 {
		return nil, &dynamo.ConfigError{Field: "ts", Value: ts, Reason: "must be positive"}
	}
	d := &Driver{
		ctrl:   ctrl,
		src:    src,
		sink:   sink,
		ts:     ts,
		logger: log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) AddObserver(o dynamo.Observer) { d.observers = append(d.observers, o) }

func (d *Driver) State() dynamo.RuntimeState { return d.state }
func (d *Driver) Terminal() bool             { return d.state.Terminal() }
func (d *Driver) Outcome() dynamo.Outcome    { return d.state.Outcome }
func (d *Driver) Ticks() int                 { return d.ticks }
func (d *Driver) Skipped() int               { return d.skipped }
func (d *Driver) Rejected() int              { return d.rejected }

// Tick runs one control step. Before the first pose arrives, and after the
// maneuver has ended, it is a no-op that returns the stop command.
// Non-finite poses from the source are dropped; accepted headings are
// wrapped into (-π, π].
func (d *Driver) Tick(ctx context.Context) (dynamo.Command, error) {
	if d.state.Terminal() {
		if d.repeatStop {
			return dynamo.Stop, d.send(ctx, dynamo.Stop)
		}
		return dynamo.Stop, nil
	}

	if !d.state.HavePose || d.trustSource {
		if q, ok := d.src.Latest(); ok {
			d.accept(q)
		}
	}
	if !d.state.HavePose {
		d.skipped++
		return dynamo.Stop, nil
	}

	prev := d.state
	next, u := d.ctrl.Step(prev)
	d.state = next
	d.ticks++

	for _, o := range d.observers {
		o.OnStep(prev, u, next)
	}
	d.report(prev, next)

	return u, d.send(ctx, u)
}

func (d *Driver) accept(q dynamo.Pose) {
	if !q.IsValid() {
		d.rejected++
		d.logger.Printf("driver: drop invalid pose %s", q)
		return
	}
	q.Theta = dynamo.NormalizeAngle(q.Theta)
	d.state.Pose = q
	d.state.HavePose = true
}

func (d *Driver) send(ctx context.Context, u dynamo.Command) error {
	if err := d.sink.Send(ctx, u); err != nil {
		return fmt.Errorf("driver: send command: %w", err)
	}
	return nil
}

func (d *Driver) report(prev, next dynamo.RuntimeState) {
	if next.Terminal() {
		switch next.Outcome {
		case dynamo.OutcomeGoalReached:
			d.logger.Printf("driver: goal reached at t=%.2fs pose=%s", next.Elapsed, next.Pose)
		case dynamo.OutcomeTimeout:
			d.logger.Printf("driver: end of run after %.2fs pose=%s", next.Elapsed, next.Pose)
		}
		return
	}
	if prev.Phase != next.Phase {
		d.logger.Printf("driver: phase %s -> %s at t=%.2fs", prev.Phase, next.Phase, next.Elapsed)
	}
	if d.logEvery <= 0 || d.ticks%d.logEvery != 0 {
		return
	}
	if r, ok := d.ctrl.(dynamo.Referenced); ok {
		d.logger.Printf("driver: t=%.2fs distance to goal %.3f", next.Elapsed, dynamo.Distance(next.Pose, r.Ref()))
		return
	}
	d.logger.Printf("driver: t=%.2fs pose=%s", next.Elapsed, next.Pose)
}

// Run ticks every period until the maneuver ends or ctx is done. A stop
// command is sent on the way out in either case. When the terminal tick
// fails to deliver its stop, Run retries once and returns the error if the
// retry fails too.
func (d *Driver) Run(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		period = time.Duration(d.ts * float64(time.Second))
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.halt(); err != nil {
				d.logger.Printf("driver: %v", err)
			}
			if !d.state.HavePose {
				return dynamo.ErrNoPose
			}
			return ctx.Err()
		case <-ticker.C:
			_, err := d.Tick(ctx)
			if err != nil {
				d.logger.Printf("driver: %v", err)
			}
			if d.Terminal() {
				if err != nil {
					return d.halt()
				}
				return nil
			}
		}
	}
}

func (d *Driver) halt() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := d.sink.Send(ctx, dynamo.Stop); err != nil {
		return fmt.Errorf("driver: stop on exit: %w", err)
	}
	return nil
}
