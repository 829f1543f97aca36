package sim

import (
	"context"
	"sync"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// StaticSource always reports the same pose.
type StaticSource struct {
	Pose dynamo.Pose
}

func (s StaticSource) Latest() (dynamo.Pose, bool) { return s.Pose, true }

// SinkFunc adapts a function to dynamo.ActuatorSink.
type SinkFunc func(ctx context.Context, u dynamo.Command) error

func (f SinkFunc) Send(ctx context.Context, u dynamo.Command) error { return f(ctx, u) }

// Discard drops every command.
var Discard dynamo.ActuatorSink = SinkFunc(func(context.Context, dynamo.Command) error { return nil })

// Recorder keeps every command it receives.
type Recorder struct {
	mu       sync.Mutex
	commands []dynamo.Command
}

func (r *Recorder) Send(_ context.Context, u dynamo.Command) error {
	r.mu.Lock()
	r.commands = append(r.commands, u)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Commands() []dynamo.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]dynamo.Command, len(r.commands))
	copy(out, r.commands)
	return out
}
