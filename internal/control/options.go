package control

import (
	"github.com/san-kum/poseloop/internal/dynamo"
	"github.com/san-kum/poseloop/internal/integrators"
)

type options struct {
	integ              dynamo.Integrator
	normalizedApproach bool
}

type Option func(*options)

// WithIntegrator replaces the midpoint unicycle integrator used to advance
// the internal pose estimate.
func WithIntegrator(integ dynamo.Integrator) Option {
	return func(o *options) {
		if integ != nil {
			o.integ = integ
		}
	}
}

// WithNormalizedApproach wraps the APPROACH-phase heading error of the
// via-point strategy into (-π, π]. By default it is left unwrapped.
func WithNormalizedApproach() Option {
	return func(o *options) {
		o.normalizedApproach = true
	}
}

func buildOptions(opts []Option) options {
	o := options{integ: integrators.NewUnicycle()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
