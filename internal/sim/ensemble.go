package sim

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/san-kum/poseloop/internal/dynamo"
)

// StartSampler draws a start pose for one ensemble member.
type StartSampler func(r *rand.Rand) dynamo.Pose

// BoxSampler draws positions uniformly from [xMin, xMax] x [yMin, yMax]
// with a uniform heading.
func BoxSampler(xMin, xMax, yMin, yMax float64) StartSampler {
	return func(r *rand.Rand) dynamo.Pose {
		return dynamo.Pose{
			X:     xMin + r.Float64()*(xMax-xMin),
			Y:     yMin + r.Float64()*(yMax-yMin),
			Theta: dynamo.NormalizeAngle((r.Float64()*2 - 1) * math.Pi),
		}
	}
}

// FacingSampler draws positions like BoxSampler but points the robot at
// target, perturbed by at most spread radians.
func FacingSampler(xMin, xMax, yMin, yMax float64, target dynamo.Pose, spread float64) StartSampler {
	box := BoxSampler(xMin, xMax, yMin, yMax)
	return func(r *rand.Rand) dynamo.Pose {
		q := box(r)
		q.Theta = dynamo.NormalizeAngle(dynamo.Bearing(q, target) + (r.Float64()*2-1)*spread)
		return q
	}
}

type Ensemble struct {
	base       *Simulator
	numRuns    int
	seedStart  int64
	newMetrics func() []dynamo.Metric
}

func NewEnsemble(s *Simulator, numRuns int, seedStart int64) *Ensemble {
	return &Ensemble{base: s, numRuns: numRuns, seedStart: seedStart}
}

// WithMetrics builds a fresh metric set for every run. Metrics added to the
// base simulator are not used by the ensemble.
func (e *Ensemble) WithMetrics(newMetrics func() []dynamo.Metric) *Ensemble {
	e.newMetrics = newMetrics
	return e
}

// Run simulates numRuns start poses in parallel. Start poses are drawn
// up front from seeded generators, so results do not depend on scheduling.
//
// Every run shares the base simulator's controller and driver options, so
// observers passed with WithObserver must be safe for concurrent use.
// Observers added with AddObserver are not carried over.
func (e *Ensemble) Run(ctx context.Context, sample StartSampler, cfg Config) ([]*Result, error) {
	starts := make([]dynamo.Pose, e.numRuns)
	for i := range starts {
		starts[i] = sample(rand.New(rand.NewSource(e.seedStart + int64(i))))
	}

	results := make([]*Result, e.numRuns)
	errs := make([]error, e.numRuns)

	var wg sync.WaitGroup
	for i := 0; i < e.numRuns; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			s := New(e.base.ctrl, e.base.opts...)
			if e.newMetrics != nil {
				for _, m := range e.newMetrics() {
					s.AddMetric(m)
				}
			}
			results[idx], errs[idx] = s.Run(ctx, starts[idx], cfg)
		}(i)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	return results, nil
}
