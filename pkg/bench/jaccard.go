package bench

import (
	"context"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/mock"
	"github.com/Borislavv/wcsketch/pkg/prometheus/metrics/keyword"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"math"
	"math/rand/v2"
)

// JaccardPoint compares one estimate with the exact similarity.
type JaccardPoint struct {
	Target   float64 // requested similarity
	Truth    float64 // exact weighted Jaccard of the generated pair
	Estimate float64
	AbsError float64
}

// Jaccard sweeps the target similarity over 0, 1/steps, ..., 1. Both sketches
// of a point share seeds, as comparison requires.
func (r *Runner) Jaccard(ctx context.Context) ([]JaccardPoint, error) {
	opts := r.cfg.Sketch
	steps := r.cfg.Bench.JaccardSteps
	rng := rand.New(rand.NewPCG(r.cfg.Bench.BaseSeed, 0x6a))
	seeds := r.trialSeeds(0, opts.M)

	points := make([]JaccardPoint, 0, steps+1)
	states := make([]*sketch.State, 0, 2*(steps+1))
	for step := 0; step <= steps; step++ {
		if err := checkCtx(ctx); err != nil {
			return nil, err
		}
		target := float64(step) / float64(steps)
		pair := mock.Overlapping(rng, r.cfg.Bench.Elements, target)

		a, err := r.newSketch(opts, seeds)
		if err != nil {
			return nil, err
		}
		b, err := r.newSketch(opts, seeds)
		if err != nil {
			return nil, err
		}
		if err = r.add(a, pair.A.Elements, pair.A.Weights); err != nil {
			return nil, fmt.Errorf("step %d, stream A: %w", step, err)
		}
		if err = r.add(b, pair.B.Elements, pair.B.Weights); err != nil {
			return nil, fmt.Errorf("step %d, stream B: %w", step, err)
		}

		timer := r.meter.NewTimer(keyword.OpJaccard, opts.Variant.String())
		est, err := a.Jaccard(b)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", step, err)
		}
		r.meter.FlushTimer(timer)

		p := JaccardPoint{Target: target, Truth: pair.Jaccard, Estimate: est, AbsError: math.Abs(est - pair.Jaccard)}
		points = append(points, p)
		states = append(states, a.State(), b.State())

		r.event(opts.Variant).Msgf("[bench] %s jaccard: truth %.4f, estimate %.4f", opts.Variant, p.Truth, p.Estimate)
	}
	r.last = states
	return points, nil
}
