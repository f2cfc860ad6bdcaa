package bench

import (
	"context"
	"github.com/Borislavv/wcsketch/pkg/mock"
	"github.com/Borislavv/wcsketch/pkg/prometheus/metrics/keyword"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"math/rand/v2"
	"time"
)

// batchSize is the AddMany batch used by the throughput run.
const batchSize = 1024

// ThroughputReport is the speed of one sketch under a stream of random ids of
// varying length with heavy-tailed weights.
type ThroughputReport struct {
	Variant      sketch.Variant
	Adds         int
	AddsPerSec   float64
	BatchPerSec  float64 // elements per second through AddMany
	EstimateTime time.Duration
	Memory       Memory
}

// Throughput times single Add calls, then AddMany batches, then one Estimate.
func (r *Runner) Throughput(ctx context.Context) (*ThroughputReport, error) {
	opts := r.cfg.Sketch
	ops := r.cfg.Bench.Operations
	rng := rand.New(rand.NewPCG(r.cfg.Bench.BaseSeed, 0x7b))
	elems := mock.RandomElements(rng, ops)
	weights := mock.ParetoWeights(rng, ops, 1, 1.5)

	single, err := r.newSketch(opts, nil)
	if err != nil {
		return nil, err
	}
	variant := opts.Variant.String()
	timer := r.meter.NewTimer(keyword.OpAdd, variant)
	for i, e := range elems {
		if i%batchSize == 0 {
			if err = checkCtx(ctx); err != nil {
				return nil, err
			}
		}
		if err = single.Add(e, weights[i]); err != nil {
			return nil, err
		}
	}
	addTime := timer.Elapsed()
	r.meter.FlushTimer(timer)
	r.meter.IncAdds(variant, ops)

	batched, err := r.newSketch(opts, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	for lo := 0; lo < ops; lo += batchSize {
		if err = checkCtx(ctx); err != nil {
			return nil, err
		}
		hi := min(lo+batchSize, ops)
		if err = r.add(batched, elems[lo:hi], weights[lo:hi]); err != nil {
			return nil, err
		}
	}
	batchTime := time.Since(start)

	start = time.Now()
	_ = r.estimate(single)
	estTime := time.Since(start)

	rep := &ThroughputReport{
		Variant:      opts.Variant,
		Adds:         ops,
		AddsPerSec:   perSecond(ops, addTime),
		BatchPerSec:  perSecond(ops, batchTime),
		EstimateTime: estTime,
		Memory:       r.recordMemory(single),
	}
	r.last = []*sketch.State{single.State()}

	r.event(opts.Variant).Msgf("[bench] %s throughput: %.0f adds/s, %.0f batched adds/s, estimate %s",
		opts.Variant, rep.AddsPerSec, rep.BatchPerSec, estTime)
	return rep, nil
}

func perSecond(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
