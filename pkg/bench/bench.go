// Package bench measures sketch accuracy, Jaccard quality and throughput.
// It drives sketches only through the public sketch API.
package bench

import (
	"context"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/config"
	"github.com/Borislavv/wcsketch/pkg/prometheus/metrics"
	"github.com/Borislavv/wcsketch/pkg/prometheus/metrics/keyword"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"github.com/Borislavv/wcsketch/pkg/snapshot"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"math"
	"math/rand/v2"
)

// Runner owns one harness run: its configuration, meter and run id, and the
// states of the sketches it built last.
type Runner struct {
	cfg   *config.Config
	meter metrics.Meter
	runID string
	last  []*sketch.State
}

func NewRunner(cfg *config.Config, meter metrics.Meter) *Runner {
	return &Runner{cfg: cfg, meter: meter, runID: uuid.NewString()}
}

func (r *Runner) RunID() string { return r.runID }

// event starts an info log line, with run context attached in prod.
func (r *Runner) event(variant sketch.Variant) *zerolog.Event {
	e := log.Info()
	if r.cfg.IsProd() {
		e = e.Str("run", r.runID).Str("variant", variant.String())
	}
	return e
}

// trialSeeds draws an explicit seed vector per trial, so trials are
// independent yet reproducible from the base seed.
func (r *Runner) trialSeeds(trial, m int) []uint32 {
	rng := rand.New(rand.NewPCG(r.cfg.Bench.BaseSeed, uint64(trial)))
	seeds := make([]uint32, m)
	for i := range seeds {
		seeds[i] = rng.Uint32()
	}
	return seeds
}

func (r *Runner) newSketch(opts sketch.Options, seeds []uint32) (sketch.Sketch, error) {
	opts.Seeds = seeds
	s, err := sketch.New(opts)
	if err != nil {
		return nil, fmt.Errorf("build %s sketch: %w", opts.Variant, err)
	}
	return s, nil
}

// add inserts a batch and accounts it on the meter.
func (r *Runner) add(s sketch.Sketch, elems []string, weights []float64) error {
	variant := s.Variant().String()
	timer := r.meter.NewTimer(keyword.OpAddMany, variant)
	if err := s.AddMany(elems, weights); err != nil {
		return err
	}
	r.meter.FlushTimer(timer)
	r.meter.IncAdds(variant, len(elems))
	return nil
}

func (r *Runner) estimate(s sketch.Sketch) float64 {
	timer := r.meter.NewTimer(keyword.OpEstimate, s.Variant().String())
	est := s.Estimate()
	r.meter.FlushTimer(timer)
	r.meter.SetEstimate(s.Variant().String(), est)
	return est
}

func (r *Runner) recordMemory(s sketch.Sketch) Memory {
	mem := Memory{
		Total:    s.MemoryUsageTotal(),
		Write:    s.MemoryUsageWrite(),
		Estimate: s.MemoryUsageEstimate(),
	}
	variant := s.Variant().String()
	r.meter.SetMemory(variant, keyword.MemTotal, mem.Total)
	r.meter.SetMemory(variant, keyword.MemWrite, mem.Write)
	r.meter.SetMemory(variant, keyword.MemEstimate, mem.Estimate)
	return mem
}

// Snapshot encodes the states of the sketches built by the last run in the
// configured format.
func (r *Runner) Snapshot() ([]byte, error) {
	format, err := snapshot.ParseFormat(r.cfg.Bench.Snapshot.Format)
	if err != nil {
		return nil, err
	}
	return snapshot.Encode(r.last, format)
}

func relErr(est, truth float64) float64 {
	if truth == 0 {
		return math.Abs(est)
	}
	return math.Abs(est-truth) / truth
}

func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		log.Warn().Msg("[bench] context cancelled")
		return err
	}
	return nil
}
