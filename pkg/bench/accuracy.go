package bench

import (
	"context"
	"errors"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/mock"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"
)

// Memory is the accountant's view of one sketch, in bytes.
type Memory struct {
	Total    int
	Write    int
	Estimate int
}

// AccuracyReport summarizes repeated estimates of a known total weight.
type AccuracyReport struct {
	Variant  sketch.Variant
	M        int
	Trials   int
	Truth    float64
	Mean     float64
	StdDev   float64
	RelError float64 // of the mean
	Memory   Memory
}

// Accuracy runs the configured trials on the configured sketch.
func (r *Runner) Accuracy(ctx context.Context) (*AccuracyReport, error) {
	rep, st, err := r.accuracy(ctx, r.cfg.Sketch)
	if err != nil {
		return nil, err
	}
	r.last = []*sketch.State{st}
	return rep, nil
}

// Variants runs the accuracy scenario once per known variant with the
// configured size and encoding parameters. Variants that reject those
// parameters are skipped with a warning.
func (r *Runner) Variants(ctx context.Context) ([]*AccuracyReport, error) {
	reports := make([]*AccuracyReport, 0, len(sketch.Variants()))
	states := make([]*sketch.State, 0, len(sketch.Variants()))
	for _, v := range sketch.Variants() {
		opts := r.cfg.Sketch
		opts.Variant = v
		rep, st, err := r.accuracy(ctx, opts)
		if err != nil {
			if errors.Is(err, sketch.ErrAmountBits) || errors.Is(err, sketch.ErrLogBase) ||
				errors.Is(err, sketch.ErrJaccardBits) {
				log.Warn().Err(err).Msgf("[bench] skipping %s", v)
				continue
			}
			return nil, err
		}
		reports = append(reports, rep)
		states = append(states, st)
	}
	r.last = states
	return reports, nil
}

func (r *Runner) accuracy(ctx context.Context, opts sketch.Options) (*AccuracyReport, *sketch.State, error) {
	b := r.cfg.Bench
	elems := mock.Elements("acc", b.Elements)
	weights := mock.ConstantWeights(b.Elements, b.Weight)

	estimates := make([]float64, 0, b.Trials)
	var last sketch.Sketch
	for trial := 0; trial < b.Trials; trial++ {
		if err := checkCtx(ctx); err != nil {
			return nil, nil, err
		}
		s, err := r.newSketch(opts, r.trialSeeds(trial, opts.M))
		if err != nil {
			return nil, nil, err
		}
		if err = r.add(s, elems, weights); err != nil {
			return nil, nil, fmt.Errorf("trial %d: %w", trial, err)
		}
		estimates = append(estimates, r.estimate(s))
		last = s
	}

	mean, std := stat.MeanStdDev(estimates, nil)
	truth := float64(b.Elements) * b.Weight
	rep := &AccuracyReport{
		Variant:  opts.Variant,
		M:        opts.M,
		Trials:   b.Trials,
		Truth:    truth,
		Mean:     mean,
		StdDev:   std,
		RelError: relErr(mean, truth),
		Memory:   r.recordMemory(last),
	}
	r.meter.SetRelativeError(opts.Variant.String(), rep.RelError)

	r.event(opts.Variant).Msgf("[bench] %s m=%d: mean %.2f (truth %.0f, rel.err %.4f, std %.2f), memory %s",
		opts.Variant, opts.M, mean, truth, rep.RelError, std, humanize.IBytes(uint64(rep.Memory.Total)))
	return rep, last.State(), nil
}
