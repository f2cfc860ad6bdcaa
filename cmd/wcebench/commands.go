package main

import (
	"context"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/bench"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"io"
	"text/tabwriter"
)

func (a *app) accuracyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accuracy",
		Short: "Repeat the configured sketch over independent seeds and report its error",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command) error {
			rep, err := a.runner.Accuracy(ctx)
			if err != nil {
				return err
			}
			printAccuracy(cmd.OutOrStdout(), []*bench.AccuracyReport{rep})
			return nil
		}),
	}
}

func (a *app) variantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "Run the accuracy scenario for every variant",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command) error {
			reports, err := a.runner.Variants(ctx)
			if err != nil {
				return err
			}
			printAccuracy(cmd.OutOrStdout(), reports)
			return nil
		}),
	}
}

func (a *app) jaccardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "jaccard",
		Short: "Sweep the weighted Jaccard similarity from 0 to 1",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command) error {
			points, err := a.runner.Jaccard(ctx)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TARGET\tTRUTH\tESTIMATE\tABS.ERR")
			for _, p := range points {
				fmt.Fprintf(w, "%.3f\t%.4f\t%.4f\t%.4f\n", p.Target, p.Truth, p.Estimate, p.AbsError)
			}
			return w.Flush()
		}),
	}
}

func (a *app) throughputCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "throughput",
		Short: "Time Add, AddMany and Estimate of the configured sketch",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command) error {
			rep, err := a.runner.Throughput(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "variant:     %s\n", rep.Variant)
			fmt.Fprintf(out, "adds:        %s\n", humanize.Comma(int64(rep.Adds)))
			fmt.Fprintf(out, "add:         %s ops/s\n", humanize.CommafWithDigits(rep.AddsPerSec, 0))
			fmt.Fprintf(out, "add many:    %s ops/s\n", humanize.CommafWithDigits(rep.BatchPerSec, 0))
			fmt.Fprintf(out, "estimate:    %s\n", rep.EstimateTime)
			fmt.Fprintf(out, "memory:      %s total, %s write, %s estimate\n",
				humanize.IBytes(uint64(rep.Memory.Total)),
				humanize.IBytes(uint64(rep.Memory.Write)),
				humanize.IBytes(uint64(rep.Memory.Estimate)))
			return nil
		}),
	}
}

func printAccuracy(out io.Writer, reports []*bench.AccuracyReport) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tM\tTRIALS\tTRUTH\tMEAN\tSTD\tREL.ERR\tMEM.TOTAL\tMEM.WRITE\tMEM.ESTIMATE")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%d\t%d\t%.0f\t%.2f\t%.2f\t%.4f\t%s\t%s\t%s\n",
			r.Variant, r.M, r.Trials, r.Truth, r.Mean, r.StdDev, r.RelError,
			humanize.IBytes(uint64(r.Memory.Total)),
			humanize.IBytes(uint64(r.Memory.Write)),
			humanize.IBytes(uint64(r.Memory.Estimate)))
	}
	_ = w.Flush()
}
