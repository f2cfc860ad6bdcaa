package main

import (
	"context"
	"fmt"
	"github.com/Borislavv/wcsketch/pkg/bench"
	"github.com/Borislavv/wcsketch/pkg/config"
	"github.com/Borislavv/wcsketch/pkg/prometheus/metrics"
	"github.com/Borislavv/wcsketch/pkg/sketch"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"os"
)

// logLevelEnv overrides bench.log_level.
const logLevelEnv = "WCE_LOG_LEVEL"

type rootOptions struct {
	configPath   string
	printMetrics bool
	snapshotPath string
	variant      string
}

func (o *rootOptions) bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.configPath, "config", "c", "", "yaml or toml config file (default: built-in defaults)")
	fs.BoolVarP(&o.printMetrics, "metrics", "m", false, "print the prometheus exposition after the run")
	fs.StringVarP(&o.snapshotPath, "snapshot", "s", "", "write the encoded final sketches to this path")
	fs.StringVar(&o.variant, "variant", "", "override sketch.variant of the config")
}

// app is what the subcommands share once the root has loaded the config.
type app struct {
	opts   rootOptions
	cfg    *config.Config
	meter  *metrics.Metrics
	runner *bench.Runner
}

func BuildRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:          "wcebench",
		Short:        "Benchmark weighted cardinality sketches",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(a.opts.configPath, a.opts.variant)
			if err != nil {
				return err
			}
			setupLogger(cfg)

			a.cfg = cfg
			a.meter = metrics.New()
			a.runner = bench.NewRunner(cfg, a.meter)
			log.Info().Msgf("[wcebench] run %s: variant %s, m=%d", a.runner.RunID(), cfg.Sketch.Variant, cfg.Sketch.M)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.finish(cmd)
		},
	}
	a.opts.bind(cmd.PersistentFlags())

	cmd.AddCommand(
		a.accuracyCmd(),
		a.jaccardCmd(),
		a.throughputCmd(),
		a.variantsCmd(),
	)
	return cmd
}

func loadConfig(path, variant string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg = config.Default()
	} else if cfg, err = config.LoadConfig(path); err != nil {
		return nil, err
	}

	if variant != "" {
		if cfg.Sketch.Variant, err = sketch.ParseVariant(variant); err != nil {
			return nil, err
		}
	}
	if level, ok := os.LookupEnv(logLevelEnv); ok {
		cfg.Bench.LogLevel = level
	}
	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setupLogger(cfg *config.Config) {
	zerolog.SetGlobalLevel(cfg.Bench.Level)
	if !cfg.IsProd() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// finish writes the optional snapshot and metrics of a completed run.
func (a *app) finish(cmd *cobra.Command) error {
	if a.opts.snapshotPath != "" || a.cfg.Bench.Snapshot.Enabled {
		data, err := a.runner.Snapshot()
		if err != nil {
			return fmt.Errorf("encode snapshot: %w", err)
		}
		log.Info().Msgf("[wcebench] snapshot is %s (%s)", humanize.IBytes(uint64(len(data))), a.cfg.Bench.Snapshot.Format)
		if a.opts.snapshotPath != "" {
			if err = os.WriteFile(a.opts.snapshotPath, data, 0o644); err != nil {
				return fmt.Errorf("write snapshot %s: %w", a.opts.snapshotPath, err)
			}
		}
	}
	if a.opts.printMetrics {
		a.meter.WritePrometheus(cmd.OutOrStdout())
	}
	return nil
}

// run wraps a harness call as a cobra RunE.
func (a *app) run(fn func(ctx context.Context, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return fn(cmd.Context(), cmd)
	}
}
