// Command wcebench runs the accuracy, Jaccard and throughput harness over the
// weighted cardinality sketches.
package main

import (
	"context"
	"errors"
	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("[wcebench] failed to load .env")
	}
	_, _ = maxprocs.Set(maxprocs.Logger(func(s string, i ...any) { log.Debug().Msgf(s, i...) }))
	if limit, err := memlimit.SetGoMemLimitWithOpts(memlimit.WithRatio(0.9)); err == nil {
		log.Debug().Msgf("[wcebench] GOMEMLIMIT=%d", limit)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	root := BuildRootCmd()
	go func() {
		sig := <-sigs
		root.PrintErrf("\nreceived %s, stopping... (repeat to force)\n", sig)
		cancel()
		<-sigs
		os.Exit(1)
	}()

	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
