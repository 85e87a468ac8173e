package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ledger/internal/log"
	"ledger/internal/worker"
)

func newWorkerCommand(env *environment) *cobra.Command {
	var skipStartup bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume recompute requests from the event bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := SignalContext(cmd.Context())
			defer stop()
			return runWorker(ctx, env, skipStartup)
		},
	}
	cmd.Flags().BoolVar(&skipStartup, "skip-startup-recompute", false, "do not recompute every budget before consuming")
	return cmd
}

func runWorker(ctx context.Context, env *environment, skipStartup bool) error {
	logger := env.logger.WithComponent(log.ComponentWorker)

	be, err := openBackend(ctx, env, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	w := worker.NewRecomputeWorker(be.Service, logger)
	if !skipStartup {
		logger.Info("Performing startup recompute...")
		if err := w.StartupRecompute(ctx); err != nil {
			logger.Error("Startup recompute failed", log.FieldError, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming recompute requests", "queue", env.cfg.AMQPRecomputeQueue)
		return be.Bus.ConsumeRecompute(gctx, w.HandleRecompute)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Worker stopped gracefully")
	return nil
}
