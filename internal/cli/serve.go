package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ledger/internal/auth"
	"ledger/internal/cache"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func newServeCommand(env *environment) *cobra.Command {
	var trustedProxies []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := SignalContext(cmd.Context())
			defer stop()
			return runServe(ctx, env, trustedProxies)
		},
	}
	cmd.Flags().StringSliceVar(&trustedProxies, "trusted-proxy", nil, "CIDR whose X-Forwarded-For is honored (repeatable)")
	return cmd
}

func runServe(ctx context.Context, env *environment, trustedProxies []string) error {
	logger := env.logger

	be, err := openBackend(ctx, env, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	limiter := ratelimit.NewLimiter(ratelimit.DefaultConfig())
	authSvc := auth.NewService(be.Store, auth.NewTokenService(env.cfg.JWTSecret, env.cfg.JWTTTL), logger)
	srv := apphttp.NewServer(":"+env.cfg.Port, apphttp.Deps{
		Ledger:         be.Service,
		Auth:           authSvc,
		Logger:         logger,
		Limiter:        limiter,
		TrustedProxies: trustedProxies,
	})

	caches := cache.NewManager()
	caches.Register(be.Summaries)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server",
			"port", env.cfg.Port,
			"backend", env.cfg.DataBackend,
			log.FieldOperation, log.OpStartup)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return caches.Run(gctx, 10*time.Minute)
	})
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
