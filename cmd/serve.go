package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"poll-decision-backend/cache"
	"poll-decision-backend/handlers"
	"poll-decision-backend/routes"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the HTTP API",
	RunE:  serve,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&withWorker, "worker", false,
		"also run the expiry and closing-soon loops in this process")
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !cfg.App.IsDevEnvironment() {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter handlers.Limiter = handlers.NewLocalLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst)
	if a.redis != nil {
		limiter = cache.NewTokenBucketRateLimiter(a.redis, "api", int(cfg.HTTP.RateLimit), cfg.HTTP.RateBurst)
	}

	router := routes.SetupRouter(routes.Deps{
		Config:   cfg.HTTP,
		DB:       a.db,
		Polls:    a.polls,
		Limiter:  limiter,
		Metrics:  a.metrics,
		Gatherer: a.registry,
		Log:      log,
		Version:  Version,
	})
	server := routes.NewServer(cfg.HTTP.Addr(), router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	if withWorker {
		g.Go(func() error { return runWorker(gctx, a) })
	}
	return ignoreCanceled(g.Wait())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
