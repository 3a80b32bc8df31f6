package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "close expired polls and announce polls closing soon",
	RunE:  worker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().BoolVar(&runOnce, "once", false,
		"run one pass and exit")
}

func worker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if runOnce {
		tick(ctx, a)
		return nil
	}
	return ignoreCanceled(runWorker(ctx, a))
}

// runWorker ticks every POLL_CHECK_INTERVAL until ctx is done.
func runWorker(ctx context.Context, a *app) error {
	interval := cfg.Polls.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	log.Info("worker started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	tick(ctx, a)
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			tick(ctx, a)
		}
	}
}

func tick(ctx context.Context, a *app) {
	closed, err := a.polls.CloseExpired(ctx)
	if err != nil {
		log.Error("close expired polls", zap.Int("closed", closed), zap.Error(err))
	}
	announced, err := a.polls.NotifyClosingSoon(ctx)
	if err != nil {
		log.Error("announce closing soon", zap.Int("announced", announced), zap.Error(err))
	}
	if closed > 0 || announced > 0 {
		log.Info("worker pass", zap.Int("closed", closed), zap.Int("announced", announced))
	}
}
