package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/config"
	"github.com/JakeFAU/progress-poller/internal/poller"
)

// Errors mapped to a non-zero exit status.
var (
	ErrJobFailed        = errors.New("job reported an error")
	ErrSessionAbandoned = errors.New("poll session abandoned")
)

const shutdownTimeout = 10 * time.Second

// newWatchCmd creates the 'watch' subcommand. Flags override config keys of
// the same meaning.
func newWatchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Poll a job until it is ready or fails",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				v.Set("job.id", args[0])
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runWatch(cmd, cfg)
		},
	}

	cmd.Flags().String("job-id", "", "job identifier to poll")
	cmd.Flags().String("base-url", "", "progress server base URL")
	cmd.Flags().Duration("interval", 0, "delay between requests")
	cmd.Flags().Int("max-failures", 0, "abandon after this many consecutive failed requests (0 retries forever)")
	bindFlag(v, "job.id", cmd, "job-id")
	bindFlag(v, "server.base_url", cmd, "base-url")
	bindFlag(v, "poll.interval", cmd, "interval")
	bindFlag(v, "poll.max_consecutive_failures", cmd, "max-failures")

	return cmd
}

func runWatch(cmd *cobra.Command, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	logger := a.Logger()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if cerr := a.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close application services", zap.Error(cerr))
		}
	}()

	outcome, err := a.Watch(ctx, cfg.Job.ID, cmd.OutOrStdout())
	switch {
	case errors.Is(err, poller.ErrNoJobID):
		logger.Info("no job id configured; nothing to poll")
		return nil
	case outcome == poller.OutcomeCanceled:
		logger.Info("watch interrupted")
		return nil
	case outcome == poller.OutcomeFailed:
		return ErrJobFailed
	case outcome == poller.OutcomeAbandoned:
		return fmt.Errorf("%w: %w", ErrSessionAbandoned, err)
	case err != nil:
		return fmt.Errorf("watch job %s: %w", cfg.Job.ID, err)
	}
	logger.Info("job ready", zap.String("job_id", cfg.Job.ID))
	return nil
}
