// Package cmd defines and implements the CLI commands for the progresswatch
// executable.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-poller/internal/app"
	"github.com/JakeFAU/progress-poller/internal/config"
	"github.com/JakeFAU/progress-poller/internal/logging"
	"github.com/JakeFAU/progress-poller/internal/poller"
)

// App is the part of *app.App the commands use. Tests inject a fake.
type App interface {
	Watch(ctx context.Context, jobID string, out io.Writer) (poller.Outcome, error)
	Logger() *zap.Logger
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command around a fresh Viper
// instance so flags bound by subcommands never leak between invocations.
func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "progresswatch",
		Short: "Watch the progress of an asynchronous server job.",
		Long: `progresswatch polls GET /api/progress/{job_id} once per interval and
renders the reported percentage and message until the job is ready or
reports an error.`,
		SilenceUsage: true,

		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if cfgFile == "" {
				return nil
			}
			v.SetConfigFile(cfgFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("read config %s: %w", cfgFile, err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(newWatchCmd(v))
	cmd.AddCommand(newHistoryCmd(v))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		logger, lerr := logging.New(true)
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("command execution failed", zap.Error(err))
	}
}

// bindFlag panics on a misnamed flag, which is a programming error.
func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", name, err))
	}
}
