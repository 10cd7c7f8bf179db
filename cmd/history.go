package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/JakeFAU/progress-poller/internal/config"
	"github.com/JakeFAU/progress-poller/internal/storage/postgres"
	"github.com/JakeFAU/progress-poller/internal/store"
)

// historyReader is the read side of store.HistoryRepository.
type historyReader interface {
	ListTicks(ctx context.Context, sessionID uuid.UUID, limit int) ([]store.Tick, error)
}

// newHistory opens the history store. It's a variable so tests can replace it.
var newHistory = func(ctx context.Context, cfg config.Config) (historyReader, func(), error) {
	if cfg.DB.DSN == "" {
		return nil, nil, errors.New("db.dsn is required to read poll history")
	}
	hs, err := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		return nil, nil, err
	}
	return hs, hs.Close, nil
}

func newHistoryCmd(v *viper.Viper) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the recorded ticks of a poll session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			repo, closeFn, err := newHistory(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer closeFn()

			ticks, err := repo.ListTicks(cmd.Context(), sessionID, limit)
			if err != nil {
				return fmt.Errorf("list ticks: %w", err)
			}
			if len(ticks) == 0 {
				return fmt.Errorf("session %s: %w", sessionID, store.ErrNotFound)
			}
			return writeTicks(cmd.OutOrStdout(), ticks)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum ticks to print (0 for all)")
	cmd.Flags().String("dsn", "", "postgres DSN")
	bindFlag(v, "db.dsn", cmd, "dsn")
	return cmd
}

func writeTicks(out io.Writer, ticks []store.Tick) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tAT\tSTATUS\tPROGRESS\tMESSAGE\tLATENCY\tNOTE")
	for _, t := range ticks {
		status := strconv.Itoa(t.StatusCode)
		if t.Failed {
			status = "failed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Seq,
			t.At.UTC().Format(time.RFC3339),
			status,
			strconv.FormatFloat(t.Progress, 'f', -1, 64)+"%",
			t.Message,
			t.Duration,
			t.Note,
		)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write ticks: %w", err)
	}
	return nil
}
