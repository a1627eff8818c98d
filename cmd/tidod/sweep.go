package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/tido/internal/sweep"
)

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one maintenance pass and exit",
		Long: `Run one maintenance pass: recurrence catch-up, purge of todos
deleted more than seven days ago, and removal of expired sessions and
tokens.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, s, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			sw := sweep.New(s, time.Duration(cfg.Sweep.IntervalSec)*time.Second, logger)
			r, err := sw.RunOnce(cmd.Context())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "recurrences spawned: %d\n", r.RecurrencesSpawned)
			fmt.Fprintf(out, "todos purged:        %d\n", r.TodosPurged)
			fmt.Fprintf(out, "sessions expired:    %d\n", r.SessionsExpired)
			fmt.Fprintf(out, "tokens expired:      %d\n", r.TokensExpired)
			return err
		},
	}
}
