package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/tido/internal/api"
	"github.com/nhle/tido/internal/hub"
	"github.com/nhle/tido/internal/sweep"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, s, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			if addr != "" {
				cfg.Server.Addr = addr
			}

			h := hub.New(s, s, logger)
			s.SetNotifier(h)

			sw := sweep.New(s, time.Duration(cfg.Sweep.IntervalSec)*time.Second, logger)
			sw.Start()
			defer sw.Stop()

			srv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           api.NewServer(s, h.Handler(cfg.Server.AllowedOrigins), logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", cfg.Server.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("serving: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			h.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
