package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/bus"
	"github.com/sells-group/lead-enrichment/internal/server"
)

// serve runs the HTTP surface without the listener: peek and manual enrich
// still work (events land on the bus for a listener elsewhere to consume).
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API without consuming events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := bus.Connect(ctx, cfg.Bus)
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				zap.L().Warn("bus close failed", zap.Error(err))
			}
		}()

		srv := server.New(cfg.Server, b, b)

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errc
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
