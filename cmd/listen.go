package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-enrichment/internal/server"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Consume lead events and run the enrichment pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initListener(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(cfg.Server, env.Bus, env.Bus)

		zap.L().Info("listener starting",
			zap.String("stream", cfg.Bus.Stream),
			zap.String("subscription", cfg.Bus.Subscription),
			zap.Int("max_concurrency", cfg.Listener.MaxConcurrency),
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Listener.Run(gctx)
		})
		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		err = g.Wait()

		// The listener has drained its in-flight messages; flush whatever
		// the archive buffer still holds before releasing the sink.
		flushCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		env.Buffer.Close(flushCtx)

		return err
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
}
