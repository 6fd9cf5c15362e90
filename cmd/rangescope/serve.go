package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rangeScope/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the calculator over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("http-addr", ":8080", "listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.results.Run(ctx, cfg.CacheCleanupInterval)

	srv := server.New(server.Config{
		Calculator: a.calc,
		Health:     a.arbiter,
		Pools:      a.graph,
		Chains:     cfg.Chains.IDs(),
		Metrics:    a.metrics.Handler(),
		Recorder:   a.metrics,
		Logger:     logger,
	})

	logger.Info("serve start",
		zap.String("addr", cfg.HTTPAddr),
		zap.Uint64s("chains", cfg.Chains.IDs()),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.String("history", cfg.History),
	)
	return srv.Run(ctx, cfg.HTTPAddr)
}
