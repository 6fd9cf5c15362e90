package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rangeScope/internal/cache"
	"rangeScope/internal/config"
	"rangeScope/internal/projection"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired and corrupt entries and enforce the size limit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(ctx context.Context, a *app) error {
				result, err := a.results.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired=%d corrupt=%d evicted=%d remaining=%d\n",
					result.Expired, result.Corrupt, result.Evicted, result.Remaining)
				return nil
			})
		},
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.results.Stats(ctx)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			})
		},
	}

	export := &cobra.Command{
		Use:   "export",
		Short: "Export live entries as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, _ := cmd.Flags().GetString("out")
			return withCache(cmd, func(ctx context.Context, a *app) error {
				w, closeFn, err := openOutput(out, cmd.OutOrStdout())
				if err != nil {
					return err
				}
				n, err := a.results.Export(ctx, w)
				if cerr := closeFn(); err == nil {
					err = cerr
				}
				if err != nil {
					return err
				}
				a.logger.Info("cache exported", zap.Int("entries", n), zap.String("out", out))
				return nil
			})
		},
	}
	export.Flags().String("out", "-", "output path (- for stdout)")

	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import entries written by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, func(ctx context.Context, a *app) error {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer file.Close()
				n, err := a.results.Import(ctx, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", n)
				return nil
			})
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "List cached results of a pool, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, _ := cmd.Flags().GetUint64("chain")
			pool, _ := cmd.Flags().GetString("pool")
			rawSince, _ := cmd.Flags().GetString("since")
			since, err := config.ParseTimestamp(rawSince)
			if err != nil {
				return fmt.Errorf("parse since: %w", err)
			}
			prefix := ""
			if pool != "" {
				prefix = cache.PoolPrefix(chainID, pool)
			}
			return withCache(cmd, func(ctx context.Context, a *app) error {
				items, err := a.results.History(ctx, prefix)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, item := range items {
					if !since.IsZero() && item.WrittenAt.Before(since) {
						continue
					}
					fmt.Fprintf(out, "%s  %s  24h=%s 7d=%s 30d=%s\n",
						item.WrittenAt.Format(time.RFC3339), item.Key,
						projection.FormatPercent(item.Data.APR24h),
						projection.FormatPercent(item.Data.APR7d),
						projection.FormatPercent(item.Data.APR30d))
				}
				return nil
			})
		},
	}
	history.Flags().Uint64("chain", 1, "chain id")
	history.Flags().String("pool", "", "pool address (empty lists every pool)")
	history.Flags().String("since", "", "only entries written at or after (unix seconds or RFC3339)")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every cached result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCache(cmd, func(ctx context.Context, a *app) error {
				n, err := a.results.Clear(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(cleanup, stats, export, importCmd, history, clearCmd)
	return cmd
}

func withCache(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newCacheApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return file, file.Close, nil
}
