package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rangeScope/internal/config"
	"rangeScope/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print recorded results from the history sink as JSON lines",
		RunE:  runHistory,
	}
	cmd.Flags().Uint64("chain", 0, "chain id (0 matches every chain)")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().String("since", "", "only records at or after (unix seconds or RFC3339)")
	cmd.Flags().Int("limit", 50, "maximum records (0 for no limit)")
	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	chainID, _ := cmd.Flags().GetUint64("chain")
	pool, _ := cmd.Flags().GetString("pool")
	rawSince, _ := cmd.Flags().GetString("since")
	limit, _ := cmd.Flags().GetInt("limit")
	since, err := config.ParseTimestamp(rawSince)
	if err != nil {
		return fmt.Errorf("parse since: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, logger: logger}
	defer a.Close()
	reader, err := a.historyReader(ctx)
	if err != nil {
		return err
	}

	records, err := reader.Records(ctx, storage.Filter{ChainID: chainID, PoolID: pool, Since: since, Limit: limit})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
