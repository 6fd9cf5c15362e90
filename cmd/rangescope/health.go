package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Report indexed source lag per chain",
		RunE:  runHealth,
	}
	cmd.Flags().Uint64("chain", 0, "chain id (0 checks every configured chain)")
	return cmd
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	chainIDs := cfg.Chains.IDs()
	if chainID, _ := cmd.Flags().GetUint64("chain"); chainID != 0 {
		if _, err := cfg.Chains.Get(chainID); err != nil {
			return err
		}
		chainIDs = []uint64{chainID}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Chain\tName\tHealthy\tLag\tBlock\tError")
	unhealthy := 0
	for _, id := range chainIDs {
		h := a.arbiter.Health(ctx, id)
		if !h.Healthy {
			unhealthy++
		}
		fmt.Fprintf(tw, "%d\t%s\t%t\t%ds\t%d\t%s\n", id, cfg.Chains[id].Name, h.Healthy, h.LagSeconds, h.BlockNumber, h.Err)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if unhealthy > 0 {
		return fmt.Errorf("%d of %d chains unhealthy", unhealthy, len(chainIDs))
	}
	return nil
}
