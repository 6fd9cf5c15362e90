package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rangeScope/internal/model"
	"rangeScope/internal/projection"
	"rangeScope/internal/v3math"
)

func newPoolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pools",
		Short: "Discover pools through the subgraph",
	}
	cmd.PersistentFlags().Uint64("chain", 1, "chain id")

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search pools by token symbol or address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withPools(cmd, func(ctx context.Context, a *app, chainID uint64) error {
				pools, err := a.graph.SearchPools(ctx, chainID, args[0], limit)
				if err != nil {
					return err
				}
				return printPools(cmd.OutOrStdout(), pools)
			})
		},
	}
	search.Flags().Int("limit", 20, "maximum results")

	popular := &cobra.Command{
		Use:   "popular",
		Short: "List the pools with the highest TVL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withPools(cmd, func(ctx context.Context, a *app, chainID uint64) error {
				pools, err := a.graph.PopularPools(ctx, chainID, limit)
				if err != nil {
					return err
				}
				return printPools(cmd.OutOrStdout(), pools)
			})
		},
	}
	popular.Flags().Int("limit", 20, "maximum results")

	byTokens := &cobra.Command{
		Use:   "by-tokens <tokenA> <tokenB>",
		Short: "Find the pool of a token pair and fee tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fee, _ := cmd.Flags().GetUint32("fee")
			return withPools(cmd, func(ctx context.Context, a *app, chainID uint64) error {
				tokenA, err := resolveToken(a, chainID, args[0])
				if err != nil {
					return err
				}
				tokenB, err := resolveToken(a, chainID, args[1])
				if err != nil {
					return err
				}
				pool, err := a.graph.PoolByTokens(ctx, chainID, tokenA, tokenB, fee)
				if err != nil {
					return err
				}
				return printPools(cmd.OutOrStdout(), []model.Pool{pool})
			})
		},
	}
	byTokens.Flags().Uint32("fee", 3000, "fee tier in hundredths of a bip")

	ranges := &cobra.Command{
		Use:   "ranges <pool>",
		Short: "Suggest price ranges around the current price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPools(cmd, func(ctx context.Context, a *app, chainID uint64) error {
				pool, err := a.currentPool(ctx, chainID, args[0])
				if err != nil {
					return err
				}
				return printRanges(cmd.OutOrStdout(), pool)
			})
		},
	}

	cmd.AddCommand(search, popular, byTokens, ranges)
	return cmd
}

func withPools(cmd *cobra.Command, fn func(ctx context.Context, a *app, chainID uint64) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	chainID, _ := cmd.Flags().GetUint64("chain")
	if _, err := cfg.Chains.Get(chainID); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a, chainID)
}

// resolveToken accepts an address or a well-known symbol of the chain.
func resolveToken(a *app, chainID uint64, ref string) (string, error) {
	if _, err := model.ParseAddress(ref); err == nil {
		return ref, nil
	}
	token, ok := a.cfg.Chains[chainID].TokenBySymbol(ref)
	if !ok {
		return "", errors.New("unknown token " + ref + ": pass an address")
	}
	return token.Address, nil
}

func printPools(w io.Writer, pools []model.Pool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Pool\tPair\tFee\tPrice\tTVL\tVolume")
	for _, p := range pools {
		invert := v3math.DisplayShouldInvert(p.Token0, p.Token1)
		base, quote := p.Token0.Symbol, p.Token1.Symbol
		if invert {
			base, quote = quote, base
		}
		price := v3math.PriceFromSqrtPriceX96(p.SqrtPriceX96, p.Token0.Decimals, p.Token1.Decimals)
		if invert && price != 0 {
			price = 1 / price
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%.2f%%\t%s\t%s\t%s\n",
			p.ID, base, quote, float64(p.Fee)/10000,
			v3math.FormatPrice(price, 6),
			projection.FormatAmount(p.TVLUSD),
			projection.FormatAmount(p.VolumeUSD),
		)
	}
	return tw.Flush()
}

func printRanges(w io.Writer, pool model.Pool) error {
	invert := v3math.DisplayShouldInvert(pool.Token0, pool.Token1)
	current := v3math.ReadablePrice(pool.Tick, pool.Token0, pool.Token1, invert)
	spacing := pool.TickSpacing
	if spacing <= 0 {
		spacing = v3math.TickSpacingForFee(pool.Fee)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Current\t%s\n", v3math.FormatPrice(current, 6))
	fmt.Fprintln(tw, "Band\tMin\tMax\tTicks")
	for _, s := range v3math.RangeSuggestions(current) {
		lower, err := v3math.TickFromReadablePrice(s.Lower, pool.Token0, pool.Token1, invert)
		if err != nil {
			return err
		}
		upper, err := v3math.TickFromReadablePrice(s.Upper, pool.Token0, pool.Token1, invert)
		if err != nil {
			return err
		}
		if lower > upper {
			lower, upper = upper, lower
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t[%d, %d]\n", s.Name,
			v3math.FormatPrice(s.Lower, 6), v3math.FormatPrice(s.Upper, 6),
			v3math.NearestUsableTick(lower, spacing), v3math.NearestUsableTick(upper, spacing))
	}
	lower, upper := v3math.FullRangeTicks(spacing)
	fmt.Fprintf(tw, "full\t0\t∞\t[%d, %d]\n", lower, upper)
	return tw.Flush()
}
