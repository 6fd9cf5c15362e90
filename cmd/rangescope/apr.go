package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rangeScope/internal/model"
	"rangeScope/internal/projection"
	"rangeScope/internal/v3math"
)

func newAPRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apr",
		Short: "Estimate APR/APY and revenue of a position",
		RunE:  runAPR,
	}

	cmd.Flags().Uint64("chain", 1, "chain id")
	cmd.Flags().String("pool", "", "pool address")
	cmd.Flags().Int32("lower", 0, "lower tick")
	cmd.Flags().Int32("upper", 0, "upper tick")
	cmd.Flags().Float64("min-price", 0, "lower bound as a display price (overrides --lower)")
	cmd.Flags().Float64("max-price", 0, "upper bound as a display price (overrides --upper)")
	cmd.Flags().Bool("full-range", false, "use the full tick range")
	cmd.Flags().Float64("usd", 0, "deposit in quote currency")
	cmd.Flags().String("amount0", "", "deposit of token0 in raw units")
	cmd.Flags().String("amount1", "", "deposit of token1 in raw units")
	cmd.Flags().String("csv", "", "write the result as CSV to this path (- for stdout)")
	cmd.Flags().Bool("json", false, "print the full result as JSON")

	return cmd
}

func runAPR(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	input, err := positionFromFlags(cmd)
	if err != nil {
		return err
	}
	if _, err := cfg.Chains.Get(input.ChainID); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	minPrice, _ := cmd.Flags().GetFloat64("min-price")
	maxPrice, _ := cmd.Flags().GetFloat64("max-price")
	if minPrice > 0 || maxPrice > 0 {
		if err := a.applyPriceRange(ctx, &input, minPrice, maxPrice); err != nil {
			return err
		}
	}

	logger.Info("calculating",
		zap.Uint64("chain_id", input.ChainID),
		zap.String("pool", input.PoolID),
		zap.Int32("tick_lower", input.TickLower),
		zap.Int32("tick_upper", input.TickUpper),
		zap.Bool("full_range", input.FullRange),
	)

	result, err := a.calc.Calculate(ctx, input)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if csvPath, _ := cmd.Flags().GetString("csv"); csvPath != "" {
		return writeCSV(result, csvPath, out)
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	return printResult(out, result)
}

func positionFromFlags(cmd *cobra.Command) (model.PositionInput, error) {
	flags := cmd.Flags()
	chainID, _ := flags.GetUint64("chain")
	pool, _ := flags.GetString("pool")
	lower, _ := flags.GetInt32("lower")
	upper, _ := flags.GetInt32("upper")
	fullRange, _ := flags.GetBool("full-range")
	usd, _ := flags.GetFloat64("usd")
	amount0, _ := flags.GetString("amount0")
	amount1, _ := flags.GetString("amount1")

	input := model.PositionInput{
		ChainID:   chainID,
		PoolID:    pool,
		TickLower: lower,
		TickUpper: upper,
		FullRange: fullRange,
	}
	switch {
	case flags.Changed("usd") && (amount0 != "" || amount1 != ""):
		return model.PositionInput{}, fmt.Errorf("%w: use either --usd or --amount0/--amount1", model.ErrInvalidInput)
	case flags.Changed("usd"):
		input.Deposit = model.USDDeposit(usd)
	default:
		input.Deposit = model.TokenDeposit(amount0, amount1)
	}
	return input, nil
}

// applyPriceRange converts display prices to usable ticks of the pool.
func (a *app) applyPriceRange(ctx context.Context, input *model.PositionInput, minPrice, maxPrice float64) error {
	if minPrice <= 0 || maxPrice <= 0 {
		return fmt.Errorf("%w: --min-price and --max-price must be set together", model.ErrInvalidInput)
	}
	pool, err := a.currentPool(ctx, input.ChainID, input.PoolID)
	if err != nil {
		return err
	}

	invert := v3math.DisplayShouldInvert(pool.Token0, pool.Token1)
	current := v3math.ReadablePrice(pool.Tick, pool.Token0, pool.Token1, invert)
	if err := v3math.ValidateRange(minPrice, maxPrice, current); err != nil {
		return err
	}

	tickA, err := v3math.TickFromReadablePrice(minPrice, pool.Token0, pool.Token1, invert)
	if err != nil {
		return err
	}
	tickB, err := v3math.TickFromReadablePrice(maxPrice, pool.Token0, pool.Token1, invert)
	if err != nil {
		return err
	}
	if tickA > tickB {
		tickA, tickB = tickB, tickA
	}
	spacing := pool.TickSpacing
	if spacing <= 0 {
		spacing = v3math.TickSpacingForFee(pool.Fee)
	}
	input.TickLower = v3math.NearestUsableTick(tickA, spacing)
	input.TickUpper = v3math.NearestUsableTick(tickB, spacing)
	if input.TickLower == input.TickUpper {
		input.TickUpper += spacing
	}
	input.FullRange = false
	return nil
}

// currentPool reads the pool head state, from the subgraph when configured
// and from the chain otherwise.
func (a *app) currentPool(ctx context.Context, chainID uint64, poolID string) (model.Pool, error) {
	if a.cfg.GraphAPIKey != "" || hasCustomSubgraph(a.cfg.Chains) {
		indexed, err := a.graph.FetchPool(ctx, chainID, poolID, nil)
		if err == nil {
			return indexed.Pool, nil
		}
		a.logger.Warn("subgraph pool lookup failed, reading chain", zap.Error(err))
	}
	return a.chains.ReadPoolState(ctx, chainID, poolID, nil)
}

func writeCSV(result model.APRResult, path string, stdout io.Writer) error {
	if path == "-" {
		return projection.ExportCSV(result, stdout)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	if err := projection.ExportCSV(result, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func printResult(w io.Writer, result model.APRResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Pool\t%s (chain %d)\n", result.PoolID, result.ChainID)
	fmt.Fprintf(tw, "Range\t[%d, %d]\n", result.TickLower, result.TickUpper)
	fmt.Fprintf(tw, "Position value\t%s\n", projection.FormatAmount(result.PositionValue))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Window\tAPR\tAPY\tFees\tSource")
	for _, window := range model.Windows {
		res, _ := result.WindowResult(window)
		src := "indexed"
		if res.UsedFallback {
			src = "chain"
		}
		if res.Err != "" {
			src = "unavailable"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			window,
			projection.FormatPercent(result.APRFor(window)),
			projection.FormatPercent(result.APYFor(window)),
			projection.FormatAmount(res.TotalQuote),
			src,
		)
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Monthly revenue\t%s\n", projection.FormatAmount(result.MonthlyRevenue))
	fmt.Fprintf(tw, "Yearly revenue\t%s\n", projection.FormatAmount(result.YearlyRevenue))
	for _, advisory := range result.Advisories {
		fmt.Fprintf(tw, "Note\t%s\n", advisory)
	}
	return tw.Flush()
}
