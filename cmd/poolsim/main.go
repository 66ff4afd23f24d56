package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nftswap/internal/config"
	"nftswap/internal/curve"
	"nftswap/internal/pool"
	"nftswap/internal/wad"
)

func main() {
	root := &cobra.Command{
		Use:          "poolsim",
		Short:        "NFT AMM pool simulator",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	quoteCmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a hypothetical trade against a configured curve",
		RunE:  runQuote,
	}

	quoteCmd.Flags().String("curve", "linear", "curve strategy (linear, exponential)")
	quoteCmd.Flags().String("spot", "1.0", "spot price")
	quoteCmd.Flags().String("delta", "0.1", "curve delta")
	quoteCmd.Flags().String("trade-fee", "0", "trade fee multiplier")
	quoteCmd.Flags().String("protocol-fee", "0", "protocol fee multiplier")
	quoteCmd.Flags().String("royalty-fee", "0", "royalty numerator")
	quoteCmd.Flags().String("carry-fee", "0", "carry fee multiplier")
	quoteCmd.Flags().String("side", "buy", "trade side (buy, sell)")
	quoteCmd.Flags().Uint64("items", 1, "number of items")
	quoteCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(quoteCmd)

	proveCmd := &cobra.Command{
		Use:   "prove",
		Short: "Build an allowlist multiproof for a batch of identifiers",
		RunE:  runProve,
	}

	proveCmd.Flags().StringSlice("allowlist", nil, "committed identifiers (comma-separated)")
	proveCmd.Flags().StringSlice("ids", nil, "identifiers to prove (comma-separated)")

	root.AddCommand(proveCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run random trades against an in-memory pool",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("curve", "linear", "curve strategy (linear, exponential)")
	simulateCmd.Flags().String("pool-type", "trade", "pool type (token, nft, trade)")
	simulateCmd.Flags().String("spot", "1.0", "starting spot price")
	simulateCmd.Flags().String("delta", "0.1", "curve delta")
	simulateCmd.Flags().String("trade-fee", "0", "trade fee multiplier")
	simulateCmd.Flags().String("protocol-fee", "0", "protocol fee multiplier")
	simulateCmd.Flags().String("royalty-fee", "0", "royalty numerator")
	simulateCmd.Flags().String("carry-fee", "0", "carry fee multiplier")
	simulateCmd.Flags().String("rpc", "", "Ethereum RPC endpoint for royalty lookups")
	simulateCmd.Flags().String("collection", "", "collection contract address")
	simulateCmd.Flags().StringSlice("allowlist", nil, "committed identifiers (comma-separated, default 1..50)")
	simulateCmd.Flags().Int("trades", 100, "number of random trades")
	simulateCmd.Flags().Int64("seed", 0, "random seed (0 means time-based)")
	simulateCmd.Flags().String("out", "./data/trades.jsonl", "output JSONL path")
	simulateCmd.Flags().String("pg-dsn", "", "optional Postgres DSN")
	simulateCmd.Flags().String("snapshot", "./data/pool.json", "snapshot file path")
	simulateCmd.Flags().Bool("snapshot-enabled", true, "enable snapshotting")
	simulateCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	simulateCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	strategy, err := curveFor(cfg.CurveType)
	if err != nil {
		return err
	}
	state, fees, err := pricingFrom(cfg)
	if err != nil {
		return err
	}

	side, _ := cmd.Flags().GetString("side")
	items, _ := cmd.Flags().GetUint64("items")

	var result curve.QuoteResult
	switch side {
	case "buy":
		result = strategy.QuoteBuy(state, items, fees)
	case "sell":
		result = strategy.QuoteSell(state, items, fees)
	default:
		return fmt.Errorf("unknown side %q", side)
	}
	if result.Err != curve.OK {
		return fmt.Errorf("quote failed: %s", result.Err)
	}

	fmt.Printf("side:          %s\n", side)
	fmt.Printf("items:         %d\n", result.NumItems)
	fmt.Printf("total:         %s\n", wad.Format(result.TotalAmount))
	fmt.Printf("new spot:      %s\n", wad.Format(result.NewState.SpotPrice))
	fmt.Printf("trade fee:     %s\n", wad.Format(result.Fees.Trade))
	fmt.Printf("protocol fee:  %s\n", wad.Format(result.Fees.Protocol))
	fmt.Printf("royalty total: %s\n", wad.Format(result.Fees.RoyaltyTotal()))
	return nil
}

func curveFor(name string) (curve.Curve, error) {
	switch name {
	case "linear":
		return curve.NewLinear(), nil
	case "exponential":
		return curve.NewExponential(), nil
	default:
		return nil, fmt.Errorf("unknown curve %q", name)
	}
}

func poolTypeFor(name string) (pool.Type, error) {
	switch name {
	case "token":
		return pool.TypeToken, nil
	case "nft":
		return pool.TypeNFT, nil
	case "trade":
		return pool.TypeTrade, nil
	default:
		return 0, fmt.Errorf("unknown pool type %q", name)
	}
}

func pricingFrom(cfg config.Config) (curve.PricingState, curve.FeeMultipliers, error) {
	spot, err := wad.Parse(cfg.SpotPrice)
	if err != nil {
		return curve.PricingState{}, curve.FeeMultipliers{}, fmt.Errorf("spot: %w", err)
	}
	delta, err := wad.Parse(cfg.Delta)
	if err != nil {
		return curve.PricingState{}, curve.FeeMultipliers{}, fmt.Errorf("delta: %w", err)
	}
	tradeFee, err := wad.Parse(cfg.TradeFee)
	if err != nil {
		return curve.PricingState{}, curve.FeeMultipliers{}, fmt.Errorf("trade fee: %w", err)
	}
	protocolFee, err := wad.Parse(cfg.ProtocolFee)
	if err != nil {
		return curve.PricingState{}, curve.FeeMultipliers{}, fmt.Errorf("protocol fee: %w", err)
	}
	royaltyFee, err := wad.Parse(cfg.RoyaltyFee)
	if err != nil {
		return curve.PricingState{}, curve.FeeMultipliers{}, fmt.Errorf("royalty fee: %w", err)
	}
	carryFee, err := wad.Parse(cfg.CarryFee)
	if err != nil {
		return curve.PricingState{}, curve.FeeMultipliers{}, fmt.Errorf("carry fee: %w", err)
	}

	state := curve.PricingState{SpotPrice: spot, Delta: delta}
	fees := curve.FeeMultipliers{
		Trade:            tradeFee,
		Protocol:         protocolFee,
		RoyaltyNumerator: royaltyFee,
		Carry:            carryFee,
	}
	return state, fees, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	return cfg.Build()
}
