package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	root := &cobra.Command{
		Use:          "rangescope",
		Short:        "Estimate fee APR/APY of concentrated liquidity positions",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file path")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("graph-api-key", "", "The Graph gateway API key")
	flags.String("rpc", "", "RPC URL overrides (comma-separated chainId=url)")
	flags.String("subgraph", "", "subgraph URL overrides (comma-separated chainId=url)")
	flags.String("native-price", "", "static native prices in quote currency (comma-separated chainId=price)")
	flags.Duration("lag-threshold", 30*time.Minute, "indexed source lag above which chain reads are preferred")
	flags.Duration("result-freshness", 5*time.Minute, "maximum age of a cached result")
	flags.String("cache-backend", "bolt", "cache backend (bolt, memory, redis, postgres)")
	flags.String("cache-path", "./data/cache.db", "bolt cache file path")
	flags.Duration("cache-ttl", 5*time.Minute, "cache entry TTL")
	flags.Int("cache-max-entries", 1000, "maximum cached results")
	flags.Duration("cache-cleanup-interval", 5*time.Minute, "cache sweep interval for long-running commands")
	flags.String("redis-addr", "localhost:6379", "Redis address")
	flags.String("redis-password", "", "Redis password")
	flags.Int("redis-db", 0, "Redis database")
	flags.String("pg-dsn", "", "Postgres DSN")
	flags.String("history", "jsonl", "result history sink (jsonl, postgres, none)")
	flags.String("history-out", "./data/results.jsonl", "JSONL result history path")
	flags.Int("max-attempts", 3, "attempts per calculation")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")

	root.AddCommand(
		newAPRCmd(),
		newHealthCmd(),
		newPoolsCmd(),
		newCacheCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
