package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rangeScope/internal/cache"
	"rangeScope/internal/calculator"
	"rangeScope/internal/chain"
	"rangeScope/internal/config"
	"rangeScope/internal/dex"
	"rangeScope/internal/kv"
	"rangeScope/internal/model"
	"rangeScope/internal/observability"
	"rangeScope/internal/oracle"
	"rangeScope/internal/source"
	"rangeScope/internal/storage"
	"rangeScope/internal/storage/postgres"
	"rangeScope/internal/subgraph"
)

const (
	resultNamespace = "apr"
	feedMaxAge      = 2 * time.Hour
	feedCacheFor    = time.Minute
)

// app holds every wired component of one command invocation.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	pg       *postgres.Store
	store    kv.Store
	results  *cache.Cache[model.APRResult]
	registry *chain.Registry
	chains   *dex.ChainReader
	graph    *subgraph.Client
	arbiter  *source.Arbiter
	calc     *calculator.Calculator
	history  storage.Sink
}

// loadConfig reads configuration and builds the logger for cmd.
func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// newCacheApp wires only the result cache and its store.
func newCacheApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: observability.NewMetrics("")}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// newApp wires the full calculation pipeline.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a, err := newCacheApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	endpoints := make(map[uint64]chain.Endpoint, len(cfg.Chains))
	subgraphs := make(map[uint64]string, len(cfg.Chains))
	blockTimes := make(map[uint64]time.Duration, len(cfg.Chains))
	known := make(map[uint64][]model.Token, len(cfg.Chains))
	feeds := make(map[uint64]string, len(cfg.Chains))
	wrapped := make(map[uint64]string, len(cfg.Chains))
	for id, c := range cfg.Chains {
		endpoints[id] = chain.Endpoint{URL: c.RPCURL, BlockTime: c.BlockTime()}
		if url := c.Subgraph(); url != "" {
			subgraphs[id] = url
		}
		blockTimes[id] = c.BlockTime()
		known[id] = c.Tokens
		if c.NativeUSDFeed != "" {
			feeds[id] = c.NativeUSDFeed
		}
		wrapped[id] = "W" + c.NativeSymbol
	}

	a.registry = chain.NewRegistry(endpoints, logger)
	a.chains = dex.NewChainReader(func(ctx context.Context, chainID uint64) (dex.ChainClient, error) {
		client, err := a.registry.Client(ctx, chainID)
		if err != nil {
			return nil, err
		}
		return client, nil
	}, known, logger)

	a.graph = subgraph.New(subgraph.Config{
		Endpoints: subgraphs,
		APIKey:    cfg.GraphAPIKey,
		Logger:    logger,
	})

	var indexed source.IndexedSource
	if cfg.GraphAPIKey != "" || hasCustomSubgraph(cfg.Chains) {
		indexed = a.graph
	} else {
		logger.Warn("no graph api key configured, reading chain state directly")
	}
	a.arbiter = source.NewArbiter(indexed, a.chains, source.Config{
		LagThreshold: cfg.LagThreshold,
		BlockTimes:   blockTimes,
		Logger:       logger,
		Recorder:     a.metrics,
	})

	prices := oracle.NewChainlink(a.chains, oracle.ChainlinkConfig{
		Feeds:    feeds,
		MaxAge:   feedMaxAge,
		CacheFor: feedCacheFor,
		Fallback: oracle.NewStatic(cfg.NativePrices),
		Logger:   logger,
	})

	if err := a.openHistory(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.calc = calculator.New(a.arbiter, prices, a.results, a.history, calculator.Config{
		Freshness:     cfg.ResultFreshness,
		CacheTTL:      cfg.CacheTTL,
		MaxAttempts:   cfg.MaxAttempts,
		RetryBackoff:  cfg.RetryBackoff,
		WrappedNative: wrapped,
		Logger:        logger,
		Recorder:      a.metrics,
	})
	return a, nil
}

func hasCustomSubgraph(chains config.Chains) bool {
	for _, c := range chains {
		if c.SubgraphURL != "" {
			return true
		}
	}
	return false
}

func (a *app) pgStore(ctx context.Context) (*postgres.Store, error) {
	if a.pg != nil {
		return a.pg, nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	a.pg = store
	return store, nil
}

func (a *app) openStore(ctx context.Context) (kv.Store, error) {
	switch a.cfg.CacheBackend {
	case config.CacheMemory:
		return kv.NewMemoryStore(), nil
	case config.CacheRedis:
		return kv.OpenRedis(ctx, kv.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
			Prefix:   "rangescope:",
		})
	case config.CachePostgres:
		pg, err := a.pgStore(ctx)
		if err != nil {
			return nil, err
		}
		return pg.KV(), nil
	default:
		return kv.OpenBolt(a.cfg.CachePath)
	}
}

func (a *app) openCache(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open %s cache: %w", a.cfg.CacheBackend, err)
	}
	a.store = store

	results, err := cache.Open[model.APRResult](ctx, store, cache.Options{
		Namespace:  resultNamespace,
		DefaultTTL: a.cfg.CacheTTL,
		MaxEntries: a.cfg.CacheMaxEntries,
		Logger:     a.logger,
		Recorder:   a.metrics,
	})
	if err != nil {
		return err
	}
	a.results = results
	return nil
}

func (a *app) openHistory(ctx context.Context) error {
	switch a.cfg.History {
	case config.HistoryNone:
		return nil
	case config.HistoryPostgres:
		pg, err := a.pgStore(ctx)
		if err != nil {
			return err
		}
		a.history = pg
	default:
		a.history = storage.NewJsonlStorage(a.cfg.HistoryOut)
	}
	return nil
}

// historyReader returns the configured history sink as a reader.
func (a *app) historyReader(ctx context.Context) (recordReader, error) {
	switch a.cfg.History {
	case config.HistoryNone:
		return nil, errors.New("result history is disabled (history=none)")
	case config.HistoryPostgres:
		pg, err := a.pgStore(ctx)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return storage.NewJsonlStorage(a.cfg.HistoryOut), nil
	}
}

type recordReader interface {
	Records(ctx context.Context, f storage.Filter) ([]storage.Record, error)
}

// Close releases every opened resource. The Postgres store is closed last
// because the cache may sit on top of it.
func (a *app) Close() {
	if a.registry != nil {
		a.registry.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close cache store", zap.Error(err))
		}
	}
	if a.pg != nil {
		a.pg.Close()
	}
	_ = a.logger.Sync()
}
