package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "RANGESCOPE"

// Cache backends.
const (
	CacheBolt     = "bolt"
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

// History sinks.
const (
	HistoryJSONL    = "jsonl"
	HistoryPostgres = "postgres"
	HistoryNone     = "none"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	LogLevel    string
	GraphAPIKey string
	Chains      Chains

	LagThreshold    time.Duration
	ResultFreshness time.Duration

	CacheBackend         string
	CachePath            string
	CacheTTL             time.Duration
	CacheMaxEntries      int
	CacheCleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PGDSN string

	History    string
	HistoryOut string

	MaxAttempts  int
	RetryBackoff time.Duration

	NativePrices map[uint64]float64

	HTTPAddr string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	v.SetDefault("lag-threshold", 30*time.Minute)
	v.SetDefault("result-freshness", 5*time.Minute)
	v.SetDefault("cache-backend", CacheBolt)
	v.SetDefault("cache-path", "./data/cache.db")
	v.SetDefault("cache-ttl", 5*time.Minute)
	v.SetDefault("cache-max-entries", 1000)
	v.SetDefault("cache-cleanup-interval", 5*time.Minute)
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-db", 0)
	v.SetDefault("history", HistoryJSONL)
	v.SetDefault("history-out", "./data/results.jsonl")
	v.SetDefault("max-attempts", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("http-addr", ":8080")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("rangescope")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	chains, err := DefaultChains()
	if err != nil {
		return Config{}, err
	}
	if err := chains.applyOverrides(getStringMap(v, "rpc"), getStringMap(v, "subgraph")); err != nil {
		return Config{}, err
	}

	nativePrices, err := parsePrices(getStringMap(v, "native-price"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:             v.GetString("log-level"),
		GraphAPIKey:          v.GetString("graph-api-key"),
		Chains:               chains,
		LagThreshold:         v.GetDuration("lag-threshold"),
		ResultFreshness:      v.GetDuration("result-freshness"),
		CacheBackend:         strings.ToLower(v.GetString("cache-backend")),
		CachePath:            v.GetString("cache-path"),
		CacheTTL:             v.GetDuration("cache-ttl"),
		CacheMaxEntries:      v.GetInt("cache-max-entries"),
		CacheCleanupInterval: v.GetDuration("cache-cleanup-interval"),
		RedisAddr:            v.GetString("redis-addr"),
		RedisPassword:        v.GetString("redis-password"),
		RedisDB:              v.GetInt("redis-db"),
		PGDSN:                v.GetString("pg-dsn"),
		History:              strings.ToLower(v.GetString("history")),
		HistoryOut:           v.GetString("history-out"),
		MaxAttempts:          v.GetInt("max-attempts"),
		RetryBackoff:         v.GetDuration("retry-backoff"),
		NativePrices:         nativePrices,
		HTTPAddr:             v.GetString("http-addr"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects combinations the wiring layer cannot serve.
func (c Config) Validate() error {
	switch c.CacheBackend {
	case CacheBolt, CacheMemory, CacheRedis:
	case CachePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("cache-backend postgres requires pg-dsn")
		}
	default:
		return fmt.Errorf("unknown cache-backend %q", c.CacheBackend)
	}
	switch c.History {
	case HistoryJSONL, HistoryNone:
	case HistoryPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("history postgres requires pg-dsn")
		}
	default:
		return fmt.Errorf("unknown history sink %q", c.History)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max-attempts must be at least 1")
	}
	if c.CacheMaxEntries < 1 {
		return fmt.Errorf("cache-max-entries must be at least 1")
	}
	if c.LagThreshold <= 0 {
		return fmt.Errorf("lag-threshold must be positive")
	}
	return nil
}

func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case map[string]string:
		return typed
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, item := range typed {
			out[k] = fmt.Sprintf("%v", item)
		}
		return out
	case string:
		return parseStringMap(typed)
	case []string:
		return parseStringMap(strings.Join(typed, ","))
	default:
		return nil
	}
}

// parseStringMap reads "k=v,k=v" pairs, skipping malformed items.
func parseStringMap(input string) map[string]string {
	out := make(map[string]string)
	for _, item := range strings.Split(input, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}

func parsePrices(raw map[string]string) (map[uint64]float64, error) {
	out := make(map[uint64]float64, len(raw))
	for key, value := range raw {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id in native-price: %s", key)
		}
		price, err := strconv.ParseFloat(value, 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid native price for chain %d: %s", id, value)
		}
		out[id] = price
	}
	return out, nil
}
