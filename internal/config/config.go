package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	CurveType       string
	PoolType        string
	SpotPrice       string
	Delta           string
	TradeFee        string
	ProtocolFee     string
	RoyaltyFee      string
	CarryFee        string
	AllowlistIDs    []string
	RPCURL          string
	Collection      string
	PGDSN           string
	Out             string
	Snapshot        string
	SnapshotEnabled bool
	Trades          int
	Seed            int64
	MaxRetries      int
	RetryBackoff    time.Duration
	LogLevel        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("POOLSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("curve", "linear")
	v.SetDefault("pool-type", "trade")
	v.SetDefault("spot", "1.0")
	v.SetDefault("delta", "0.1")
	v.SetDefault("trade-fee", "0")
	v.SetDefault("protocol-fee", "0")
	v.SetDefault("royalty-fee", "0")
	v.SetDefault("carry-fee", "0")
	v.SetDefault("out", "./data/trades.jsonl")
	v.SetDefault("snapshot", "./data/pool.json")
	v.SetDefault("snapshot-enabled", true)
	v.SetDefault("trades", 100)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")

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
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		CurveType:       v.GetString("curve"),
		PoolType:        v.GetString("pool-type"),
		SpotPrice:       v.GetString("spot"),
		Delta:           v.GetString("delta"),
		TradeFee:        v.GetString("trade-fee"),
		ProtocolFee:     v.GetString("protocol-fee"),
		RoyaltyFee:      v.GetString("royalty-fee"),
		CarryFee:        v.GetString("carry-fee"),
		AllowlistIDs:    getStringSlice(v, "allowlist"),
		RPCURL:          v.GetString("rpc"),
		Collection:      v.GetString("collection"),
		PGDSN:           v.GetString("pg-dsn"),
		Out:             v.GetString("out"),
		Snapshot:        v.GetString("snapshot"),
		SnapshotEnabled: v.GetBool("snapshot-enabled"),
		Trades:          v.GetInt("trades"),
		Seed:            v.GetInt64("seed"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		LogLevel:        v.GetString("log-level"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
