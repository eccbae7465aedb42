package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/store/memory"
	"github.com/xraph/streampass/store/postgres"
	"github.com/xraph/streampass/store/sqlite"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// Default accounts used when the config leaves them empty.
const (
	defaultAddress = "0x00000000000000000000000000000000000000aa"
	defaultHost    = "0xeb796bdb90ffa0f28255275e16936d25d3418603"
	defaultToken   = "0x5d8b4c2554aeb7e86f387b4d6c00ac33499ed01f"
	defaultOwner   = "0x00000000000000000000000000000000000000d0"
)

// stations are the tier presets of the deployed radio stations, in whole
// tokens.
var stations = map[string][]string{
	"OXDOG": {"0", "60", "120", "240"},
	"BREAD": {"0", "1", "2"},
	"MEV":   {"0", "240", "380", "760", "1800"},
}

// Config is the replay configuration. Values come from the YAML file,
// then STREAMPASS_* environment variables, then flags.
type Config struct {
	Store    string   `yaml:"store" env:"STREAMPASS_STORE"`
	DSN      string   `yaml:"dsn" env:"STREAMPASS_DSN"`
	Address  string   `yaml:"address" env:"STREAMPASS_ADDRESS"`
	Host     string   `yaml:"host" env:"STREAMPASS_HOST"`
	Token    string   `yaml:"token" env:"STREAMPASS_TOKEN"`
	Owner    string   `yaml:"owner" env:"STREAMPASS_OWNER"`
	Name     string   `yaml:"name" env:"STREAMPASS_NAME"`
	Symbol   string   `yaml:"symbol" env:"STREAMPASS_SYMBOL"`
	Station  string   `yaml:"station" env:"STREAMPASS_STATION"`
	Tiers    []string `yaml:"tiers" env:"STREAMPASS_TIERS" envSeparator:","`
	Decimals int      `yaml:"decimals" env:"STREAMPASS_DECIMALS"`
	LogLevel string   `yaml:"log_level" env:"STREAMPASS_LOG_LEVEL"`
	RedisURL string   `yaml:"redis_url" env:"STREAMPASS_REDIS_URL"`
	Audit    bool     `yaml:"audit" env:"STREAMPASS_AUDIT"`
}

func defaultConfig() Config {
	return Config{
		Store:    "memory",
		Address:  defaultAddress,
		Host:     defaultHost,
		Token:    defaultToken,
		Owner:    defaultOwner,
		Decimals: types.TokenDecimals,
		LogLevel: "warn",
	}
}

// loadConfig reads path (if any) over the defaults and applies environment
// overrides.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// schedule resolves explicit tiers first, then the station preset.
func (c Config) schedule() (tier.Schedule, error) {
	thresholds := c.Tiers
	if len(thresholds) == 0 && c.Station != "" {
		preset, ok := stations[strings.ToUpper(c.Station)]
		if !ok {
			return nil, fmt.Errorf("unknown station %q", c.Station)
		}
		thresholds = preset
	}
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("no tiers configured: set tiers or station")
	}
	return tier.ParseSchedule(thresholds, c.Decimals)
}

func (c Config) engineConfig() (streampass.Config, error) {
	out := streampass.Config{Name: c.Name, Symbol: c.Symbol}
	for _, f := range []struct {
		key string
		raw string
		dst *pass.Address
	}{
		{"address", c.Address, &out.Address},
		{"host", c.Host, &out.Host},
		{"token", c.Token, &out.Token},
		{"owner", c.Owner, &out.Owner},
	} {
		addr, err := pass.ParseAddress(f.raw)
		if err != nil {
			return streampass.Config{}, fmt.Errorf("config %s: %w", f.key, err)
		}
		*f.dst = addr
	}

	sched, err := c.schedule()
	if err != nil {
		return streampass.Config{}, err
	}
	out.Schedule = sched
	return out, nil
}

func (c Config) openStore(ctx context.Context) (store.Store, error) {
	switch strings.ToLower(c.Store) {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		path := c.DSN
		if path == "" {
			path = sqlite.MemoryPath
		}
		return sqlite.Open(ctx, path)
	case "postgres":
		if c.DSN == "" {
			return nil, fmt.Errorf("postgres store requires a dsn")
		}
		return postgres.Open(ctx, c.DSN)
	default:
		return nil, fmt.Errorf("unknown store %q", c.Store)
	}
}

func (c Config) logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
