// streampass replays stream lifecycle scenarios against a pass engine
// backed by a simulated streaming host.
//
// Usage:
//
//	streampass replay [-c config.yaml] scenario.yaml
//	streampass stations
//
// Configuration is read from the YAML file, then STREAMPASS_* environment
// variables, then flags. A scenario whose expectations fail exits with
// status 2.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/xraph/streampass"
	audithook "github.com/xraph/streampass/audit_hook"
	"github.com/xraph/streampass/flow/sim"
	"github.com/xraph/streampass/id"
	"github.com/xraph/streampass/observability"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/redispub"
)

// replayEpoch is the simulated wall clock at the start of every replay.
var replayEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	switch {
	case err == nil:
	case errors.Is(err, errExpectation):
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		overrides  Config
		tiers      []string
	)

	flagSet := pflag.NewFlagSet("streampass", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	flagSet.StringVar(&overrides.Store, "store", "", "store backend: memory, sqlite or postgres")
	flagSet.StringVar(&overrides.DSN, "dsn", "", "sqlite path or postgres connection string")
	flagSet.StringVar(&overrides.Station, "station", "", "tier preset: OXDOG, BREAD or MEV")
	flagSet.StringSliceVar(&tiers, "tiers", nil, "tier thresholds in whole tokens, comma separated")
	flagSet.StringVar(&overrides.LogLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&overrides.RedisURL, "redis-url", "", "publish lifecycle events to this Redis server")
	flagSet.BoolVar(&overrides.Audit, "audit", false, "log an audit record for every lifecycle event")
	flagSet.Usage = func() {
		fmt.Fprintln(stderr, "usage: streampass replay [flags] scenario.yaml")
		fmt.Fprintln(stderr, "       streampass stations")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	positional := flagSet.Args()
	if len(positional) == 0 {
		flagSet.Usage()
		return errors.New("missing command")
	}

	switch positional[0] {
	case "stations":
		printStations(stdout)
		return nil
	case "replay":
		if len(positional) != 2 {
			flagSet.Usage()
			return errors.New("replay takes exactly one scenario file")
		}
	default:
		return fmt.Errorf("unknown command %q", positional[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	overrides.Tiers = tiers
	applyFlags(&cfg, overrides, flagSet)

	sc, err := loadScenario(positional[1])
	if err != nil {
		return err
	}
	return replay(ctx, cfg, sc, stdout, stderr)
}

// applyFlags copies every flag the user set over cfg.
func applyFlags(cfg *Config, o Config, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "store":
			cfg.Store = o.Store
		case "dsn":
			cfg.DSN = o.DSN
		case "station":
			cfg.Station = o.Station
			cfg.Tiers = nil
		case "tiers":
			cfg.Tiers = o.Tiers
		case "log-level":
			cfg.LogLevel = o.LogLevel
		case "redis-url":
			cfg.RedisURL = o.RedisURL
		case "audit":
			cfg.Audit = o.Audit
		}
	})
}

func replay(ctx context.Context, cfg Config, sc *Scenario, stdout, stderr io.Writer) error {
	logger, err := cfg.logger(stderr)
	if err != nil {
		return err
	}
	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return err
	}

	accounts := make(map[string]pass.Address, len(sc.Accounts))
	for alias, raw := range sc.Accounts {
		addr, err := pass.ParseAddress(raw)
		if err != nil {
			return fmt.Errorf("account %s: %w", alias, err)
		}
		accounts[alias] = addr
	}

	s, err := cfg.openStore(ctx)
	if err != nil {
		return err
	}

	opts, err := cfg.plugins(logger)
	if err != nil {
		_ = s.Close()
		return err
	}

	host := sim.New(engineCfg.Host, sim.WithLogger(logger))
	clock := sim.NewClock(replayEpoch)
	opts = append(opts, streampass.WithLogger(logger), streampass.WithClock(clock.Now))

	engine, err := streampass.New(s, host, engineCfg, opts...)
	if err != nil {
		_ = s.Close()
		return err
	}
	host.Register(engineCfg.Address, engine)

	if err := engine.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	defer func() { _ = engine.Stop(context.WithoutCancel(ctx)) }()

	runID := id.NewRunID()
	logger.Info("replay started", "run_id", runID, "scenario", sc.Name, "steps", len(sc.Steps))
	if sc.Name != "" {
		fmt.Fprintf(stdout, "# %s\n", sc.Name)
	}
	r := &replayer{
		engine:   engine,
		host:     host,
		clock:    clock,
		cfg:      engineCfg,
		decimals: cfg.Decimals,
		accounts: accounts,
		seen:     map[pass.Address]string{},
		out:      stdout,
	}
	return r.run(ctx, sc)
}

// plugins builds the engine plugins the config asks for.
func (c Config) plugins(logger *slog.Logger) ([]streampass.Option, error) {
	metrics, err := observability.Default()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	opts := []streampass.Option{streampass.WithPlugin(metrics)}

	if c.Audit {
		recorder := audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
			logger.Info("audit",
				"action", ev.Action,
				"resource", ev.Resource,
				"resource_id", ev.ResourceID,
				"outcome", ev.Outcome,
				"severity", ev.Severity,
			)
			return nil
		})
		opts = append(opts, streampass.WithPlugin(audithook.New(recorder, audithook.WithLogger(logger))))
	}

	if c.RedisURL != "" {
		pub, err := redispub.Dial(c.RedisURL, redispub.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		opts = append(opts, streampass.WithPlugin(pub))
	}
	return opts, nil
}

func printStations(w io.Writer) {
	names := make([]string, 0, len(stations))
	for name := range stations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%-6s %s\n", name, strings.Join(stations[name], ", "))
	}
}
