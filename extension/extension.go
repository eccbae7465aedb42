// Package extension provides the Forge extension adapter for StreamPass.
//
// It implements the forge.Extension interface to integrate the pass engine
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.streampass" or
// "streampass" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/flow/sim"
	"github.com/xraph/streampass/store"
	"github.com/xraph/streampass/store/memory"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "streampass"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Subscription passes paid for by token streams"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the StreamPass engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *streampass.Engine
	store      store.Store
	protocol   flow.Protocol
	engineOpts []streampass.Option
}

// New creates a new StreamPass Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying engine.
// This is nil until Register is called.
func (e *Extension) Engine() *streampass.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	eng, err := e.build()
	if err != nil {
		return err
	}
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*streampass.Engine, error) {
		return e.engine, nil
	})
}

// build constructs the engine from the resolved config.
func (e *Extension) build() (*streampass.Engine, error) {
	cfg, err := e.config.EngineConfig()
	if err != nil {
		return nil, err
	}

	// Use memory store if no store was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}

	var host *sim.Host
	if e.protocol == nil {
		host = sim.New(cfg.Host)
		e.protocol = host
	}

	eng, err := streampass.New(e.store, e.protocol, cfg, e.buildEngineOpts()...)
	if err != nil {
		return nil, err
	}
	if host != nil {
		host.Register(cfg.Address, eng)
	}
	return eng, nil
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("streampass: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	defer e.MarkStopped()
	if e.engine != nil {
		return e.engine.Stop(ctx)
	}
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("streampass: store not initialized")
	}
	if err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("streampass: store unhealthy: %w", err)
	}
	return nil
}

// buildEngineOpts constructs streampass.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []streampass.Option {
	opts := make([]streampass.Option, 0, len(e.engineOpts)+1)
	if e.config.DisableMigrate {
		opts = append(opts, streampass.WithoutMigrate())
	}
	return append(opts, e.engineOpts...)
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("streampass: configuration is required but not found in config files; " +
				"ensure 'extensions.streampass' or 'streampass' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("streampass: configuration loaded",
		forge.F("address", e.config.Address),
		forge.F("host", e.config.Host),
		forge.F("token", e.config.Token),
		forge.F("tiers", len(e.config.Tiers)),
		forge.F("disable_migrate", e.config.DisableMigrate),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.streampass", "streampass"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("streampass: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("streampass: loaded config from file",
			forge.F("key", key),
		)
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Name == "" {
		cfg.Name = defaults.Name
	}
	if cfg.Symbol == "" {
		cfg.Symbol = defaults.Symbol
	}
	if cfg.Decimals == 0 {
		cfg.Decimals = defaults.Decimals
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&yamlConfig.Address, programmaticConfig.Address)
	fill(&yamlConfig.Host, programmaticConfig.Host)
	fill(&yamlConfig.Token, programmaticConfig.Token)
	fill(&yamlConfig.Name, programmaticConfig.Name)
	fill(&yamlConfig.Symbol, programmaticConfig.Symbol)
	fill(&yamlConfig.Owner, programmaticConfig.Owner)

	if len(yamlConfig.Tiers) == 0 {
		yamlConfig.Tiers = programmaticConfig.Tiers
	}
	if yamlConfig.Decimals == 0 {
		yamlConfig.Decimals = programmaticConfig.Decimals
	}

	return mergeWithDefaults(yamlConfig)
}
