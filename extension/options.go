package extension

import (
	"github.com/xraph/streampass"
	"github.com/xraph/streampass/flow"
	"github.com/xraph/streampass/plugin"
	"github.com/xraph/streampass/store"
)

// Option configures the StreamPass Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithProtocol sets the streaming host the engine talks to. Without one
// the extension runs an in-process simulated host.
func WithProtocol(p flow.Protocol) Option {
	return func(e *Extension) {
		e.protocol = p
	}
}

// WithEngineOption passes a streampass.Option through to the underlying engine.
func WithEngineOption(opt streampass.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a streampass plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, streampass.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithTiers sets the tier thresholds in major units.
func WithTiers(thresholds ...string) Option {
	return func(e *Extension) { e.config.Tiers = thresholds }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
