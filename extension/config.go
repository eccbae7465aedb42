package extension

import (
	"fmt"

	"github.com/xraph/streampass"
	"github.com/xraph/streampass/pass"
	"github.com/xraph/streampass/tier"
	"github.com/xraph/streampass/types"
)

// Config holds the StreamPass extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.streampass" or "streampass" keys).
type Config struct {
	// Address is the engine's own account on the streaming host.
	Address string `json:"address" mapstructure:"address" yaml:"address"`

	// Host is the streaming host allowed to deliver notifications.
	Host string `json:"host" mapstructure:"host" yaml:"host"`

	// Token is the accepted super token.
	Token string `json:"token" mapstructure:"token" yaml:"token"`

	// Name and Symbol label the pass collection (default: "StreamPass", "PASS").
	Name   string `json:"name" mapstructure:"name" yaml:"name"`
	Symbol string `json:"symbol" mapstructure:"symbol" yaml:"symbol"`

	// Owner is the initial administrator. Ignored once a store has one.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// Tiers are the tier thresholds in major units, e.g. ["0", "60", "120"].
	Tiers []string `json:"tiers" mapstructure:"tiers" yaml:"tiers"`

	// Decimals scales Tiers into base units (default: 18).
	Decimals int `json:"decimals" mapstructure:"decimals" yaml:"decimals"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Name:     streampass.DefaultName,
		Symbol:   streampass.DefaultSymbol,
		Decimals: types.TokenDecimals,
	}
}

// EngineConfig parses the addresses and thresholds into a streampass.Config.
func (c Config) EngineConfig() (streampass.Config, error) {
	out := streampass.Config{Name: c.Name, Symbol: c.Symbol}

	fields := []struct {
		key string
		raw string
		dst *pass.Address
	}{
		{"address", c.Address, &out.Address},
		{"host", c.Host, &out.Host},
		{"token", c.Token, &out.Token},
		{"owner", c.Owner, &out.Owner},
	}
	for _, f := range fields {
		addr, err := pass.ParseAddress(f.raw)
		if err != nil {
			return streampass.Config{}, fmt.Errorf("streampass: config %s: %w", f.key, err)
		}
		*f.dst = addr
	}

	sched, err := tier.ParseSchedule(c.Tiers, c.Decimals)
	if err != nil {
		return streampass.Config{}, fmt.Errorf("streampass: config tiers: %w", err)
	}
	out.Schedule = sched

	return out, out.Validate()
}
