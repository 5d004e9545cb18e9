// Package config loads the YAML-driven carrier registry and per-carrier
// column maps (spec §6.2) that the rest of the module is parameterized
// by: carrier endpoints and auth variant, per-call timeouts, rate-limiter
// bounds, and the commission-sheet column layout.
package config

import (
	"os"
	"time"

	"github.com/gravitational/trace"
	"gopkg.in/yaml.v3"

	"github.com/atlas-broker/atlas/lib/bipro/carrier"
	"github.com/atlas-broker/atlas/lib/bipro/ratelimit"
	"github.com/atlas-broker/atlas/lib/commission/sheet"
)

// Default per-call timeouts (spec §5).
const (
	DefaultConnectTimeout     = 10 * time.Second
	DefaultReadTimeout        = 120 * time.Second
	DefaultAcknowledgeTimeout = 30 * time.Second
)

// Default concurrency bounds (spec §4.6).
const (
	DefaultGlobalConcurrency     = 20
	DefaultPerCarrierConcurrency = 5
)

// Config is the top-level document read from the YAML config file.
type Config struct {
	Archive     ArchiveConfig     `yaml:"archive"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Carriers    []CarrierConfig   `yaml:"carriers"`
}

// ArchiveConfig configures the archive adapter's storage location.
type ArchiveConfig struct {
	BaseDir string `yaml:"base_dir"`
}

// ConcurrencyConfig bounds the orchestrator's worker pool (spec §4.6).
type ConcurrencyConfig struct {
	Global     int `yaml:"global"`
	PerCarrier int `yaml:"per_carrier"`
}

// TimeoutConfig overrides the per-call timeout defaults for one carrier
// (spec §5: "Configurable per carrier").
type TimeoutConfig struct {
	Connect     time.Duration `yaml:"connect"`
	Read        time.Duration `yaml:"read"`
	Acknowledge time.Duration `yaml:"acknowledge"`
}

// RateLimitConfig overrides the AIMD bucket defaults for one carrier.
type RateLimitConfig struct {
	Min   float64       `yaml:"min"`
	Max   float64       `yaml:"max"`
	Add   float64       `yaml:"add"`
	Probe time.Duration `yaml:"probe"`
}

// ColumnMapConfig overrides the built-in keyword vocabulary for one
// carrier's commission sheet (spec §6.2: "a configuration table keyed by
// carrier name; each entry names ... header keywords").
type ColumnMapConfig struct {
	SheetNames []string            `yaml:"sheet_names"`
	Keywords   map[string][]string `yaml:"keywords"`
}

// CarrierConfig is one carrier's full configuration entry.
type CarrierConfig struct {
	Name             string          `yaml:"name"`
	STSEndpoint      string          `yaml:"sts_endpoint"`
	TransferEndpoint string          `yaml:"transfer_endpoint"`
	ExtranetEndpoint string          `yaml:"extranet_endpoint"`
	ConsumerID       string          `yaml:"consumer_id"`
	EasyLoginTicket  string          `yaml:"easy_login_ticket"`
	AuthVariants     []string        `yaml:"auth_variants"`
	Timeouts         TimeoutConfig   `yaml:"timeouts"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	ColumnMap        ColumnMapConfig `yaml:"column_map"`
}

// Load reads and parses a YAML config file from path, applying defaults
// to any zero-valued timeout/concurrency/rate-limit field.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, trace.Wrap(err, "reading config file %q", path)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, trace.Wrap(err, "parsing config file %q", path)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, trace.Wrap(err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Concurrency.Global == 0 {
		cfg.Concurrency.Global = DefaultGlobalConcurrency
	}
	if cfg.Concurrency.PerCarrier == 0 {
		cfg.Concurrency.PerCarrier = DefaultPerCarrierConcurrency
	}
	for i := range cfg.Carriers {
		c := &cfg.Carriers[i]
		if c.Timeouts.Connect == 0 {
			c.Timeouts.Connect = DefaultConnectTimeout
		}
		if c.Timeouts.Read == 0 {
			c.Timeouts.Read = DefaultReadTimeout
		}
		if c.Timeouts.Acknowledge == 0 {
			c.Timeouts.Acknowledge = DefaultAcknowledgeTimeout
		}
		if c.RateLimit.Min == 0 {
			c.RateLimit.Min = ratelimit.DefaultMin
		}
		if c.RateLimit.Max == 0 {
			c.RateLimit.Max = ratelimit.DefaultMax
		}
		if c.RateLimit.Add == 0 {
			c.RateLimit.Add = ratelimit.DefaultAdd
		}
		if c.RateLimit.Probe == 0 {
			c.RateLimit.Probe = ratelimit.DefaultProbe
		}
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Carriers))
	for _, c := range cfg.Carriers {
		if c.Name == "" {
			return trace.BadParameter("carrier entry is missing a name")
		}
		if seen[c.Name] {
			return trace.BadParameter("duplicate carrier name %q", c.Name)
		}
		seen[c.Name] = true
		if len(c.AuthVariants) == 0 {
			return trace.BadParameter("carrier %q declares no auth variants", c.Name)
		}
	}
	return nil
}

// CarrierByName returns the named carrier's config, or false if absent.
func (cfg *Config) CarrierByName(name string) (CarrierConfig, bool) {
	for _, c := range cfg.Carriers {
		if c.Name == name {
			return c, true
		}
	}
	return CarrierConfig{}, false
}

// ToCarrier builds a carrier.Carrier identity from this config entry.
func (c CarrierConfig) ToCarrier() carrier.Carrier {
	variants := make([]carrier.AuthVariant, len(c.AuthVariants))
	for i, v := range c.AuthVariants {
		variants[i] = carrier.AuthVariant(v)
	}
	return carrier.Carrier{
		Name:             c.Name,
		STSEndpoint:      c.STSEndpoint,
		TransferEndpoint: c.TransferEndpoint,
		ExtranetEndpoint: c.ExtranetEndpoint,
		ConsumerID:       c.ConsumerID,
		EasyLoginTicket:  c.EasyLoginTicket,
		Variants:         variants,
	}
}

// RateLimiterOptions builds the ratelimit.Option set for this carrier's
// configured AIMD bounds.
func (c CarrierConfig) RateLimiterOptions() []ratelimit.Option {
	return []ratelimit.Option{
		ratelimit.WithBounds(c.RateLimit.Min, c.RateLimit.Max, c.RateLimit.Add, c.RateLimit.Probe),
	}
}

// ToColumnMap builds a sheet.ColumnMap from this carrier's configured
// sheet names and keyword overrides, falling back to the built-in
// DefaultColumnMaps entry (if any) for fields the config doesn't
// override.
func (c CarrierConfig) ToColumnMap() sheet.ColumnMap {
	base := sheet.ColumnMapForCarrier(c.Name)
	cm := sheet.ColumnMap{
		Carrier:    c.Name,
		SheetNames: base.SheetNames,
		Keywords:   make(map[sheet.Field][]string, len(base.Keywords)),
	}
	for field, kws := range base.Keywords {
		cm.Keywords[field] = kws
	}
	if len(c.ColumnMap.SheetNames) > 0 {
		cm.SheetNames = c.ColumnMap.SheetNames
	}
	for field, kws := range c.ColumnMap.Keywords {
		cm.Keywords[sheet.Field(field)] = kws
	}
	return cm
}
