// Package config provides configuration file support for tlw.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/model"
)

const (
	// DirName is the workspace state directory.
	DirName = ".tlw"
	// FileName is the config file inside DirName.
	FileName = "config.yaml"
)

// Ledger drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config represents the tlw configuration.
type Config struct {
	Owner     string          `yaml:"owner,omitempty" json:"owner,omitempty"`
	Policy    PolicyConfig    `yaml:"policy" json:"policy"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Ledger    LedgerConfig    `yaml:"ledger" json:"ledger"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Webhooks  WebhookConfig   `yaml:"webhooks" json:"webhooks"`
	Metrics   MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// PolicyConfig holds the per-asset minimum lock amounts as decimal strings.
type PolicyConfig struct {
	Minimums map[string]string `yaml:"minimums" json:"minimums"`
}

// SchedulerConfig configures the countdown cadence.
type SchedulerConfig struct {
	TickInterval string `yaml:"tick_interval" json:"tick_interval"`
	RefreshDelay string `yaml:"refresh_delay" json:"refresh_delay"`
}

// LedgerConfig selects the ledger driver.
type LedgerConfig struct {
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json, console
	File       string `yaml:"file,omitempty" json:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty" json:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty" json:"max_age_days,omitempty"`
}

// WebhookConfig configures notification webhooks.
type WebhookConfig struct {
	Enabled        bool         `yaml:"enabled" json:"enabled"`
	MaxRetries     int          `yaml:"max_retries" json:"max_retries"`
	RetryDelay     string       `yaml:"retry_delay" json:"retry_delay"`
	AsyncQueueSize int          `yaml:"async_queue_size" json:"async_queue_size"`
	Hooks          []HookConfig `yaml:"hooks,omitempty" json:"hooks,omitempty"`
}

// HookConfig is a single webhook endpoint.
type HookConfig struct {
	URL     string   `yaml:"url" json:"url"`
	Secret  string   `yaml:"secret,omitempty" json:"-"`
	Events  []string `yaml:"events" json:"events"`
	Timeout string   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Enabled bool     `yaml:"enabled" json:"enabled"`
}

// MetricsConfig configures the Prometheus endpoint served by `tlw watch`.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty" json:"listen,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Policy: PolicyConfig{
			Minimums: map[string]string{
				string(model.AssetNative): "0.001",
				string(model.AssetToken):  "1",
			},
		},
		Scheduler: SchedulerConfig{
			TickInterval: "1s",
			RefreshDelay: "2s",
		},
		Ledger: LedgerConfig{
			Driver: DriverFile,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Webhooks: WebhookConfig{
			MaxRetries:     3,
			RetryDelay:     "5s",
			AsyncQueueSize: 100,
		},
	}
}

// Path returns the config file location for a workspace root.
func Path(root string) string {
	return filepath.Join(root, DirName, FileName)
}

// Load loads configuration from .tlw/config.yaml.
// Returns default config if file doesn't exist.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errclass.ErrConfigInvalid.WithMessagef("parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to .tlw/config.yaml.
func Save(root string, cfg *Config) error {
	cfgPath := Path(root)
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks every field that later code parses.
func (c *Config) Validate() error {
	if _, err := c.MinimumAmounts(); err != nil {
		return err
	}
	if _, err := parsePositiveDuration("scheduler.tick_interval", c.Scheduler.TickInterval); err != nil {
		return err
	}
	if _, err := parseDuration("scheduler.refresh_delay", c.Scheduler.RefreshDelay); err != nil {
		return err
	}
	switch c.Ledger.Driver {
	case DriverFile, DriverMemory:
	case DriverPostgres:
		if c.Ledger.DSN == "" {
			return errclass.ErrConfigInvalid.WithMessage("ledger.dsn is required for the postgres driver")
		}
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown ledger.driver %q", c.Ledger.Driver)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return errclass.ErrConfigInvalid.WithMessagef("unknown logging.format %q", c.Logging.Format)
	}
	if _, err := parseDuration("webhooks.retry_delay", c.Webhooks.RetryDelay); err != nil {
		return err
	}
	for i, h := range c.Webhooks.Hooks {
		if h.URL == "" {
			return errclass.ErrConfigInvalid.WithMessagef("webhooks.hooks[%d].url is empty", i)
		}
		if _, err := parseDuration(fmt.Sprintf("webhooks.hooks[%d].timeout", i), h.Timeout); err != nil {
			return err
		}
	}
	return nil
}

// MinimumAmounts parses the policy table. Every supported asset must have a
// strictly positive minimum.
func (c *Config) MinimumAmounts() (map[model.Asset]decimal.Decimal, error) {
	out := make(map[model.Asset]decimal.Decimal, len(model.Assets))
	for key, raw := range c.Policy.Minimums {
		asset, err := model.ParseAsset(key)
		if err != nil {
			return nil, errclass.ErrConfigInvalid.WithMessagef("policy.minimums: %v", err)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, errclass.ErrConfigInvalid.WithMessagef("policy.minimums.%s: %q is not a decimal", key, raw)
		}
		if !d.IsPositive() {
			return nil, errclass.ErrConfigInvalid.WithMessagef("policy.minimums.%s must be > 0, got %s", key, raw)
		}
		out[asset] = d
	}
	for _, a := range model.Assets {
		if _, ok := out[a]; !ok {
			return nil, errclass.ErrConfigInvalid.WithMessagef("policy.minimums.%s is missing", a)
		}
	}
	return out, nil
}

// TickInterval returns the countdown cadence. Call Validate first.
func (c *Config) TickInterval() time.Duration {
	d, err := parsePositiveDuration("", c.Scheduler.TickInterval)
	if err != nil || d == 0 {
		return time.Second
	}
	return d
}

// RefreshDelay returns the pause between an expiry and the refresh it triggers.
func (c *Config) RefreshDelay() time.Duration {
	d, _ := parseDuration("", c.Scheduler.RefreshDelay)
	return d
}

// Keys lists the settable keys in stable order.
func Keys() []string {
	keys := make([]string, 0, len(accessors))
	for k := range accessors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns a single config value by dotted key.
func (c *Config) Get(key string) (string, error) {
	acc, ok := accessors[key]
	if !ok {
		return "", errclass.ErrConfigInvalid.WithMessagef("unknown key %q", key)
	}
	return acc.get(c), nil
}

// Set updates a single config value by dotted key and re-validates. The
// config is left unchanged when validation fails.
func (c *Config) Set(key, value string) error {
	acc, ok := accessors[key]
	if !ok {
		return errclass.ErrConfigInvalid.WithMessagef("unknown key %q", key)
	}
	prev := acc.get(c)
	acc.set(c, value)
	if err := c.Validate(); err != nil {
		acc.set(c, prev)
		return err
	}
	return nil
}

type accessor struct {
	get func(*Config) string
	set func(*Config, string)
}

func field(p func(*Config) *string) accessor {
	return accessor{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) { *p(c) = v },
	}
}

func minimum(a model.Asset) accessor {
	return accessor{
		get: func(c *Config) string { return c.Policy.Minimums[string(a)] },
		set: func(c *Config, v string) {
			if c.Policy.Minimums == nil {
				c.Policy.Minimums = make(map[string]string)
			}
			c.Policy.Minimums[string(a)] = v
		},
	}
}

var accessors = map[string]accessor{
	"owner":                   field(func(c *Config) *string { return &c.Owner }),
	"ledger.driver":           field(func(c *Config) *string { return &c.Ledger.Driver }),
	"ledger.dsn":              field(func(c *Config) *string { return &c.Ledger.DSN }),
	"scheduler.tick_interval": field(func(c *Config) *string { return &c.Scheduler.TickInterval }),
	"scheduler.refresh_delay": field(func(c *Config) *string { return &c.Scheduler.RefreshDelay }),
	"logging.level":           field(func(c *Config) *string { return &c.Logging.Level }),
	"logging.format":          field(func(c *Config) *string { return &c.Logging.Format }),
	"logging.file":            field(func(c *Config) *string { return &c.Logging.File }),
	"metrics.listen":          field(func(c *Config) *string { return &c.Metrics.Listen }),
	"policy.minimums.native":  minimum(model.AssetNative),
	"policy.minimums.token":   minimum(model.AssetToken),
}

func parseDuration(key, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
	}
	if d < 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s must not be negative", key)
	}
	return d, nil
}

func parsePositiveDuration(key, raw string) (time.Duration, error) {
	d, err := parseDuration(key, raw)
	if err != nil {
		return 0, err
	}
	if raw != "" && d == 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s must be > 0", key)
	}
	return d, nil
}
